package integrity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/momoterminal/termguard/pkg/buildmode"
)

// Nonce length bounds accepted by the integrity service.
const (
	MinNonceLength = 16
	MaxNonceLength = 500
)

var nonceEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// ValidateNonce checks n locally and returns the code the service would
// reject it with, or NoError.
func ValidateNonce(n string) ErrorCode {
	switch {
	case len(n) < MinNonceLength:
		return NonceTooShort
	case len(n) > MaxNonceLength:
		return NonceTooLong
	}
	for _, enc := range nonceEncodings {
		if _, err := enc.DecodeString(n); err == nil {
			return NoError
		}
	}
	return NonceIsNotBase64
}

// ErrDevelopmentOnly is returned by InsecureDevelopmentNonce in release
// builds.
var ErrDevelopmentOnly = errors.New("integrity: local nonces are only available in development builds")

// InsecureDevelopmentNonce generates a nonce on the device. The server
// cannot tie such a nonce to a session, so it is refused outside
// development builds. Production nonces come from the backend.
func InsecureDevelopmentNonce(mode buildmode.Mode) (string, error) {
	if !mode.IsDevelopment() {
		return "", ErrDevelopmentOnly
	}
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
