package encryption

import (
	"errors"

	"github.com/momoterminal/termguard/pkg/keystore"
)

var (
	// ErrKeyNotFound indicates decryption under an alias that has no key.
	// It matches keystore.ErrKeyNotFound as well.
	ErrKeyNotFound = keystore.ErrKeyNotFound

	// ErrAuthenticationFailed indicates the GCM tag did not verify: the
	// ciphertext was altered or sealed under a different key.
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")

	// ErrMalformedCiphertext indicates input that is not valid Base64 or
	// is too short to hold an IV and tag.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrIntegrityMismatch indicates a transaction record whose decrypted
	// payload does not match its recorded hash.
	ErrIntegrityMismatch = errors.New("transaction integrity hash mismatch")
)

// failureReason labels decryption errors for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrAuthenticationFailed):
		return "tag_mismatch"
	case errors.Is(err, ErrMalformedCiphertext):
		return "malformed"
	case errors.Is(err, ErrIntegrityMismatch):
		return "integrity_mismatch"
	default:
		return "other"
	}
}
