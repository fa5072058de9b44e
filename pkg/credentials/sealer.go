package credentials

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/momoterminal/termguard/pkg/keystore"
)

const (
	infoNameKey  = "termguard/credentials/name-hmac/v1"
	infoValueKey = "termguard/credentials/value-aead/v1"
)

// sealer hashes names and seals values for one master key.
type sealer struct {
	nameKey  []byte
	valueKey []byte
}

func newSealer(master keystore.Key) (*sealer, error) {
	s := &sealer{}
	err := master.Use(keystore.PurposeEncrypt|keystore.PurposeDecrypt, func(material []byte) error {
		var err error
		if s.nameKey, err = derive(material, infoNameKey); err != nil {
			return err
		}
		s.valueKey, err = derive(material, infoValueKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("derive credential keys: %w", err)
	}
	return s, nil
}

func derive(secret []byte, info string) ([]byte, error) {
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sealer) nameHash(name string) string {
	m := hmac.New(sha256.New, s.nameKey)
	m.Write([]byte(name))
	return hex.EncodeToString(m.Sum(nil))
}

func (s *sealer) seal(nameHash string, value []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.valueKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, value, []byte(nameHash)), nil
}

func (s *sealer) open(nameHash string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.valueKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorruptEntry
	}
	pt, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], []byte(nameHash))
	if err != nil {
		return nil, ErrCorruptEntry
	}
	return pt, nil
}
