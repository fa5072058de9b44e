// Package encryption seals terminal data with AES-256-GCM under keys held
// by a keystore.Provider.
//
// Ciphertexts are Base64 (standard alphabet, padded) of IV || ciphertext ||
// tag with a 12-byte IV drawn fresh for every call and a 16-byte tag.
// Decrypt never generates keys, so a missing alias is reported instead of
// silently replaced.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/momoterminal/termguard/internal/metrics"
	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/keystore"
)

// DefaultKeyAlias names the terminal's primary data key.
const DefaultKeyAlias = "momo_terminal_master_key"

const (
	ivSize  = 12
	tagSize = 16
)

// Engine encrypts and decrypts with keys from a provider. It holds no
// cipher state between calls and is safe for concurrent use.
type Engine struct {
	keys    keystore.Provider
	logger  *slog.Logger
	audit   audit.EventEmitter
	metrics *metrics.Registry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithAudit records key lifecycle events to em.
func WithAudit(em audit.EventEmitter) Option { return func(e *Engine) { e.audit = em } }

// WithMetrics counts decryption failures and rotations in r.
func WithMetrics(r *metrics.Registry) Option { return func(e *Engine) { e.metrics = r } }

// NewEngine returns an engine over keys.
func NewEngine(keys keystore.Provider, opts ...Option) *Engine {
	e := &Engine{keys: keys, logger: slog.Default(), audit: audit.NopEmitter{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// GetOrCreateEncryptionKey ensures a key exists for alias.
func (e *Engine) GetOrCreateEncryptionKey(alias string) (keystore.Key, error) {
	k, err := e.keys.GetOrCreateKey(alias)
	if err != nil {
		return nil, fmt.Errorf("get or create key %q: %w", alias, err)
	}
	return k, nil
}

// Encrypt seals plaintext under alias, creating the key on first use.
func (e *Engine) Encrypt(plaintext, alias string) (string, error) {
	return e.EncryptBytes([]byte(plaintext), alias)
}

// EncryptBytes is Encrypt for binary input.
func (e *Engine) EncryptBytes(plaintext []byte, alias string) (string, error) {
	k, err := e.GetOrCreateEncryptionKey(alias)
	if err != nil {
		return "", err
	}
	var sealed []byte
	err = k.Use(keystore.PurposeEncrypt, func(material []byte) error {
		aead, err := newGCM(material)
		if err != nil {
			return err
		}
		iv := make([]byte, ivSize, ivSize+len(plaintext)+tagSize)
		if _, err := rand.Read(iv); err != nil {
			return fmt.Errorf("generate iv: %w", err)
		}
		sealed = aead.Seal(iv, iv, plaintext, nil)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("encrypt with %q: %w", alias, err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. It returns ErrKeyNotFound,
// ErrMalformedCiphertext or ErrAuthenticationFailed rather than garbage.
func (e *Engine) Decrypt(encoded, alias string) (string, error) {
	pt, err := e.DecryptBytes(encoded, alias)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// DecryptBytes is Decrypt for binary output.
func (e *Engine) DecryptBytes(encoded, alias string) ([]byte, error) {
	pt, err := e.decrypt(encoded, alias)
	if err != nil {
		e.metrics.RecordDecryptFailure(failureReason(err))
		e.logger.Warn("decrypt failed", "alias", alias, "reason", failureReason(err))
		return nil, err
	}
	return pt, nil
}

func (e *Engine) decrypt(encoded, alias string) ([]byte, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		// non-zero padding bits decode leniently to the original bytes
		if _, lerr := base64.StdEncoding.DecodeString(encoded); lerr == nil {
			return nil, fmt.Errorf("%w: non-canonical encoding", ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < ivSize+tagSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedCiphertext, len(raw), ivSize+tagSize)
	}

	k, err := e.keys.GetKey(alias)
	if err != nil {
		return nil, fmt.Errorf("decrypt with %q: %w", alias, err)
	}
	var pt []byte
	err = k.Use(keystore.PurposeDecrypt, func(material []byte) error {
		aead, err := newGCM(material)
		if err != nil {
			return err
		}
		pt, err = aead.Open(nil, raw[:ivSize], raw[ivSize:], nil)
		if err != nil {
			return ErrAuthenticationFailed
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decrypt with %q: %w", alias, err)
	}
	return pt, nil
}

// RotateKey replaces the key under alias. Everything sealed under the old
// key becomes permanently undecryptable.
func (e *Engine) RotateKey(alias string) error {
	if _, err := e.keys.RotateKey(alias); err != nil {
		return fmt.Errorf("rotate key %q: %w", alias, err)
	}
	e.metrics.RecordKeyRotation()
	e.logger.Warn("encryption key rotated", "alias", alias)
	audit.Safe(e.audit, e.logger, audit.NewKeyRotate(alias))
	return nil
}

// DeleteKey removes the key under alias.
func (e *Engine) DeleteKey(alias string) error {
	if err := e.keys.DeleteKey(alias); err != nil {
		return fmt.Errorf("delete key %q: %w", alias, err)
	}
	e.logger.Warn("encryption key deleted", "alias", alias)
	audit.Safe(e.audit, e.logger, audit.NewKeyDelete(alias))
	return nil
}

// HasKey reports whether alias currently has a key.
func (e *Engine) HasKey(alias string) (bool, error) {
	_, err := e.keys.GetKey(alias)
	if errors.Is(err, keystore.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
