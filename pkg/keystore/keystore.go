// Package keystore holds the terminal's symmetric keys. A key is addressed
// by alias and only reachable through Key.Use; providers never hand raw
// material to callers for storage.
//
// On a handset the provider is backed by the platform secure element. The
// FileProvider here plays that role for terminals and tooling that run on
// a regular filesystem, and MemoryProvider serves tests.
package keystore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Purpose restricts what a key may be used for.
type Purpose uint8

const (
	PurposeEncrypt Purpose = 1 << iota
	PurposeDecrypt
)

func (p Purpose) String() string {
	var parts []string
	if p&PurposeEncrypt != 0 {
		parts = append(parts, "encrypt")
	}
	if p&PurposeDecrypt != 0 {
		parts = append(parts, "decrypt")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

func parsePurpose(s string) (Purpose, error) {
	var p Purpose
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "encrypt":
			p |= PurposeEncrypt
		case "decrypt":
			p |= PurposeDecrypt
		case "none", "":
		default:
			return 0, fmt.Errorf("%w: unknown purpose %q", ErrInvalidKeyFormat, part)
		}
	}
	return p, nil
}

// Spec describes how a key was generated.
type Spec struct {
	Alias    string
	Purposes Purpose
	// UserAuthRequired gates use on a recent user authentication. Terminal
	// keys leave it off so background jobs can decrypt.
	UserAuthRequired bool
	// InvalidatedByEnrollment destroys the key when biometric enrollment
	// changes. Terminal keys leave it off.
	InvalidatedByEnrollment bool
	CreatedAt               time.Time
}

// DefaultSpec is the spec every terminal key is generated with.
func DefaultSpec(alias string) Spec {
	return Spec{
		Alias:    alias,
		Purposes: PurposeEncrypt | PurposeDecrypt,
	}
}

// Key is a handle to stored key material.
type Key interface {
	Alias() string
	Spec() Spec
	// Use runs fn with the raw key material when purpose is permitted.
	// fn must not retain the slice.
	Use(purpose Purpose, fn func(material []byte) error) error
}

// Provider stores keys by alias. Implementations must be safe for
// concurrent use.
type Provider interface {
	// GetOrCreateKey returns the key for alias, generating it with
	// DefaultSpec when absent. Repeated calls return the same key.
	GetOrCreateKey(alias string) (Key, error)
	// GetKey returns the key for alias or a KeyNotFoundError.
	GetKey(alias string) (Key, error)
	// DeleteKey removes alias. Deleting a missing alias is not an error.
	DeleteKey(alias string) error
	// RotateKey replaces the material under alias with fresh material.
	// Data sealed under the old key is unrecoverable afterwards.
	RotateKey(alias string) (Key, error)
	// Aliases lists stored aliases in lexical order.
	Aliases() ([]string, error)
}

var (
	// ErrKeyNotFound matches any KeyNotFoundError.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidPermissions indicates a key file or directory readable by
	// other users.
	ErrInvalidPermissions = errors.New("insecure key permissions")

	// ErrInvalidKeyFormat indicates a stored key that does not parse.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrInvalidAlias indicates an alias outside [A-Za-z0-9_.-]{1,64}.
	ErrInvalidAlias = errors.New("invalid key alias")

	// ErrPurposeNotAllowed indicates a key used outside its purposes.
	ErrPurposeNotAllowed = errors.New("key purpose not allowed")
)

// KeyNotFoundError reports a missing alias.
type KeyNotFoundError struct {
	Alias string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Alias)
}

// Is lets errors.Is match ErrKeyNotFound.
func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateAlias rejects aliases that could escape a key directory.
func ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) || alias == "." || alias == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}

// handle is the Key implementation shared by both providers.
type handle struct {
	spec     Spec
	material []byte
}

func (h *handle) Alias() string { return h.spec.Alias }
func (h *handle) Spec() Spec    { return h.spec }

func (h *handle) Use(purpose Purpose, fn func([]byte) error) error {
	if purpose == 0 || h.spec.Purposes&purpose != purpose {
		return fmt.Errorf("%w: %s on key %q (allowed: %s)", ErrPurposeNotAllowed, purpose, h.spec.Alias, h.spec.Purposes)
	}
	return fn(h.material)
}

// asKey converts without producing a non-nil Key around a nil *handle.
func asKey(h *handle, err error) (Key, error) {
	if err != nil {
		return nil, err
	}
	return h, nil
}
