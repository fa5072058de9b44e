// Package credentials is the terminal's encrypted preferences store. It
// persists merchant configuration and session credentials in one SQLite
// file in which both entry names and values are unreadable without the
// store's master key.
//
// Names are replaced by an HMAC-SHA256 under a derived name key; values are
// sealed with XChaCha20-Poly1305 under a derived value key with the name
// hash bound as associated data, so a sealed value cannot be moved to
// another entry. Both keys are derived with HKDF from the keystore alias
// MasterKeyAlias, which is independent from the data encryption alias.
//
// Operations are individually atomic. IncrementCounter is the only
// read-modify-write primitive; callers composing their own get-then-set
// sequences get last-writer-wins.
package credentials
