package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/keystore"
)

// MasterKeyAlias is the keystore alias of the store's master key.
const MasterKeyAlias = "credential_store_master"

var (
	// ErrCorruptEntry indicates a stored value that fails authentication,
	// typically after the master key was replaced.
	ErrCorruptEntry = errors.New("credential entry failed authentication")

	// ErrNotInteger indicates an integer read of a non-integer entry.
	ErrNotInteger = errors.New("credential entry is not an integer")
)

// Store is an open credential file.
type Store struct {
	db     *sql.DB
	seal   *sealer
	logger *slog.Logger
	audit  audit.EventEmitter

	// mu serializes read-modify-write sequences.
	mu sync.Mutex
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	Audit  audit.EventEmitter
}

// Open opens or creates the store at path using keys for its master key.
func Open(path string, keys keystore.Provider, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}
	master, err := keys.GetOrCreateKey(MasterKeyAlias)
	if err != nil {
		return nil, fmt.Errorf("credential master key: %w", err)
	}
	seal, err := newSealer(master)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	// one connection gives the single-writer semantics the store relies on
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA secure_delete = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("credentials %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS prefs (
		name_hash TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials schema: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restrict credentials file: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopEmitter{}
	}
	return &Store{db: db, seal: seal, logger: opts.Logger, audit: opts.Audit}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetString returns the value stored under name.
func (s *Store) GetString(name string) (string, bool, error) {
	return s.get(context.Background(), s.db, name)
}

// SetString stores value under name, replacing any previous value.
func (s *Store) SetString(name, value string) error {
	return s.set(context.Background(), s.db, name, value)
}

// GetInt64 returns the integer stored under name.
func (s *Store) GetInt64(name string) (int64, bool, error) {
	v, ok, err := s.GetString(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s", ErrNotInteger, name)
	}
	return n, true, nil
}

// SetInt64 stores an integer under name.
func (s *Store) SetInt64(name string, v int64) error {
	return s.SetString(name, strconv.FormatInt(v, 10))
}

// Remove deletes name. Removing an absent name is not an error.
func (s *Store) Remove(name string) error {
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE name_hash = ?`, s.seal.nameHash(name)); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Contains reports whether name has a value.
func (s *Store) Contains(name string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM prefs WHERE name_hash = ?`, s.seal.nameHash(name)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query credential: %w", err)
	}
	return n > 0, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM prefs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

// IsConfigured reports whether both the API endpoint and the merchant code
// are present and non-blank.
func (s *Store) IsConfigured() (bool, error) {
	for _, name := range []string{KeyAPIEndpoint, KeyMerchantCode} {
		v, ok, err := s.GetString(name)
		if err != nil {
			return false, err
		}
		if !ok || strings.TrimSpace(v) == "" {
			return false, nil
		}
	}
	return true, nil
}

// ClearAuthData removes the session fields in one transaction, leaving
// merchant configuration in place.
func (s *Store) ClearAuthData() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear auth: %w", err)
	}
	defer tx.Rollback()

	for _, name := range authFields {
		if _, err := tx.Exec(`DELETE FROM prefs WHERE name_hash = ?`, s.seal.nameHash(name)); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear auth: %w", err)
	}
	s.logger.Info("credential session data cleared", "fields", len(authFields))
	audit.Safe(s.audit, s.logger, audit.NewCredentialsClearAuth(len(authFields)))
	return nil
}

// ClearAll removes every entry.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM prefs`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Warn("credential store wiped")
	audit.Safe(s.audit, s.logger, audit.NewCredentialsWipe())
	return nil
}

// IncrementCounter atomically adds one to the integer under name, starting
// from zero, and returns the new value.
func (s *Store) IncrementCounter(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin increment: %w", err)
	}
	defer tx.Rollback()

	var n int64
	v, ok, err := s.get(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if ok {
		if n, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, name)
		}
	}
	n++
	if err := s.set(ctx, tx, name, strconv.FormatInt(n, 10)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit increment: %w", err)
	}
	return n, nil
}

// EnsureDeviceID returns the stored device id, generating a random UUID
// the first time.
func (s *Store) EnsureDeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.GetString(KeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.SetString(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) get(ctx context.Context, q querier, name string) (string, bool, error) {
	h := s.seal.nameHash(name)
	var sealed []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM prefs WHERE name_hash = ?`, h).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read credential: %w", err)
	}
	pt, err := s.seal.open(h, sealed)
	if err != nil {
		return "", false, fmt.Errorf("read credential %s: %w", name, err)
	}
	return string(pt), true, nil
}

func (s *Store) set(ctx context.Context, q querier, name, value string) error {
	h := s.seal.nameHash(name)
	sealed, err := s.seal.seal(h, []byte(value))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO prefs (name_hash, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name_hash) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		h, sealed, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}
