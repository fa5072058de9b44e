// Package sigupdate refreshes the threat signature table from a remote
// source. A fetched table is installed only when it parses, validates and
// is strictly newer than the table in use; results are cached so terminals
// do not poll on every command.
package sigupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/mod/semver"

	"github.com/momoterminal/termguard/pkg/threat"
)

// DefaultCacheTTL is how long a check result is reused.
const DefaultCacheTTL = 6 * time.Hour

// Result contains the outcome of an update check.
type Result struct {
	// CurrentVersion is the version of the table in use before the check.
	CurrentVersion string `json:"current_version" yaml:"current_version"`
	// LatestVersion is the newest version offered by the source.
	LatestVersion string `json:"latest_version" yaml:"latest_version"`
	// Installed is true if a newer table was written to Path.
	Installed bool `json:"installed" yaml:"installed"`
	// FromCache indicates the source was not contacted.
	FromCache bool `json:"from_cache" yaml:"from_cache"`
}

// Updater fetches tables from URL and installs them at Path.
type Updater struct {
	Fetcher   *Fetcher
	Path      string
	CachePath string
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// New returns an Updater installing to path. client should be pinned in
// release builds; nil uses a default client.
func New(url, path string, client *http.Client) *Updater {
	return &Updater{
		Fetcher:   NewFetcher(url, client),
		Path:      path,
		CachePath: path + ".check",
		CacheTTL:  DefaultCacheTTL,
		Logger:    slog.Default(),
	}
}

// Update checks the source and installs a newer table. force ignores the
// cache. The returned table is the one now in use, which is current when
// nothing newer was found.
func (u *Updater) Update(ctx context.Context, current *threat.Signatures, force bool) (*Result, *threat.Signatures, error) {
	res := &Result{CurrentVersion: current.Version, LatestVersion: current.Version}

	cached, _ := ReadCacheFile(u.CachePath)
	// a cached newer version means the last install did not take
	pending := cached != nil && semver.Compare(cached.LatestVersion, current.Version) > 0
	if !force && !pending && cached.IsValid(u.CacheTTL) {
		res.LatestVersion = cached.LatestVersion
		res.FromCache = true
		return res, current, nil
	}

	// a 304 is only trusted when the cached version needs no install
	etag := ""
	if cached != nil && !force && semver.Compare(cached.LatestVersion, current.Version) <= 0 {
		etag = cached.ETag
	}
	dl, err := u.Fetcher.Fetch(ctx, etag)
	if err != nil {
		return res, current, err
	}
	if dl.NotModified {
		res.LatestVersion = cached.LatestVersion
		u.recordCheck(&CacheEntry{LatestVersion: cached.LatestVersion, ETag: etag, CheckedAt: time.Now().UTC()})
		return res, current, nil
	}

	fetched := dl.Signatures
	res.LatestVersion = fetched.Version
	u.recordCheck(&CacheEntry{LatestVersion: fetched.Version, ETag: dl.ETag, CheckedAt: time.Now().UTC()})

	if !fetched.NewerThan(current) {
		u.Logger.Debug("signature table up to date", "version", current.Version, "offered", fetched.Version)
		return res, current, nil
	}
	if err := writeAtomic(u.Path, dl.Raw); err != nil {
		return res, current, fmt.Errorf("install signatures: %w", err)
	}
	res.Installed = true
	u.Logger.Info("signature table installed", "from", current.Version, "to", fetched.Version, "path", u.Path)
	return res, fetched, nil
}

// Installed loads the table at path, or returns the built-in table when
// none is installed or the installed one is older than the built-in.
func Installed(path string) (*threat.Signatures, error) {
	builtin := threat.DefaultSignatures()
	if path == "" {
		return builtin, nil
	}
	s, err := threat.LoadSignatures(path)
	if errors.Is(err, os.ErrNotExist) {
		return builtin, nil
	}
	if err != nil {
		return nil, err
	}
	if builtin.NewerThan(s) {
		return builtin, nil
	}
	return s, nil
}

func (u *Updater) recordCheck(entry *CacheEntry) {
	if err := WriteCacheFile(u.CachePath, entry); err != nil {
		u.Logger.Debug("signature check not cached", "path", u.CachePath, "error", err)
	}
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".signatures-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
