package sigupdate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// CacheEntry records the last contact with the signature source.
type CacheEntry struct {
	LatestVersion string    `json:"latest_version"`
	ETag          string    `json:"etag,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// IsValid reports whether the entry was recorded within ttl.
func (c *CacheEntry) IsValid(ttl time.Duration) bool {
	return c != nil && time.Since(c.CheckedAt) < ttl
}

// ReadCacheFile loads the entry at path.
func ReadCacheFile(path string) (*CacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entry := new(CacheEntry)
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// WriteCacheFile stores entry at path, creating the directory 0700.
func WriteCacheFile(path string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
