package keystore

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	pemType = "TERMGUARD SECRET KEY"
	keyExt  = ".key"
)

// FileProvider stores one PEM file per alias in a directory readable only
// by the owner. Key files are written atomically and checked for 0600
// permissions before every load.
type FileProvider struct {
	dir string

	mu    sync.Mutex
	cache map[string]cachedKey
}

// cachedKey remembers the file state a handle was read from so rotations
// by another process invalidate it.
type cachedKey struct {
	h    *handle
	info os.FileInfo
}

// NewFileProvider opens or creates dir with mode 0700.
func NewFileProvider(dir string) (*FileProvider, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}
	if err := checkDirPermissions(dir); err != nil {
		return nil, err
	}
	return &FileProvider{dir: dir, cache: make(map[string]cachedKey)}, nil
}

// Dir returns the keystore directory.
func (p *FileProvider) Dir() string { return p.dir }

func (p *FileProvider) path(alias string) string {
	return filepath.Join(p.dir, alias+keyExt)
}

func (p *FileProvider) GetOrCreateKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := p.loadLocked(alias)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	h, err = p.generate(alias)
	if err != nil {
		return nil, err
	}
	if err := p.writeNew(h); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// another process created the key first; use theirs
			return asKey(p.loadLocked(alias))
		}
		return nil, err
	}
	return asKey(p.loadLocked(alias))
}

func (p *FileProvider) GetKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return asKey(p.loadLocked(alias))
}

func (p *FileProvider) DeleteKey(alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, alias)
	if err := os.Remove(p.path(alias)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete key %q: %w", alias, err)
	}
	return nil
}

func (p *FileProvider) RotateKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := p.generate(alias)
	if err != nil {
		return nil, err
	}
	if err := p.writeReplace(h); err != nil {
		return nil, err
	}
	delete(p.cache, alias)
	return asKey(p.loadLocked(alias))
}

func (p *FileProvider) Aliases() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("list keystore: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, keyExt) {
			continue
		}
		alias := strings.TrimSuffix(name, keyExt)
		if ValidateAlias(alias) == nil {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

// loadLocked returns the cached handle while the file is unchanged and
// rereads it otherwise.
func (p *FileProvider) loadLocked(alias string) (*handle, error) {
	path := p.path(alias)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		delete(p.cache, alias)
		return nil, &KeyNotFoundError{Alias: alias}
	}
	if err != nil {
		return nil, fmt.Errorf("stat key file: %w", err)
	}
	if c, ok := p.cache[alias]; ok && c.fresh(info) {
		return c.h, nil
	}

	if err := checkFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	h, err := decodeKey(alias, data)
	if err != nil {
		return nil, err
	}
	p.cache[alias] = cachedKey{h: h, info: info}
	return h, nil
}

// fresh reports whether info describes the file the handle was read from.
// Rotation renames a new inode into place, so SameFile catches it even when
// size and mtime are unchanged.
func (c cachedKey) fresh(info os.FileInfo) bool {
	return os.SameFile(c.info, info) &&
		c.info.ModTime().Equal(info.ModTime()) &&
		c.info.Size() == info.Size()
}

func (p *FileProvider) generate(alias string) (*handle, error) {
	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	spec := DefaultSpec(alias)
	spec.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return &handle{spec: spec, material: material}, nil
}

// writeNew publishes h only if no key file exists yet. The hard link fails
// with fs.ErrExist when a concurrent writer won.
func (p *FileProvider) writeNew(h *handle) error {
	tmp, err := p.writeTemp(h)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := os.Link(tmp, p.path(h.spec.Alias)); err != nil {
		return fmt.Errorf("publish key %q: %w", h.spec.Alias, err)
	}
	return nil
}

// writeReplace atomically swaps the key file for h.
func (p *FileProvider) writeReplace(h *handle) error {
	tmp, err := p.writeTemp(h)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, p.path(h.spec.Alias)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace key %q: %w", h.spec.Alias, err)
	}
	return nil
}

func (p *FileProvider) writeTemp(h *handle) (string, error) {
	f, err := os.CreateTemp(p.dir, "."+h.spec.Alias+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp key file: %w", err)
	}
	name := f.Name()
	if err := setFilePermissions(name); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("set key file permissions: %w", err)
	}
	_, werr := f.Write(encodeKey(h))
	serr := f.Sync()
	cerr := f.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("write key file: %w", err)
	}
	return name, nil
}

func encodeKey(h *handle) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type: pemType,
		Headers: map[string]string{
			"Alias":                     h.spec.Alias,
			"Purposes":                  h.spec.Purposes.String(),
			"Created":                   h.spec.CreatedAt.Format(time.RFC3339),
			"User-Auth-Required":        strconv.FormatBool(h.spec.UserAuthRequired),
			"Invalidated-By-Enrollment": strconv.FormatBool(h.spec.InvalidatedByEnrollment),
		},
		Bytes: h.material,
	})
}

func decodeKey(alias string, data []byte) (*handle, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in key %q", ErrInvalidKeyFormat, alias)
	}
	if block.Type != pemType {
		return nil, fmt.Errorf("%w: got PEM type %q", ErrInvalidKeyFormat, block.Type)
	}
	if len(block.Bytes) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyFormat, len(block.Bytes), KeySize)
	}
	if got := block.Headers["Alias"]; got != alias {
		return nil, fmt.Errorf("%w: file for %q names alias %q", ErrInvalidKeyFormat, alias, got)
	}
	purposes, err := parsePurpose(block.Headers["Purposes"])
	if err != nil {
		return nil, err
	}
	spec := Spec{Alias: alias, Purposes: purposes}
	if c := block.Headers["Created"]; c != "" {
		if spec.CreatedAt, err = time.Parse(time.RFC3339, c); err != nil {
			return nil, fmt.Errorf("%w: bad Created header: %v", ErrInvalidKeyFormat, err)
		}
	}
	spec.UserAuthRequired, _ = strconv.ParseBool(block.Headers["User-Auth-Required"])
	spec.InvalidatedByEnrollment, _ = strconv.ParseBool(block.Headers["Invalidated-By-Enrollment"])
	return &handle{spec: spec, material: block.Bytes}, nil
}
