package keystore

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryProvider keeps keys in process memory. Keys do not survive restart.
type MemoryProvider struct {
	mu   sync.Mutex
	keys map[string]*handle
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{keys: make(map[string]*handle)}
}

func (p *MemoryProvider) GetOrCreateKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.keys[alias]; ok {
		return h, nil
	}
	return asKey(p.generateLocked(alias))
}

func (p *MemoryProvider) GetKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.keys[alias]
	if !ok {
		return nil, &KeyNotFoundError{Alias: alias}
	}
	return h, nil
}

func (p *MemoryProvider) DeleteKey(alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, alias)
	return nil
}

func (p *MemoryProvider) RotateKey(alias string) (Key, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, alias)
	return asKey(p.generateLocked(alias))
}

func (p *MemoryProvider) Aliases() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.keys))
	for a := range p.keys {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (p *MemoryProvider) generateLocked(alias string) (*handle, error) {
	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	spec := DefaultSpec(alias)
	spec.CreatedAt = time.Now().UTC()
	h := &handle{spec: spec, material: material}
	p.keys[alias] = h
	return h, nil
}
