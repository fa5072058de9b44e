package hardening

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/momoterminal/termguard/pkg/buildmode"
)

const pinPrefix = "sha256/"

var (
	// ErrInvalidPattern reports a host pattern that is not an exact host,
	// "*.domain" or "**.domain".
	ErrInvalidPattern = errors.New("hardening: invalid host pattern")
	// ErrInvalidPin reports a pin that is not "sha256/" plus the base64 of
	// a 32-byte digest.
	ErrInvalidPin = errors.New("hardening: invalid pin")
)

// PinningError reports a chain with no certificate matching the host's
// pins.
type PinningError struct {
	Host     string
	Expected []string
	Got      []string
}

func (e *PinningError) Error() string {
	return fmt.Sprintf("certificate pinning failure for %s: chain %v matches none of %v", e.Host, e.Got, e.Expected)
}

type pinEntry struct {
	pattern string
	pins    []string
}

// CertificatePinner checks server chains against SPKI pins. A host with
// any matching pattern must present at least one pinned certificate;
// hosts with no matching pattern are not pinned. Register several pins per
// pattern (leaf, backup, root) so rotation needs no app update.
type CertificatePinner struct {
	mu      sync.RWMutex
	entries []pinEntry
	enabled bool
	logger  *slog.Logger
}

// NewCertificatePinner returns a pinner that enforces pins in release
// builds only.
func NewCertificatePinner(mode buildmode.Mode, logger *slog.Logger) *CertificatePinner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificatePinner{enabled: !mode.IsDevelopment(), logger: logger}
}

// Enabled reports whether pins are enforced.
func (p *CertificatePinner) Enabled() bool { return p.enabled }

// Add registers pins for pattern.
func (p *CertificatePinner) Add(pattern string, pins ...string) error {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if err := validatePattern(pattern); err != nil {
		return err
	}
	if len(pins) == 0 {
		return fmt.Errorf("%w: no pins for %s", ErrInvalidPin, pattern)
	}
	for _, pin := range pins {
		if err := validatePin(pin); err != nil {
			return err
		}
	}
	if p.enabled && len(pins) < 2 {
		p.logger.Warn("host pattern has a single pin; a certificate rotation will break it",
			"pattern", pattern)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, pinEntry{pattern: pattern, pins: slices.Clone(pins)})
	return nil
}

// Patterns lists registered patterns with their pins.
func (p *CertificatePinner) Patterns() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]string, len(p.entries))
	for _, e := range p.entries {
		out[e.pattern] = append(out[e.pattern], e.pins...)
	}
	return out
}

// PinsFor returns every pin whose pattern matches host.
func (p *CertificatePinner) PinsFor(host string) []string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	p.mu.RLock()
	defer p.mu.RUnlock()
	var pins []string
	for _, e := range p.entries {
		if matchPattern(e.pattern, host) {
			pins = append(pins, e.pins...)
		}
	}
	return pins
}

// Check verifies chain for host. It is a no-op when pinning is disabled.
func (p *CertificatePinner) Check(host string, chain []*x509.Certificate) error {
	if !p.enabled {
		return nil
	}
	expected := p.PinsFor(host)
	if len(expected) == 0 {
		return nil
	}
	got := make([]string, 0, len(chain))
	for _, cert := range chain {
		pin := PinForCertificate(cert)
		if slices.Contains(expected, pin) {
			return nil
		}
		got = append(got, pin)
	}
	p.logger.Error("certificate pinning failure", "host", host, "chain_pins", got)
	return &PinningError{Host: host, Expected: expected, Got: got}
}

// TLSConfig returns a copy of base (or a fresh config) that enforces pins
// after normal chain verification.
func (p *CertificatePinner) TLSConfig(base *tls.Config) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if !p.enabled {
		return cfg
	}
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.VerifiedChains) == 0 {
			return p.Check(cs.ServerName, cs.PeerCertificates)
		}
		var err error
		for _, chain := range cs.VerifiedChains {
			if err = p.Check(cs.ServerName, chain); err == nil {
				return nil
			}
		}
		return err
	}
	return cfg
}

// HTTPClient returns a client whose TLS connections are pinned. base may
// carry trusted roots or client certificates.
func (p *CertificatePinner) HTTPClient(base *tls.Config, timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = p.TLSConfig(base)
	return &http.Client{Transport: tr, Timeout: timeout}
}

// PinForCertificate returns the "sha256/<base64>" pin of cert's public key.
func PinForCertificate(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return pinPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

func validatePin(pin string) error {
	raw, ok := strings.CutPrefix(pin, pinPrefix)
	if !ok {
		return fmt.Errorf("%w: %q must start with %s", ErrInvalidPin, pin, pinPrefix)
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(b) != sha256.Size {
		return fmt.Errorf("%w: %q is not a base64 SHA-256 digest", ErrInvalidPin, pin)
	}
	return nil
}

func validatePattern(pattern string) error {
	host := strings.TrimPrefix(strings.TrimPrefix(pattern, "**."), "*.")
	if host == "" || strings.ContainsAny(host, "*/: ") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") || strings.Contains(host, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	return nil
}

// matchPattern reports whether host matches pattern. "*.d" matches exactly
// one label below d; "**.d" matches d and any depth below it.
func matchPattern(pattern, host string) bool {
	switch {
	case strings.HasPrefix(pattern, "**."):
		domain := pattern[3:]
		return host == domain || strings.HasSuffix(host, "."+domain)
	case strings.HasPrefix(pattern, "*."):
		domain := pattern[2:]
		label, ok := strings.CutSuffix(host, "."+domain)
		return ok && label != "" && !strings.Contains(label, ".")
	default:
		return host == pattern
	}
}
