package threat

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momoterminal/termguard/internal/metrics"
)

// CheckResult is an immutable snapshot of one check. It is built fresh on
// every call so toggled settings are always reflected.
type CheckResult struct {
	IsSecure           bool      `json:"is_secure" yaml:"is_secure"`
	IsRooted           bool      `json:"is_rooted" yaml:"is_rooted"`
	IsEmulator         bool      `json:"is_emulator" yaml:"is_emulator"`
	HasInstrumentation bool      `json:"has_instrumentation" yaml:"has_instrumentation"`
	IsDebuggable       bool      `json:"is_debuggable" yaml:"is_debuggable"`
	FailureReasons     []string  `json:"failure_reasons" yaml:"failure_reasons"`
	SignatureVersion   string    `json:"signature_version" yaml:"signature_version"`
	CheckedAt          time.Time `json:"checked_at" yaml:"checked_at"`
	// ProbeErrors counts probes that could not decide and were treated
	// as not detected.
	ProbeErrors int `json:"probe_errors" yaml:"probe_errors"`
}

// Engine runs the probe set against a device.
type Engine struct {
	device       Device
	logger       *slog.Logger
	metrics      *metrics.Registry
	probeTimeout time.Duration
	concurrency  int

	mu  sync.RWMutex
	sig *Signatures
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics counts positive probes in r.
func WithMetrics(r *metrics.Registry) Option { return func(e *Engine) { e.metrics = r } }

// WithSignatures replaces the embedded table.
func WithSignatures(s *Signatures) Option { return func(e *Engine) { e.sig = s } }

// WithProbeTimeout bounds each probe. Zero disables the bound.
func WithProbeTimeout(d time.Duration) Option { return func(e *Engine) { e.probeTimeout = d } }

// WithConcurrency caps probes running at once.
func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

// NewEngine returns an engine probing device.
func NewEngine(device Device, opts ...Option) *Engine {
	e := &Engine{
		device:       device,
		logger:       slog.Default(),
		probeTimeout: 5 * time.Second,
		concurrency:  8,
	}
	for _, o := range opts {
		o(e)
	}
	if e.sig == nil {
		e.sig = DefaultSignatures()
	}
	return e
}

// Signatures returns the table in use.
func (e *Engine) Signatures() *Signatures {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sig
}

// UpdateSignatures swaps in s if it validates and is not older than the
// current table. Checks already running keep the table they started with.
func (e *Engine) UpdateSignatures(s *Signatures) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sig.NewerThan(s) {
		return fmt.Errorf("%w: %s < %s", ErrStaleSignatures, s.Version, e.sig.Version)
	}
	e.logger.Info("threat signatures updated", "from", e.sig.Version, "to", s.Version)
	e.sig = s
	return nil
}

// Check runs every probe and aggregates the result. It never fails; probes
// that error count as not detected and are tallied in ProbeErrors.
func (e *Engine) Check(ctx context.Context) CheckResult {
	sig := e.Signatures()
	all := make([]probe, 0, len(rootProbes)+len(emulatorProbes)+len(instrumentationProbes)+len(debugProbes))
	all = append(all, rootProbes...)
	all = append(all, emulatorProbes...)
	all = append(all, instrumentationProbes...)
	all = append(all, debugProbes...)

	results := e.runProbes(ctx, all, newProbeEnv(e.device, sig))

	res := CheckResult{SignatureVersion: sig.Version, CheckedAt: time.Now().UTC()}
	for i, p := range all {
		r := results[i]
		if r.Err != nil {
			// swallowed: an undecidable probe is a missing signal, not a verdict
			res.ProbeErrors++
			e.logger.Debug("probe failed", "probe", p.name, "category", string(p.category), "error", r.Err)
			continue
		}
		if !r.Detected {
			continue
		}
		e.metrics.RecordProbePositive(string(p.category))
		res.FailureReasons = append(res.FailureReasons, r.Reason)
		switch p.category {
		case CategoryRoot:
			res.IsRooted = true
		case CategoryEmulator:
			res.IsEmulator = true
		case CategoryInstrumentation:
			res.HasInstrumentation = true
		case CategoryDebug:
			res.IsDebuggable = true
		}
	}
	res.IsSecure = !res.IsRooted && !res.IsEmulator && !res.HasInstrumentation
	return res
}

// DetectRoot runs only the root probes.
func (e *Engine) DetectRoot(ctx context.Context) (bool, []string) {
	return e.detect(ctx, rootProbes)
}

// DetectEmulator runs only the emulator probes.
func (e *Engine) DetectEmulator(ctx context.Context) (bool, []string) {
	return e.detect(ctx, emulatorProbes)
}

// DetectInstrumentation runs only the instrumentation probes.
func (e *Engine) DetectInstrumentation(ctx context.Context) (bool, []string) {
	return e.detect(ctx, instrumentationProbes)
}

// DetectDebuggable runs only the debug setting probes.
func (e *Engine) DetectDebuggable(ctx context.Context) (bool, []string) {
	return e.detect(ctx, debugProbes)
}

func (e *Engine) detect(ctx context.Context, probes []probe) (bool, []string) {
	results := e.runProbes(ctx, probes, newProbeEnv(e.device, e.Signatures()))
	var reasons []string
	for i, r := range results {
		if r.Err != nil {
			e.logger.Debug("probe failed", "probe", probes[i].name, "error", r.Err)
			continue
		}
		if r.Detected {
			reasons = append(reasons, r.Reason)
		}
	}
	return len(reasons) > 0, reasons
}

// runProbes runs probes concurrently. results[i] belongs to probes[i]
// regardless of completion order.
func (e *Engine) runProbes(ctx context.Context, probes []probe, env *probeEnv) []ProbeResult {
	results := make([]ProbeResult, len(probes))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, p := range probes {
		g.Go(func() error {
			results[i] = e.runProbe(ctx, p, env)
			return nil
		})
	}
	_ = g.Wait() // probes report through results, never through the group
	return results
}

func (e *Engine) runProbe(ctx context.Context, p probe, env *probeEnv) (res ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("probe panicked", "probe", p.name, "panic", r, "stack", string(debug.Stack()))
			res = failed(fmt.Errorf("probe %s panicked: %v", p.name, r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if e.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.probeTimeout)
		defer cancel()
	}
	return p.run(ctx, env)
}
