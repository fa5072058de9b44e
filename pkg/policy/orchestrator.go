package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/momoterminal/termguard/internal/metrics"
	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/buildmode"
	"github.com/momoterminal/termguard/pkg/threat"
)

// Detector produces threat check results. *threat.Engine implements it.
type Detector interface {
	Check(ctx context.Context) threat.CheckResult
}

// Config configures an Orchestrator.
type Config struct {
	Mode    buildmode.Mode
	Logger  *slog.Logger
	Audit   audit.EventEmitter
	Metrics *metrics.Registry
	// Status, when set, receives every verdict.
	Status *StatusHandle
}

// Orchestrator runs detection and applies policy.
type Orchestrator struct {
	detector Detector
	mode     buildmode.Mode
	logger   *slog.Logger
	audit    audit.EventEmitter
	metrics  *metrics.Registry
	status   *StatusHandle
}

// NewOrchestrator returns an orchestrator over d.
func NewOrchestrator(d Detector, cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopEmitter{}
	}
	return &Orchestrator{
		detector: d,
		mode:     cfg.Mode,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		status:   cfg.Status,
	}
}

// Mode returns the build mode policy is evaluated under.
func (o *Orchestrator) Mode() buildmode.Mode { return o.mode }

// Initialize runs a full check and returns the verdict. It never returns
// Success unless the check completed.
func (o *Orchestrator) Initialize(ctx context.Context, strict bool) (res InitializationResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("security check panicked", "panic", r)
			res = checkError(o.mode, strict, "internal error")
		}
		o.publish(res)
	}()

	check := o.detector.Check(ctx)
	if err := ctx.Err(); err != nil {
		// probes cut short may have missed signals
		return checkError(o.mode, strict, fmt.Sprintf("interrupted (%v)", err))
	}
	return Evaluate(check, o.mode, strict)
}

// Evaluate applies policy to an existing check result under the
// orchestrator's build mode.
func (o *Orchestrator) Evaluate(check threat.CheckResult, strict bool) InitializationResult {
	return Evaluate(check, o.mode, strict)
}

// QuickCheck reports whether a non-strict evaluation admits the terminal.
func (o *Orchestrator) QuickCheck(ctx context.Context) bool {
	return o.Initialize(ctx, false).OK()
}

// IsDeviceSecure reports the raw detector verdict, ignoring build mode and
// debug settings.
func (o *Orchestrator) IsDeviceSecure(ctx context.Context) (secure bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("security check panicked", "panic", r)
			secure = false
		}
	}()
	check := o.detector.Check(ctx)
	return check.IsSecure && ctx.Err() == nil
}

// SecuritySummary returns a multi-line description of a fresh check for
// diagnostics screens.
func (o *Orchestrator) SecuritySummary(ctx context.Context) string {
	res := o.Initialize(ctx, false)
	return Summary(res)
}

// Summary renders res for humans.
func Summary(res InitializationResult) string {
	var b strings.Builder
	c := res.Check
	fmt.Fprintf(&b, "Security status: %s\n", verdictWord(res))
	fmt.Fprintf(&b, "Build mode: %s\n", res.BuildMode)
	fmt.Fprintf(&b, "Rooted: %s\n", yesNo(c.IsRooted))
	fmt.Fprintf(&b, "Emulator: %s\n", yesNo(c.IsEmulator))
	fmt.Fprintf(&b, "Instrumentation: %s\n", yesNo(c.HasInstrumentation))
	fmt.Fprintf(&b, "Debuggable: %s\n", yesNo(c.IsDebuggable))
	if c.SignatureVersion != "" {
		fmt.Fprintf(&b, "Signatures: %s\n", c.SignatureVersion)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(&b, "Failure: [%s] %s\n", f.Kind, f.Message)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "Warning: [%s] %s\n", w.Kind, w.Message)
	}
	for _, r := range c.FailureReasons {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func verdictWord(res InitializationResult) string {
	switch {
	case !res.OK():
		return "BLOCKED"
	case len(res.Warnings) > 0:
		return "SECURE (with warnings)"
	default:
		return "SECURE"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (o *Orchestrator) publish(res InitializationResult) {
	secure := res.OK()
	attrs := []any{
		"failures", res.FailureKinds(),
		"warnings", res.WarningKinds(),
		"build_mode", res.BuildMode.String(),
		"strict", res.Strict,
	}
	if secure {
		o.logger.Info("security verdict", append(attrs, "status", "secure")...)
	} else {
		o.logger.Warn("security verdict", append(attrs, "status", "blocked")...)
	}
	o.metrics.RecordVerdict(secure, res.FailureKinds())
	audit.Safe(o.audit, o.logger, audit.NewSecurityVerdict(secure, res.FailureKinds(), res.WarningKinds(), res.BuildMode.String(), res.Strict))
	if o.status != nil {
		o.status.Publish(res)
	}
}
