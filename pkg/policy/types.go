// Package policy turns threat signals into an admit or block verdict for
// the terminal.
//
// Root and emulator detections block release builds only. Instrumentation
// always blocks. Debug settings produce a warning, and block as well when
// the caller asks for strict mode. Evaluation fails closed: a check that
// panics or is cut short blocks with SECURITY_CHECK_ERROR.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/momoterminal/termguard/pkg/buildmode"
	"github.com/momoterminal/termguard/pkg/threat"
)

// Kind classifies a warning or failure.
type Kind string

const (
	KindDeviceRooted            Kind = "DEVICE_ROOTED"
	KindEmulatorDetected        Kind = "EMULATOR_DETECTED"
	KindInstrumentationDetected Kind = "INSTRUMENTATION_DETECTED"
	KindDeveloperOptionsEnabled Kind = "DEVELOPER_OPTIONS_ENABLED"
	KindSecurityCheckError      Kind = "SECURITY_CHECK_ERROR"
)

// SecurityWarning is informational and never blocks.
type SecurityWarning struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// SecurityFailure blocks sensitive functionality.
type SecurityFailure struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// Status is the outcome of an evaluation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// InitializationResult is the verdict for one evaluation. Warnings and
// failures are de-duplicated by kind. A Success may still carry warnings.
type InitializationResult struct {
	Status      Status             `json:"status" yaml:"status"`
	Warnings    []SecurityWarning  `json:"warnings" yaml:"warnings"`
	Failures    []SecurityFailure  `json:"critical_failures" yaml:"critical_failures"`
	Check       threat.CheckResult `json:"check" yaml:"check"`
	BuildMode   buildmode.Mode     `json:"build_mode" yaml:"build_mode"`
	Strict      bool               `json:"strict" yaml:"strict"`
	EvaluatedAt time.Time          `json:"evaluated_at" yaml:"evaluated_at"`
}

// OK reports whether the terminal may be used.
func (r InitializationResult) OK() bool {
	return r.Status == StatusSuccess && len(r.Failures) == 0
}

// HasFailure reports whether r blocks with kind.
func (r InitializationResult) HasFailure(kind Kind) bool {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// HasWarning reports whether r warns with kind.
func (r InitializationResult) HasWarning(kind Kind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// FailureKinds lists failure kinds in the order they were raised.
func (r InitializationResult) FailureKinds() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = string(f.Kind)
	}
	return out
}

// WarningKinds lists warning kinds in the order they were raised.
func (r InitializationResult) WarningKinds() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = string(w.Kind)
	}
	return out
}

// BlockingMessage is the text shown to a merchant when r blocks.
func (r InitializationResult) BlockingMessage() string {
	if r.OK() {
		return ""
	}
	msgs := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		msgs[i] = f.Message
	}
	return "This terminal cannot be used securely: " + strings.Join(msgs, "; ")
}

func (r InitializationResult) String() string {
	return fmt.Sprintf("%s failures=%v warnings=%v", r.Status, r.FailureKinds(), r.WarningKinds())
}
