package authz

import (
	"time"

	"github.com/momoterminal/termguard/pkg/policy"
)

// ReasonType classifies a decision.
type ReasonType string

const (
	ReasonAllowed           ReasonType = "allowed"
	ReasonNoVerdict         ReasonType = "no_verdict"
	ReasonUnknownAction     ReasonType = "unknown_action"
	ReasonDeviceInsecure    ReasonType = "device_insecure"
	ReasonBiometricRequired ReasonType = "biometric_required"
	ReasonPolicyDenied      ReasonType = "policy_denied"
)

// AuthzRequest contains everything needed for a gating decision.
type AuthzRequest struct {
	// TerminalID identifies the device principal. Empty means "local".
	TerminalID string
	Action     string
	// Verdict is the security verdict to evaluate against. Nil denies.
	Verdict           *policy.InitializationResult
	BiometricVerified bool
	RequestID         string
}

// AuthzDecision is the result of a gating check.
type AuthzDecision struct {
	Allowed    bool
	Reason     string
	ReasonType ReasonType
	// PolicyID is the first policy that determined the outcome, if any.
	PolicyID string
	Duration time.Duration
}
