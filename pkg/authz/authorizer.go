package authz

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cedar-policy/cedar-go"

	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/policy"
)

//go:embed policies.cedar
var policiesContent []byte

// Config contains options for the Authorizer.
type Config struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Audit receives gate.deny events. If nil, denials are only logged.
	Audit audit.EventEmitter

	// Status supplies the verdict for Require. Authorize ignores it.
	Status *policy.StatusHandle

	// TerminalID names the principal in Require requests.
	TerminalID string

	// PolicyBytes allows loading policies from a custom source (for testing).
	// If nil, embedded policies.cedar is used.
	PolicyBytes []byte
}

// Authorizer wraps the Cedar policy engine.
type Authorizer struct {
	policies   *cedar.PolicySet
	logger     *slog.Logger
	audit      audit.EventEmitter
	status     *policy.StatusHandle
	terminalID string
}

// NewAuthorizer creates an authorizer with the given configuration.
func NewAuthorizer(cfg Config) (*Authorizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	em := cfg.Audit
	if em == nil {
		em = audit.NopEmitter{}
	}

	policyData := cfg.PolicyBytes
	if policyData == nil {
		policyData = policiesContent
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	return &Authorizer{
		policies:   ps,
		logger:     logger,
		audit:      em,
		status:     cfg.Status,
		terminalID: cfg.TerminalID,
	}, nil
}

// Authorize evaluates a gating request. This is the single entry point for
// all gating decisions.
func (a *Authorizer) Authorize(ctx context.Context, req AuthzRequest) AuthzDecision {
	start := time.Now()

	var result AuthzDecision
	var diag cedar.Diagnostic
	switch {
	case !IsValidAction(req.Action):
		result = AuthzDecision{ReasonType: ReasonUnknownAction, Reason: fmt.Sprintf("unknown action %q", req.Action)}
	case req.Verdict == nil:
		result = AuthzDecision{ReasonType: ReasonNoVerdict, Reason: "no security verdict available"}
	default:
		var decision cedar.Decision
		decision, diag = cedar.Authorize(a.policies, buildEntities(req), buildCedarRequest(req))
		result = a.explain(req, decision == cedar.Allow, diag)
	}
	result.Duration = time.Since(start)

	a.logDecision(ctx, req, result, diag)
	if !result.Allowed {
		audit.Safe(a.audit, a.logger, audit.NewGateDeny(req.Action, string(result.ReasonType), req.RequestID))
	}
	return result
}

// Require gates action on the latest published verdict and returns a typed
// error when denied.
func (a *Authorizer) Require(ctx context.Context, action string, biometricVerified bool) error {
	ctx, reqID := EnsureRequestID(ctx)
	req := AuthzRequest{
		TerminalID:        a.terminalID,
		Action:            action,
		BiometricVerified: biometricVerified,
		RequestID:         reqID,
	}
	if a.status != nil {
		if v, ok := a.status.Last(); ok {
			req.Verdict = &v
		}
	}
	return decisionError(req, a.Authorize(ctx, req))
}

func decisionError(req AuthzRequest, d AuthzDecision) error {
	if d.Allowed {
		return nil
	}
	switch d.ReasonType {
	case ReasonUnknownAction:
		return ErrUnknownAction(req.Action)
	case ReasonNoVerdict:
		return ErrNoVerdict()
	case ReasonBiometricRequired:
		return ErrBiometricRequired(req.Action)
	default:
		return ErrForbidden(d.Reason)
	}
}

// explain classifies a Cedar outcome.
func (a *Authorizer) explain(req AuthzRequest, allowed bool, diag cedar.Diagnostic) AuthzDecision {
	policyID := ""
	if len(diag.Reasons) > 0 {
		policyID = string(diag.Reasons[0].PolicyID)
	}
	d := AuthzDecision{Allowed: allowed, PolicyID: policyID}

	switch {
	case allowed:
		d.ReasonType = ReasonAllowed
		d.Reason = "action permitted"
	case len(diag.Errors) > 0:
		d.ReasonType = ReasonPolicyDenied
		d.Reason = "policy evaluation error"
	case !req.Verdict.OK():
		d.ReasonType = ReasonDeviceInsecure
		d.Reason = "device is not secure: " + joinFailures(req.Verdict.FailureKinds())
	case RequiresBiometric(req.Action) && !req.BiometricVerified:
		d.ReasonType = ReasonBiometricRequired
		d.Reason = "biometric confirmation required"
	case policyID != "":
		d.ReasonType = ReasonPolicyDenied
		d.Reason = fmt.Sprintf("denied by policy %s", policyID)
	default:
		d.ReasonType = ReasonPolicyDenied
		d.Reason = "access denied - no matching permit policy"
	}
	return d
}

func joinFailures(kinds []string) string {
	if len(kinds) == 0 {
		return "none"
	}
	out := kinds[0]
	for _, k := range kinds[1:] {
		out += ", " + k
	}
	return out
}

// logDecision logs the authorization decision with structured fields.
func (a *Authorizer) logDecision(ctx context.Context, req AuthzRequest, result AuthzDecision, diag cedar.Diagnostic) {
	level := slog.LevelInfo
	if !result.Allowed {
		level = slog.LevelWarn
	}
	terminal := req.TerminalID
	if terminal == "" {
		terminal = localID
	}
	a.logger.Log(ctx, level, "authorization decision",
		"terminal", terminal,
		"action", req.Action,
		"request_id", req.RequestID,
		"decision", result.Allowed,
		"reason", result.Reason,
		"reason_type", result.ReasonType,
		"policy_id", result.PolicyID,
		"biometric_verified", req.BiometricVerified,
		"duration_us", result.Duration.Microseconds(),
	)

	for _, err := range diag.Errors {
		a.logger.Error("policy evaluation error",
			"policy", err.PolicyID,
			"error", err.Message,
		)
	}
}

// PolicyCount returns the number of loaded policies.
func (a *Authorizer) PolicyCount() int {
	count := 0
	for range a.policies.All() {
		count++
	}
	return count
}
