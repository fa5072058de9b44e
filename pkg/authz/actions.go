package authz

import "slices"

// Gated terminal actions.
const (
	ActionAppUse          = "app:use"
	ActionPaymentConfirm  = "payment:confirm"
	ActionCredentialRead  = "credential:read"
	ActionCredentialWrite = "credential:write"
	ActionKeyRotate       = "key:rotate"
)

// validActions is the set of actions the policy set knows about.
// Anything else is rejected before evaluation.
var validActions = map[string]bool{
	ActionAppUse:          true,
	ActionPaymentConfirm:  true,
	ActionCredentialRead:  true,
	ActionCredentialWrite: true,
	ActionKeyRotate:       true,
}

// biometricActions need a completed biometric prompt in addition to a
// secure verdict.
var biometricActions = map[string]bool{
	ActionPaymentConfirm: true,
	ActionKeyRotate:      true,
}

// IsValidAction reports whether action is known.
func IsValidAction(action string) bool {
	return validActions[action]
}

// RequiresBiometric reports whether action needs biometric confirmation.
func RequiresBiometric(action string) bool {
	return biometricActions[action]
}

// AllActions returns every known action, sorted.
func AllActions() []string {
	out := make([]string, 0, len(validActions))
	for a := range validActions {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
