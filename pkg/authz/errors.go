package authz

import (
	"errors"
	"fmt"
)

// Authorization error codes.
const (
	ErrCodeForbidden         = "authz.forbidden"          // Policy denied the action
	ErrCodeNoVerdict         = "authz.no_verdict"         // No security verdict has been published
	ErrCodeUnknownAction     = "authz.unknown_action"     // Action not in registry
	ErrCodeBiometricRequired = "authz.biometric_required" // Action needs biometric confirmation
	ErrCodePolicyError       = "authz.policy_error"       // Policy evaluation error
)

// AuthzError represents an authorization error with a structured code.
type AuthzError struct {
	Code    string // One of the ErrCode* constants
	Message string
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *AuthzError with the same code, so callers can test
// errors.Is(err, &AuthzError{Code: ErrCodeForbidden}).
func (e *AuthzError) Is(target error) bool {
	t, ok := target.(*AuthzError)
	return ok && t.Code == e.Code
}

func newError(code, message string) *AuthzError {
	return &AuthzError{Code: code, Message: message}
}

// ErrForbidden creates an error for policy-denied access.
func ErrForbidden(reason string) *AuthzError {
	return newError(ErrCodeForbidden, reason)
}

// ErrNoVerdict creates an error for a gate consulted before any security
// check completed.
func ErrNoVerdict() *AuthzError {
	return newError(ErrCodeNoVerdict, "security check has not completed")
}

// ErrUnknownAction creates an error for unknown action (fail-closed).
func ErrUnknownAction(action string) *AuthzError {
	return newError(ErrCodeUnknownAction, fmt.Sprintf("unknown action %q", action))
}

// ErrBiometricRequired creates an error for an action attempted without
// biometric confirmation.
func ErrBiometricRequired(action string) *AuthzError {
	return newError(ErrCodeBiometricRequired, fmt.Sprintf("%s requires biometric confirmation", action))
}

// ErrPolicyError creates an error for policy evaluation failures.
func ErrPolicyError(detail string) *AuthzError {
	return newError(ErrCodePolicyError, fmt.Sprintf("policy evaluation error: %s", detail))
}

// ErrorCode extracts the authz error code from an error.
// Returns empty string if the error is not an AuthzError.
func ErrorCode(err error) string {
	var authzErr *AuthzError
	if errors.As(err, &authzErr) {
		return authzErr.Code
	}
	return ""
}

// IsAuthzError returns true if the error is or wraps an AuthzError.
func IsAuthzError(err error) bool {
	var authzErr *AuthzError
	return errors.As(err, &authzErr)
}
