// Package biometric presents authentication prompts and reports their
// outcome as a stream, since a prompt can report "not recognised, try
// again" any number of times before it settles.
package biometric

import "fmt"

// Kind discriminates a Result.
type Kind int

const (
	// Success is terminal: the user authenticated.
	Success Kind = iota
	// Failed is the only non-terminal kind: the biometric was not
	// recognised and the prompt stays up for another attempt.
	Failed
	// Cancelled is terminal: the user or the caller dismissed the prompt.
	Cancelled
	// Error is terminal and carries the platform code and message.
	Error
	// NotAvailable is terminal: authentication cannot be offered.
	NotAvailable
	// NotEnrolled is terminal: hardware exists but nothing is enrolled.
	NotEnrolled
	// HardwareUnavailable is terminal: hardware is present but busy or
	// disabled.
	HardwareUnavailable
)

var kindNames = [...]string{"success", "failed", "cancelled", "error", "not_available", "not_enrolled", "hardware_unavailable"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Terminal reports whether k ends the authentication session.
func (k Kind) Terminal() bool {
	return k != Failed
}

// Result is one event on an authentication stream. Code and Message are
// set for Error and for Cancelled results that came from the platform.
type Result struct {
	Kind    Kind
	Code    int
	Message string
}

func (r Result) String() string {
	if r.Kind == Error {
		return fmt.Sprintf("error(%d): %s", r.Code, r.Message)
	}
	return r.Kind.String()
}

// Platform prompt error codes.
const (
	ErrorHWUnavailable          = 1
	ErrorUnableToProcess        = 2
	ErrorTimeout                = 3
	ErrorNoSpace                = 4
	ErrorCanceled               = 5
	ErrorLockout                = 7
	ErrorVendor                 = 8
	ErrorLockoutPermanent       = 9
	ErrorUserCanceled           = 10
	ErrorNoBiometrics           = 11
	ErrorHWNotPresent           = 12
	ErrorNegativeButton         = 13
	ErrorNoDeviceCredential     = 14
	ErrorSecurityUpdateRequired = 15
)

// fromPlatformError maps a prompt error callback onto a Result.
func fromPlatformError(code int, message string) Result {
	switch code {
	case ErrorUserCanceled, ErrorNegativeButton, ErrorCanceled:
		return Result{Kind: Cancelled, Code: code, Message: message}
	default:
		return Result{Kind: Error, Code: code, Message: message}
	}
}

// Availability is the platform's answer to "can authenticate?".
type Availability int

const (
	Available Availability = iota
	NoHardware
	HardwareBusy
	NoneEnrolled
	SecurityUpdateRequired
	Unsupported
	StatusUnknown
)

// shortCircuit returns the result reported instead of showing a prompt,
// or false when a prompt can be shown.
func (a Availability) shortCircuit() (Result, bool) {
	switch a {
	case Available:
		return Result{}, false
	case NoneEnrolled:
		return Result{Kind: NotEnrolled}, true
	case HardwareBusy:
		return Result{Kind: HardwareUnavailable}, true
	default:
		return Result{Kind: NotAvailable}, true
	}
}
