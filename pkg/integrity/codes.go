// Package integrity requests opaque device attestation tokens from the
// platform integrity service and forwards them to the backend for
// verification. Tokens are never parsed or trusted locally.
package integrity

import (
	"errors"
	"fmt"
)

// ErrorCode is a platform integrity error code. EmptyToken is local: the
// platform reported success with no token.
type ErrorCode int

const (
	NoError                     ErrorCode = 0
	APINotAvailable             ErrorCode = -1
	PlayStoreNotFound           ErrorCode = -2
	NetworkError                ErrorCode = -3
	PlayStoreAccountNotFound    ErrorCode = -4
	AppNotInstalled             ErrorCode = -5
	PlayServicesNotFound        ErrorCode = -6
	AppUIDMismatch              ErrorCode = -7
	TooManyRequests             ErrorCode = -8
	CannotBindToService         ErrorCode = -9
	NonceTooShort               ErrorCode = -10
	NonceTooLong                ErrorCode = -11
	GoogleServerUnavailable     ErrorCode = -12
	NonceIsNotBase64            ErrorCode = -13
	PlayStoreVersionOutdated    ErrorCode = -14
	PlayServicesVersionOutdated ErrorCode = -15
	CloudProjectNumberIsInvalid ErrorCode = -16
	RequestHashTooLong          ErrorCode = -17
	ClientTransientError        ErrorCode = -18
	InternalError               ErrorCode = -100
	EmptyToken                  ErrorCode = -1000
)

// Category groups codes by how a caller should react.
type Category string

const (
	// CategoryRetryable failures are transient; retry with backoff.
	CategoryRetryable Category = "retryable"
	// CategoryRateLimited failures need a longer wait before retrying.
	CategoryRateLimited Category = "rate_limited"
	// CategoryConfiguration failures need the user or operator to fix the
	// device or app setup.
	CategoryConfiguration Category = "configuration"
	// CategoryNonce failures mean the server issued a bad nonce.
	CategoryNonce Category = "nonce"
	// CategoryInternal covers platform faults and unknown codes.
	CategoryInternal Category = "internal"
)

type codeInfo struct {
	name     string
	category Category
	message  string
}

var codes = map[ErrorCode]codeInfo{
	APINotAvailable:             {"API_NOT_AVAILABLE", CategoryConfiguration, "Integrity API is not available on this device"},
	PlayStoreNotFound:           {"PLAY_STORE_NOT_FOUND", CategoryConfiguration, "Play Store is not installed"},
	NetworkError:                {"NETWORK_ERROR", CategoryRetryable, "No network connection available"},
	PlayStoreAccountNotFound:    {"PLAY_STORE_ACCOUNT_NOT_FOUND", CategoryConfiguration, "No Play Store account is signed in"},
	AppNotInstalled:             {"APP_NOT_INSTALLED", CategoryConfiguration, "App is not installed from a recognised source"},
	PlayServicesNotFound:        {"PLAY_SERVICES_NOT_FOUND", CategoryConfiguration, "Play Services is not installed"},
	AppUIDMismatch:              {"APP_UID_MISMATCH", CategoryConfiguration, "App identity does not match the caller"},
	TooManyRequests:             {"TOO_MANY_REQUESTS", CategoryRateLimited, "Too many integrity requests, try again later"},
	CannotBindToService:         {"CANNOT_BIND_TO_SERVICE", CategoryRetryable, "Could not reach the integrity service"},
	NonceTooShort:               {"NONCE_TOO_SHORT", CategoryNonce, "Nonce is too short"},
	NonceTooLong:                {"NONCE_TOO_LONG", CategoryNonce, "Nonce is too long"},
	GoogleServerUnavailable:     {"GOOGLE_SERVER_UNAVAILABLE", CategoryRetryable, "Integrity server is unavailable"},
	NonceIsNotBase64:            {"NONCE_IS_NOT_BASE64", CategoryNonce, "Nonce is not valid Base64"},
	PlayStoreVersionOutdated:    {"PLAY_STORE_VERSION_OUTDATED", CategoryConfiguration, "Play Store needs to be updated"},
	PlayServicesVersionOutdated: {"PLAY_SERVICES_VERSION_OUTDATED", CategoryConfiguration, "Play Services needs to be updated"},
	CloudProjectNumberIsInvalid: {"CLOUD_PROJECT_NUMBER_IS_INVALID", CategoryConfiguration, "Cloud project number is invalid"},
	RequestHashTooLong:          {"REQUEST_HASH_TOO_LONG", CategoryNonce, "Request hash is too long"},
	ClientTransientError:        {"CLIENT_TRANSIENT_ERROR", CategoryRetryable, "Temporary error on the device, try again"},
	InternalError:               {"INTERNAL_ERROR", CategoryInternal, "Integrity service internal error"},
	EmptyToken:                  {"EMPTY_TOKEN", CategoryInternal, "Integrity service returned an empty token"},
}

func (c ErrorCode) String() string {
	if c == NoError {
		return "NO_ERROR"
	}
	if info, ok := codes[c]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN_%d", int(c))
}

// Category returns the reaction category of c. Unknown codes are internal.
func (c ErrorCode) Category() Category {
	if info, ok := codes[c]; ok {
		return info.category
	}
	return CategoryInternal
}

// Message returns a user-presentable description of c.
func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Device integrity could not be verified"
}

// PlatformError is a failure reported by the integrity service.
type PlatformError struct {
	Code ErrorCode
	Err  error
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("integrity: %s", e.Code)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// Is matches a *PlatformError with the same code.
func (e *PlatformError) Is(target error) bool {
	t, ok := target.(*PlatformError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the platform code from err, or NoError.
func CodeOf(err error) ErrorCode {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return NoError
}
