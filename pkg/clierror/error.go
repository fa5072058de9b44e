package clierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/credentials"
	"github.com/momoterminal/termguard/pkg/encryption"
	"github.com/momoterminal/termguard/pkg/integrity"
	"github.com/momoterminal/termguard/pkg/keystore"
)

// Exit codes
const (
	ExitSuccess     = 0 // Operation completed successfully
	ExitGeneral     = 1 // Unknown/unhandled error
	ExitInsecure    = 2 // Device failed the security policy
	ExitCrypto      = 3 // Key missing, tampered or undecryptable data
	ExitNotFound    = 4 // Credential or key doesn't exist
	ExitRateLimited = 5 // Too many requests
	ExitConfig      = 6 // Invalid configuration or arguments
	ExitAttestation = 7 // Attestation could not be obtained
)

// Error codes (strings) for programmatic error handling
const (
	CodeDeviceInsecure         = "DEVICE_INSECURE"
	CodeNotAuthorized          = "NOT_AUTHORIZED"
	CodeKeyNotFound            = "KEY_NOT_FOUND"
	CodeDecryptionFailed       = "DECRYPTION_FAILED"
	CodeMalformedCiphertext    = "MALFORMED_CIPHERTEXT"
	CodeIntegrityMismatch      = "INTEGRITY_MISMATCH"
	CodeCredentialNotFound     = "CREDENTIAL_NOT_FOUND"
	CodeCredentialCorrupt      = "CREDENTIAL_CORRUPT"
	CodeKeystorePermissions    = "KEYSTORE_PERMISSIONS"
	CodeAttestationFailed      = "ATTESTATION_FAILED"
	CodeAttestationUnavailable = "ATTESTATION_UNAVAILABLE"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInvalidConfig          = "INVALID_CONFIG"
	CodeInternalError          = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

func (e *CLIError) Unwrap() error { return e.Err }

// DeviceInsecure creates an error for a blocking security verdict.
func DeviceInsecure(message string) *CLIError {
	return &CLIError{
		Code:      CodeDeviceInsecure,
		Message:   message,
		Hint:      "Remove root tools, debugging frameworks or emulators and run 'termguard check' again",
		Retryable: false,
		ExitCode:  ExitInsecure,
	}
}

// NotAuthorized creates an error for an action refused by the gate.
func NotAuthorized(reason string) *CLIError {
	return &CLIError{
		Code:      CodeNotAuthorized,
		Message:   fmt.Sprintf("not allowed: %s", reason),
		Hint:      "Run 'termguard check' to see the current security verdict",
		Retryable: false,
		ExitCode:  ExitInsecure,
	}
}

// KeyNotFound creates an error when a key alias doesn't exist.
func KeyNotFound(alias string) *CLIError {
	msg := "key not found"
	if alias != "" {
		msg = fmt.Sprintf("key '%s' not found", alias)
	}
	return &CLIError{
		Code:      CodeKeyNotFound,
		Message:   msg,
		Hint:      "Data encrypted under a deleted or rotated key cannot be recovered",
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// DecryptionFailed creates an error for ciphertext that failed
// authentication.
func DecryptionFailed() *CLIError {
	return &CLIError{
		Code:      CodeDecryptionFailed,
		Message:   "data could not be decrypted: it was modified or encrypted under a different key",
		Retryable: false,
		ExitCode:  ExitCrypto,
	}
}

// MalformedCiphertext creates an error for input that is not an encrypted
// blob.
func MalformedCiphertext() *CLIError {
	return &CLIError{
		Code:      CodeMalformedCiphertext,
		Message:   "input is not a valid encrypted value",
		Hint:      "Pass the base64 string produced by 'termguard encrypt'",
		Retryable: false,
		ExitCode:  ExitCrypto,
	}
}

// IntegrityMismatch creates an error for a transaction record whose hash
// does not match its decrypted payload.
func IntegrityMismatch() *CLIError {
	return &CLIError{
		Code:      CodeIntegrityMismatch,
		Message:   "transaction record failed its integrity check and was discarded",
		Retryable: false,
		ExitCode:  ExitCrypto,
	}
}

// CredentialNotFound creates an error when a credential is not set.
func CredentialNotFound(name string) *CLIError {
	return &CLIError{
		Code:      CodeCredentialNotFound,
		Message:   fmt.Sprintf("credential '%s' is not set", name),
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// CredentialCorrupt creates an error for a credential entry that failed
// to decrypt.
func CredentialCorrupt() *CLIError {
	return &CLIError{
		Code:      CodeCredentialCorrupt,
		Message:   "credential store entry is corrupt or was moved between names",
		Hint:      "Run 'termguard creds wipe' and re-provision the terminal",
		Retryable: false,
		ExitCode:  ExitCrypto,
	}
}

// KeystorePermissions creates an error for a keystore readable by others.
func KeystorePermissions(path string) *CLIError {
	msg := "keystore has insecure permissions"
	if path != "" {
		msg = fmt.Sprintf("keystore at '%s' has insecure permissions", path)
	}
	return &CLIError{
		Code:      CodeKeystorePermissions,
		Message:   msg,
		Hint:      "Restrict key files to mode 0600 and the directory to 0700",
		Retryable: false,
		ExitCode:  ExitConfig,
	}
}

// AttestationFailed creates an error for a non-retryable attestation
// failure. message must already be user-presentable.
func AttestationFailed(message string) *CLIError {
	return &CLIError{
		Code:      CodeAttestationFailed,
		Message:   fmt.Sprintf("attestation failed: %s", message),
		Hint:      "Check that platform services are installed and up to date",
		Retryable: false,
		ExitCode:  ExitAttestation,
	}
}

// AttestationUnavailable creates an error when attestation service is unreachable.
func AttestationUnavailable(message string) *CLIError {
	return &CLIError{
		Code:      CodeAttestationUnavailable,
		Message:   fmt.Sprintf("attestation service unavailable: %s", message),
		Hint:      "Check network connectivity and retry with backoff",
		Retryable: true,
		ExitCode:  ExitAttestation,
	}
}

// RateLimited creates an error for rate limiting.
func RateLimited() *CLIError {
	return &CLIError{
		Code:      CodeRateLimited,
		Message:   "rate limit exceeded",
		Hint:      "Wait a moment before retrying",
		Retryable: true,
		ExitCode:  ExitRateLimited,
	}
}

// InvalidConfig creates an error for bad configuration or arguments.
func InvalidConfig(err error) *CLIError {
	return &CLIError{
		Code:      CodeInvalidConfig,
		Message:   fmt.Sprintf("invalid configuration: %v", err),
		Retryable: false,
		ExitCode:  ExitConfig,
		Err:       err,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:      CodeInternalError,
		Message:   msg,
		Retryable: false,
		ExitCode:  ExitGeneral,
		Err:       err,
	}
}

// FromIntegrityResult translates a failed attestation result. It returns
// nil for a successful result.
func FromIntegrityResult(res integrity.Result) *CLIError {
	if res.OK() {
		return nil
	}
	var ce *CLIError
	switch res.Category {
	case integrity.CategoryRateLimited:
		ce = RateLimited()
	case integrity.CategoryRetryable:
		ce = AttestationUnavailable(res.Message)
	default:
		ce = AttestationFailed(res.Message)
	}
	ce.Err = res.Err
	return ce
}

// FromError translates a domain error. Unknown errors become
// InternalError.
func FromError(err error) *CLIError {
	if err == nil {
		return nil
	}
	var ce *CLIError
	if errors.As(err, &ce) {
		return ce
	}

	var out *CLIError
	var knf *keystore.KeyNotFoundError
	var az *authz.AuthzError
	switch {
	case errors.As(err, &knf):
		out = KeyNotFound(knf.Alias)
	case errors.Is(err, encryption.ErrKeyNotFound):
		out = KeyNotFound("")
	case errors.Is(err, encryption.ErrAuthenticationFailed):
		out = DecryptionFailed()
	case errors.Is(err, encryption.ErrMalformedCiphertext):
		out = MalformedCiphertext()
	case errors.Is(err, encryption.ErrIntegrityMismatch):
		out = IntegrityMismatch()
	case errors.Is(err, credentials.ErrCorruptEntry):
		out = CredentialCorrupt()
	case errors.Is(err, keystore.ErrInvalidPermissions):
		out = KeystorePermissions("")
	case errors.As(err, &az):
		out = NotAuthorized(az.Message)
		if az.Code == authz.ErrCodeUnknownAction {
			out.ExitCode = ExitConfig
		}
	default:
		return InternalError(err)
	}
	out.Err = err
	return out
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for human-readable table format.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError prints the error to stderr in the appropriate format.
func PrintError(err *CLIError, outputFormat string) {
	FprintError(os.Stderr, err, outputFormat)
}

// FprintError prints the error to w in the appropriate format.
func FprintError(w io.Writer, err *CLIError, outputFormat string) {
	fmt.Fprintln(w, FormatError(err, outputFormat))
}
