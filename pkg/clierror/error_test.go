package clierror

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/credentials"
	"github.com/momoterminal/termguard/pkg/encryption"
	"github.com/momoterminal/termguard/pkg/integrity"
	"github.com/momoterminal/termguard/pkg/keystore"
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		got      int
		expected int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitGeneral", ExitGeneral, 1},
		{"ExitInsecure", ExitInsecure, 2},
		{"ExitCrypto", ExitCrypto, 3},
		{"ExitNotFound", ExitNotFound, 4},
		{"ExitRateLimited", ExitRateLimited, 5},
		{"ExitConfig", ExitConfig, 6},
		{"ExitAttestation", ExitAttestation, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       *CLIError
		code      string
		exit      int
		retryable bool
		contains  string
	}{
		{"DeviceInsecure", DeviceInsecure("rooted"), CodeDeviceInsecure, ExitInsecure, false, "rooted"},
		{"NotAuthorized", NotAuthorized("biometric confirmation required"), CodeNotAuthorized, ExitInsecure, false, "biometric"},
		{"KeyNotFound", KeyNotFound("momo_terminal_master_key"), CodeKeyNotFound, ExitNotFound, false, "momo_terminal_master_key"},
		{"DecryptionFailed", DecryptionFailed(), CodeDecryptionFailed, ExitCrypto, false, "modified"},
		{"MalformedCiphertext", MalformedCiphertext(), CodeMalformedCiphertext, ExitCrypto, false, "not a valid"},
		{"IntegrityMismatch", IntegrityMismatch(), CodeIntegrityMismatch, ExitCrypto, false, "discarded"},
		{"CredentialNotFound", CredentialNotFound("api_token"), CodeCredentialNotFound, ExitNotFound, false, "api_token"},
		{"CredentialCorrupt", CredentialCorrupt(), CodeCredentialCorrupt, ExitCrypto, false, "corrupt"},
		{"KeystorePermissions", KeystorePermissions("/data/keys"), CodeKeystorePermissions, ExitConfig, false, "/data/keys"},
		{"AttestationFailed", AttestationFailed("Play Store is not installed"), CodeAttestationFailed, ExitAttestation, false, "Play Store"},
		{"AttestationUnavailable", AttestationUnavailable("No network"), CodeAttestationUnavailable, ExitAttestation, true, "No network"},
		{"RateLimited", RateLimited(), CodeRateLimited, ExitRateLimited, true, "rate limit"},
		{"InvalidConfig", InvalidConfig(errors.New("bad mode")), CodeInvalidConfig, ExitConfig, false, "bad mode"},
		{"InternalError", InternalError(errors.New("boom")), CodeInternalError, ExitGeneral, false, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.ExitCode != tt.exit {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.exit)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

func TestInternalError_Nil(t *testing.T) {
	t.Parallel()
	if got := InternalError(nil).Message; got != "an unexpected internal error occurred" {
		t.Errorf("Message = %q", got)
	}
}

func TestFromError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"key not found typed", fmt.Errorf("decrypt: %w", &keystore.KeyNotFoundError{Alias: "k1"}), CodeKeyNotFound},
		{"key not found sentinel", encryption.ErrKeyNotFound, CodeKeyNotFound},
		{"tag mismatch", fmt.Errorf("decrypt: %w", encryption.ErrAuthenticationFailed), CodeDecryptionFailed},
		{"malformed", encryption.ErrMalformedCiphertext, CodeMalformedCiphertext},
		{"integrity", encryption.ErrIntegrityMismatch, CodeIntegrityMismatch},
		{"corrupt credential", credentials.ErrCorruptEntry, CodeCredentialCorrupt},
		{"permissions", fmt.Errorf("open: %w", keystore.ErrInvalidPermissions), CodeKeystorePermissions},
		{"gate", authz.ErrForbidden("device is not secure"), CodeNotAuthorized},
		{"passthrough", RateLimited(), CodeRateLimited},
		{"unknown", errors.New("disk on fire"), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if got.Code != tt.code {
				t.Errorf("FromError(%v).Code = %q, want %q", tt.err, got.Code, tt.code)
			}
			if !errors.Is(got, tt.err) && got != tt.err {
				t.Errorf("FromError should keep the cause reachable")
			}
		})
	}

	if FromError(nil) != nil {
		t.Error("FromError(nil) should be nil")
	}
}

func TestFromError_KeyAlias(t *testing.T) {
	t.Parallel()
	got := FromError(&keystore.KeyNotFoundError{Alias: "credential_store_master"})
	if !strings.Contains(got.Message, "credential_store_master") {
		t.Errorf("message %q should name the alias", got.Message)
	}
}

func TestFromError_UnknownAction(t *testing.T) {
	t.Parallel()
	got := FromError(authz.ErrUnknownAction("wallet:drain"))
	if got.ExitCode != ExitConfig {
		t.Errorf("ExitCode = %d, want %d", got.ExitCode, ExitConfig)
	}
}

func TestFromIntegrityResult(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		res       integrity.Result
		code      string
		retryable bool
	}{
		{"network", integrity.Result{Kind: integrity.KindFailure, Code: integrity.NetworkError, Category: integrity.CategoryRetryable, Message: "No network connection available"}, CodeAttestationUnavailable, true},
		{"rate limited", integrity.Result{Kind: integrity.KindFailure, Code: integrity.TooManyRequests, Category: integrity.CategoryRateLimited}, CodeRateLimited, true},
		{"config", integrity.Result{Kind: integrity.KindFailure, Code: integrity.PlayStoreNotFound, Category: integrity.CategoryConfiguration, Message: "Play Store is not installed"}, CodeAttestationFailed, false},
		{"nonce", integrity.Result{Kind: integrity.KindFailure, Code: integrity.NonceTooShort, Category: integrity.CategoryNonce, Message: "Nonce is too short"}, CodeAttestationFailed, false},
		{"error", integrity.Result{Kind: integrity.KindError, Category: integrity.CategoryInternal, Err: errors.New("cancelled")}, CodeAttestationFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromIntegrityResult(tt.res)
			if got.Code != tt.code || got.Retryable != tt.retryable {
				t.Errorf("got %s retryable=%v, want %s retryable=%v", got.Code, got.Retryable, tt.code, tt.retryable)
			}
			if strings.Contains(got.Message, fmt.Sprint(int(tt.res.Code))) && tt.res.Code != 0 {
				t.Errorf("message %q exposes the raw platform code", got.Message)
			}
		})
	}

	if FromIntegrityResult(integrity.Result{Kind: integrity.KindSuccess, Token: "t"}) != nil {
		t.Error("success should translate to nil")
	}
}

func TestCLIError_JSONSerialization(t *testing.T) {
	t.Parallel()
	err := KeyNotFound("momo_terminal_master_key")
	err.Err = errors.New("internal detail")

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("json.Marshal failed: %v", jsonErr)
	}

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
		t.Fatalf("json.Unmarshal failed: %v", jsonErr)
	}

	if parsed["code"] != CodeKeyNotFound {
		t.Errorf("JSON code = %v, want %v", parsed["code"], CodeKeyNotFound)
	}
	if parsed["retryable"] != false {
		t.Errorf("JSON retryable = %v, want %v", parsed["retryable"], false)
	}
	if _, exists := parsed["ExitCode"]; exists {
		t.Error("ExitCode should not be serialized to JSON")
	}
	if strings.Contains(string(data), "internal detail") {
		t.Error("wrapped cause should not be serialized to JSON")
	}
}

func TestCLIError_JSONSerialization_OmitEmptyHint(t *testing.T) {
	t.Parallel()
	data, jsonErr := json.Marshal(DecryptionFailed())
	if jsonErr != nil {
		t.Fatalf("json.Marshal failed: %v", jsonErr)
	}

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
		t.Fatalf("json.Unmarshal failed: %v", jsonErr)
	}
	if _, exists := parsed["hint"]; exists {
		t.Error("Empty hint should be omitted from JSON")
	}
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()
	output := FormatError(CredentialNotFound("merchant_code"), "json")

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(output), &parsed); jsonErr != nil {
		t.Fatalf("FormatError(json) produced invalid JSON: %v\nOutput: %s", jsonErr, output)
	}
	if parsed["code"] != CodeCredentialNotFound {
		t.Errorf("JSON code = %v, want %v", parsed["code"], CodeCredentialNotFound)
	}
}

func TestFormatError_Table(t *testing.T) {
	t.Parallel()
	err := DeviceInsecure("This terminal cannot be used securely: Device appears to be rooted")
	output := FormatError(err, "table")

	if strings.HasPrefix(output, "{") {
		t.Error("Table format should not produce JSON")
	}
	if !strings.Contains(output, CodeDeviceInsecure) {
		t.Errorf("Output should contain error code, got %q", output)
	}
	if !strings.Contains(output, "Hint: "+err.Hint) {
		t.Errorf("Output should contain hint, got %q", output)
	}
	if FormatError(err, "yaml") != output {
		t.Error("Unknown format should default to table output")
	}
}

func TestFprintError(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	FprintError(&buf, RateLimited(), "table")
	if !strings.HasPrefix(buf.String(), "Error [RATE_LIMITED]: rate limit exceeded") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
