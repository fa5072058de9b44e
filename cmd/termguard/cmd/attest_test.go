package cmd

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/momoterminal/termguard/internal/testutil/mockhttp"
	"github.com/momoterminal/termguard/pkg/clierror"
)

const serverNonce = "bm9uY2UtZnJvbS10aGUtYmFja2VuZA=="

func useBackend(t *testing.T, be *mockhttp.Backend, verify bool) {
	t.Helper()
	t.Setenv("TERMGUARD_ATTESTATION_ENDPOINT", be.TokenURL())
	if verify {
		t.Setenv("TERMGUARD_VERIFY_ENDPOINT", be.VerifyURL())
	}
}

func TestAttestCmd_ForwardsToken(t *testing.T) {
	t.Log("Requesting a token and forwarding it with its nonce")
	setup(t, "release", cleanDevice)
	be := mockhttp.New().Token("opaque-token-abc").Verdict(true, "").Build(t)
	useBackend(t, be, true)

	result := run(t, "attest", "--nonce", serverNonce, "-o", "json")
	result.AssertSuccess(t)
	result.AssertNotContains(t, "opaque-token-abc")

	var out attestOutput
	if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
		t.Fatalf("attest -o json: %v\n%s", err, result.Stdout)
	}
	if out.TokenLength != len("opaque-token-abc") || out.Verified == nil || !*out.Verified {
		t.Errorf("unexpected output %+v", out)
	}

	var fwd struct{ Token, Nonce string }
	reqs := be.Requests(mockhttp.VerifyPath)
	if len(reqs) != 1 {
		t.Fatalf("expected one verification request, got %d", len(reqs))
	}
	if err := reqs[0].Decode(&fwd); err != nil {
		t.Fatal(err)
	}
	if fwd.Token != "opaque-token-abc" || fwd.Nonce != serverNonce {
		t.Errorf("forwarded %+v", fwd)
	}
}

func TestAttestCmd_ShowToken(t *testing.T) {
	setup(t, "release", cleanDevice)
	be := mockhttp.New().Token("opaque-token-abc").Build(t)
	useBackend(t, be, false)

	result := run(t, "attest", "--nonce", serverNonce, "--show-token")
	result.AssertSuccess(t)
	result.AssertContains(t, "opaque-token-abc")
	result.AssertContains(t, "not forwarded")
}

func TestAttestCmd_Failures(t *testing.T) {
	tests := []struct {
		name     string
		backend  *mockhttp.Builder
		nonce    string
		wantExit int
	}{
		{"rejected by backend", mockhttp.New().Verdict(false, "device_integrity_missing"), serverNonce, clierror.ExitAttestation},
		{"platform rate limit", mockhttp.New().TokenError(-8), serverNonce, clierror.ExitRateLimited},
		{"service unavailable", mockhttp.New().TokenStatus(http.StatusServiceUnavailable), serverNonce, clierror.ExitAttestation},
		{"verification endpoint down", mockhttp.New().VerifyStatus(http.StatusBadGateway), serverNonce, clierror.ExitAttestation},
		{"nonce too short", mockhttp.New(), "c2hvcnQ=", clierror.ExitAttestation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, "release", cleanDevice)
			be := tt.backend.Build(t)
			useBackend(t, be, true)

			result := run(t, "attest", "--nonce", tt.nonce)
			result.AssertExitCode(t, tt.wantExit)
		})
	}
}

func TestAttestCmd_NonceRequiredInRelease(t *testing.T) {
	setup(t, "release", cleanDevice)
	be := mockhttp.New().Build(t)
	useBackend(t, be, false)

	run(t, "attest").AssertExitCode(t, clierror.ExitConfig)
	if n := len(be.Requests(mockhttp.TokenPath)); n != 0 {
		t.Errorf("expected no token request, got %d", n)
	}
}

func TestAttestCmd_DevelopmentNonce(t *testing.T) {
	t.Log("Development builds may generate the nonce locally")
	setup(t, "development", cleanDevice)
	be := mockhttp.New().Build(t)
	useBackend(t, be, false)

	run(t, "attest").AssertSuccess(t)
	reqs := be.Requests(mockhttp.TokenPath)
	if len(reqs) != 1 {
		t.Fatalf("expected one token request, got %d", len(reqs))
	}
	var body struct{ Nonce string }
	if err := reqs[0].Decode(&body); err != nil || len(body.Nonce) < 16 {
		t.Errorf("unexpected nonce %q (err %v)", body.Nonce, err)
	}
}

func TestAttestCmd_NoEndpoint(t *testing.T) {
	setup(t, "release", cleanDevice)
	run(t, "attest", "--nonce", serverNonce).AssertExitCode(t, clierror.ExitAttestation)
}
