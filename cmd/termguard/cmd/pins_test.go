package cmd

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/momoterminal/termguard/internal/testutil/cli"
	"github.com/momoterminal/termguard/pkg/clierror"
)

func testPin(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "sha256/" + base64.StdEncoding.EncodeToString(sum[:])
}

func TestPinsCmd(t *testing.T) {
	primary, backup := testPin("primary"), testPin("backup")
	path := cli.WriteConfig(t, `
pinning:
  pins:
    - pattern: "*.momo.example.com"
      pins: ["`+primary+`", "`+backup+`"]
    - pattern: "**.integrity.example.com"
      pins: ["`+primary+`"]
`)

	tests := []struct {
		mode     string
		enforced bool
	}{
		{"release", true},
		{"development", false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			setup(t, tt.mode, cleanDevice)

			result := run(t, "--config", path, "pins", "-o", "json")
			result.AssertSuccess(t)
			var out pinsOutput
			if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
				t.Fatalf("pins -o json: %v", err)
			}
			if out.Enforced != tt.enforced {
				t.Errorf("expected enforced=%v, got %v", tt.enforced, out.Enforced)
			}
			if len(out.Entries) != 2 || out.Entries[0].Pattern != "**.integrity.example.com" {
				t.Errorf("unexpected entries %+v", out.Entries)
			}

			table := run(t, "--config", path, "pins")
			table.AssertSuccess(t)
			table.AssertContains(t, "*.momo.example.com")
			table.AssertContains(t, backup)
		})
	}
}

func TestPinsCmd_NoPins(t *testing.T) {
	setup(t, "release", cleanDevice)
	result := run(t, "pins")
	result.AssertSuccess(t)
	result.AssertContains(t, "No pins configured.")
}

func TestPinsCmd_InvalidPin(t *testing.T) {
	t.Log("A pin that is not a SHA-256 digest is a configuration error")
	path := cli.WriteConfig(t, `
pinning:
  pins:
    - pattern: api.momo.example.com
      pins: ["sha256/dG9vIHNob3J0"]
`)
	setup(t, "release", cleanDevice)
	run(t, "--config", path, "pins").AssertExitCode(t, clierror.ExitConfig)
}
