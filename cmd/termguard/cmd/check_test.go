package cmd

import (
	"encoding/json"
	"testing"

	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/policy"
	"github.com/momoterminal/termguard/pkg/threat"
)

func TestCheckCmd(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		device   threat.Device
		args     []string
		wantExit int
		want     []string
	}{
		{
			name:   "clean release device",
			mode:   "release",
			device: cleanDevice,
			want:   []string{"Status: SECURE", "SIGNAL", "root"},
		},
		{
			name:     "rooted release device is blocked",
			mode:     "release",
			device:   rootedDevice,
			wantExit: clierror.ExitInsecure,
			want:     []string{"Status: BLOCKED", "DEVICE_ROOTED", "Evidence:"},
		},
		{
			name:   "rooted development device warns",
			mode:   "development",
			device: rootedDevice,
			want:   []string{"SECURE (with warnings)", "DEVICE_ROOTED", "allowed in development build"},
		},
		{
			name:     "instrumentation blocks in development",
			mode:     "development",
			device:   hookedDevice,
			wantExit: clierror.ExitInsecure,
			want:     []string{"BLOCKED", "INSTRUMENTATION_DETECTED"},
		},
		{
			name:   "developer options warn",
			mode:   "release",
			device: devOpsDevice,
			want:   []string{"SECURE (with warnings)", "DEVELOPER_OPTIONS_ENABLED"},
		},
		{
			name:     "developer options fail in strict mode",
			mode:     "release",
			device:   devOpsDevice,
			args:     []string{"--strict"},
			wantExit: clierror.ExitInsecure,
			want:     []string{"BLOCKED", "(strict)", "DEVELOPER_OPTIONS_ENABLED"},
		},
		{
			name:     "quick json on rooted device exits insecure",
			mode:     "release",
			device:   rootedDevice,
			args:     []string{"--quick", "-o", "json"},
			wantExit: clierror.ExitInsecure,
			want:     []string{`"secure": false`},
		},
		{
			name:     "quick yaml on rooted device exits insecure",
			mode:     "release",
			device:   rootedDevice,
			args:     []string{"--quick", "-o", "yaml"},
			wantExit: clierror.ExitInsecure,
			want:     []string{"secure: false"},
		},
		{
			name:   "quick json on clean device",
			mode:   "release",
			device: cleanDevice,
			args:   []string{"--quick", "-o", "json"},
			want:   []string{`"secure": true`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Logf("Running check on %s build", tt.mode)
			setup(t, tt.mode, tt.device)

			result := run(t, append([]string{"check"}, tt.args...)...)
			result.AssertExitCode(t, tt.wantExit)
			for _, w := range tt.want {
				result.AssertContains(t, w)
			}
		})
	}
}

func TestCheckCmd_StrictFromEnvironment(t *testing.T) {
	t.Log("Verifying TERMGUARD_STRICT applies and --strict=false overrides it")
	setup(t, "release", devOpsDevice)
	t.Setenv("TERMGUARD_STRICT", "true")

	run(t, "check").AssertExitCode(t, clierror.ExitInsecure)
	run(t, "check", "--strict=false").AssertSuccess(t)
}

func TestCheckCmd_JSON(t *testing.T) {
	t.Log("Verifying -o json emits the full verdict")
	setup(t, "development", rootedDevice)

	result := run(t, "check", "-o", "json")
	result.AssertSuccess(t)

	var res policy.InitializationResult
	if err := json.Unmarshal([]byte(result.Stdout), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, result.Stdout)
	}
	if res.Status != policy.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", res.Status)
	}
	if !res.HasWarning(policy.KindDeviceRooted) {
		t.Errorf("expected DEVICE_ROOTED warning, got %+v", res.Warnings)
	}
	if !res.Check.IsRooted {
		t.Error("expected check.is_rooted")
	}
}

func TestCheckCmd_Quick(t *testing.T) {
	t.Log("Verifying --quick reports a single word and the exit status")
	setup(t, "release", cleanDevice)
	result := run(t, "check", "--quick")
	result.AssertSuccess(t)
	result.AssertContains(t, "SECURE")

	setup(t, "release", rootedDevice)
	result = run(t, "check", "--quick")
	result.AssertExitCode(t, clierror.ExitInsecure)
	result.AssertContains(t, "INSECURE")
}

func TestSummaryCmd(t *testing.T) {
	t.Log("Verifying summary prints the diagnostics view and never fails")
	setup(t, "release", rootedDevice)

	result := run(t, "summary")
	result.AssertSuccess(t)
	result.AssertContains(t, "Security status: BLOCKED")
	result.AssertContains(t, "Rooted: yes")
	result.AssertContains(t, "Failure: [DEVICE_ROOTED]")
}
