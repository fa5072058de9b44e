package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/momoterminal/termguard/internal/testutil/cli"
	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/threat"
)

var (
	cleanDevice  = threat.StaticDevice{}
	rootedDevice = threat.StaticDevice{Packages: []string{"com.topjohnwu.magisk"}}
	hookedDevice = threat.StaticDevice{Packages: []string{"de.robv.android.xposed.installer"}}
	adbDevice    = threat.StaticDevice{Settings: map[string]string{"global/adb_enabled": "1"}}
	devOpsDevice = threat.StaticDevice{Settings: map[string]string{"global/development_settings_enabled": "1"}}
)

// setup isolates one test: fresh data dir, the given build mode and a
// fixed device. It returns the data dir.
func setup(t *testing.T, mode string, dev threat.Device) string {
	t.Helper()
	resetFlags(rootCmd)
	color.NoColor = true

	dir := t.TempDir()
	for _, name := range []string{"CONFIG", "STRICT", "KEYSTORE_DIR", "CREDENTIALS_PATH", "SIGNATURES_PATH", "SIGNATURES_URL",
		"ATTESTATION_ENDPOINT", "VERIFY_ENDPOINT", "ATTESTATION_RATE", "METRICS_TEXTFILE", "SYSLOG", "DEVICE_PIN"} {
		// Setenv registers the restore, Unsetenv clears it for this test
		t.Setenv("TERMGUARD_"+name, "")
		os.Unsetenv("TERMGUARD_" + name)
	}
	t.Setenv("TERMGUARD_DATA_DIR", dir)
	t.Setenv("TERMGUARD_BUILD_MODE", mode)
	t.Setenv("TERMGUARD_LOG_LEVEL", "error")

	orig := newDevice
	newDevice = func() threat.Device { return dev }
	t.Cleanup(func() {
		newDevice = orig
		closeApp()
	})
	return dir
}

// run executes one command line against rootCmd.
func run(t *testing.T, args ...string) *cli.CommandResult {
	t.Helper()
	return runWithInput(t, "", args...)
}

func runWithInput(t *testing.T, input string, args ...string) *cli.CommandResult {
	t.Helper()
	resetFlags(rootCmd)
	res := cli.RunWithInput(rootCmd, input, args...)
	closeApp()
	return res
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestRootCmd_HelpShowsSubcommands(t *testing.T) {
	// Cannot run in parallel - uses shared global rootCmd
	t.Log("Verifying help output lists every command")
	setup(t, "release", cleanDevice)

	result := run(t, "--help")
	result.AssertSuccess(t)
	for _, name := range []string{"check", "summary", "encrypt", "decrypt", "rotate-key", "creds", "attest", "pins", "confirm-payment", "signatures", "version"} {
		result.AssertContains(t, name)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Log("Verifying version prints the binary and signature versions")
	setup(t, "release", cleanDevice)

	result := run(t, "version")
	result.AssertSuccess(t)
	result.AssertContains(t, "termguard v")
	result.AssertContains(t, "signatures "+threat.DefaultSignatures().Version)
}

func TestRootCmd_InvalidOutputFormat(t *testing.T) {
	t.Log("Verifying an unknown --output is a configuration error")
	setup(t, "release", cleanDevice)

	result := run(t, "check", "-o", "xml")
	result.AssertExitCode(t, clierror.ExitConfig)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Log("Verifying an unknown build mode is a configuration error")
	setup(t, "staging", cleanDevice)

	result := run(t, "check")
	result.AssertExitCode(t, clierror.ExitConfig)
	if !strings.Contains(result.Err.Error(), "build_mode") {
		t.Errorf("expected error to name build_mode, got %v", result.Err)
	}
}

func TestRootCmd_FlagsOverrideEnvironment(t *testing.T) {
	t.Log("Verifying --build-mode and --data-dir win over the environment")
	setup(t, "staging", rootedDevice)
	dir := t.TempDir()

	result := run(t, "--build-mode", "development", "--data-dir", dir, "creds", "status")
	result.AssertSuccess(t)
	result.AssertContains(t, filepath.Join(dir, "credentials.db"))
}

func TestRootCmd_ConfigFile(t *testing.T) {
	t.Log("Verifying --config is loaded and the environment overrides it")
	dir := setup(t, "release", cleanDevice)
	os.Unsetenv("TERMGUARD_BUILD_MODE")
	path := cli.WriteConfig(t, "build_mode: development\ncredentials_path: "+filepath.Join(dir, "custom.db")+"\n")

	result := run(t, "--config", path, "creds", "status")
	result.AssertSuccess(t)
	result.AssertContains(t, "custom.db")
}

func TestRootCmd_WritesMetricsTextfile(t *testing.T) {
	t.Log("Verifying metrics are exported after a command")
	dir := setup(t, "release", rootedDevice)
	path := filepath.Join(dir, "termguard.prom")
	t.Setenv("TERMGUARD_METRICS_TEXTFILE", path)

	result := run(t, "check")
	result.AssertExitCode(t, clierror.ExitInsecure)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	for _, want := range []string{"termguard_verdicts_total", "termguard_policy_failures_total"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in textfile, got:\n%s", want, data)
		}
	}
}
