package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/pkg/clierror"
)

// CommandResult captures the output and error from a command execution.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes a cobra command with the given arguments and captures output.
func Run(cmd *cobra.Command, args ...string) *CommandResult {
	return RunWithInput(cmd, "", args...)
}

// RunWithInput is Run with stdin set to input. Prompts that read the
// terminal PIN or piped plaintext consume it.
func RunWithInput(cmd *cobra.Command, input string, args ...string) *CommandResult {
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	res := &CommandResult{Err: cmd.Execute()}
	res.Stdout, res.Stderr = out.String(), errOut.String()
	return res
}

// ExitCode returns the process exit status the error maps to.
func (r *CommandResult) ExitCode() int {
	if r.Err == nil {
		return clierror.ExitSuccess
	}
	return clierror.FromError(r.Err).ExitCode
}

// AssertSuccess fails the test if the command returned an error.
func (r *CommandResult) AssertSuccess(t *testing.T) {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("command failed: %v (exit %d)\nstdout: %s\nstderr: %s",
			r.Err, r.ExitCode(), r.Stdout, r.Stderr)
	}
}

// AssertError fails the test if the command did not return an error.
func (r *CommandResult) AssertError(t *testing.T) {
	t.Helper()
	if r.Err == nil {
		t.Fatalf("command succeeded, want an error\nstdout: %s", r.Stdout)
	}
}

// AssertExitCode fails the test unless the command's error maps to code.
func (r *CommandResult) AssertExitCode(t *testing.T, code int) {
	t.Helper()
	if got := r.ExitCode(); got != code {
		t.Fatalf("expected exit code %d, got %d (err: %v)\nstdout: %s", code, got, r.Err, r.Stdout)
	}
}

// AssertContains fails the test if stdout does not contain expected.
func (r *CommandResult) AssertContains(t *testing.T, expected string) {
	t.Helper()
	checkStream(t, "stdout", r.Stdout, expected, true)
}

// AssertNotContains fails the test if stdout contains unexpected.
func (r *CommandResult) AssertNotContains(t *testing.T, unexpected string) {
	t.Helper()
	checkStream(t, "stdout", r.Stdout, unexpected, false)
}

// AssertStderrContains fails the test if stderr does not contain expected.
func (r *CommandResult) AssertStderrContains(t *testing.T, expected string) {
	t.Helper()
	checkStream(t, "stderr", r.Stderr, expected, true)
}

func checkStream(t *testing.T, name, got, needle string, want bool) {
	t.Helper()
	if strings.Contains(got, needle) == want {
		return
	}
	verb := "to contain"
	if !want {
		verb = "not to contain"
	}
	t.Errorf("expected %s %s %q, got:\n%s", name, verb, needle, got)
}

// WriteConfig writes a termguard.yaml into a fresh temp directory and
// returns its path.
func WriteConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}
