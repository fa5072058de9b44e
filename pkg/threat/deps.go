package threat

import (
	"context"
	"os"
	"os/exec"
)

// Package-level function variables for dependency injection in tests.
var (
	osStat      = os.Stat
	osReadFile  = os.ReadFile
	osGetenv    = os.Getenv
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, name, args...)
	}
)
