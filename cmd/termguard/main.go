// termguard inspects and operates the terminal's security subsystem:
// integrity verdicts, encrypted credentials, keys and attestation.
package main

import (
	"os"

	"github.com/momoterminal/termguard/cmd/termguard/cmd"
	"github.com/momoterminal/termguard/pkg/clierror"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cliErr := clierror.FromError(err)
		clierror.PrintError(cliErr, cmd.OutputFormat())
		os.Exit(cliErr.ExitCode)
	}
}
