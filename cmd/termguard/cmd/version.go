package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/internal/version"
	"github.com/momoterminal/termguard/pkg/threat"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":    version.String(),
			"signatures": threat.DefaultSignatures().Version,
			"go":         runtime.Version(),
		}
		out := cmd.OutOrStdout()
		switch outputFormat {
		case "json", "yaml":
			return formatOutput(out, info)
		}
		fmt.Fprintf(out, "termguard %s\n", info["version"])
		fmt.Fprintf(out, "signatures %s\n", info["signatures"])
		fmt.Fprintf(out, "%s\n", info["go"])
		return nil
	},
}
