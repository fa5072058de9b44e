package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/policy"
)

var (
	okFmt   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnFmt = color.New(color.FgYellow, color.Bold).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

func init() {
	checkCmd.Flags().Bool("strict", false, "Treat developer options as a blocking failure")
	checkCmd.Flags().Bool("quick", false, "Only report whether the terminal may be used")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(summaryCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the device integrity checks and print the verdict",
	Long: `Run every root, emulator, instrumentation and debug probe and evaluate
the result under the configured build mode.

Exits with status 2 when the terminal must not be used.

Examples:
  termguard check
  termguard check --strict -o json
  termguard check --quick`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := rt.orchestrator()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if quick, _ := cmd.Flags().GetBool("quick"); quick {
			ok := orch.QuickCheck(cmd.Context())
			switch {
			case outputFormat != "table":
				if err := formatOutput(out, map[string]bool{"secure": ok}); err != nil {
					return err
				}
			case ok:
				fmt.Fprintln(out, okFmt("SECURE"))
			default:
				fmt.Fprintln(out, errFmt("INSECURE"))
			}
			if !ok {
				return clierror.DeviceInsecure("device failed the security check")
			}
			return nil
		}

		strict := rt.cfg.StrictMode
		if cmd.Flags().Changed("strict") {
			strict, _ = cmd.Flags().GetBool("strict")
		}
		res := orch.Initialize(cmd.Context(), strict)

		if outputFormat != "table" {
			if err := formatOutput(out, res); err != nil {
				return err
			}
		} else {
			printVerdict(out, res)
		}
		if !res.OK() {
			return clierror.DeviceInsecure(res.BlockingMessage())
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the diagnostics summary of a fresh check",
	Long: `Print the human-readable security summary shown on diagnostics screens.
The summary never uses strict mode and always exits 0.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := rt.orchestrator()
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), orch.SecuritySummary(cmd.Context()))
		return err
	},
}

func printVerdict(out io.Writer, res policy.InitializationResult) {
	switch {
	case !res.OK():
		fmt.Fprintf(out, "Status: %s\n", errFmt("BLOCKED"))
	case len(res.Warnings) > 0:
		fmt.Fprintf(out, "Status: %s\n", warnFmt("SECURE (with warnings)"))
	default:
		fmt.Fprintf(out, "Status: %s\n", okFmt("SECURE"))
	}
	fmt.Fprintf(out, "Build mode: %s", res.BuildMode)
	if res.Strict {
		fmt.Fprint(out, " (strict)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	c := res.Check
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL\tDETECTED")
	fmt.Fprintf(w, "root\t%s\n", detected(c.IsRooted))
	fmt.Fprintf(w, "emulator\t%s\n", detected(c.IsEmulator))
	fmt.Fprintf(w, "instrumentation\t%s\n", detected(c.HasInstrumentation))
	fmt.Fprintf(w, "debuggable\t%s\n", detected(c.IsDebuggable))
	w.Flush()

	if len(res.Failures) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failures:")
		for _, f := range res.Failures {
			fmt.Fprintf(out, "  %s %s\n", errFmt(f.Kind), f.Message)
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Warnings:")
		for _, wn := range res.Warnings {
			fmt.Fprintf(out, "  %s %s\n", warnFmt(wn.Kind), wn.Message)
		}
	}
	if len(c.FailureReasons) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Evidence:")
		for _, r := range c.FailureReasons {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, dimFmt(fmt.Sprintf("signatures %s, %d undecided probes", c.SignatureVersion, c.ProbeErrors)))
}

func detected(b bool) string {
	if b {
		return errFmt("yes")
	}
	return "no"
}
