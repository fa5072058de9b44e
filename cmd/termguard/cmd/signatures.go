package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/internal/sigupdate"
	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/threat"
)

func init() {
	signaturesUpdateCmd.Flags().String("url", "", "Signature source (overrides signatures_url)")
	signaturesUpdateCmd.Flags().Bool("force", false, "Ignore the cached check result")
	signaturesCmd.AddCommand(signaturesUpdateCmd)
	rootCmd.AddCommand(signaturesCmd)
}

type signaturesOutput struct {
	Version  string `json:"version" yaml:"version"`
	Source   string `json:"source" yaml:"source"`
	Path     string `json:"path" yaml:"path"`
	Embedded string `json:"embedded" yaml:"embedded"`
}

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "Show the threat signature table in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rt.cfg.SignaturesFile()
		sig, err := sigupdate.Installed(path)
		if err != nil {
			return clierror.InvalidConfig(err)
		}
		builtin := threat.DefaultSignatures()
		out := signaturesOutput{Version: sig.Version, Source: "embedded", Path: path, Embedded: builtin.Version}
		if sig.NewerThan(builtin) {
			out.Source = "installed"
		}
		if outputFormat != "table" {
			return formatOutput(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Version:  %s (%s)\n", out.Version, out.Source)
		fmt.Fprintf(w, "Embedded: %s\n", out.Embedded)
		fmt.Fprintf(w, "Path:     %s\n", out.Path)
		return nil
	},
}

var signaturesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download and install a newer signature table",
	Long: `Fetch the signature table from signatures_url and install it when it
is valid and strictly newer than the table in use. Results are cached for
six hours; use --force to contact the source anyway.

Examples:
  termguard signatures update
  termguard signatures update --url https://updates.example.com/signatures.yaml --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			url = rt.cfg.SignaturesURL
		}
		if url == "" {
			return clierror.InvalidConfig(errors.New("no signatures_url configured"))
		}
		force, _ := cmd.Flags().GetBool("force")

		path := rt.cfg.SignaturesFile()
		current, err := sigupdate.Installed(path)
		if err != nil {
			return clierror.InvalidConfig(err)
		}
		pinner, err := rt.certificatePinner()
		if err != nil {
			return clierror.InvalidConfig(err)
		}

		u := sigupdate.New(url, path, pinner.HTTPClient(nil, sigupdate.DefaultTimeout))
		u.Logger = rt.logger
		res, _, err := u.Update(cmd.Context(), current, force)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(cmd.OutOrStdout(), res)
		}
		w := cmd.OutOrStdout()
		switch {
		case res.Installed:
			fmt.Fprintf(w, "%s signatures %s installed (was %s)\n", okFmt("OK"), res.LatestVersion, res.CurrentVersion)
		case res.FromCache:
			fmt.Fprintf(w, "signatures %s is current %s\n", res.CurrentVersion, dimFmt("(cached check)"))
		default:
			fmt.Fprintf(w, "signatures %s is current\n", res.CurrentVersion)
		}
		return nil
	},
}
