package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/credentials"
)

func init() {
	credsWipeCmd.Flags().Bool("yes", false, "Confirm removal of every entry")

	credsCmd.AddCommand(credsGetCmd)
	credsCmd.AddCommand(credsSetCmd)
	credsCmd.AddCommand(credsRemoveCmd)
	credsCmd.AddCommand(credsIncrementCmd)
	credsCmd.AddCommand(credsClearAuthCmd)
	credsCmd.AddCommand(credsWipeCmd)
	credsCmd.AddCommand(credsStatusCmd)
	rootCmd.AddCommand(credsCmd)
}

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage the encrypted credential store",
	Long: `Read and write entries in the encrypted credential store. Entry names
and values are both encrypted at rest.

Well-known entries: merchant_code, api_token, api_secret, api_endpoint,
device_id, refresh_token, token_expiry, user_id, user_phone.`,
}

var credsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialRead)
		if err != nil {
			return err
		}
		name := args[0]
		v, ok, err := store.GetString(name)
		if err != nil {
			return err
		}
		if !ok {
			return clierror.CredentialNotFound(name)
		}
		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, map[string]string{"name": name, "value": v})
		}
		fmt.Fprintln(out, v)
		return nil
	},
}

var credsSetCmd = &cobra.Command{
	Use:   "set <name> <value|->",
	Short: "Create or replace an entry",
	Long: `Create or replace an entry. Pass "-" to read the value from stdin so it
stays out of shell history. token_expiry takes Unix milliseconds.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialWrite)
		if err != nil {
			return err
		}
		name := args[0]
		value, err := readInput(cmd, args[1:])
		if err != nil {
			return err
		}
		if name == credentials.KeyTokenExpiry {
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return clierror.InvalidConfig(fmt.Errorf("token_expiry must be Unix milliseconds: %w", err))
			}
			if err := store.SetTokenExpiry(ms); err != nil {
				return err
			}
		} else if err := store.SetString(name, value); err != nil {
			return err
		}
		if outputFormat == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s stored\n", okFmt("OK"), name)
		}
		return nil
	},
}

var credsRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove an entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialWrite)
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		if outputFormat == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s removed\n", okFmt("OK"), args[0])
		}
		return nil
	},
}

var credsIncrementCmd = &cobra.Command{
	Use:   "increment <counter>",
	Short: "Atomically increment an integer entry and print the new value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialWrite)
		if err != nil {
			return err
		}
		n, err := store.IncrementCounter(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, map[string]any{"name": args[0], "value": n})
		}
		fmt.Fprintln(out, n)
		return nil
	},
}

var credsClearAuthCmd = &cobra.Command{
	Use:   "clear-auth",
	Short: "Remove session data, keeping merchant configuration",
	Long: `Remove api_token, refresh_token, token_expiry, user_id and user_phone.
merchant_code, api_endpoint, api_secret and device_id are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialWrite)
		if err != nil {
			return err
		}
		if err := store.ClearAuthData(); err != nil {
			return err
		}
		if outputFormat == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s session data cleared\n", okFmt("OK"))
		}
		return nil
	},
}

var credsWipeCmd = &cobra.Command{
	Use:   "wipe --yes",
	Short: "Remove every entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return clierror.InvalidConfig(fmt.Errorf("wipe removes every credential; re-run with --yes"))
		}
		store, err := openCredentials(cmd, authz.ActionCredentialWrite)
		if err != nil {
			return err
		}
		if err := store.ClearAll(); err != nil {
			return err
		}
		if outputFormat == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s credential store wiped\n", warnFmt("OK"))
		}
		return nil
	},
}

type credsStatus struct {
	Path       string `json:"path" yaml:"path"`
	Entries    int    `json:"entries" yaml:"entries"`
	Configured bool   `json:"configured" yaml:"configured"`
	DeviceID   string `json:"device_id" yaml:"device_id"`
}

var credsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store location, entry count and provisioning state",
	Long: `Show store location, entry count and whether the terminal is configured
(api_endpoint and merchant_code present). A device id is generated on first
use.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredentials(cmd, authz.ActionCredentialRead)
		if err != nil {
			return err
		}
		st := credsStatus{Path: rt.cfg.CredentialsFile()}
		if st.Entries, err = store.Len(); err != nil {
			return err
		}
		if st.Configured, err = store.IsConfigured(); err != nil {
			return err
		}
		if st.DeviceID, err = store.EnsureDeviceID(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, st)
		}
		configured := warnFmt("no")
		if st.Configured {
			configured = okFmt("yes")
		}
		fmt.Fprintf(out, "Path:       %s\n", st.Path)
		fmt.Fprintf(out, "Entries:    %d\n", st.Entries)
		fmt.Fprintf(out, "Configured: %s\n", configured)
		fmt.Fprintf(out, "Device ID:  %s\n", st.DeviceID)
		return nil
	},
}

// openCredentials gates action on a fresh verdict and opens the store.
func openCredentials(cmd *cobra.Command, action string) (*credentials.Store, error) {
	if err := rt.require(cmd.Context(), action, false); err != nil {
		return nil, err
	}
	return rt.credentials()
}
