package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/biometric"
	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/encryption"
)

func init() {
	for _, c := range []*cobra.Command{encryptCmd, decryptCmd, rotateKeyCmd} {
		c.Flags().String("alias", "", "Key alias (default: key_alias from config)")
	}
	for _, c := range []*cobra.Command{encryptCmd, decryptCmd} {
		c.Flags().Bool("transaction", false, "Use a transaction record with an integrity hash")
		c.Flags().Bool("data", false, "Transaction payload is a JSON object, sealed as CBOR (implies --transaction)")
	}
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(rotateKeyCmd)
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt [plaintext|-]",
	Short: "Encrypt a value with the terminal key",
	Long: `Encrypt a value with AES-256-GCM under a keystore key. The output is
base64(IV || ciphertext || tag). With --transaction the output is a record
that also carries the SHA-256 of the plaintext.

Reads the value from stdin when no argument or "-" is given.

Examples:
  termguard encrypt "+250788000000|12500|TXN-001"
  echo -n secret | termguard encrypt
  termguard encrypt --data '{"amount":12500,"ref":"TXN-001"}' -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := rt.require(cmd.Context(), authz.ActionCredentialWrite, false); err != nil {
			return err
		}
		eng, err := rt.engine()
		if err != nil {
			return err
		}
		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		alias := keyAlias(cmd)
		out := cmd.OutOrStdout()

		txn, data := transactionFlags(cmd)
		switch {
		case data:
			var v map[string]any
			if err := json.Unmarshal([]byte(input), &v); err != nil {
				return clierror.InvalidConfig(fmt.Errorf("--data input is not a JSON object: %w", err))
			}
			rec, err := eng.EncryptTransactionData(v, alias)
			if err != nil {
				return err
			}
			return printRecord(out, rec)
		case txn:
			rec, err := eng.EncryptTransactionString(input, alias)
			if err != nil {
				return err
			}
			return printRecord(out, rec)
		}

		ct, err := eng.Encrypt(input, alias)
		if err != nil {
			return err
		}
		if outputFormat != "table" {
			return formatOutput(out, map[string]string{"alias": alias, "ciphertext": ct})
		}
		fmt.Fprintln(out, ct)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [ciphertext|record|-]",
	Short: "Decrypt a value produced by encrypt",
	Long: `Decrypt a value produced by encrypt. With --transaction the input is the
JSON record and its integrity hash is verified before anything is printed.

Examples:
  termguard decrypt "$CT"
  termguard encrypt --transaction "$TXN" -o json | termguard decrypt --transaction`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := rt.require(cmd.Context(), authz.ActionCredentialRead, false); err != nil {
			return err
		}
		eng, err := rt.engine()
		if err != nil {
			return err
		}
		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		alias := keyAlias(cmd)
		out := cmd.OutOrStdout()

		txn, data := transactionFlags(cmd)
		if txn || data {
			var rec encryption.TransactionRecord
			if err := json.Unmarshal([]byte(input), &rec); err != nil || rec.EncryptedPayload == "" {
				return clierror.MalformedCiphertext()
			}
			if data {
				var v map[string]any
				if err := eng.DecryptTransactionData(&rec, alias, &v); err != nil {
					return err
				}
				return outputJSON(out, v)
			}
			pt, err := eng.DecryptTransactionString(&rec, alias)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, pt)
			return nil
		}

		pt, err := eng.Decrypt(input, alias)
		if err != nil {
			return err
		}
		if outputFormat != "table" {
			return formatOutput(out, map[string]string{"alias": alias, "plaintext": pt})
		}
		fmt.Fprintln(out, pt)
		return nil
	},
}

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Replace a key, invalidating everything encrypted under it",
	Long: `Replace the key material behind an alias. The alias stays the same.
Ciphertext produced under the old key can no longer be decrypted.

The operator must authenticate first. Rotation is refused when the device
is insecure, and in release builds also while any security warning is
active.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		alias := keyAlias(cmd)
		verified, err := authenticate(cmd, func(gw *biometric.Gateway, ctx context.Context) <-chan biometric.Result {
			return gw.Authenticate(ctx, biometric.PromptInfo{
				Title:                 "Rotate encryption key",
				Subtitle:              alias,
				Description:           "Data encrypted under the current key will be unreadable",
				NegativeButtonText:    "Cancel",
				AllowDeviceCredential: true,
			})
		})
		if err != nil {
			return err
		}
		if err := rt.require(cmd.Context(), authz.ActionKeyRotate, verified); err != nil {
			return err
		}

		eng, err := rt.engine()
		if err != nil {
			return err
		}
		if err := eng.RotateKey(alias); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, map[string]string{"alias": alias, "status": "rotated"})
		}
		fmt.Fprintf(out, "%s key %s rotated\n", okFmt("OK"), alias)
		return nil
	},
}

func keyAlias(cmd *cobra.Command) string {
	if a, _ := cmd.Flags().GetString("alias"); a != "" {
		return a
	}
	return rt.cfg.KeyAlias
}

func transactionFlags(cmd *cobra.Command) (txn, data bool) {
	txn, _ = cmd.Flags().GetBool("transaction")
	data, _ = cmd.Flags().GetBool("data")
	return txn || data, data
}

// readInput returns args[0], or stdin when absent or "-". A single trailing
// newline from stdin is dropped.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func printRecord(out io.Writer, rec *encryption.TransactionRecord) error {
	if outputFormat == "yaml" {
		return outputYAML(out, rec)
	}
	return outputJSON(out, rec)
}
