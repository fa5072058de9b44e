package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/internal/config"
	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/biometric"
	"github.com/momoterminal/termguard/pkg/clierror"
)

// pinEnv holds the device credential the console prompter accepts.
const pinEnv = config.EnvPrefix + "DEVICE_PIN"

func init() {
	for _, c := range []*cobra.Command{payCmd, rotateKeyCmd} {
		c.Flags().Duration("auth-timeout", 60*time.Second, "Give up waiting for authentication after this long")
	}
	rootCmd.AddCommand(payCmd)
}

var payCmd = &cobra.Command{
	Use:   "confirm-payment <amount> <recipient>",
	Short: "Authenticate the operator and authorize a payment",
	Long: `Show the payment confirmation prompt, wait for the operator to
authenticate and then gate payment:confirm on the current verdict.

On terminals without a biometric sensor the prompt falls back to the
device PIN read from ` + pinEnv + `.

Examples:
  termguard confirm-payment 12500 "Jean Claude"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || amount <= 0 {
			return clierror.InvalidConfig(fmt.Errorf("amount must be a positive integer, got %q", args[0]))
		}
		recipient := args[1]

		verified, err := authenticate(cmd, func(gw *biometric.Gateway, ctx context.Context) <-chan biometric.Result {
			return gw.AuthenticateForPayment(ctx, amount, recipient)
		})
		if err != nil {
			return err
		}
		if err := rt.require(cmd.Context(), authz.ActionPaymentConfirm, verified); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s payment authorized\n", okFmt("OK"))
		return nil
	},
}

// authenticate verifies the device, then runs one prompt session and
// reports whether the operator authenticated. A blocked device fails before
// any prompt is shown. Prompts go to stderr so stdout stays parseable.
func authenticate(cmd *cobra.Command, start func(*biometric.Gateway, context.Context) <-chan biometric.Result) (bool, error) {
	res, err := rt.initialize(cmd.Context())
	if err != nil {
		return false, err
	}
	if !res.OK() {
		return false, clierror.DeviceInsecure(res.BlockingMessage())
	}

	out := rt.stderr
	timeout, _ := cmd.Flags().GetDuration("auth-timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	gw := biometric.NewGateway(&biometric.ConsolePrompter{
		In:  cmd.InOrStdin(),
		Out: out,
		PIN: os.Getenv(pinEnv),
	}, biometric.Config{
		Logger:   rt.logger,
		Audit:    rt.audit,
		Currency: rt.cfg.Biometric.Currency,
	})

	var final biometric.Result
	for r := range start(gw, ctx) {
		if r.Kind == biometric.Failed {
			fmt.Fprintln(out, warnFmt("Not recognized, try again"))
			continue
		}
		final = r
	}
	if final.Kind != biometric.Success && final.Message != "" {
		fmt.Fprintln(out, final.Message)
	}
	return final.Kind == biometric.Success, nil
}

// lockedWriter serializes writes from the prompter goroutine, the command
// and the logger.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
