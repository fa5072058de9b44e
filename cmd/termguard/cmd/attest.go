package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momoterminal/termguard/pkg/clierror"
	"github.com/momoterminal/termguard/pkg/integrity"
)

func init() {
	attestCmd.Flags().String("nonce", "", "Server-issued nonce (base64, 16-500 chars)")
	attestCmd.Flags().Bool("show-token", false, "Print the integrity token")
	rootCmd.AddCommand(attestCmd)
}

type attestOutput struct {
	Nonce       string `json:"nonce" yaml:"nonce"`
	TokenLength int    `json:"token_length" yaml:"token_length"`
	Token       string `json:"token,omitempty" yaml:"token,omitempty"`
	Verified    *bool  `json:"verified,omitempty" yaml:"verified,omitempty"`
	Reason      string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Request an integrity token and forward it for verification",
	Long: `Request a device integrity token bound to a server nonce. When
attestation.verify_endpoint is configured the token is forwarded there and
the backend verdict is printed. Tokens are never verified locally.

Development builds may omit --nonce to use a locally generated one.

Examples:
  termguard attest --nonce "$NONCE"
  termguard --build-mode development attest --show-token`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := rt.cfg.Attestation
		if cfg.Endpoint == "" {
			return clierror.AttestationUnavailable("no attestation endpoint configured")
		}

		nonce, _ := cmd.Flags().GetString("nonce")
		if nonce == "" {
			n, err := integrity.InsecureDevelopmentNonce(rt.mode)
			if errors.Is(err, integrity.ErrDevelopmentOnly) {
				return clierror.InvalidConfig(errors.New("--nonce is required in release builds"))
			}
			if err != nil {
				return err
			}
			rt.logger.Warn("using locally generated nonce")
			nonce = n
		}

		pinner, err := rt.certificatePinner()
		if err != nil {
			return clierror.InvalidConfig(err)
		}
		httpClient := pinner.HTTPClient(nil, integrity.DefaultTimeout)

		client := integrity.NewClient(
			integrity.NewHTTPProvider(cfg.Endpoint, cfg.CloudProjectNumber, httpClient),
			integrity.Config{
				Logger:        rt.logger,
				Audit:         rt.audit,
				Metrics:       rt.metrics,
				RatePerMinute: cfg.RatePerMinute,
			},
		)
		res := client.RequestIntegrityToken(cmd.Context(), nonce)
		if !res.OK() {
			return clierror.FromIntegrityResult(res)
		}

		result := attestOutput{Nonce: nonce, TokenLength: len(res.Token)}
		if show, _ := cmd.Flags().GetBool("show-token"); show {
			result.Token = res.Token
		}

		var verifyErr error
		if cfg.VerifyEndpoint != "" {
			verdict, err := integrity.NewForwarder(cfg.VerifyEndpoint, httpClient).Forward(cmd.Context(), res.Token, nonce)
			switch {
			case errors.Is(err, integrity.ErrVerificationRejected):
				reason := verdict.Reason
				if reason == "" {
					reason = "backend rejected the token"
				}
				verifyErr = clierror.AttestationFailed(reason)
			case err != nil:
				return clierror.AttestationUnavailable(err.Error())
			}
			if verdict != nil {
				result.Verified = &verdict.Accepted
				result.Reason = verdict.Reason
			}
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			if err := formatOutput(out, result); err != nil {
				return err
			}
			return verifyErr
		}
		fmt.Fprintf(out, "Token:    %d bytes\n", result.TokenLength)
		if result.Token != "" {
			fmt.Fprintf(out, "          %s\n", result.Token)
		}
		switch {
		case result.Verified == nil:
			fmt.Fprintf(out, "Verified: %s\n", dimFmt("not forwarded"))
		case *result.Verified:
			fmt.Fprintf(out, "Verified: %s\n", okFmt("accepted"))
		default:
			fmt.Fprintf(out, "Verified: %s %s\n", errFmt("rejected"), result.Reason)
		}
		return verifyErr
	},
}
