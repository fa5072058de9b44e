// Package cmd implements the termguard CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/momoterminal/termguard/internal/config"
	"github.com/momoterminal/termguard/internal/version"
	"github.com/momoterminal/termguard/pkg/clierror"
)

var (
	// Global flags
	outputFormat  string
	configPath    string
	buildModeFlag string
	dataDirFlag   string

	// Shared runtime, built in PersistentPreRunE
	rt *app
)

var rootCmd = &cobra.Command{
	Use:   "termguard",
	Short: "Terminal security subsystem CLI",
	Long: `termguard runs the terminal's device integrity checks and operates its
protected storage: the keystore, the encrypted credential store and
remote attestation.

Configuration is read from --config (YAML), then TERMGUARD_* environment
variables, then command-line flags.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		switch outputFormat {
		case "table", "json", "yaml":
		default:
			return clierror.InvalidConfig(fmt.Errorf("--output must be table, json or yaml, got %q", outputFormat))
		}

		cfg, err := loadConfig()
		if err != nil {
			return clierror.InvalidConfig(err)
		}
		rt, err = newApp(cfg, cmd.ErrOrStderr())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeApp()
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for termguard.

Bash:
  source <(termguard completion bash)

Zsh:
  termguard completion zsh > "${fpath[1]}/_termguard"

Fish:
  termguard completion fish > ~/.config/fish/completions/termguard.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (env: TERMGUARD_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&buildModeFlag, "build-mode", "", "Override build mode: development or release")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override data directory")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRun is skipped when RunE fails
	closeApp()
	return err
}

func closeApp() {
	if rt != nil {
		rt.Close()
		rt = nil
	}
}

// OutputFormat returns the --output value for error rendering.
func OutputFormat() string {
	return outputFormat
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg := config.DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if buildModeFlag != "" {
		cfg.BuildMode = buildModeFlag
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatOutput handles output formatting based on the --output flag.
// Table format is handled by each command.
func formatOutput(w io.Writer, data interface{}) error {
	switch outputFormat {
	case "json":
		return outputJSON(w, data)
	case "yaml":
		return outputYAML(w, data)
	default:
		return nil
	}
}

func outputJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(w io.Writer, data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
