// Package config loads termguard configuration: defaults, then an optional
// YAML file, then TERMGUARD_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/momoterminal/termguard/pkg/buildmode"
	"github.com/momoterminal/termguard/pkg/encryption"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TERMGUARD_"

var validate = validator.New()

// Config holds termguard configuration.
type Config struct {
	// BuildMode is "development" or "release". Development relaxes root and
	// emulator policy, certificate pinning and the screen guard.
	BuildMode  string `yaml:"build_mode" validate:"required"`
	StrictMode bool   `yaml:"strict_mode"`

	// DataDir holds the keystore and credential store unless their paths
	// are set explicitly.
	DataDir         string `yaml:"data_dir" validate:"required"`
	KeystoreDir     string `yaml:"keystore_dir"`
	CredentialsPath string `yaml:"credentials_path"`
	SignaturesPath  string `yaml:"signatures_path"`
	SignaturesURL   string `yaml:"signatures_url" validate:"omitempty,url"`
	KeyAlias        string `yaml:"key_alias" validate:"required,max=64"`
	TerminalID      string `yaml:"terminal_id" validate:"max=128"`

	Probe       ProbeConfig       `yaml:"probe"`
	Attestation AttestationConfig `yaml:"attestation"`
	Pinning     PinningConfig     `yaml:"pinning"`
	Screen      ScreenConfig      `yaml:"screen"`
	Biometric   BiometricConfig   `yaml:"biometric"`
	Audit       AuditConfig       `yaml:"audit"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ProbeConfig tunes the threat engine.
type ProbeConfig struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0,lte=64"`
}

// AttestationConfig configures the integrity client.
type AttestationConfig struct {
	Endpoint           string `yaml:"endpoint" validate:"omitempty,url"`
	VerifyEndpoint     string `yaml:"verify_endpoint" validate:"omitempty,url"`
	RatePerMinute      int    `yaml:"rate_per_minute" validate:"gte=-1"`
	CloudProjectNumber int64  `yaml:"cloud_project_number" validate:"gte=0"`
}

// PinSet pins one host pattern.
type PinSet struct {
	Pattern string   `yaml:"pattern" validate:"required"`
	Pins    []string `yaml:"pins" validate:"required,min=1,dive,startswith=sha256/"`
}

// PinningConfig lists certificate pins.
type PinningConfig struct {
	Pins []PinSet `yaml:"pins" validate:"dive"`
}

// ScreenConfig overrides the screen guard default. Nil keeps the build-mode
// default.
type ScreenConfig struct {
	SecureByDefault *bool `yaml:"secure_by_default"`
}

// BiometricConfig configures payment prompts.
type BiometricConfig struct {
	Currency string `yaml:"currency" validate:"omitempty,len=3,uppercase"`
}

// AuditConfig selects audit sinks. Audit events always go to the log.
type AuditConfig struct {
	Syslog bool   `yaml:"syslog"`
	Socket string `yaml:"socket" validate:"required_if=Syslog true"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives a Prometheus text exposition after each
	// command.
	Textfile string `yaml:"textfile"`
}

// DefaultDataDir returns ~/.termguard, or a relative .termguard when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".termguard"
	}
	return filepath.Join(home, ".termguard")
}

// DefaultConfig returns configuration with defaults.
func DefaultConfig() *Config {
	return &Config{
		BuildMode: string(buildmode.Release),
		DataDir:   DefaultDataDir(),
		KeyAlias:  encryption.DefaultKeyAlias,
		Probe: ProbeConfig{
			Timeout:     5 * time.Second,
			Concurrency: 8,
		},
		Attestation: AttestationConfig{RatePerMinute: 6},
		Biometric:   BiometricConfig{Currency: "RWF"},
		Audit:       AuditConfig{Socket: "/dev/log"},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFile merges the YAML file at path over c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies TERMGUARD_* overrides.
func (c *Config) LoadFromEnv() error {
	str := map[string]*string{
		"BUILD_MODE":           &c.BuildMode,
		"DATA_DIR":             &c.DataDir,
		"KEYSTORE_DIR":         &c.KeystoreDir,
		"CREDENTIALS_PATH":     &c.CredentialsPath,
		"SIGNATURES_PATH":      &c.SignaturesPath,
		"SIGNATURES_URL":       &c.SignaturesURL,
		"KEY_ALIAS":            &c.KeyAlias,
		"TERMINAL_ID":          &c.TerminalID,
		"ATTESTATION_ENDPOINT": &c.Attestation.Endpoint,
		"VERIFY_ENDPOINT":      &c.Attestation.VerifyEndpoint,
		"SYSLOG_SOCKET":        &c.Audit.Socket,
		"LOG_LEVEL":            &c.Log.Level,
		"LOG_FORMAT":           &c.Log.Format,
		"METRICS_TEXTFILE":     &c.Metrics.Textfile,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	var errs []error
	if v, ok := os.LookupEnv(EnvPrefix + "STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTRICT: %w", EnvPrefix, err))
		}
		c.StrictMode = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SYSLOG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSYSLOG: %w", EnvPrefix, err))
		}
		c.Audit.Syslog = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ATTESTATION_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sATTESTATION_RATE: %w", EnvPrefix, err))
		}
		c.Attestation.RatePerMinute = n
	}
	return errors.Join(errs...)
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if _, err := buildmode.Parse(c.BuildMode); err != nil {
		return fmt.Errorf("build_mode: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Load runs the full chain: defaults, optional file, environment,
// validation.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Mode returns the parsed build mode. Call after Validate.
func (c *Config) Mode() buildmode.Mode {
	m, _ := buildmode.Parse(c.BuildMode)
	return m
}

// KeystorePath returns the key directory.
func (c *Config) KeystorePath() string {
	if c.KeystoreDir != "" {
		return c.KeystoreDir
	}
	return filepath.Join(c.DataDir, "keys")
}

// CredentialsFile returns the credential store path.
func (c *Config) CredentialsFile() string {
	if c.CredentialsPath != "" {
		return c.CredentialsPath
	}
	return filepath.Join(c.DataDir, "credentials.db")
}

// SignaturesFile returns where an updated signature table is installed.
func (c *Config) SignaturesFile() string {
	if c.SignaturesPath != "" {
		return c.SignaturesPath
	}
	return filepath.Join(c.DataDir, "signatures.yaml")
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required", "required_if":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max", "lte":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s], got %q", field, e.Param(), e.Value())
		case "url":
			return fmt.Errorf("%s: must be a URL", field)
		case "startswith":
			return fmt.Errorf("%s: must start with %s", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
