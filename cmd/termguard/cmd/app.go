package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/momoterminal/termguard/internal/config"
	"github.com/momoterminal/termguard/internal/metrics"
	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/authz"
	"github.com/momoterminal/termguard/pkg/buildmode"
	"github.com/momoterminal/termguard/pkg/credentials"
	"github.com/momoterminal/termguard/pkg/encryption"
	"github.com/momoterminal/termguard/pkg/hardening"
	"github.com/momoterminal/termguard/pkg/keystore"
	"github.com/momoterminal/termguard/pkg/policy"
	"github.com/momoterminal/termguard/pkg/threat"
)

// newDevice returns the platform the threat engine inspects. Tests replace it.
var newDevice = func() threat.Device { return threat.ShellDevice{} }

// app holds the components one command invocation needs. Components that
// touch disk are opened on first use.
type app struct {
	cfg     *config.Config
	mode    buildmode.Mode
	logger  *slog.Logger
	audit   audit.EventEmitter
	metrics *metrics.Registry
	status  *policy.StatusHandle
	syslog  *audit.SyslogEmitter
	// stderr is shared by the logger and interactive prompts.
	stderr *lockedWriter

	keys   *keystore.FileProvider
	store  *credentials.Store
	orch   *policy.Orchestrator
	gate   *authz.Authorizer
	pinner *hardening.CertificatePinner
}

func newApp(cfg *config.Config, errOut io.Writer) (*app, error) {
	logOut := &lockedWriter{w: errOut}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(logOut, opts)
	} else {
		handler = slog.NewTextHandler(logOut, opts)
	}
	logger := slog.New(handler)

	a := &app{
		cfg:     cfg,
		stderr:  logOut,
		mode:    cfg.Mode(),
		logger:  logger,
		metrics: metrics.NewRegistry(),
		status:  policy.NewStatusHandle(),
	}

	emitters := audit.MultiEmitter{audit.NewSlogEmitter(logger)}
	if cfg.Audit.Syslog {
		s, err := audit.NewSyslogEmitter(audit.SyslogConfig{SocketPath: cfg.Audit.Socket})
		if err != nil {
			logger.Warn("syslog audit disabled", "error", err)
		} else {
			a.syslog = s
			emitters = append(emitters, s)
		}
	}
	a.audit = emitters
	return a, nil
}

// Close releases open resources and exports metrics.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close credential store", "error", err)
		}
	}
	if a.syslog != nil {
		a.syslog.Close()
	}
	if a.cfg.Metrics.Textfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
		}
	}
}

func (a *app) keystore() (*keystore.FileProvider, error) {
	if a.keys == nil {
		p, err := keystore.NewFileProvider(a.cfg.KeystorePath())
		if err != nil {
			return nil, err
		}
		a.keys = p
	}
	return a.keys, nil
}

func (a *app) engine() (*encryption.Engine, error) {
	keys, err := a.keystore()
	if err != nil {
		return nil, err
	}
	return encryption.NewEngine(keys,
		encryption.WithLogger(a.logger),
		encryption.WithAudit(a.audit),
		encryption.WithMetrics(a.metrics),
	), nil
}

func (a *app) credentials() (*credentials.Store, error) {
	if a.store == nil {
		keys, err := a.keystore()
		if err != nil {
			return nil, err
		}
		s, err := credentials.Open(a.cfg.CredentialsFile(), keys, credentials.Options{
			Logger: a.logger,
			Audit:  a.audit,
		})
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a.store, nil
}

func (a *app) orchestrator() (*policy.Orchestrator, error) {
	if a.orch != nil {
		return a.orch, nil
	}
	opts := []threat.Option{
		threat.WithLogger(a.logger),
		threat.WithMetrics(a.metrics),
	}
	if a.cfg.Probe.Timeout > 0 {
		opts = append(opts, threat.WithProbeTimeout(a.cfg.Probe.Timeout))
	}
	if a.cfg.Probe.Concurrency > 0 {
		opts = append(opts, threat.WithConcurrency(a.cfg.Probe.Concurrency))
	}
	eng := threat.NewEngine(newDevice(), opts...)
	path := a.cfg.SignaturesFile()
	sig, err := threat.LoadSignatures(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && a.cfg.SignaturesPath == "":
		// nothing installed by signatures update yet
	case err != nil:
		return nil, err
	default:
		if err := eng.UpdateSignatures(sig); err != nil {
			if !errors.Is(err, threat.ErrStaleSignatures) {
				return nil, err
			}
			a.logger.Warn("ignoring stale signature table", "path", path, "error", err)
		}
	}
	a.orch = policy.NewOrchestrator(eng, policy.Config{
		Mode:    a.mode,
		Logger:  a.logger,
		Audit:   a.audit,
		Metrics: a.metrics,
		Status:  a.status,
	})
	return a.orch, nil
}

func (a *app) authorizer() (*authz.Authorizer, error) {
	if a.gate == nil {
		g, err := authz.NewAuthorizer(authz.Config{
			Logger:     a.logger,
			Audit:      a.audit,
			Status:     a.status,
			TerminalID: a.cfg.TerminalID,
		})
		if err != nil {
			return nil, err
		}
		a.gate = g
	}
	return a.gate, nil
}

// initialize runs the security checks under the configured strictness and
// publishes the verdict to the gate.
func (a *app) initialize(ctx context.Context) (policy.InitializationResult, error) {
	orch, err := a.orchestrator()
	if err != nil {
		return policy.InitializationResult{}, err
	}
	return orch.Initialize(ctx, a.cfg.StrictMode), nil
}

// require verifies the device and gates action on the fresh verdict.
func (a *app) require(ctx context.Context, action string, biometricVerified bool) error {
	if _, ok := a.status.Last(); !ok {
		if _, err := a.initialize(ctx); err != nil {
			return err
		}
	}
	gate, err := a.authorizer()
	if err != nil {
		return err
	}
	return gate.Require(ctx, action, biometricVerified)
}

func (a *app) certificatePinner() (*hardening.CertificatePinner, error) {
	if a.pinner == nil {
		p := hardening.NewCertificatePinner(a.mode, a.logger)
		for _, set := range a.cfg.Pinning.Pins {
			if err := p.Add(set.Pattern, set.Pins...); err != nil {
				return nil, err
			}
		}
		a.pinner = p
	}
	return a.pinner, nil
}
