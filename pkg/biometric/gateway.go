package biometric

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/momoterminal/termguard/pkg/audit"
)

// DefaultCurrency labels payment amounts.
const DefaultCurrency = "RWF"

// streamCapacity bounds queued results per session. One slot is always
// kept free for the terminal result.
const streamCapacity = 4

// Config configures a Gateway.
type Config struct {
	Logger   *slog.Logger
	Audit    audit.EventEmitter
	Currency string
}

// Gateway runs authentication sessions against a Prompter.
type Gateway struct {
	prompter Prompter
	logger   *slog.Logger
	audit    audit.EventEmitter
	currency string
	printer  *message.Printer
}

// NewGateway returns a gateway over p.
func NewGateway(p Prompter, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopEmitter{}
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	return &Gateway{
		prompter: p,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		currency: cfg.Currency,
		printer:  message.NewPrinter(language.English),
	}
}

// PaymentPrompt builds the fixed payment confirmation prompt.
func (g *Gateway) PaymentPrompt(amount int64, recipient string) PromptInfo {
	return PromptInfo{
		Title:                 "Confirm Payment",
		Subtitle:              g.printer.Sprintf("Pay %d %s to %s", amount, g.currency, recipient),
		Description:           "Authenticate to authorize this transaction",
		NegativeButtonText:    "Cancel",
		AllowDeviceCredential: true,
	}
}

// AuthenticateForPayment runs Authenticate with the payment prompt.
func (g *Gateway) AuthenticateForPayment(ctx context.Context, amount int64, recipient string) <-chan Result {
	return g.Authenticate(ctx, g.PaymentPrompt(amount, recipient))
}

// Authenticate shows a prompt and streams its results. The channel has a
// single consumer and is closed after the first terminal result. When
// authentication cannot be offered the terminal result is sent without
// showing a prompt. Cancelling ctx dismisses the prompt and ends the
// stream with Cancelled.
//
// Failed results are dropped if the consumer falls behind; the terminal
// result never is.
func (g *Gateway) Authenticate(ctx context.Context, info PromptInfo) <-chan Result {
	out := make(chan Result, streamCapacity)

	if err := info.validate(); err != nil {
		g.finish(out, Result{Kind: Error, Message: err.Error()})
		return out
	}
	if r, stop := g.prompter.Availability(info.AllowDeviceCredential).shortCircuit(); stop {
		g.finish(out, r)
		return out
	}
	if ctx.Err() != nil {
		g.finish(out, Result{Kind: Cancelled, Message: "authentication cancelled"})
		return out
	}

	s := newSession()
	cancel, err := g.prompter.Show(ctx, info, s.callbacks())
	if err != nil {
		g.finish(out, Result{Kind: Error, Message: err.Error()})
		return out
	}

	go func() {
		for {
			select {
			case <-s.failed:
				g.forwardFailed(out)
			case r := <-s.done:
				// attempts reported before the terminal callback go first
				for len(s.failed) > 0 {
					<-s.failed
					g.forwardFailed(out)
				}
				g.finish(out, r)
				return
			case <-ctx.Done():
				s.close()
				if cancel != nil {
					cancel()
				}
				g.finish(out, Result{Kind: Cancelled, Code: ErrorCanceled, Message: "authentication cancelled"})
				return
			}
		}
	}()
	return out
}

func (g *Gateway) forwardFailed(out chan<- Result) {
	if len(out) < cap(out)-1 {
		out <- Result{Kind: Failed}
		return
	}
	g.logger.Debug("biometric consumer behind, dropping failed attempt")
}

// finish audits the terminal result, then sends it and closes the stream.
func (g *Gateway) finish(out chan<- Result, r Result) {
	defer close(out)
	if r.Kind == Success {
		g.logger.Info("biometric authentication succeeded")
	} else {
		g.logger.Info("biometric authentication ended", "result", r.Kind.String(), "code", r.Code)
	}
	audit.Safe(g.audit, g.logger, audit.NewBiometricResult(r.Kind.String(), r.Code))
	out <- r
}

// session adapts platform callbacks to channels. Callbacks after the first
// terminal one are ignored.
type session struct {
	failed chan struct{}
	done   chan Result
	ended  atomic.Bool
	once   sync.Once
}

func newSession() *session {
	return &session{
		failed: make(chan struct{}, streamCapacity),
		done:   make(chan Result, 1),
	}
}

func (s *session) close() { s.ended.Store(true) }

func (s *session) terminal(r Result) {
	s.once.Do(func() {
		s.ended.Store(true)
		s.done <- r
	})
}

func (s *session) callbacks() Callbacks {
	return Callbacks{
		OnSucceeded: func() { s.terminal(Result{Kind: Success}) },
		OnFailed: func() {
			if s.ended.Load() {
				return
			}
			select {
			case s.failed <- struct{}{}:
			default:
			}
		},
		OnError: func(code int, msg string) { s.terminal(fromPlatformError(code, msg)) },
	}
}
