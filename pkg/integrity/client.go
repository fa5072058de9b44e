package integrity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/momoterminal/termguard/internal/metrics"
	"github.com/momoterminal/termguard/pkg/audit"
)

// DefaultRatePerMinute caps token requests issued by one client.
const DefaultRatePerMinute = 6

// Provider is the platform integrity service. Service failures are
// returned as *PlatformError.
type Provider interface {
	RequestToken(ctx context.Context, nonce string) (string, error)
}

// Config configures a Client.
type Config struct {
	Logger  *slog.Logger
	Audit   audit.EventEmitter
	Metrics *metrics.Registry
	// RatePerMinute bounds requests; zero uses DefaultRatePerMinute and a
	// negative value disables the local limit.
	RatePerMinute int
}

// Client requests attestation tokens. It does not retry; retry policy
// belongs to the caller because blind retries trip the service's own
// rate limit.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	logger   *slog.Logger
	audit    audit.EventEmitter
	metrics  *metrics.Registry
}

// NewClient returns a client over p.
func NewClient(p Provider, cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopEmitter{}
	}
	perMinute := cfg.RatePerMinute
	if perMinute == 0 {
		perMinute = DefaultRatePerMinute
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Client{
		provider: p,
		limiter:  limiter,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
}

// RequestIntegrityToken requests a token bound to a server-issued nonce.
// Malformed nonces and locally rate-limited requests fail without
// contacting the service.
func (c *Client) RequestIntegrityToken(ctx context.Context, nonce string) Result {
	res := c.request(ctx, nonce)
	switch res.Kind {
	case KindSuccess:
		c.logger.Info("integrity token issued", "token_len", len(res.Token))
	default:
		c.logger.Warn("integrity token request failed",
			"kind", res.Kind.String(),
			"code", res.Code.String(),
			"category", string(res.Category),
			"error", res.Err,
		)
		c.metrics.RecordIntegrityFailure(string(res.Category))
		audit.Safe(c.audit, c.logger, audit.NewIntegrityFailure(int(res.Code), string(res.Category)))
	}
	return res
}

func (c *Client) request(ctx context.Context, nonce string) Result {
	if code := ValidateNonce(nonce); code != NoError {
		return failure(code, nil)
	}
	if !c.limiter.Allow() {
		return failure(TooManyRequests, errors.New("local request limit reached"))
	}

	token, err := c.provider.RequestToken(ctx, nonce)
	if err != nil {
		var pe *PlatformError
		if errors.As(err, &pe) {
			return failure(pe.Code, err)
		}
		return unexpected(err)
	}
	if token == "" {
		return failure(EmptyToken, nil)
	}
	return success(token)
}
