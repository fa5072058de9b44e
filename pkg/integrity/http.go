package integrity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps response bodies read from either endpoint.
const maxResponseBytes = 64 << 10

// HTTPProvider reaches the integrity service over HTTP, for terminals that
// proxy attestation through a sidecar instead of a platform library.
type HTTPProvider struct {
	endpoint           string
	cloudProjectNumber int64
	httpClient         *http.Client
}

// NewHTTPProvider returns a provider posting to endpoint. A nil client uses
// one with DefaultTimeout; pass a pinned client in production.
func NewHTTPProvider(endpoint string, cloudProjectNumber int64, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPProvider{endpoint: endpoint, cloudProjectNumber: cloudProjectNumber, httpClient: client}
}

type tokenRequest struct {
	Nonce              string `json:"nonce"`
	CloudProjectNumber int64  `json:"cloud_project_number,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ErrorCode int    `json:"error_code"`
}

// RequestToken implements Provider.
func (p *HTTPProvider) RequestToken(ctx context.Context, nonce string) (string, error) {
	body, err := json.Marshal(tokenRequest{Nonce: nonce, CloudProjectNumber: p.cloudProjectNumber})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &PlatformError{Code: NetworkError, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &PlatformError{Code: NetworkError, Err: err}
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(respBody, &tr)
	if decodeErr == nil && tr.ErrorCode != 0 {
		return "", &PlatformError{Code: ErrorCode(tr.ErrorCode)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &PlatformError{Code: TooManyRequests}
	case resp.StatusCode >= 500:
		return "", &PlatformError{Code: GoogleServerUnavailable, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", &PlatformError{Code: InternalError, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case decodeErr != nil:
		return "", &PlatformError{Code: InternalError, Err: fmt.Errorf("decoding response: %w", decodeErr)}
	}
	return tr.Token, nil
}

// ErrVerificationRejected is returned by Forward when the backend refuses
// the token.
var ErrVerificationRejected = errors.New("integrity: backend rejected token")

// Verdict is the backend's answer for a forwarded token.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Forwarder posts tokens to the backend verification endpoint. It never
// inspects the token.
type Forwarder struct {
	endpoint   string
	httpClient *http.Client
}

// NewForwarder returns a forwarder posting to endpoint.
func NewForwarder(endpoint string, client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Forwarder{endpoint: endpoint, httpClient: client}
}

type forwardRequest struct {
	Token string `json:"token"`
	Nonce string `json:"nonce"`
}

// Forward sends token with the nonce it was bound to and returns the
// backend verdict. A verdict with Accepted false is returned together with
// ErrVerificationRejected.
func (f *Forwarder) Forward(ctx context.Context, token, nonce string) (*Verdict, error) {
	body, err := json.Marshal(forwardRequest{Token: token, Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forwarding token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification endpoint returned status %d", resp.StatusCode)
	}

	var v Verdict
	if err := json.Unmarshal(respBody, &v); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !v.Accepted {
		return &v, fmt.Errorf("%w: %s", ErrVerificationRejected, v.Reason)
	}
	return &v, nil
}
