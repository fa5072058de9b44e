package integrity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momoterminal/termguard/internal/metrics"
	"github.com/momoterminal/termguard/pkg/audit"
	"github.com/momoterminal/termguard/pkg/buildmode"
)

const goodNonce = "bm9uY2UtZnJvbS1zZXJ2ZXItMTIz" // base64("nonce-from-server-123")

type fakeProvider struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (f *fakeProvider) RequestToken(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.token, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestValidateNonce(t *testing.T) {
	tests := []struct {
		name  string
		nonce string
		want  ErrorCode
	}{
		{"std base64", goodNonce, NoError},
		{"url safe", base64.URLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe, 0x01, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}), NoError},
		{"raw url", base64.RawURLEncoding.EncodeToString([]byte("sixteen byte nonce!")), NoError},
		{"too short", "c2hvcnQ=", NonceTooShort},
		{"empty", "", NonceTooShort},
		{"too long", strings.Repeat("A", MaxNonceLength+4), NonceTooLong},
		{"max length", strings.Repeat("A", MaxNonceLength), NoError},
		{"not base64", "this is not base64 at all!", NonceIsNotBase64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateNonce(tt.nonce))
		})
	}
}

func TestRequestIntegrityToken_Success(t *testing.T) {
	p := &fakeProvider{token: "opaque.jws.token"}
	res := NewClient(p, Config{}).RequestIntegrityToken(context.Background(), goodNonce)

	assert.True(t, res.OK())
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, "opaque.jws.token", res.Token)
	assert.Equal(t, 1, p.calls)
}

func TestRequestIntegrityToken_BadNonceSkipsProvider(t *testing.T) {
	p := &fakeProvider{token: "t"}
	res := NewClient(p, Config{}).RequestIntegrityToken(context.Background(), "short")

	assert.Equal(t, KindFailure, res.Kind)
	assert.Equal(t, NonceTooShort, res.Code)
	assert.Equal(t, CategoryNonce, res.Category)
	assert.False(t, res.Retryable())
	assert.Zero(t, p.calls)
}

func TestRequestIntegrityToken_PlatformCodes(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  Category
		retryable bool
	}{
		{NetworkError, CategoryRetryable, true},
		{GoogleServerUnavailable, CategoryRetryable, true},
		{CannotBindToService, CategoryRetryable, true},
		{ClientTransientError, CategoryRetryable, true},
		{TooManyRequests, CategoryRateLimited, true},
		{PlayStoreNotFound, CategoryConfiguration, false},
		{PlayServicesVersionOutdated, CategoryConfiguration, false},
		{CloudProjectNumberIsInvalid, CategoryConfiguration, false},
		{APINotAvailable, CategoryConfiguration, false},
		{NonceIsNotBase64, CategoryNonce, false},
		{InternalError, CategoryInternal, false},
		{ErrorCode(-999), CategoryInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			p := &fakeProvider{err: &PlatformError{Code: tt.code}}
			res := NewClient(p, Config{RatePerMinute: -1}).RequestIntegrityToken(context.Background(), goodNonce)

			assert.Equal(t, KindFailure, res.Kind)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.retryable, res.Retryable())
			assert.NotEmpty(t, res.Message)
			assert.NotContains(t, res.Message, "-", "messages must not expose raw codes")
		})
	}
}

func TestRequestIntegrityToken_EmptyToken(t *testing.T) {
	res := NewClient(&fakeProvider{}, Config{}).RequestIntegrityToken(context.Background(), goodNonce)
	assert.Equal(t, KindFailure, res.Kind)
	assert.Equal(t, EmptyToken, res.Code)
	assert.Equal(t, "EMPTY_TOKEN", res.Code.String())
}

func TestRequestIntegrityToken_UnexpectedError(t *testing.T) {
	res := NewClient(&fakeProvider{err: context.Canceled}, Config{}).RequestIntegrityToken(context.Background(), goodNonce)
	assert.Equal(t, KindError, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, res.Retryable())
}

func TestRequestIntegrityToken_LocalRateLimit(t *testing.T) {
	p := &fakeProvider{token: "t"}
	c := NewClient(p, Config{RatePerMinute: 2})

	assert.True(t, c.RequestIntegrityToken(context.Background(), goodNonce).OK())
	assert.True(t, c.RequestIntegrityToken(context.Background(), goodNonce).OK())
	res := c.RequestIntegrityToken(context.Background(), goodNonce)

	assert.Equal(t, TooManyRequests, res.Code)
	assert.Equal(t, CategoryRateLimited, res.Category)
	assert.Equal(t, 2, p.calls, "limited request must not reach the provider")
}

func TestRequestIntegrityToken_AuditAndMetrics(t *testing.T) {
	em := &recordingEmitter{}
	reg := metrics.NewRegistry()
	c := NewClient(&fakeProvider{err: &PlatformError{Code: NetworkError}}, Config{Audit: em, Metrics: reg})

	c.RequestIntegrityToken(context.Background(), goodNonce)

	require.Len(t, em.events, 1)
	assert.Equal(t, audit.EventIntegrityFailure, em.events[0].Type)
	assert.Equal(t, "-3", em.events[0].Details["code"])
	assert.Equal(t, "retryable", em.events[0].Details["category"])
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.IntegrityFailuresTotal.WithLabelValues("retryable")))
}

func TestPlatformError(t *testing.T) {
	err := fmtWrap(&PlatformError{Code: TooManyRequests})
	assert.Equal(t, TooManyRequests, CodeOf(err))
	assert.True(t, errors.Is(err, &PlatformError{Code: TooManyRequests}))
	assert.False(t, errors.Is(err, &PlatformError{Code: NetworkError}))
	assert.Equal(t, NoError, CodeOf(errors.New("plain")))
	assert.Equal(t, "UNKNOWN_-42", ErrorCode(-42).String())
}

func fmtWrap(err error) error { return errors.Join(errors.New("context"), err) }

func TestInsecureDevelopmentNonce(t *testing.T) {
	_, err := InsecureDevelopmentNonce(buildmode.Release)
	assert.ErrorIs(t, err, ErrDevelopmentOnly)

	n, err := InsecureDevelopmentNonce(buildmode.Development)
	require.NoError(t, err)
	assert.Equal(t, NoError, ValidateNonce(n))

	n2, err := InsecureDevelopmentNonce(buildmode.Development)
	require.NoError(t, err)
	assert.NotEqual(t, n, n2)
}

func TestHTTPProvider(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantCode ErrorCode
	}{
		{"token", http.StatusOK, `{"token":"abc"}`, "abc", NoError},
		{"error code in body", http.StatusBadRequest, `{"error_code":-13}`, "", NonceIsNotBase64},
		{"error code on 200", http.StatusOK, `{"error_code":-9}`, "", CannotBindToService},
		{"rate limited", http.StatusTooManyRequests, ``, "", TooManyRequests},
		{"server down", http.StatusBadGateway, `oops`, "", GoogleServerUnavailable},
		{"bad json", http.StatusOK, `{`, "", InternalError},
		{"forbidden", http.StatusForbidden, `{}`, "", InternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received := make(chan tokenRequest, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req tokenRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				received <- req
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			token, err := NewHTTPProvider(srv.URL, 1234, srv.Client()).RequestToken(context.Background(), goodNonce)
			assert.Equal(t, tt.want, token)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			got := <-received
			assert.Equal(t, goodNonce, got.Nonce)
			assert.Equal(t, int64(1234), got.CloudProjectNumber)
		})
	}
}

func TestHTTPProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProvider(url, 0, nil).RequestToken(context.Background(), goodNonce)
	assert.Equal(t, NetworkError, CodeOf(err))
}

func TestForwarder(t *testing.T) {
	var accept atomic.Bool
	accept.Store(true)
	received := make(chan forwardRequest, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req forwardRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		received <- req
		_ = json.NewEncoder(w).Encode(Verdict{Accepted: accept.Load(), Reason: "device integrity not met"})
	}))
	defer srv.Close()
	f := NewForwarder(srv.URL, srv.Client())

	v, err := f.Forward(context.Background(), "opaque.token", goodNonce)
	require.NoError(t, err)
	assert.True(t, v.Accepted)
	got := <-received
	assert.Equal(t, "opaque.token", got.Token)
	assert.Equal(t, goodNonce, got.Nonce)

	accept.Store(false)
	v, err = f.Forward(context.Background(), "opaque.token", goodNonce)
	assert.ErrorIs(t, err, ErrVerificationRejected)
	require.NotNil(t, v)
	assert.False(t, v.Accepted)
}

func TestForwarder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewForwarder(srv.URL, nil).Forward(context.Background(), "t", goodNonce)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
