package mockhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Endpoint paths served by the backend.
const (
	TokenPath  = "/token"
	VerifyPath = "/verify"
)

// Builder configures a Backend.
type Builder struct {
	token        string
	tokenCode    int
	tokenStatus  int
	accepted     bool
	reason       string
	verifyStatus int
	useTLS       bool
}

// New returns a builder whose backend issues "test-token" and accepts it.
func New() *Builder {
	return &Builder{
		token:        "test-token",
		tokenStatus:  http.StatusOK,
		accepted:     true,
		verifyStatus: http.StatusOK,
	}
}

// Token sets the issued token.
func (b *Builder) Token(token string) *Builder {
	b.token = token
	return b
}

// TokenError makes the token endpoint answer with a platform error code.
func (b *Builder) TokenError(code int) *Builder {
	b.tokenCode = code
	return b
}

// TokenStatus sets the token endpoint's HTTP status.
func (b *Builder) TokenStatus(code int) *Builder {
	b.tokenStatus = code
	return b
}

// Verdict sets the verification answer.
func (b *Builder) Verdict(accepted bool, reason string) *Builder {
	b.accepted = accepted
	b.reason = reason
	return b
}

// VerifyStatus sets the verification endpoint's HTTP status.
func (b *Builder) VerifyStatus(code int) *Builder {
	b.verifyStatus = code
	return b
}

// TLS serves over TLS with a self-signed certificate.
func (b *Builder) TLS() *Builder {
	b.useTLS = true
	return b
}

// Build starts the backend. It is closed when the test ends.
func (b *Builder) Build(t *testing.T) *Backend {
	t.Helper()
	be := &Backend{requests: make(map[string][]CapturedRequest)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, func(w http.ResponseWriter, r *http.Request) {
		be.record(r)
		if b.tokenCode != 0 {
			writeJSON(w, http.StatusOK, map[string]int{"error_code": b.tokenCode})
			return
		}
		if b.tokenStatus != http.StatusOK {
			w.WriteHeader(b.tokenStatus)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": b.token})
	})
	mux.HandleFunc("POST "+VerifyPath, func(w http.ResponseWriter, r *http.Request) {
		be.record(r)
		if b.verifyStatus != http.StatusOK {
			w.WriteHeader(b.verifyStatus)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accepted": b.accepted, "reason": b.reason})
	})

	if b.useTLS {
		be.Server = httptest.NewTLSServer(mux)
	} else {
		be.Server = httptest.NewServer(mux)
	}
	t.Cleanup(be.Close)
	return be
}

// Backend is a running fake backend.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string][]CapturedRequest
}

// CapturedRequest holds data from a captured HTTP request.
type CapturedRequest struct {
	Header http.Header
	Body   []byte
}

// Decode unmarshals the captured body into v.
func (c CapturedRequest) Decode(v any) error {
	return json.Unmarshal(c.Body, v)
}

// TokenURL returns the token endpoint URL.
func (be *Backend) TokenURL() string { return be.URL + TokenPath }

// VerifyURL returns the verification endpoint URL.
func (be *Backend) VerifyURL() string { return be.URL + VerifyPath }

// Requests returns the requests received on path, oldest first.
func (be *Backend) Requests(path string) []CapturedRequest {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]CapturedRequest(nil), be.requests[path]...)
}

func (be *Backend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	be.mu.Lock()
	defer be.mu.Unlock()
	be.requests[r.URL.Path] = append(be.requests[r.URL.Path], CapturedRequest{
		Header: r.Header.Clone(),
		Body:   body,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
