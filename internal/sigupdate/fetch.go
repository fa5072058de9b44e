package sigupdate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/momoterminal/termguard/internal/version"
	"github.com/momoterminal/termguard/pkg/threat"
)

// DefaultTimeout is the HTTP timeout for fetches.
const DefaultTimeout = 10 * time.Second

// maxTableBytes caps a downloaded table.
const maxTableBytes = 1 << 20

// Fetcher downloads signature tables.
type Fetcher struct {
	url        string
	httpClient *http.Client
}

// NewFetcher returns a fetcher for url. A nil client uses DefaultTimeout.
func NewFetcher(url string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{url: url, httpClient: client}
}

// Download is a fetched table.
type Download struct {
	// Raw is the YAML as served, installed byte for byte.
	Raw        []byte
	Signatures *threat.Signatures
	ETag       string
	// NotModified is set when the source answered 304 to etag; Raw and
	// Signatures are then nil.
	NotModified bool
}

// Fetch downloads and validates the table. A non-empty etag makes the
// request conditional.
func (f *Fetcher) Fetch(ctx context.Context, etag string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml")
	req.Header.Set("User-Agent", "termguard/"+version.String())
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching signatures: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		if etag != "" {
			return &Download{ETag: etag, NotModified: true}, nil
		}
		fallthrough
	default:
		return nil, fmt.Errorf("signature source returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTableBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading signatures: %w", err)
	}
	if len(raw) > maxTableBytes {
		return nil, fmt.Errorf("signature table exceeds %d bytes", maxTableBytes)
	}

	s, err := threat.ParseSignatures(raw)
	if err != nil {
		return nil, err
	}
	return &Download{Raw: raw, Signatures: s, ETag: resp.Header.Get("ETag")}, nil
}
