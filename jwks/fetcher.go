package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxDocumentSize bounds the JWKS response body we are willing to read.
const maxDocumentSize = 1 << 20

// Fetcher retrieves the provider's current key set.
type Fetcher interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

// HTTPFetcher fetches a JWKS document from a well-known URL
type HTTPFetcher struct {
	url        string
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher for the given JWKS URL. A nil client gets a
// default client with a 10 second timeout.
func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		url:        url,
		httpClient: client,
	}
}

// URL returns the JWKS endpoint this fetcher reads from
func (f *HTTPFetcher) URL() string {
	return f.url
}

// Fetch downloads and parses the key set.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks request failed: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read jwks response: %w", err)
	}

	return ParseKeySet(body)
}
