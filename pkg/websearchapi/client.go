// Package websearchapi provides a client for the websearchapi.ai Google
// search proxy, used as a fallback when Tavily is unavailable or empty.
package websearchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the websearchapi.ai operations.
type Client interface {
	// Search runs a Google search through the proxy.
	Search(ctx context.Context, query string, limit int) (*SearchResponse, error)
}

// SearchResponse is the parsed API response.
type SearchResponse struct {
	Results []Result `json:"results"`
}

// Result is a single organic search result.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new websearchapi client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.websearchapi.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = 5
	}
	payload, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "websearchapi: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ai/google-search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "websearchapi: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "websearchapi: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "websearchapi: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("websearchapi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "websearchapi: unmarshal response")
	}
	return &result, nil
}
