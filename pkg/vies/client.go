// Package vies provides a client for the European Commission VIES VAT
// validation REST API. A valid lookup yields the registered legal name and
// address, which anchor all later identity checks.
package vies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the VIES operations.
type Client interface {
	// Check validates a VAT number against the member-state registry.
	Check(ctx context.Context, countryCode, vatNumber string) (*CheckResponse, error)
}

// CheckResponse is the parsed VIES response.
type CheckResponse struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
	Valid       bool   `json:"isValid"`
	RequestDate string `json:"requestDate"`
	Name        string `json:"name"`
	Address     string `json:"address"`
}

// LegalName returns the registered name, cleaned of the "---" placeholder
// some member states return.
func (r *CheckResponse) LegalName() string {
	name := strings.TrimSpace(r.Name)
	if name == "---" {
		return ""
	}
	return name
}

// Option configures the VIES client.
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
	baseURL string
	http    *http.Client
}

// NewClient creates a new VIES client. The service needs no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://ec.europa.eu/taxation_customs/vies/rest-api",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Check(ctx context.Context, countryCode, vatNumber string) (*CheckResponse, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	vatNumber = strings.TrimSpace(vatNumber)
	if countryCode == "" || vatNumber == "" {
		return nil, eris.New("vies: country code and VAT number are required")
	}

	reqURL := fmt.Sprintf("%s/ms/%s/vat/%s", c.baseURL, countryCode, vatNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "vies: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "vies: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "vies: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("vies: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result CheckResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "vies: unmarshal response")
	}
	return &result, nil
}
