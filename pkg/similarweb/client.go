// Package similarweb provides a client for the Similarweb REST API, used as
// the fallback traffic source when SEMrush has no data.
package similarweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Similarweb operations.
type Client interface {
	// Visits returns estimated monthly visits for a domain.
	Visits(ctx context.Context, domain string) (*VisitsResponse, error)
	// VisitsRange returns the monthly visit series over a date range,
	// optionally filtered to one country (ISO code, "" for worldwide).
	VisitsRange(ctx context.Context, domain, country, startDate, endDate string) (*VisitsResponse, error)
	// GeneralData returns the site overview: category, engagement, traffic
	// sources and top countries.
	GeneralData(ctx context.Context, domain string) (*SiteOverview, error)
	// SimilarSites returns competitor sites ranked by similarity score.
	SimilarSites(ctx context.Context, domain string) ([]SimilarSite, error)
}

// VisitsResponse is the parsed visits series.
type VisitsResponse struct {
	Meta   Meta         `json:"meta"`
	Visits []VisitPoint `json:"visits"`
}

// Meta echoes the request parameters.
type Meta struct {
	Status string `json:"status"`
}

// VisitPoint is one month of estimated visits.
type VisitPoint struct {
	Date   string  `json:"date"`
	Visits float64 `json:"visits"`
}

// Latest returns the most recent month's visits, 0 when the series is empty.
func (r *VisitsResponse) Latest() float64 {
	if len(r.Visits) == 0 {
		return 0
	}
	return r.Visits[len(r.Visits)-1].Visits
}

// Total sums the series.
func (r *VisitsResponse) Total() float64 {
	var sum float64
	for _, p := range r.Visits {
		sum += p.Visits
	}
	return sum
}

// MonthlyAverage is the mean monthly visits over the series.
func (r *VisitsResponse) MonthlyAverage() float64 {
	if len(r.Visits) == 0 {
		return 0
	}
	return r.Total() / float64(len(r.Visits))
}

// SiteOverview is the general-data answer. The engagement key keeps the
// API's own misspelling.
type SiteOverview struct {
	Category         string             `json:"category"`
	Engagements      Engagements        `json:"engagments"`
	TrafficSources   map[string]float64 `json:"traffic_sources"`
	TopCountryShares []CountryShare     `json:"top_country_shares"`
}

// Engagements holds the site engagement snapshot.
type Engagements struct {
	Visits        float64 `json:"visits"`
	TimeOnSite    float64 `json:"time_on_site"`
	PagesPerVisit float64 `json:"pages_per_visit"`
	BounceRate    float64 `json:"bounce_rate"`
}

// CountryShare is one country's share of traffic.
type CountryShare struct {
	Country string  `json:"country"`
	Share   float64 `json:"share"`
}

// SimilarSite is one competitor site.
type SimilarSite struct {
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Option configures the Similarweb client.
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

// NewClient creates a new Similarweb client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.similarweb.com/v1",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Visits(ctx context.Context, domain string) (*VisitsResponse, error) {
	reqURL := fmt.Sprintf("%s/website/%s/total-traffic-and-engagement/visits?api_key=%s&granularity=monthly&main_domain_only=true",
		c.baseURL, domain, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "similarweb: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "similarweb: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "similarweb: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("similarweb: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result VisitsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "similarweb: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) VisitsRange(ctx context.Context, domain, country, startDate, endDate string) (*VisitsResponse, error) {
	reqURL := fmt.Sprintf("%s/website/%s/total-traffic-and-engagement/visits?api_key=%s&granularity=monthly&main_domain_only=false&format=json&start_date=%s&end_date=%s",
		c.baseURL, domain, c.apiKey, startDate, endDate)
	if country != "" {
		reqURL += "&country=" + country
	}

	var result VisitsResponse
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GeneralData(ctx context.Context, domain string) (*SiteOverview, error) {
	reqURL := fmt.Sprintf("%s/website/%s/general-data/all?api_key=%s&format=json",
		c.baseURL, domain, c.apiKey)

	var result SiteOverview
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) SimilarSites(ctx context.Context, domain string) ([]SimilarSite, error) {
	reqURL := fmt.Sprintf("%s/website/%s/similar-sites/similarsites?api_key=%s&format=json",
		c.baseURL, domain, c.apiKey)

	var result struct {
		SimilarSites []SimilarSite `json:"similar_sites"`
	}
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	return result.SimilarSites, nil
}

func (c *httpClient) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "similarweb: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "similarweb: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "similarweb: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("similarweb: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "similarweb: unmarshal response")
	}
	return nil
}
