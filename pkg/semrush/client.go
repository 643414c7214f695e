// Package semrush provides a client for the SEMrush Analytics API, used to
// estimate a merchant site's organic traffic as a sanity check on revenue.
package semrush

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the SEMrush operations.
type Client interface {
	// DomainOverview returns organic search metrics for a domain in the
	// client's default database.
	DomainOverview(ctx context.Context, domain string) (*DomainMetrics, error)
	// DomainRank returns traffic metrics for a domain in a specific regional
	// database.
	DomainRank(ctx context.Context, domain, database string) (*TrafficMetrics, error)
	// TopKeywords returns the best-ranking organic keywords for a domain.
	TopKeywords(ctx context.Context, domain string, limit int) ([]Keyword, error)
}

// DomainMetrics holds the organic metrics of a domain.
type DomainMetrics struct {
	Domain          string
	OrganicKeywords int64
	OrganicTraffic  int64
	OrganicCost     float64
}

// TrafficMetrics holds per-database traffic estimates.
type TrafficMetrics struct {
	Domain         string
	Rank           int64
	OrganicTraffic int64
	AdwordsTraffic int64
}

// Total returns organic plus paid traffic.
func (m *TrafficMetrics) Total() int64 {
	return m.OrganicTraffic + m.AdwordsTraffic
}

// Keyword is one organic keyword ranking.
type Keyword struct {
	Phrase     string
	Position   int64
	Volume     int64
	TrafficPct float64
}

// Option configures the SEMrush client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithDatabase selects the regional database (default "it").
func WithDatabase(db string) Option {
	return func(c *httpClient) { c.database = db }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	database string
	http     *http.Client
}

// NewClient creates a new SEMrush client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  "https://api.semrush.com",
		database: "it",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DomainOverview(ctx context.Context, domain string) (*DomainMetrics, error) {
	q := url.Values{}
	q.Set("type", "domain_ranks")
	q.Set("key", c.apiKey)
	q.Set("domain", domain)
	q.Set("database", c.database)
	q.Set("export_columns", "Dn,Or,Ot,Oc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("semrush: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	// The API answers CSV with a semicolon delimiter: a header line and one
	// data line. Errors come back in-band as "ERROR nn :: message".
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "ERROR") {
		return nil, eris.Errorf("semrush: %s", text)
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, eris.New("semrush: no data for domain")
	}
	fields := strings.Split(strings.TrimSpace(lines[1]), ";")
	if len(fields) < 4 {
		return nil, eris.Errorf("semrush: malformed row %q", lines[1])
	}

	keywords, _ := strconv.ParseInt(fields[1], 10, 64)
	traffic, _ := strconv.ParseInt(fields[2], 10, 64)
	cost, _ := strconv.ParseFloat(fields[3], 64)
	return &DomainMetrics{
		Domain:          fields[0],
		OrganicKeywords: keywords,
		OrganicTraffic:  traffic,
		OrganicCost:     cost,
	}, nil
}

func (c *httpClient) DomainRank(ctx context.Context, domain, database string) (*TrafficMetrics, error) {
	q := url.Values{}
	q.Set("type", "domain_rank")
	q.Set("key", c.apiKey)
	q.Set("domain", domain)
	q.Set("database", database)
	q.Set("export_columns", "Dn,Rk,Or,Ot,Ad,At")

	lines, err := c.csv(ctx, q)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(lines[1]), ";")
	if len(fields) < 6 {
		return nil, eris.Errorf("semrush: malformed row %q", lines[1])
	}

	rank, _ := strconv.ParseInt(fields[1], 10, 64)
	organic, _ := strconv.ParseInt(fields[3], 10, 64)
	adwords, _ := strconv.ParseInt(fields[5], 10, 64)
	return &TrafficMetrics{
		Domain:         fields[0],
		Rank:           rank,
		OrganicTraffic: organic,
		AdwordsTraffic: adwords,
	}, nil
}

func (c *httpClient) TopKeywords(ctx context.Context, domain string, limit int) ([]Keyword, error) {
	q := url.Values{}
	q.Set("type", "domain_organic")
	q.Set("key", c.apiKey)
	q.Set("domain", domain)
	q.Set("database", c.database)
	q.Set("display_limit", strconv.Itoa(limit))
	q.Set("export_columns", "Ph,Po,Nq,Tr")

	lines, err := c.csv(ctx, q)
	if err != nil {
		return nil, err
	}

	keywords := make([]Keyword, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Split(strings.TrimSpace(line), ";")
		if len(fields) < 4 {
			continue
		}
		pos, _ := strconv.ParseInt(fields[1], 10, 64)
		vol, _ := strconv.ParseInt(fields[2], 10, 64)
		pct, _ := strconv.ParseFloat(fields[3], 64)
		keywords = append(keywords, Keyword{
			Phrase:     fields[0],
			Position:   pos,
			Volume:     vol,
			TrafficPct: pct,
		})
	}
	return keywords, nil
}

// csv performs a request and returns the response lines, converting in-band
// "ERROR nn" answers and empty bodies into errors. At least one data line is
// guaranteed on success.
func (c *httpClient) csv(ctx context.Context, q url.Values) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "semrush: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("semrush: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "ERROR") {
		return nil, eris.Errorf("semrush: %s", text)
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, eris.New("semrush: no data for domain")
	}
	return lines, nil
}
