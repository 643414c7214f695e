// Package fetch retrieves pages from registry and merchant sites. Requests
// carry a real browser header profile because most Italian registry sites
// reject default Go user agents outright, and a scripted-browser fallback
// covers the ones that reject plain HTTP entirely.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const maxBodyBytes = 2 * 1024 * 1024

// Renderer renders a URL in a real browser and returns the resulting HTML.
// Used as a fallback when plain HTTP is blocked.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Result is a fetched page.
type Result struct {
	URL        string
	StatusCode int
	Body       string
	Method     string // "http" or "browser"
	Blocked    bool
	BlockType  BlockType
}

// Client fetches pages over HTTP with browser headers, falling back to a
// Renderer on anti-bot blocks when one is configured.
type Client struct {
	http      *http.Client
	renderer  Renderer
	userAgent string
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRenderer sets the scripted-browser fallback.
func WithRenderer(r Renderer) Option {
	return func(c *Client) { c.renderer = r }
}

// WithUserAgent overrides the default user agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client with sensible timeouts and no renderer.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: defaultUserAgent,
		logger:    zap.L(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Get performs a plain HTTP fetch with browser headers and block detection.
// A blocked or 4xx/5xx page is returned as a Result, not an error; errors are
// reserved for transport failures.
func (c *Client) Get(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}

	blocked, blockType := DetectBlock(resp, body)
	return &Result{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Method:     "http",
		Blocked:    blocked,
		BlockType:  blockType,
	}, nil
}

// HTML fetches a page and returns its HTML, transparently escalating to the
// scripted browser when the HTTP fetch is blocked or rejected and a renderer
// is available.
func (c *Client) HTML(ctx context.Context, url string) (*Result, error) {
	res, err := c.Get(ctx, url)
	if err == nil && !res.Blocked && res.StatusCode < 400 {
		return res, nil
	}

	if c.renderer == nil {
		if err != nil {
			return nil, err
		}
		if res.Blocked {
			return res, eris.Errorf("fetch: blocked by %s at %s", res.BlockType, url)
		}
		return res, eris.Errorf("fetch: status %d at %s", res.StatusCode, url)
	}

	if err != nil {
		c.logger.Debug("http fetch failed, trying browser", zap.String("url", url), zap.Error(err))
	} else {
		c.logger.Debug("http fetch rejected, trying browser",
			zap.String("url", url),
			zap.Int("status", res.StatusCode),
			zap.String("block", string(res.BlockType)))
	}

	html, rerr := c.renderer.Render(ctx, url)
	if rerr != nil {
		if err != nil {
			return nil, eris.Wrap(err, "fetch: http and browser both failed")
		}
		return res, eris.Wrap(rerr, "fetch: browser fallback")
	}
	return &Result{
		URL:        url,
		StatusCode: http.StatusOK,
		Body:       html,
		Method:     "browser",
	}, nil
}
