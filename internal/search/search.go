// Package search locates registry profile pages for a company. Providers are
// tried in order until one returns results; every query goes through a shared
// rate limiter so bursts of deals don't burn the API quotas.
package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/growthops/deal-qualifier/pkg/tavily"
	"github.com/growthops/deal-qualifier/pkg/websearchapi"
)

// Hit is a single search result, provider-agnostic.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher answers a query with ranked hits.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Chain tries each provider in order, returning the first non-empty answer.
type Chain struct {
	providers []Searcher
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewChain builds a provider chain. A nil limiter means unthrottled.
func NewChain(limiter *rate.Limiter, providers ...Searcher) *Chain {
	return &Chain{
		providers: providers,
		limiter:   limiter,
		logger:    zap.L(),
	}
}

// Search runs the query through the chain.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if len(c.providers) == 0 {
		return nil, eris.New("search: no providers configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: rate limit wait")
		}
	}

	var lastErr error
	for _, p := range c.providers {
		hits, err := p.Search(ctx, query, limit)
		if err != nil {
			c.logger.Warn("search provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err))
			lastErr = err
			continue
		}
		if len(hits) > 0 {
			return hits, nil
		}
		c.logger.Debug("search provider empty",
			zap.String("provider", p.Name()),
			zap.String("query", query))
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "search: all providers failed")
	}
	return nil, nil
}

// TavilySearcher adapts the Tavily client to the Searcher interface.
type TavilySearcher struct {
	client tavily.Client
}

// NewTavilySearcher wraps a Tavily client.
func NewTavilySearcher(c tavily.Client) *TavilySearcher {
	return &TavilySearcher{client: c}
}

func (s *TavilySearcher) Name() string { return "tavily" }

func (s *TavilySearcher) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	resp, err := s.client.Search(ctx, query, tavily.WithMaxResults(limit))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return hits, nil
}

// WebSearchAPISearcher adapts the websearchapi client to the Searcher interface.
type WebSearchAPISearcher struct {
	client websearchapi.Client
}

// NewWebSearchAPISearcher wraps a websearchapi client.
func NewWebSearchAPISearcher(c websearchapi.Client) *WebSearchAPISearcher {
	return &WebSearchAPISearcher{client: c}
}

func (s *WebSearchAPISearcher) Name() string { return "websearchapi" }

func (s *WebSearchAPISearcher) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	resp, err := s.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, Hit{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return hits, nil
}

// FirstFromDomain returns the first hit whose URL contains the given domain.
func FirstFromDomain(hits []Hit, domain string) (Hit, bool) {
	if domain == "" {
		return Hit{}, false
	}
	for _, h := range hits {
		if strings.Contains(h.URL, domain) {
			return h, true
		}
	}
	return Hit{}, false
}
