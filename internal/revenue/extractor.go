package revenue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/identity"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/money"
	"github.com/growthops/deal-qualifier/internal/search"
)

// Extractor locates a company's detail page on one external data source and
// extracts a revenue candidate. Extractors never fail hard: any error becomes
// an N/D candidate with the reason in the diagnostic.
type Extractor interface {
	Name() string
	// Domestic reports whether the source only indexes Italian companies.
	Domestic() bool
	Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate
}

// Deps carries the shared collaborators every extractor needs.
type Deps struct {
	Fetcher  *fetch.Client
	Searcher *search.Chain
	LLM      *LLMExtractor
}

// directProbeMinBytes guards against thin error pages and soft redirects to
// the homepage: a real detail page is never this small.
const directProbeMinBytes = 5000

// probeDirect tries deterministic URLs in order and returns the first that
// answers 200 with a plausibly-sized body mentioning the VAT or the company
// name. The content check catches silent redirect-to-homepage responses.
func probeDirect(ctx context.Context, fetcher *fetch.Client, urls []string, vatNumber, companyName string) (string, string, bool) {
	nameLower := strings.ToLower(companyName)
	for _, u := range urls {
		res, err := fetcher.Get(ctx, u)
		if err != nil || res.Blocked || res.StatusCode != 200 || len(res.Body) < directProbeMinBytes {
			continue
		}
		if (vatNumber != "" && strings.Contains(res.Body, vatNumber)) ||
			(nameLower != "" && strings.Contains(strings.ToLower(res.Body), nameLower)) {
			zap.L().Debug("direct probe succeeded", zap.String("url", u))
			return u, res.Body, true
		}
	}
	return "", "", false
}

// findSourcePage runs a domain-scoped search and returns the first acceptable
// result URL.
func findSourcePage(ctx context.Context, searcher *search.Chain, companyName, vat, domain string, accept func(url string) bool) (string, error) {
	query := fmt.Sprintf("%s fatturato site:%s", companyName, domain)
	if vat != "" && vat != "N/A" {
		query = fmt.Sprintf("%s %s site:%s", companyName, vat, domain)
	}
	hits, err := searcher.Search(ctx, query, 5)
	if err != nil {
		return "", err
	}
	if accept == nil {
		h, ok := search.FirstFromDomain(hits, domain)
		if !ok {
			return "", nil
		}
		return h.URL, nil
	}
	for _, h := range hits {
		if strings.Contains(h.URL, domain) && accept(h.URL) {
			return h.URL, nil
		}
	}
	return "", nil
}

// finishCandidate validates page identity, fills auxiliary facts and composes
// the shared tail of every extractor's diagnostic.
func finishCandidate(c *model.RevenueCandidate, companyName, vat, html, pageURL, sourceLabel string) {
	c.Value = money.Parse(c.RawValue)
	c.FiscalYear = orNA(FiscalYear(html))
	if c.ProfitLoss == "" {
		c.ProfitLoss = orNA(ProfitLoss(html))
	}
	if c.Employees == "" {
		c.Employees = orNA(Employees(html))
	}

	ok, note := identity.Validate(companyName, vat, html)
	c.Validated = c.Validated || ok
	c.Diagnostic = fmt.Sprintf("revenue found on %s (%s) (%s)", sourceLabel, pageURL, note)
	if !ok && !c.Validated {
		zap.L().Warn("revenue found but identity not verified",
			zap.String("source", sourceLabel),
			zap.String("company", companyName))
	}
}

func orNA(s string) string {
	if s == "" {
		return model.NotAvailable
	}
	return s
}

// emptyCandidate returns the N/D sentinel candidate for a source.
func emptyCandidate(source, diagnostic string) model.RevenueCandidate {
	return model.RevenueCandidate{
		Source:     source,
		RawValue:   model.NotAvailable,
		Confidence: model.ConfidenceUnknown,
		FiscalYear: model.NotAvailable,
		ProfitLoss: model.NotAvailable,
		Employees:  model.NotAvailable,
		Diagnostic: diagnostic,
	}
}
