package revenue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/identity"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/search"
)

// reportAziende probes the VAT-keyed detail URL first and falls back to a
// domain-scoped search. Its figures come from older filed statements, so the
// label patterns get medium confidence rather than high.
type reportAziende struct {
	fetcher  *fetch.Client
	searcher *search.Chain
	baseURL  string
}

// NewReportAziende builds the reportaziende.it extractor.
func NewReportAziende(deps Deps) Extractor {
	return &reportAziende{
		fetcher:  deps.Fetcher,
		searcher: deps.Searcher,
		baseURL:  "https://www.reportaziende.it",
	}
}

func (r *reportAziende) Name() string   { return "reportaziende.it" }
func (r *reportAziende) Domestic() bool { return true }

var rpStrategies = []Strategy{
	NewPatternStrategy("label_year_value",
		`(?i)Fatturato(?:\s+anno)?\s*\d{0,4}[:\s]*€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)`,
		model.ConfidenceMedium),
	NewPatternStrategy("label_value",
		`(?i)(?:Fatturato|Ricavi)[:\s]+€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*€?`,
		model.ConfidenceMedium),
	NewKeywordSweepStrategy(),
}

func (r *reportAziende) Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate {
	var pageURL, html string
	_, number := identity.NormalizeVAT(vat)

	if number != "" && vat != "N/A" {
		urls := []string{
			fmt.Sprintf("%s/%s", r.baseURL, number),
			fmt.Sprintf("%s/%s-%s", r.baseURL, identity.Slug(companyName), number),
		}
		if u, body, ok := probeDirect(ctx, r.fetcher, urls, number, companyName); ok {
			pageURL, html = u, body
		}
	}

	if pageURL == "" {
		found, err := findSourcePage(ctx, r.searcher, companyName, vat, "reportaziende.it", nil)
		if err != nil {
			return emptyCandidate(r.Name(), "search failed: "+err.Error())
		}
		if found == "" {
			return emptyCandidate(r.Name(), "company not found via direct URLs or search")
		}
		res, err := r.fetcher.Get(ctx, found)
		if err != nil || res.Blocked || res.StatusCode != 200 {
			return emptyCandidate(r.Name(), "detail page not reachable")
		}
		pageURL, html = found, res.Body
	}
	zap.L().Debug("using detail page", zap.String("source", r.Name()), zap.String("url", pageURL))

	ex, strategy, found := RunStrategies(html, rpStrategies)
	if !found {
		return emptyCandidate(r.Name(), "detail page found but no revenue extracted")
	}
	zap.L().Debug("revenue extracted",
		zap.String("source", r.Name()),
		zap.String("strategy", strategy),
		zap.String("raw", ex.Raw))

	c := emptyCandidate(r.Name(), "")
	c.RawValue = ex.Raw
	c.Confidence = ex.Confidence
	finishCandidate(&c, companyName, vat, html, pageURL, r.Name())
	return c
}
