package revenue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/identity"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/search"
)

// registroAziende tries a handful of deterministic URL shapes first, then
// falls back to a domain-scoped search, skipping the site's generic listing
// pages.
type registroAziende struct {
	fetcher  *fetch.Client
	searcher *search.Chain
	baseURL  string
}

// NewRegistroAziende builds the registroaziende.it extractor.
func NewRegistroAziende(deps Deps) Extractor {
	return &registroAziende{
		fetcher:  deps.Fetcher,
		searcher: deps.Searcher,
		baseURL:  "https://registroaziende.it",
	}
}

func (r *registroAziende) Name() string   { return "registroaziende.it" }
func (r *registroAziende) Domestic() bool { return true }

var raSkipSegments = []string{"/ricerca", "/piattaforma", "/b2b"}

var raStrategies = []Strategy{
	NewPatternStrategy("label_value",
		`(?i)(?:Fatturato|Ricavi|Revenue)[:\s]*€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*€?`,
		model.ConfidenceHigh),
	NewPatternStrategy("structured_tag",
		`(?is)(?:fatturato|ricavi).*?>.*?€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*€?`,
		model.ConfidenceHigh),
	NewKeywordSweepStrategy(),
}

func (r *registroAziende) directURLs(companyName, vat string) []string {
	_, number := identity.NormalizeVAT(vat)
	slug := identity.Slug(companyName)
	baseSlug := identity.BaseSlug(companyName)
	return []string{
		fmt.Sprintf("%s/%s-%s", r.baseURL, slug, number),
		fmt.Sprintf("%s/azienda/%s-%s", r.baseURL, slug, number),
		fmt.Sprintf("%s/%s/%s", r.baseURL, number, slug),
		fmt.Sprintf("%s/%s-%s", r.baseURL, baseSlug, number),
		fmt.Sprintf("%s/%s", r.baseURL, number),
		fmt.Sprintf("%s/ricerca?q=%s", r.baseURL, vat),
	}
}

func (r *registroAziende) Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate {
	var pageURL, html string

	if vat != "" && vat != "N/A" {
		_, number := identity.NormalizeVAT(vat)
		if u, body, ok := probeDirect(ctx, r.fetcher, r.directURLs(companyName, vat), number, companyName); ok {
			pageURL, html = u, body
		}
	}

	if pageURL == "" {
		found, err := findSourcePage(ctx, r.searcher, companyName, vat, "registroaziende.it", func(url string) bool {
			for _, skip := range raSkipSegments {
				if strings.Contains(url, skip) {
					return false
				}
			}
			return true
		})
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

	ex, strategy, found := RunStrategies(html, raStrategies)
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
