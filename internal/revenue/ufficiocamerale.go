package revenue

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/search"
)

// ufficioCamerale locates company pages through a domain-scoped web search,
// since the site's URLs embed an opaque numeric ID. The site sits behind
// aggressive anti-bot protection, so fetches go through the browser-fallback
// path.
type ufficioCamerale struct {
	fetcher  *fetch.Client
	searcher *search.Chain
}

// NewUfficioCamerale builds the ufficiocamerale.it extractor.
func NewUfficioCamerale(deps Deps) Extractor {
	return &ufficioCamerale{fetcher: deps.Fetcher, searcher: deps.Searcher}
}

func (u *ufficioCamerale) Name() string   { return "ufficiocamerale.it" }
func (u *ufficioCamerale) Domestic() bool { return true }

// Detail URLs look like /{numeric-id}/{slug}.
var ucDetailURLRe = regexp.MustCompile(`/\d+/`)

var ucStrategies = []Strategy{
	// List-group markup, e.g. `Fatturato: <strong>€&nbsp;5.045.628,00 </strong>(2024)`.
	NewPatternStrategy("strong_markup",
		`(?is)(?:Fatturato|Ricavi)[:\s]*<strong>\s*€?\s*&nbsp;\s*([\d.]+,\d{2})\s*</strong>`,
		model.ConfidenceHigh),
	NewPatternStrategy("label_value",
		`(?i)(?:Fatturato|Ricavi)[:\s]+€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*€?`,
		model.ConfidenceHigh),
	NewPatternStrategy("structured_tag",
		`(?is)(?:fatturato|ricavi).*?[>:]\s*€?\s*(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*€?`,
		model.ConfidenceHigh),
}

func (u *ufficioCamerale) Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate {
	pageURL, err := findSourcePage(ctx, u.searcher, companyName, vat, "ufficiocamerale.it", func(url string) bool {
		return ucDetailURLRe.MatchString(url)
	})
	if err != nil {
		return emptyCandidate(u.Name(), "search failed: "+err.Error())
	}
	if pageURL == "" {
		return emptyCandidate(u.Name(), "company not found via search")
	}
	zap.L().Debug("using detail page", zap.String("source", u.Name()), zap.String("url", pageURL))

	res, err := u.fetcher.HTML(ctx, pageURL)
	if err != nil {
		if res != nil && res.Blocked {
			return emptyCandidate(u.Name(), "page blocked by anti-bot protection, browser fallback failed")
		}
		return emptyCandidate(u.Name(), "page not reachable: "+err.Error())
	}

	ex, strategy, found := RunStrategies(res.Body, ucStrategies)
	if !found {
		return emptyCandidate(u.Name(), "detail page found but no revenue extracted")
	}
	zap.L().Debug("revenue extracted",
		zap.String("source", u.Name()),
		zap.String("strategy", strategy),
		zap.String("raw", ex.Raw))

	c := emptyCandidate(u.Name(), "")
	c.RawValue = ex.Raw
	c.Confidence = ex.Confidence
	finishCandidate(&c, companyName, vat, res.Body, pageURL, u.Name())
	return c
}
