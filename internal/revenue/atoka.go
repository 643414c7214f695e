package revenue

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/identity"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/search"
)

// atoka extracts from atoka.io public company pages, whose revenue sits in
// JSON-LD FAQ prose with K/M/B scale suffixes rather than label/value markup.
type atoka struct {
	fetcher  *fetch.Client
	searcher *search.Chain
	baseURL  string
}

// NewAtoka builds the atoka.io extractor.
func NewAtoka(deps Deps) Extractor {
	return &atoka{
		fetcher:  deps.Fetcher,
		searcher: deps.Searcher,
		baseURL:  "https://atoka.io",
	}
}

func (a *atoka) Name() string   { return "atoka.io" }
func (a *atoka) Domestic() bool { return true }

var atokaStrategies = []Strategy{
	// JSON-LD prose, e.g. "I ricavi generati da X sono stati di 23.0 K €".
	NewPatternStrategy("jsonld_ricavi",
		`(?i)ricavi[^"]*?sono stati di\s+([\d.,]+\s*[KMB]?)\s*€`,
		model.ConfidenceHigh),
	// "L'ultimo fatturato dichiarato da X ammonta a 23.0 K €".
	NewPatternStrategy("jsonld_fatturato",
		`(?i)fatturato[^"]*?ammonta a\s+([\d.,]+\s*[KMB]?)\s*€`,
		model.ConfidenceHigh),
}

func (a *atoka) Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate {
	var pageURL, html string
	_, number := identity.NormalizeVAT(vat)

	if vat != "" && vat != "N/A" {
		urls := []string{
			fmt.Sprintf("%s/public/it/azienda/%s-%s", a.baseURL, identity.Slug(companyName), number),
			fmt.Sprintf("%s/public/it/azienda/%s-%s", a.baseURL, identity.BaseSlug(companyName), number),
		}
		if u, body, ok := probeDirect(ctx, a.fetcher, urls, number, companyName); ok {
			pageURL, html = u, body
		}
	}

	if pageURL == "" {
		found, err := findSourcePage(ctx, a.searcher, companyName, vat, "atoka.io", func(url string) bool {
			if !strings.Contains(url, "/azienda/") {
				return false
			}
			// With a VAT in hand, only trust URLs that embed it.
			return number == "" || strings.Contains(url, number)
		})
		if err != nil {
			return emptyCandidate(a.Name(), "search failed: "+err.Error())
		}
		if found == "" {
			return emptyCandidate(a.Name(), "company not found via direct URLs or search")
		}
		res, err := a.fetcher.Get(ctx, found)
		if err != nil || res.Blocked || res.StatusCode != 200 {
			return emptyCandidate(a.Name(), "detail page not reachable")
		}
		pageURL, html = found, res.Body
	}
	zap.L().Debug("using detail page", zap.String("source", a.Name()), zap.String("url", pageURL))

	ex, strategy, found := RunStrategies(html, atokaStrategies)
	if !found {
		return emptyCandidate(a.Name(), "detail page found but no revenue extracted")
	}
	zap.L().Debug("revenue extracted",
		zap.String("source", a.Name()),
		zap.String("strategy", strategy),
		zap.String("raw", ex.Raw))

	c := emptyCandidate(a.Name(), "")
	c.RawValue = ex.Raw
	c.Confidence = ex.Confidence
	finishCandidate(&c, companyName, vat, html, pageURL, a.Name())
	// Atoka titles carry the registered name even when the h1 is generic
	// boilerplate the page-name heuristic stops at.
	if !c.Validated {
		if name := LegalNameFromPage(html); name != "" &&
			identity.FuzzyMatchName(companyName, name, identity.DefaultNameThreshold) {
			c.Validated = true
			c.Diagnostic += fmt.Sprintf(" (title name '%s' matched)", name)
		}
	}
	return c
}

// atokaTitleRe pulls the legal name from the page title ("NAME : details").
var atokaTitleRe = regexp.MustCompile(`<title>([^:<|]+?)(?:\s*:|\s*\|)`)

// LegalNameFromPage extracts the registered name Atoka shows in its title.
func LegalNameFromPage(html string) string {
	if m := atokaTitleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
