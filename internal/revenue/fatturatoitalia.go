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
)

// fatturatoItalia resolves companies via a deterministic detail URL built
// from the slugified name and VAT number: /{slug}-{vat}. No search step is
// needed, which also means a successful content-checked probe counts as
// identity-validated.
type fatturatoItalia struct {
	fetcher *fetch.Client
	llm     *LLMExtractor
	baseURL string
}

// NewFatturatoItalia builds the fatturatoitalia.it extractor.
func NewFatturatoItalia(deps Deps) Extractor {
	return &fatturatoItalia{
		fetcher: deps.Fetcher,
		llm:     deps.LLM,
		baseURL: "https://www.fatturatoitalia.it",
	}
}

func (f *fatturatoItalia) Name() string   { return "fatturatoitalia.it" }
func (f *fatturatoItalia) Domestic() bool { return true }

var fiSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// fiSlug lowercases the name and joins tokens with underscores, the site's
// own slug convention.
func fiSlug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	return strings.Trim(fiSlugRe.ReplaceAllString(s, "_"), "_")
}

var fiStrategies = []Strategy{
	// Meta description, e.g. `fatturato 3.815.456 €, utile 78.167 € (2024)`.
	NewPatternStrategy("meta_description",
		`(?i)content="[^"]*fatturato\s+([\d.,]+)\s*€?,\s*(?:utile|perdita)`,
		model.ConfidenceHigh),
	// Meta variant without a profit figure.
	NewPatternStrategy("meta_description_bare",
		`(?i)content="[^"]*fatturato\s+(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)`,
		model.ConfidenceHigh),
	// Body prose, e.g. `sono pari a <b> 459.326 €</b>`.
	NewPatternStrategy("body_prose",
		`(?i)(?:sono pari a|fatturato di)\s*<b>\s*([\d.,]+)\s*€`,
		model.ConfidenceHigh),
	NewKeywordSweepStrategy(),
}

func (f *fatturatoItalia) Extract(ctx context.Context, companyName, vat string) model.RevenueCandidate {
	if vat == "" || vat == "N/A" {
		return emptyCandidate(f.Name(), "lookup not possible (VAT missing)")
	}

	detailURL := fmt.Sprintf("%s/%s-%s", f.baseURL, fiSlug(companyName), vat)
	zap.L().Debug("probing detail page", zap.String("source", f.Name()), zap.String("url", detailURL))

	_, number := identity.NormalizeVAT(vat)
	url, html, ok := probeDirect(ctx, f.fetcher, []string{detailURL}, number, companyName)
	if !ok {
		return emptyCandidate(f.Name(), "company not found (detail page missing or redirected to homepage)")
	}

	c := emptyCandidate(f.Name(), "")
	// The probe already confirmed the page mentions this company.
	c.Validated = true

	if ex, strategy, found := RunStrategies(html, fiStrategies); found {
		c.RawValue = ex.Raw
		c.Confidence = ex.Confidence
		zap.L().Debug("revenue extracted",
			zap.String("source", f.Name()),
			zap.String("strategy", strategy),
			zap.String("raw", ex.Raw))
	} else if f.llm != nil {
		raw, year, err := f.llm.Extract(ctx, fetch.Text(html, fetch.DefaultTextCap), companyName, vat)
		if err == nil {
			c.RawValue = raw
			c.Confidence = model.ConfidenceLow
			if year != "" {
				c.FiscalYear = year
			}
		} else {
			zap.L().Debug("llm extraction unavailable", zap.String("source", f.Name()), zap.Error(err))
		}
	}

	if c.RawValue == model.NotAvailable {
		c.Diagnostic = "detail page found but no revenue extracted"
		return c
	}

	finishCandidate(&c, companyName, vat, html, url, f.Name())
	c.Validated = true
	return c
}
