package revenue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/identity"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/pkg/vies"
)

// Resolver orchestrates the full revenue resolution: authoritative identity
// lookup, jurisdiction gating, sequential source extraction and final
// reconciliation. Extractors run strictly one after another; worst-case
// latency is the sum of their timeouts, but no shared state needs locking.
type Resolver struct {
	vies       vies.Client
	extractors []Extractor
	logger     *zap.Logger
}

// NewResolver wires the standard extractor set.
func NewResolver(viesClient vies.Client, extractors ...Extractor) *Resolver {
	return &Resolver{
		vies:       viesClient,
		extractors: extractors,
		logger:     zap.L(),
	}
}

// DefaultExtractors returns the five production sources in invocation order.
func DefaultExtractors(deps Deps) []Extractor {
	return []Extractor{
		NewFatturatoItalia(deps),
		NewUfficioCamerale(deps),
		NewRegistroAziende(deps),
		NewAtoka(deps),
		NewReportAziende(deps),
	}
}

// Resolve answers "what is this company's revenue" from up to five sources
// plus the CRM's own bands. It never fails: the worst outcome is an N/D value
// with a diagnostic trail explaining every dead end.
func (r *Resolver) Resolve(ctx context.Context, companyName, domain, vat, crmOnline, crmOffline string) *model.RevenueResolution {
	res := &model.RevenueResolution{
		Value:      model.NotAvailable,
		Confidence: model.ConfidenceUnknown,
		LegalName:  model.NotAvailable,
	}

	// Authoritative identity first. Country code comes from the registry's
	// own echo when available; the prefix is only the fallback assumption.
	countryCode := "IT"
	lookupName := companyName
	if vat != "" && vat != "N/A" {
		prefix, number := identity.NormalizeVAT(vat)
		countryCode = prefix
		if r.vies != nil {
			check, err := r.vies.Check(ctx, prefix, number)
			switch {
			case err != nil:
				r.logger.Warn("vies lookup failed", zap.String("vat", vat), zap.Error(err))
				res.Diagnostics = append(res.Diagnostics, "VIES: lookup failed, falling back to VAT prefix for jurisdiction")
			case check.Valid:
				if cc := strings.ToUpper(strings.TrimSpace(check.CountryCode)); cc != "" {
					countryCode = cc
				}
				if name := check.LegalName(); name != "" {
					lookupName = name
					res.LegalName = name
					res.Diagnostics = append(res.Diagnostics,
						fmt.Sprintf("VIES: VAT valid (%s), legal name = %s", countryCode, name))
				} else {
					res.Diagnostics = append(res.Diagnostics,
						fmt.Sprintf("VIES: VAT valid (%s), no legal name returned", countryCode))
				}
			default:
				res.Diagnostics = append(res.Diagnostics, "VIES: VAT not valid or not found in the EU registry")
			}
		}
	} else {
		res.Diagnostics = append(res.Diagnostics, "VAT not provided, VIES not consulted")
	}

	domestic := countryCode == "IT"
	if !domestic {
		skipped := make([]string, 0, len(r.extractors))
		for _, e := range r.extractors {
			if e.Domestic() {
				skipped = append(skipped, e.Name())
			}
		}
		if len(skipped) > 0 {
			res.Diagnostics = append(res.Diagnostics,
				fmt.Sprintf("VAT %s: domestic sources (%s) not consulted", countryCode, strings.Join(skipped, ", ")))
		}
	}

	var candidates []model.RevenueCandidate
	for _, e := range r.extractors {
		if e.Domestic() && !domestic {
			continue
		}
		c := e.Extract(ctx, lookupName, vat)
		if c.Found() {
			candidates = append(candidates, c)
			r.logger.Info("source produced candidate",
				zap.String("source", c.Source),
				zap.String("raw", c.RawValue),
				zap.String("confidence", c.Confidence.String()),
				zap.Bool("validated", c.Validated))
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s: %s", c.Source, c.Diagnostic))
		} else {
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s: %s", e.Name(), c.Diagnostic))
		}
	}

	if len(candidates) == 0 {
		res.Diagnostics = append(res.Diagnostics, "no source produced revenue data")
		return res
	}

	rec := Reconcile(candidates, crmOnline, crmOffline)
	res.Value = rec.BestValue
	res.Numeric = rec.Numeric
	res.Source = rec.BestSource
	res.Confidence = rec.Confidence
	res.Diagnostics = append(res.Diagnostics, rec.Notes...)

	for _, c := range candidates {
		if c.Source == rec.BestSource {
			res.FiscalYear = c.FiscalYear
			res.RawDetail = fmt.Sprintf("year: %s, profit/loss: %s, employees: %s",
				c.FiscalYear, c.ProfitLoss, c.Employees)
			break
		}
	}

	r.logger.Info("revenue resolved",
		zap.String("company", companyName),
		zap.String("value", res.Value),
		zap.String("source", res.Source),
		zap.String("confidence", res.Confidence.String()))
	return res
}
