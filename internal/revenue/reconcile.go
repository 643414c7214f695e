package revenue

import (
	"fmt"
	"sort"

	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/money"
)

// Deviation tiers for cross-source comparison, in percent.
const (
	agreementPct = 10
	moderatePct  = 30
)

// CRM revenue bands are self-reported estimates, so the comparison tiers are
// far looser than the source-to-source ones.
const (
	crmAgreementPct = 30
	crmModeratePct  = 100
)

// Reconciliation merges independent revenue candidates into one answer with
// an adjusted confidence and an ordered audit trail.
type Reconciliation struct {
	BestValue  string
	BestSource string
	Numeric    float64
	Confidence model.Confidence
	Found      bool
	Notes      []string
}

// Reconcile picks the best candidate and adjusts its confidence by how much
// the others (and the CRM's own revenue bands) agree with it. Candidates with
// no parsed numeric value are ignored.
func Reconcile(candidates []model.RevenueCandidate, crmOnline, crmOffline string) *Reconciliation {
	usable := make([]model.RevenueCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Value > 0 {
			usable = append(usable, c)
		}
	}

	if len(usable) == 0 {
		return &Reconciliation{
			BestValue:  model.NotAvailable,
			Confidence: model.ConfidenceUnknown,
			Notes:      []string{"no source produced a revenue value"},
		}
	}

	if len(usable) == 1 {
		single := usable[0]
		conf := single.Confidence
		note := "value from a single source, no cross-validation possible"
		// A lone high-confidence claim from an unverified page is unsafe.
		if conf == model.ConfidenceHigh && !single.Validated {
			conf = model.ConfidenceLow
			note = "⚠️ confidence downgraded to LOW: single source, name/VAT not verified"
		}
		return &Reconciliation{
			BestValue:  single.RawValue,
			BestSource: single.Source,
			Numeric:    single.Value,
			Confidence: conf,
			Found:      true,
			Notes:      []string{note},
		}
	}

	// Highest-confidence candidate wins; stable sort keeps source order as
	// the tie-breaker.
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Confidence > usable[j].Confidence
	})
	best := usable[0]

	var agreements, moderates, majors []string
	for _, other := range usable[1:] {
		diffPct := deviationPct(other.Value, best.Value)
		switch {
		case diffPct < agreementPct:
			agreements = append(agreements, fmt.Sprintf("✅ %s confirms a similar value (diff %.1f%%)", other.Source, diffPct))
		case diffPct < moderatePct:
			moderates = append(moderates, fmt.Sprintf("⚠️ %s reports a different value: %s (diff %.0f%%)", other.Source, other.RawValue, diffPct))
		default:
			majors = append(majors, fmt.Sprintf("❌ %s reports a very different value: %s (diff %.0f%%)", other.Source, other.RawValue, diffPct))
		}
	}

	for _, band := range []struct{ label, value string }{
		{"online", crmOnline},
		{"offline", crmOffline},
	} {
		mid := money.RangeMidpoint(band.value)
		if mid <= 0 {
			continue
		}
		diffPct := symmetricDeviationPct(mid, best.Value)
		switch {
		case diffPct < crmAgreementPct:
			agreements = append(agreements, fmt.Sprintf("✅ CRM %s revenue (%s) is consistent (diff %.0f%%)", band.label, band.value, diffPct))
		case diffPct < crmModeratePct:
			moderates = append(moderates, fmt.Sprintf("⚠️ CRM %s revenue (%s) differs (diff %.0f%%)", band.label, band.value, diffPct))
		default:
			majors = append(majors, fmt.Sprintf("❌ CRM %s revenue (%s) differs heavily (diff %.0f%%)", band.label, band.value, diffPct))
		}
	}

	conf := best.Confidence
	var notes []string
	discrepancies := len(moderates) + len(majors)

	// At least two sources in agreement (the best plus anyone within the
	// agreement band) and no dissent.
	if len(agreements) >= 1 && discrepancies == 0 {
		if conf == model.ConfidenceMedium {
			conf = conf.Upgrade()
			notes = append(notes, "✅ confidence upgraded to HIGH: value confirmed by multiple sources")
		} else if conf == model.ConfidenceHigh {
			notes = append(notes, "✅ value confirmed by multiple consistent sources")
		}
	}

	if len(majors) >= 1 {
		if conf == model.ConfidenceHigh || conf == model.ConfidenceMedium {
			conf = conf.Downgrade()
			notes = append(notes, fmt.Sprintf("⚠️ confidence downgraded to %s: sources report very different values", confLabel(conf)))
		}
	} else if len(moderates) >= 2 && conf == model.ConfidenceHigh {
		conf = conf.Downgrade()
		notes = append(notes, "⚠️ confidence downgraded to MEDIUM: multiple sources report differing values")
	}

	notes = append(notes, agreements...)
	notes = append(notes, moderates...)
	notes = append(notes, majors...)

	return &Reconciliation{
		BestValue:  best.RawValue,
		BestSource: best.Source,
		Numeric:    best.Value,
		Confidence: conf,
		Found:      true,
		Notes:      notes,
	}
}

func deviationPct(value, reference float64) float64 {
	if reference <= 0 {
		if value > 0 {
			return 100
		}
		return 0
	}
	return abs(value-reference) / reference * 100
}

// symmetricDeviationPct divides by the larger of the two so the comparison
// doesn't depend on which side is the reference.
func symmetricDeviationPct(a, b float64) float64 {
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return 0
	}
	return abs(a-b) / max * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func confLabel(c model.Confidence) string {
	switch c {
	case model.ConfidenceHigh:
		return "HIGH"
	case model.ConfidenceMedium:
		return "MEDIUM"
	case model.ConfidenceLow:
		return "LOW"
	default:
		return model.NotAvailable
	}
}
