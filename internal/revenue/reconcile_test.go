package revenue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthops/deal-qualifier/internal/model"
)

func cand(source, raw string, value float64, conf model.Confidence, validated bool) model.RevenueCandidate {
	return model.RevenueCandidate{
		Source:     source,
		RawValue:   raw,
		Value:      value,
		Confidence: conf,
		Validated:  validated,
	}
}

func TestReconcile_NoCandidates(t *testing.T) {
	rec := Reconcile(nil, "", "")
	assert.False(t, rec.Found)
	assert.Equal(t, model.NotAvailable, rec.BestValue)
	assert.Equal(t, model.ConfidenceUnknown, rec.Confidence)
	require.Len(t, rec.Notes, 1)
}

func TestReconcile_SingleValidated(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("ufficiocamerale.it", "€ 5.045.628,00", 5045628, model.ConfidenceHigh, true),
	}, "", "")
	assert.True(t, rec.Found)
	assert.Equal(t, model.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, "ufficiocamerale.it", rec.BestSource)
}

func TestReconcile_SingleHighUnvalidatedDowngradesToLow(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("atoka.io", "€ 2.000.000", 2_000_000, model.ConfidenceHigh, false),
	}, "", "")
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
	require.NotEmpty(t, rec.Notes)
	assert.Contains(t, rec.Notes[0], "downgraded to LOW")
}

func TestReconcile_TwoMediumAgreeingUpgradeToHigh(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("fatturatoitalia.it", "€ 1.000.000", 1_000_000, model.ConfidenceMedium, true),
		cand("registroaziende.it", "€ 1.050.000", 1_050_000, model.ConfidenceMedium, true),
	}, "", "")
	// Two sources within 5% of each other and no dissent.
	assert.Equal(t, model.ConfidenceHigh, rec.Confidence)
	assert.Contains(t, strings.Join(rec.Notes, "\n"), "upgraded to HIGH")
}

func TestReconcile_MajorConflictDowngrades(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("ufficiocamerale.it", "€ 2.000.000", 2_000_000, model.ConfidenceHigh, true),
		cand("atoka.io", "€ 1.000.000", 1_000_000, model.ConfidenceHigh, true),
	}, "", "")
	assert.Equal(t, model.ConfidenceMedium, rec.Confidence)
	joined := strings.Join(rec.Notes, "\n")
	assert.Contains(t, joined, "❌")
	assert.Contains(t, joined, "very different value")
}

func TestReconcile_TwoModerateDiscrepanciesDowngradeHighOnly(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("ufficiocamerale.it", "€ 1.000.000", 1_000_000, model.ConfidenceHigh, true),
		cand("atoka.io", "€ 1.200.000", 1_200_000, model.ConfidenceHigh, true),
		cand("reportaziende.it", "€ 1.250.000", 1_250_000, model.ConfidenceMedium, true),
	}, "", "")
	assert.Equal(t, model.ConfidenceMedium, rec.Confidence)

	// The same moderate spread on a medium best leaves the tier untouched.
	rec = Reconcile([]model.RevenueCandidate{
		cand("reportaziende.it", "€ 1.000.000", 1_000_000, model.ConfidenceMedium, true),
		cand("atoka.io", "€ 1.200.000", 1_200_000, model.ConfidenceMedium, true),
		cand("fatturatoitalia.it", "€ 1.250.000", 1_250_000, model.ConfidenceMedium, true),
	}, "", "")
	assert.Equal(t, model.ConfidenceMedium, rec.Confidence)
}

func TestReconcile_HighestConfidenceWins(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("keyword-sweep", "€ 900.000", 900_000, model.ConfidenceMedium, true),
		cand("ufficiocamerale.it", "€ 1.000.000", 1_000_000, model.ConfidenceHigh, true),
	}, "", "")
	assert.Equal(t, "ufficiocamerale.it", rec.BestSource)
	assert.Equal(t, 1_000_000.0, rec.Numeric)
}

func TestReconcile_CRMBandComparison(t *testing.T) {
	// CRM midpoint 3M vs best 1M: symmetric deviation 66% = moderate.
	rec := Reconcile([]model.RevenueCandidate{
		cand("ufficiocamerale.it", "€ 1.000.000", 1_000_000, model.ConfidenceHigh, true),
		cand("atoka.io", "€ 1.020.000", 1_020_000, model.ConfidenceHigh, true),
	}, "1M - 5M", "")
	joined := strings.Join(rec.Notes, "\n")
	assert.Contains(t, joined, "CRM online")
	assert.Contains(t, joined, "⚠️")
	// One agreement plus one moderate discrepancy: no upgrade, no downgrade.
	assert.Equal(t, model.ConfidenceHigh, rec.Confidence)
}

func TestReconcile_UnparsedCandidatesIgnored(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("atoka.io", model.NotAvailable, 0, model.ConfidenceUnknown, false),
		cand("ufficiocamerale.it", "€ 750.000", 750_000, model.ConfidenceMedium, true),
	}, "", "")
	assert.True(t, rec.Found)
	assert.Equal(t, "ufficiocamerale.it", rec.BestSource)
	assert.Equal(t, model.ConfidenceMedium, rec.Confidence)
}

func TestReconcile_ConfidenceNeverBelowLow(t *testing.T) {
	rec := Reconcile([]model.RevenueCandidate{
		cand("keyword-sweep", "€ 500.000", 500_000, model.ConfidenceLow, false),
		cand("atoka.io", "€ 2.000.000", 2_000_000, model.ConfidenceLow, false),
	}, "", "")
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
}
