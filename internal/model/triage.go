package model

// TriageResult is the LLM's (or, for physical stores, the deterministic
// scorer's) assessment of a deal. Score runs 1-10; zero means triage failed.
type TriageResult struct {
	Score             int    `json:"score"`
	Reason            string `json:"reason"`
	Summary           string `json:"summary"`
	IsEcommerce       bool   `json:"is_ecommerce"`
	MonthlyVisits     int64  `json:"monthly_visits"`
	HasBNPLCompetitor bool   `json:"has_bnpl_competitor"`
	Category          string `json:"category"`
	AOVEstimated      string `json:"aov_estimated"`

	// Spend of the triage call, for the report cost footer.
	CostEUR float64 `json:"cost_eur,omitempty"`
	Tokens  int64   `json:"tokens,omitempty"`
}

// FailedTriage is the zero-value result returned when the model's answer
// cannot be parsed or the call fails.
func FailedTriage() *TriageResult {
	return &TriageResult{
		Score:        0,
		Reason:       "triage_failed",
		Category:     NotAvailable,
		AOVEstimated: NotAvailable,
	}
}
