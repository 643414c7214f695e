package model

// NotAvailable is the sentinel for data no source could produce.
const NotAvailable = "N/D"

// Confidence is the qualitative trust tier attached to a revenue figure.
// Tiers are ordered so reconciliation can rank and adjust them.
type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return NotAvailable
	}
}

// ParseConfidence maps a source-supplied label to a tier. Anything
// unrecognized is Unknown.
func ParseConfidence(s string) Confidence {
	switch s {
	case "low":
		return ConfidenceLow
	case "medium":
		return ConfidenceMedium
	case "high":
		return ConfidenceHigh
	default:
		return ConfidenceUnknown
	}
}

// Upgrade raises the tier by one. High is the ceiling; Unknown stays Unknown
// because there is no evidence to promote.
func (c Confidence) Upgrade() Confidence {
	switch c {
	case ConfidenceLow:
		return ConfidenceMedium
	case ConfidenceMedium, ConfidenceHigh:
		return ConfidenceHigh
	default:
		return c
	}
}

// Downgrade lowers the tier by one, clamped at Low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	case ConfidenceMedium, ConfidenceLow:
		return ConfidenceLow
	default:
		return c
	}
}

// RevenueCandidate is one source's claim about a company's revenue.
// Created by exactly one extractor, immutable afterwards, consumed once
// by reconciliation.
type RevenueCandidate struct {
	Source     string     `json:"source"`
	RawValue   string     `json:"raw_value"`
	Value      float64    `json:"value"`
	Confidence Confidence `json:"confidence"`
	Validated  bool       `json:"validated"`
	FiscalYear string     `json:"fiscal_year,omitempty"`
	ProfitLoss string     `json:"profit_loss,omitempty"`
	Employees  string     `json:"employees,omitempty"`
	Diagnostic string     `json:"diagnostic,omitempty"`
}

// Found reports whether the extractor produced a usable figure.
func (c RevenueCandidate) Found() bool {
	return c.RawValue != "" && c.RawValue != NotAvailable && c.Value > 0
}

// CompanyIdentity is the authoritative identity from the VAT registry.
type CompanyIdentity struct {
	LegalName   string `json:"legal_name"`
	Address     string `json:"address,omitempty"`
	CountryCode string `json:"country_code"`
}

// RevenueResolution is the resolver's final answer for a company.
type RevenueResolution struct {
	Value       string     `json:"value"`
	Numeric     float64    `json:"numeric"`
	Source      string     `json:"source"`
	Confidence  Confidence `json:"confidence"`
	LegalName   string     `json:"legal_name"`
	FiscalYear  string     `json:"fiscal_year,omitempty"`
	RawDetail   string     `json:"raw_detail,omitempty"`
	Diagnostics []string   `json:"diagnostics"`
}
