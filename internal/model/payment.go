package model

// FunnelStage identifies where in the purchase funnel a signal was observed.
type FunnelStage string

const (
	StageHomepage FunnelStage = "homepage"
	StageProduct  FunnelStage = "pdp"
	StageCheckout FunnelStage = "checkout"
)

// PaymentConfidence grades a detection run. Score is 0-100; the label is the
// usual low/medium/high bucketing with the reason spelled out for the report.
type PaymentConfidence struct {
	Score  int    `json:"score"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// PaymentResult is the outcome of the funnel-staged payment/BNPL detection.
type PaymentResult struct {
	Providers     []string             `json:"providers"`
	HasBNPL       bool                 `json:"has_bnpl"`
	BNPLProviders []string             `json:"bnpl_providers"`
	Locations     map[FunnelStage]bool `json:"bnpl_locations"`
	Method        string               `json:"method"` // "http" or "browser"
	BlockedBy     string               `json:"blocked_by,omitempty"`
	Confidence    PaymentConfidence    `json:"confidence"`
}

// NewPaymentResult returns an empty result with the stage map initialized.
func NewPaymentResult() *PaymentResult {
	return &PaymentResult{
		Locations: map[FunnelStage]bool{
			StageHomepage: false,
			StageProduct:  false,
			StageCheckout: false,
		},
		Method: "http",
	}
}

// DeepestStage returns the furthest funnel stage where BNPL was seen.
func (p *PaymentResult) DeepestStage() (FunnelStage, bool) {
	for _, stage := range []FunnelStage{StageCheckout, StageProduct, StageHomepage} {
		if p.Locations[stage] {
			return stage, true
		}
	}
	return "", false
}
