// Package model holds the shared domain types of the qualification pipeline.
package model

import "strings"

// QualifyStatus is the per-deal qualification state written back to the CRM.
// Transitions: to_start → in_progress → done|failed. Failed and in_progress
// deals are eligible for retry by the pending sweep; done is terminal.
type QualifyStatus string

const (
	StatusToStart    QualifyStatus = "to_start"
	StatusInProgress QualifyStatus = "in_progress"
	StatusDone       QualifyStatus = "done"
	StatusFailed     QualifyStatus = "failed"
)

// Retryable reports whether the pending sweep should pick the deal up again.
func (s QualifyStatus) Retryable() bool {
	return s == StatusToStart || s == StatusInProgress || s == StatusFailed
}

// DealContext is everything fetched from the CRM about a deal before
// enrichment starts. Company fields fall back to the associated company
// record when the deal itself doesn't carry them.
type DealContext struct {
	DealID         string `json:"deal_id"`
	DealName       string `json:"deal_name"`
	CompanyName    string `json:"company_name"`
	Domain         string `json:"domain"`
	Country        string `json:"country"`
	Industry       string `json:"industry"`
	VAT            string `json:"vat"`
	ProductRequest string `json:"product_request"`
	Category       string `json:"category"`
	StoreType      string `json:"store_type"`
	OnlineRevenue  string `json:"online_revenue"`
	OfflineRevenue string `json:"offline_revenue"`
}

// PhysicalStore reports whether the deal is flagged as a brick-and-mortar
// business, which switches the triage to deterministic revenue scoring.
func (d DealContext) PhysicalStore() bool {
	return strings.Contains(strings.ToLower(d.StoreType), "physical")
}
