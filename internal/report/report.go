// Package report renders qualification results as Slack block-kit messages.
// The layout mirrors what the sales team reads top to bottom: deal identity,
// triage verdict, revenue with its audit trail, traffic, payment findings,
// then the qualification buttons.
package report

import (
	"fmt"
	"strings"

	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/pkg/slack"
)

// Data is everything a report renders.
type Data struct {
	Deal     model.DealContext
	Triage   *model.TriageResult
	Revenue  *model.RevenueResolution
	Payment  *model.PaymentResult
	Traffic  []string
	TechInfo string
	Cost     *Cost
}

// Cost is the triage spend shown in the report footer.
type Cost struct {
	DealEUR    float64
	Tokens     int64
	TodayEUR   float64
	TodayDeals int
}

// Builder renders reports. The portal URL feeds the deep-link button.
type Builder struct {
	dealURLFormat string
}

// NewBuilder creates a Builder. dealURLFormat must contain one %s verb that
// receives the deal ID.
func NewBuilder(dealURLFormat string) *Builder {
	return &Builder{dealURLFormat: dealURLFormat}
}

// Fallback is the plain-text summary shown in notifications.
func (b *Builder) Fallback(d Data) string {
	return "Quick Triage - " + d.Deal.DealName
}

// Blocks renders the full report.
func (b *Builder) Blocks(d Data) []slack.Block {
	blocks := []slack.Block{
		slack.Header("⚡ Deal Analysis - " + d.Deal.DealName),
		slack.Section(b.dealInfo(d)),
		slack.Section(b.triageSection(d)),
		slack.Divider(),
		slack.Section(b.revenueSection(d)),
		slack.Divider(),
	}

	for _, section := range d.Traffic {
		if section != "" {
			blocks = append(blocks, slack.Section(section))
		}
	}
	if len(d.Traffic) > 0 {
		blocks = append(blocks, slack.Divider())
	}
	if d.TechInfo != "" {
		blocks = append(blocks, slack.Section(d.TechInfo), slack.Divider())
	}

	blocks = append(blocks, slack.Section(b.paymentSection(d)), slack.Divider())

	if d.Cost != nil {
		blocks = append(blocks, slack.Section(fmt.Sprintf(
			":bar_chart: *Triage Cost*\n• This deal: *€%.4f* (%d tokens)\n• Today: *€%.4f* (%d deals analyzed)",
			d.Cost.DealEUR, d.Cost.Tokens, d.Cost.TodayEUR, d.Cost.TodayDeals)))
	}

	domain := d.Deal.Domain
	if domain == "" {
		domain = model.NotAvailable
	}
	blocks = append(blocks,
		slack.Context(":robot_face: _Model: Haiku (low-cost triage)_ | Domain: "+domain),
		slack.Divider(),
		slack.Section("*🎯 Qualify this deal:*"),
		b.qualifyActions(d.Deal),
	)
	return blocks
}

func (b *Builder) dealInfo(d Data) string {
	legalName := model.NotAvailable
	if d.Revenue != nil && d.Revenue.LegalName != "" {
		legalName = d.Revenue.LegalName
	}
	return fmt.Sprintf(
		":office: *Deal Info*\n"+
			"• *Legal Name:* %s\n"+
			"• *VAT:* %s\n"+
			"• *Deal ID:* %s\n"+
			"• *Category:* %s\n"+
			"• *Store Type:* %s\n"+
			"• *Revenue Online (CRM):* %s\n"+
			"• *Revenue Offline (CRM):* %s",
		legalName, orND(d.Deal.VAT), d.Deal.DealID, orND(d.Deal.Category),
		orND(d.Deal.StoreType), orND(d.Deal.OnlineRevenue), orND(d.Deal.OfflineRevenue))
}

func (b *Builder) triageSection(d Data) string {
	t := d.Triage
	if t == nil {
		t = model.FailedTriage()
	}
	ecommerce := ":x:"
	if t.IsEcommerce {
		ecommerce = ":white_check_mark:"
	}
	summary := t.Summary
	if summary == "" && t.Reason == "triage_failed" {
		summary = "_triage failed_"
	}
	return fmt.Sprintf(":brain: *Triage*\nScore: %s (%d/10)\nE-commerce: %s\n%s",
		stars(t.Score), t.Score, ecommerce, summary)
}

// stars renders the 10-slot score bar.
func stars(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return strings.Repeat(":star:", score) + strings.Repeat(":white_circle:", 10-score)
}

func (b *Builder) revenueSection(d Data) string {
	value := model.NotAvailable
	year := model.NotAvailable
	var diagnostics []string
	confidence := model.ConfidenceUnknown
	if d.Revenue != nil {
		value = d.Revenue.Value
		if d.Revenue.FiscalYear != "" {
			year = d.Revenue.FiscalYear
		}
		diagnostics = d.Revenue.Diagnostics
		confidence = d.Revenue.Confidence
	}

	if value != model.NotAvailable {
		switch confidence {
		case model.ConfidenceHigh:
			value += " ✅ _Confidence: HIGH_"
		case model.ConfidenceMedium:
			value += " ⚠️ _Confidence: MEDIUM - verify manually_"
		case model.ConfidenceLow:
			value += " ❌ _Confidence: LOW - value likely wrong_"
		default:
			value += " (Confidence: " + confidence.String() + ")"
		}
	} else {
		value += " | Confidence: " + confidence.String()
	}

	aov := model.NotAvailable
	if d.Triage != nil {
		aov = d.Triage.AOVEstimated
	}

	text := fmt.Sprintf(":moneybag: *Revenue*\n• *Value:* %s\n• *Fiscal Year:* %s\n• *Estimated AOV:* %s",
		value, year, aov)
	if len(diagnostics) > 0 {
		var trail strings.Builder
		for _, diag := range diagnostics {
			trail.WriteString("\n  → _" + diag + "_")
		}
		text += "\n:mag: *Lookup diagnostics:*" + trail.String()
	}
	return text
}

func (b *Builder) paymentSection(d Data) string {
	p := d.Payment
	if p == nil {
		p = model.NewPaymentResult()
	}

	payments := model.NotAvailable
	if len(p.Providers) > 0 {
		payments = strings.Join(p.Providers, ", ")
	}

	hasBNPL := ":white_check_mark: No"
	if p.HasBNPL || (d.Triage != nil && d.Triage.HasBNPLCompetitor) {
		hasBNPL = ":warning: Yes"
	}
	detail := ""
	if len(p.BNPLProviders) > 0 {
		detail = " (" + strings.Join(p.BNPLProviders, ", ") + ")" + bnplLocations(p)
	}

	text := fmt.Sprintf(":credit_card: *Payment Detection*\n• *Payment Stack:* %s\n• *BNPL Competitor:* %s%s",
		payments, hasBNPL, detail)
	if p.Confidence.Score > 0 || p.Confidence.Reason != "" {
		text += fmt.Sprintf("\n• *Confidence:* %d/100 (%s) - _%s_",
			p.Confidence.Score, p.Confidence.Label, p.Confidence.Reason)
	}
	text += "\n• *Detection:* " + p.Method
	return text
}

// bnplLocations renders the funnel stages a BNPL widget was seen at, using
// the short labels the sales team knows (HP, PDP, CO).
func bnplLocations(p *model.PaymentResult) string {
	var locs []string
	if p.Locations[model.StageHomepage] {
		locs = append(locs, "HP")
	}
	if p.Locations[model.StageProduct] {
		locs = append(locs, "PDP")
	}
	if p.Locations[model.StageCheckout] {
		locs = append(locs, "CO")
	}
	if len(locs) == 0 {
		return ""
	}
	return " [Found in: " + strings.Join(locs, "/") + "]"
}

func (b *Builder) qualifyActions(deal model.DealContext) slack.Block {
	block := slack.Actions(
		slack.Button("🤖 Automated", "qualify_automated",
			fmt.Sprintf("%s|automated|%s", deal.DealID, deal.DealName), ""),
		slack.Button("👤 Sales", "qualify_sales",
			fmt.Sprintf("%s|sales|%s", deal.DealID, deal.DealName), ""),
		slack.LinkButton("🔗 Open in HubSpot", "open_hubspot",
			fmt.Sprintf(b.dealURLFormat, deal.DealID)),
	)
	block.BlockID = "qualify_deal_" + deal.DealID
	return block
}

// Confirmation is the thread reply posted after a qualification click.
func Confirmation(dealName, qualification, user string) string {
	icon := "🤖"
	if qualification == "sales" {
		icon = "👤"
	}
	return fmt.Sprintf("%s *%s* qualified as *%s* by <@%s>", icon, dealName, qualification, user)
}

func orND(s string) string {
	if s == "" || s == "N/A" {
		return model.NotAvailable
	}
	return s
}
