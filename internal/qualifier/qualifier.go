// Package qualifier orchestrates deal qualification: filter, claim, enrich,
// report, write back. Enrichment is sequential and every step degrades to an
// N/D answer instead of aborting the deal.
package qualifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/cost"
	"github.com/growthops/deal-qualifier/internal/ledger"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/internal/payment"
	"github.com/growthops/deal-qualifier/internal/report"
	"github.com/growthops/deal-qualifier/internal/revenue"
	"github.com/growthops/deal-qualifier/internal/traffic"
	"github.com/growthops/deal-qualifier/internal/triage"
	"github.com/growthops/deal-qualifier/pkg/hubspot"
	"github.com/growthops/deal-qualifier/pkg/slack"
)

// CRM property names the pipeline reads and writes.
const (
	statusProperty    = "sql_qualifier_status"
	qualifierProperty = "sql_qualifier"
	reportProperty    = "sql_qualifier_report"
)

var dealProperties = []string{
	"dealname", "pipeline", "generic_source", "amount", "dealstage",
	"iva_vat", "company_domain_name", "product_inbound_request",
	"category", "store_type", "instore_category",
	"online_annual_revenue", "offline_annual_revenue",
}

var companyProperties = []string{"name", "domain", "website", "country", "industry"}

// Config holds the qualification filters and output targets.
type Config struct {
	// PipelineID and Source filter incoming deals; empty means any.
	PipelineID string
	Source     string
	// SlackChannel receives the reports.
	SlackChannel string
	// DealURLFormat builds the CRM deep link; one %s verb for the deal ID.
	DealURLFormat string
}

// Qualifier runs the qualification pipeline.
type Qualifier struct {
	cfg      Config
	crm      hubspot.Client
	notifier slack.Client
	ledger   ledger.Ledger
	builder  *report.Builder

	traffic *traffic.Enricher
	revenue *revenue.Resolver
	payment *payment.Detector
	triager *triage.Triager
	costs   *cost.Tracker

	logger *zap.Logger
}

// Option configures a Qualifier.
type Option func(*Qualifier)

// WithTraffic wires the traffic enricher.
func WithTraffic(e *traffic.Enricher) Option {
	return func(q *Qualifier) { q.traffic = e }
}

// WithRevenue wires the revenue resolver.
func WithRevenue(r *revenue.Resolver) Option {
	return func(q *Qualifier) { q.revenue = r }
}

// WithPayment wires the BNPL detector.
func WithPayment(d *payment.Detector) Option {
	return func(q *Qualifier) { q.payment = d }
}

// WithTriage wires the triage scorer.
func WithTriage(t *triage.Triager) Option {
	return func(q *Qualifier) { q.triager = t }
}

// WithCostTracker wires the daily spend tracker.
func WithCostTracker(t *cost.Tracker) Option {
	return func(q *Qualifier) { q.costs = t }
}

// New creates a Qualifier. Enrichers left unwired are skipped and the report
// degrades to N/D for their sections.
func New(cfg Config, crm hubspot.Client, notifier slack.Client, led ledger.Ledger, opts ...Option) *Qualifier {
	q := &Qualifier{
		cfg:      cfg,
		crm:      crm,
		notifier: notifier,
		ledger:   led,
		builder:  report.NewBuilder(cfg.DealURLFormat),
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Matches reports whether a deal passes the pipeline and source filters and
// has not already been processed.
func (q *Qualifier) Matches(ctx context.Context, dealID string) (bool, error) {
	deal, err := q.crm.GetDeal(ctx, dealID, []string{"pipeline", "generic_source", "dealname", statusProperty})
	if err != nil {
		return false, eris.Wrapf(err, "qualifier: fetch deal %s", dealID)
	}

	name := deal.Property("dealname")
	status := model.QualifyStatus(deal.Property(statusProperty))
	if status == model.StatusDone || status == model.StatusInProgress {
		q.logger.Info("deal already handled, skipping",
			zap.String("deal", name), zap.String("status", string(status)))
		return false, nil
	}

	pipelineOK := q.cfg.PipelineID == "" || deal.Property("pipeline") == q.cfg.PipelineID
	sourceOK := q.cfg.Source == "" || deal.Property("generic_source") == q.cfg.Source
	q.logger.Info("deal filter check",
		zap.String("deal", name),
		zap.Bool("pipeline", pipelineOK),
		zap.Bool("source", sourceOK))
	return pipelineOK && sourceOK, nil
}

// DealContext fetches the deal and fills company fields from the associated
// company record when the deal itself doesn't carry them.
func (q *Qualifier) DealContext(ctx context.Context, dealID string) (model.DealContext, error) {
	deal, err := q.crm.GetDeal(ctx, dealID, dealProperties)
	if err != nil {
		return model.DealContext{}, eris.Wrapf(err, "qualifier: fetch deal %s", dealID)
	}

	d := model.DealContext{
		DealID:         dealID,
		DealName:       deal.Property("dealname"),
		Domain:         deal.Property("company_domain_name"),
		VAT:            deal.Property("iva_vat"),
		ProductRequest: deal.Property("product_inbound_request"),
		StoreType:      deal.Property("store_type"),
		OnlineRevenue:  deal.Property("online_annual_revenue"),
		OfflineRevenue: deal.Property("offline_annual_revenue"),
	}
	// Physical stores carry their sector in a dedicated property.
	if d.PhysicalStore() && deal.Property("instore_category") != "" {
		d.Category = deal.Property("instore_category")
	} else {
		d.Category = deal.Property("category")
	}

	if companyID := deal.CompanyID(); companyID != "" {
		company, err := q.crm.GetCompany(ctx, companyID, companyProperties)
		if err != nil {
			q.logger.Warn("company fetch failed", zap.String("deal", dealID), zap.Error(err))
		} else {
			d.CompanyName = company.Property("name")
			d.Country = company.Property("country")
			d.Industry = company.Property("industry")
			if d.Domain == "" {
				d.Domain = company.Property("domain")
			}
			if d.Domain == "" {
				d.Domain = company.Property("website")
			}
		}
	}
	return d, nil
}

// Process runs the full qualification of one deal: claim, enrich, report,
// status write-back. A deal already claimed or done is skipped silently.
func (q *Qualifier) Process(ctx context.Context, dealID string) error {
	claimed, err := q.ledger.TryClaim(ctx, dealID)
	if err != nil {
		return eris.Wrapf(err, "qualifier: claim deal %s", dealID)
	}
	if !claimed {
		q.logger.Info("deal already claimed or done, skipping", zap.String("deal", dealID))
		return nil
	}

	deal, err := q.DealContext(ctx, dealID)
	if err != nil {
		q.ledger.Release(ctx, dealID)
		return err
	}
	q.logger.Info("qualification started",
		zap.String("deal", deal.DealName),
		zap.String("domain", deal.Domain),
		zap.String("vat", deal.VAT))

	q.setStatus(ctx, dealID, model.StatusInProgress)

	data := q.enrich(ctx, deal)

	if _, err := q.notifier.PostMessage(ctx, &slack.Message{
		Channel: q.cfg.SlackChannel,
		Text:    q.builder.Fallback(data),
		Blocks:  q.builder.Blocks(data),
	}); err != nil {
		q.logger.Error("report post failed", zap.String("deal", deal.DealName), zap.Error(err))
		q.setStatus(ctx, dealID, model.StatusFailed)
		q.ledger.Release(ctx, dealID)
		return eris.Wrapf(err, "qualifier: post report for deal %s", dealID)
	}

	q.persistReport(ctx, dealID, data)
	q.setStatus(ctx, dealID, model.StatusDone)
	if err := q.ledger.MarkDone(ctx, dealID); err != nil {
		q.logger.Warn("ledger mark done failed", zap.String("deal", dealID), zap.Error(err))
	}
	q.logger.Info("qualification complete", zap.String("deal", deal.DealName))
	return nil
}

// enrich runs the sequential enrichment steps. Unwired steps are skipped.
func (q *Qualifier) enrich(ctx context.Context, deal model.DealContext) report.Data {
	data := report.Data{Deal: deal}

	if q.traffic != nil {
		data.Traffic = q.traffic.Sections(ctx, deal.Domain)
	}
	if q.revenue != nil {
		data.Revenue = q.revenue.Resolve(ctx, deal.DealName, deal.Domain, deal.VAT,
			deal.OnlineRevenue, deal.OfflineRevenue)
	}
	if q.payment != nil {
		data.Payment = q.payment.Detect(ctx, deal.Domain)
	}
	if q.triager != nil {
		data.Triage = q.triager.Score(ctx, triage.Input{
			Deal:    deal,
			Revenue: data.Revenue,
			Payment: data.Payment,
			Traffic: data.Traffic,
		})
		if q.costs != nil {
			snap := q.costs.Record(data.Triage.CostEUR, data.Triage.Tokens)
			data.Cost = &report.Cost{
				DealEUR:    data.Triage.CostEUR,
				Tokens:     data.Triage.Tokens,
				TodayEUR:   snap.EUR,
				TodayDeals: snap.Deals,
			}
		}
	}
	return data
}

// reportPayload is the compact JSON persisted to the CRM report property.
type reportPayload struct {
	AnalyzedAt    string  `json:"analyzed_at"`
	TriageScore   int     `json:"triage_score"`
	TriageSummary string  `json:"triage_summary,omitempty"`
	Revenue       string  `json:"revenue,omitempty"`
	RevenueSource string  `json:"revenue_source,omitempty"`
	Confidence    string  `json:"revenue_confidence,omitempty"`
	HasBNPL       bool    `json:"has_bnpl"`
	BNPLProviders string  `json:"bnpl_providers,omitempty"`
	CostEUR       float64 `json:"cost_eur,omitempty"`
}

// persistReport writes the analysis summary back to the deal. Best effort:
// the Slack report already went out.
func (q *Qualifier) persistReport(ctx context.Context, dealID string, data report.Data) {
	payload := reportPayload{AnalyzedAt: time.Now().UTC().Format(time.RFC3339)}
	if data.Triage != nil {
		payload.TriageScore = data.Triage.Score
		payload.TriageSummary = data.Triage.Summary
		payload.CostEUR = data.Triage.CostEUR
	}
	if data.Revenue != nil {
		payload.Revenue = data.Revenue.Value
		payload.RevenueSource = data.Revenue.Source
		payload.Confidence = data.Revenue.Confidence.String()
	}
	if data.Payment != nil {
		payload.HasBNPL = data.Payment.HasBNPL
		payload.BNPLProviders = strings.Join(data.Payment.BNPLProviders, ", ")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := q.crm.UpdateDeal(ctx, dealID, map[string]string{reportProperty: string(raw)}); err != nil {
		q.logger.Warn("report write-back failed", zap.String("deal", dealID), zap.Error(err))
	}
}

func (q *Qualifier) setStatus(ctx context.Context, dealID string, status model.QualifyStatus) {
	if err := q.crm.UpdateDeal(ctx, dealID, map[string]string{statusProperty: string(status)}); err != nil {
		q.logger.Warn("status update failed",
			zap.String("deal", dealID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// ProcessPending searches the CRM for retryable deals and processes each.
// Returns the number of deals attempted.
func (q *Qualifier) ProcessPending(ctx context.Context) (int, error) {
	res, err := q.crm.SearchDeals(ctx, &hubspot.SearchRequest{
		Filters: []hubspot.Filter{{
			PropertyName: statusProperty,
			Operator:     "IN",
			Values: []string{
				string(model.StatusToStart),
				string(model.StatusInProgress),
				string(model.StatusFailed),
			},
		}},
		Properties: []string{"dealname", statusProperty},
		Limit:      50,
	})
	if err != nil {
		return 0, eris.Wrap(err, "qualifier: search pending deals")
	}
	if len(res.Results) == 0 {
		q.logger.Info("no pending deals")
		return 0, nil
	}

	q.logger.Info("pending deals found", zap.Int("count", len(res.Results)))
	processed := 0
	for _, deal := range res.Results {
		q.logger.Info("processing pending deal",
			zap.String("deal", deal.Property("dealname")),
			zap.String("status", deal.Property(statusProperty)))
		if err := q.Process(ctx, deal.ID); err != nil {
			q.logger.Error("pending deal failed", zap.String("deal", deal.ID), zap.Error(err))
		}
		processed++
	}
	return processed, nil
}

// RunPendingSweep processes pending deals once immediately, then on every
// tick until the context is canceled.
func (q *Qualifier) RunPendingSweep(ctx context.Context, interval time.Duration) {
	if _, err := q.ProcessPending(ctx); err != nil {
		q.logger.Error("pending sweep failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.ProcessPending(ctx); err != nil {
				q.logger.Error("pending sweep failed", zap.Error(err))
			}
		}
	}
}

// Qualification is a button click from the Slack report.
type Qualification struct {
	DealID        string
	DealName      string
	Qualification string // "automated" or "sales"
	UserID        string
	UserName      string
	ChannelID     string
	MessageTS     string
}

// HandleQualification writes the chosen qualification to the CRM, attaches
// an audit note, and confirms in the report's thread.
func (q *Qualifier) HandleQualification(ctx context.Context, click Qualification) error {
	err := q.crm.UpdateDeal(ctx, click.DealID, map[string]string{
		qualifierProperty: click.Qualification,
	})

	var text string
	if err != nil {
		q.logger.Error("qualification update failed", zap.String("deal", click.DealID), zap.Error(err))
		text = fmt.Sprintf("❌ CRM update failed for *%s*. Try again.", click.DealName)
	} else {
		q.logger.Info("deal qualified",
			zap.String("deal", click.DealName),
			zap.String("qualification", click.Qualification),
			zap.String("user", click.UserName))
		note := fmt.Sprintf("%s qualified %s as %s on %s",
			click.UserName, click.DealName, click.Qualification,
			time.Now().Format("02/01/2006 15:04"))
		if noteErr := q.crm.CreateNote(ctx, click.DealID, note); noteErr != nil {
			q.logger.Warn("audit note failed", zap.String("deal", click.DealID), zap.Error(noteErr))
		}
		text = report.Confirmation(click.DealName, click.Qualification, click.UserID)
	}

	if click.ChannelID != "" && click.MessageTS != "" {
		if _, postErr := q.notifier.PostMessage(ctx, &slack.Message{
			Channel:  click.ChannelID,
			ThreadTS: click.MessageTS,
			Text:     text,
		}); postErr != nil {
			q.logger.Warn("thread confirmation failed", zap.String("deal", click.DealID), zap.Error(postErr))
		}
	}

	if err != nil {
		return eris.Wrapf(err, "qualifier: qualify deal %s", click.DealID)
	}
	return nil
}
