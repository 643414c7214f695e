// Package triage scores an enriched deal for sales prioritization. Physical
// stores get a deterministic revenue-banded score since nothing else about
// them is observable online; e-commerce deals go through an LLM rubric over
// the full enrichment context.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/pkg/anthropic"
)

// DefaultModel is the triage model. Haiku-class is enough: the rubric is
// mechanical and the call happens once per deal.
const DefaultModel = "claude-haiku-4-5-20251001"

// Input is the full enrichment context handed to the scorer.
type Input struct {
	Deal     model.DealContext
	Revenue  *model.RevenueResolution
	Payment  *model.PaymentResult
	Traffic  []string // preformatted SEMrush/SimilarWeb sections
	TechInfo string
}

// Triager scores deals.
type Triager struct {
	llm      anthropic.Client
	llmModel string
	logger   *zap.Logger
}

// New creates a Triager. An empty model selects DefaultModel.
func New(llm anthropic.Client, llmModel string) *Triager {
	if llmModel == "" {
		llmModel = DefaultModel
	}
	return &Triager{llm: llm, llmModel: llmModel, logger: zap.L()}
}

// PhysicalScore is the deterministic revenue-banded score for physical
// stores: N/D 2, under 500K 3, under 1M 5, up to 5M 6, then one extra point
// per additional million, capped at 10.
func PhysicalScore(revenue float64) int {
	switch {
	case revenue <= 0:
		return 2
	case revenue < 500_000:
		return 3
	case revenue < 1_000_000:
		return 5
	case revenue <= 5_000_000:
		return 6
	default:
		extra := int((revenue - 5_000_000) / 1_000_000)
		if 6+extra > 10 {
			return 10
		}
		return 6 + extra
	}
}

// Score triages a deal. It never returns an error: a failed or unparseable
// LLM call yields the zero-value triage with reason "triage_failed".
func (t *Triager) Score(ctx context.Context, in Input) *model.TriageResult {
	physical := in.Deal.PhysicalStore()
	prompt := t.buildPrompt(in, physical)

	resp, err := t.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     t.llmModel,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		t.logger.Error("triage call failed", zap.String("deal", in.Deal.DealName), zap.Error(err))
		return model.FailedTriage()
	}
	resp.Usage.LogCost(t.llmModel, "triage")

	result, err := parseTriage(resp.Text())
	if err != nil {
		t.logger.Error("triage answer unparseable",
			zap.String("deal", in.Deal.DealName),
			zap.String("answer", truncate(resp.Text(), 500)),
			zap.Error(err))
		return model.FailedTriage()
	}

	if physical {
		// The model only fills categorical fields; the score is ours.
		result.Score = PhysicalScore(revenueOf(in.Revenue))
		result.IsEcommerce = false
	}
	if in.Payment != nil && in.Payment.HasBNPL {
		result.HasBNPLCompetitor = true
	}
	result.Reason = fmt.Sprintf("score_%d", result.Score)
	result.CostEUR = resp.Usage.EstimateCost(t.llmModel)
	result.Tokens = resp.Usage.InputTokens + resp.Usage.OutputTokens

	t.logger.Info("deal triaged",
		zap.String("deal", in.Deal.DealName),
		zap.Int("score", result.Score),
		zap.Bool("physical", physical))
	return result
}

func revenueOf(r *model.RevenueResolution) float64 {
	if r == nil {
		return 0
	}
	return r.Numeric
}

func (t *Triager) buildPrompt(in Input, physical bool) string {
	var b strings.Builder

	b.WriteString("You are a BNPL market analyst. ")
	if physical {
		b.WriteString("This deal is a PHYSICAL STORE (brick and mortar).\n\n")
	} else {
		b.WriteString("Assess this E-COMMERCE deal using ONLY the data below.\n\n")
	}

	fmt.Fprintf(&b, "DEAL: %s\n", in.Deal.DealName)
	domain := in.Deal.Domain
	if domain == "" || domain == "N/A" {
		domain = "(not provided)"
	}
	fmt.Fprintf(&b, "DOMAIN: %s\n", domain)
	fmt.Fprintf(&b, "CATEGORY (from CRM): %s\n", orND(in.Deal.Category))
	fmt.Fprintf(&b, "STORE TYPE (from CRM): %s\n", orND(in.Deal.StoreType))
	if in.Revenue != nil {
		fmt.Fprintf(&b, "REVENUE: %s\n", in.Revenue.Value)
	} else {
		fmt.Fprintf(&b, "REVENUE: %s\n", model.NotAvailable)
	}
	if in.Payment != nil {
		if len(in.Payment.Providers) > 0 {
			fmt.Fprintf(&b, "Payment providers detected: %s\n", strings.Join(in.Payment.Providers, ", "))
		}
		if len(in.Payment.BNPLProviders) > 0 {
			fmt.Fprintf(&b, "BNPL competitors detected: %s\n", strings.Join(in.Payment.BNPLProviders, ", "))
		}
	}
	if len(in.Traffic) > 0 {
		b.WriteString(strings.Join(in.Traffic, "\n"))
		b.WriteString("\n")
	} else {
		b.WriteString("Traffic data: not available\n")
	}
	if in.TechInfo != "" {
		b.WriteString(in.TechInfo)
		b.WriteString("\n")
	}

	if physical {
		score := PhysicalScore(revenueOf(in.Revenue))
		fmt.Fprintf(&b, `
PHYSICAL STORE SCORING (revenue only):
- Revenue N/D: score 2
- Under 500K EUR: score 3
- 500K-1M EUR: score 5
- 1M-5M EUR: score 6
- Each 1M EUR above 5M: +1 point (max 10)

THE SCORE IS ALREADY COMPUTED: %d. You MUST use exactly this score.

Answer ONLY with this JSON (no other text):
{
  "score": %d,
  "is_ecommerce": false,
  "monthly_visits": <monthly visits from the data, 0 if N/D>,
  "has_bnpl_competitor": <true/false if Klarna/Clearpay/Afterpay appear in the data>,
  "category": "<sector: Fashion/Electronics/Home/Beauty/Food/Travel/Services/Other>",
  "aov_estimated": "<estimated average order value in EUR or 'N/D'>",
  "summary": "<2-3 sentences: type of physical business, revenue, in-store BNPL potential>"
}`, score, score)
	} else {
		b.WriteString(`
E-COMMERCE SCORING CRITERIA (a 7-10 score requires ALL four):
1. Revenue above 1M EUR (MANDATORY: if N/D or below 1M, score is capped at 6)
2. Modern payment stack (Stripe/PayPal/Adyen/Nexi detected)
3. Medium-high average order value, 120 EUR or more (estimate from category/brand)
4. Modern tech stack (Shopify or WooCommerce in the tech data)

NOTE: the merchandise category itself is NOT a scoring criterion.

Answer ONLY with this JSON (no other text):
{
  "score": <1-10, MUST respect the criteria above>,
  "is_ecommerce": true,
  "monthly_visits": <monthly visits from the data, 0 if N/D>,
  "has_bnpl_competitor": <true/false if Klarna/Clearpay/Afterpay appear in the data>,
  "category": "<sector: Fashion/Electronics/Home/Beauty/Food/Travel/Services/Other>",
  "aov_estimated": "<estimated average order value in EUR, e.g. '€150' or '€50-200' or 'N/D'>",
  "summary": "<2-3 sentences: business, revenue, BNPL fit>"
}`)
	}
	return b.String()
}

func orND(s string) string {
	if s == "" || s == "N/A" {
		return model.NotAvailable
	}
	return s
}

// triageAnswer matches the JSON shape the prompts demand. Numbers arrive as
// json.Number because models sometimes quote them.
type triageAnswer struct {
	Score             json.Number `json:"score"`
	IsEcommerce       bool        `json:"is_ecommerce"`
	MonthlyVisits     json.Number `json:"monthly_visits"`
	HasBNPLCompetitor bool        `json:"has_bnpl_competitor"`
	Category          string      `json:"category"`
	AOVEstimated      string      `json:"aov_estimated"`
	Summary           string      `json:"summary"`
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

func parseTriage(answer string) (*model.TriageResult, error) {
	if idx := strings.Index(answer, "```json"); idx >= 0 {
		answer = answer[idx+len("```json"):]
		if end := strings.Index(answer, "```"); end >= 0 {
			answer = answer[:end]
		}
	} else if idx := strings.Index(answer, "```"); idx >= 0 {
		answer = answer[idx+3:]
		if end := strings.Index(answer, "```"); end >= 0 {
			answer = answer[:end]
		}
	}
	obj := jsonObjectRe.FindString(answer)
	if obj == "" {
		return nil, eris.New("triage: no JSON object in answer")
	}

	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, eris.Wrap(err, "triage: repair JSON")
	}

	var parsed triageAnswer
	dec := json.NewDecoder(strings.NewReader(repaired))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "triage: unmarshal JSON")
	}

	score, err := parsed.Score.Int64()
	if err != nil {
		return nil, eris.Wrap(err, "triage: non-numeric score")
	}
	if score < 0 || score > 10 {
		return nil, eris.Errorf("triage: score %d out of range", score)
	}
	visits, _ := parsed.MonthlyVisits.Int64()

	return &model.TriageResult{
		Score:             int(score),
		Summary:           parsed.Summary,
		IsEcommerce:       parsed.IsEcommerce,
		MonthlyVisits:     visits,
		HasBNPLCompetitor: parsed.HasBNPLCompetitor,
		Category:          orND(parsed.Category),
		AOVEstimated:      orND(parsed.AOVEstimated),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
