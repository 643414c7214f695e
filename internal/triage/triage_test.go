package triage

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/pkg/anthropic"
)

type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastPrompt = req.Messages[len(req.Messages)-1].Content
	if f.err != nil {
		return nil, f.err
	}
	return anthropic.TextResponse(f.answer), nil
}

func TestPhysicalScore(t *testing.T) {
	tests := []struct {
		name    string
		revenue float64
		want    int
	}{
		{"no revenue", 0, 2},
		{"under 500K", 450_000, 3},
		{"under 1M", 800_000, 5},
		{"exactly 1M", 1_000_000, 6},
		{"5M boundary", 5_000_000, 6},
		{"7M", 7_000_000, 8},
		{"capped at 10", 50_000_000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PhysicalScore(tt.revenue))
		})
	}
}

func TestScore_Ecommerce(t *testing.T) {
	llm := &fakeLLM{answer: `{
		"score": 8, "is_ecommerce": true, "monthly_visits": 120000,
		"has_bnpl_competitor": false, "category": "Fashion",
		"aov_estimated": "€150", "summary": "Established fashion retailer."
	}`}
	tr := New(llm, "")

	res := tr.Score(context.Background(), Input{
		Deal:    model.DealContext{DealName: "Moda SRL", Domain: "moda.it", StoreType: "E-commerce"},
		Revenue: &model.RevenueResolution{Value: "€ 3.815.456", Numeric: 3_815_456},
	})

	assert.Equal(t, 8, res.Score)
	assert.Equal(t, "score_8", res.Reason)
	assert.True(t, res.IsEcommerce)
	assert.Equal(t, int64(120000), res.MonthlyVisits)
	assert.Equal(t, "Fashion", res.Category)
	assert.Contains(t, llm.lastPrompt, "E-COMMERCE")
	assert.Contains(t, llm.lastPrompt, "€ 3.815.456")
}

func TestScore_PhysicalStoreOverridesModelScore(t *testing.T) {
	// The model returns a wrong score; the deterministic one must win.
	llm := &fakeLLM{answer: `{
		"score": 9, "is_ecommerce": true, "monthly_visits": 0,
		"has_bnpl_competitor": false, "category": "Food",
		"aov_estimated": "N/D", "summary": "Local food shop."
	}`}
	tr := New(llm, "")

	res := tr.Score(context.Background(), Input{
		Deal:    model.DealContext{DealName: "Bottega", StoreType: "Physical Store"},
		Revenue: &model.RevenueResolution{Value: "€ 800.000", Numeric: 800_000},
	})

	assert.Equal(t, 5, res.Score)
	assert.Equal(t, "score_5", res.Reason)
	assert.False(t, res.IsEcommerce)
	assert.Contains(t, llm.lastPrompt, "PHYSICAL STORE")
}

func TestScore_BNPLDetectionForcesCompetitorFlag(t *testing.T) {
	llm := &fakeLLM{answer: `{"score": 6, "is_ecommerce": true, "summary": "ok"}`}
	tr := New(llm, "")

	res := tr.Score(context.Background(), Input{
		Deal:    model.DealContext{DealName: "Shop"},
		Payment: &model.PaymentResult{HasBNPL: true, BNPLProviders: []string{"Klarna"}},
	})

	assert.True(t, res.HasBNPLCompetitor)
	assert.Contains(t, llm.lastPrompt, "Klarna")
}

func TestScore_CallFailure(t *testing.T) {
	tr := New(&fakeLLM{err: eris.New("api down")}, "")

	res := tr.Score(context.Background(), Input{Deal: model.DealContext{DealName: "X"}})
	assert.Zero(t, res.Score)
	assert.Equal(t, "triage_failed", res.Reason)
}

func TestParseTriage(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		score  int
		ok     bool
	}{
		{
			"plain JSON",
			`{"score": 7, "is_ecommerce": true, "summary": "good fit"}`,
			7, true,
		},
		{
			"fenced JSON with prose",
			"Here is my assessment:\n```json\n{\"score\": 4, \"summary\": \"weak\"}\n```",
			4, true,
		},
		{
			"trailing comma repaired",
			`{"score": 6, "summary": "ok",}`,
			6, true,
		},
		{"no JSON", "I could not assess this deal.", 0, false},
		{"score out of range", `{"score": 42}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseTriage(tt.answer)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
		})
	}
}
