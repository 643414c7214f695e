package main

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/growthops/deal-qualifier/internal/cost"
	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/ledger"
	"github.com/growthops/deal-qualifier/internal/payment"
	"github.com/growthops/deal-qualifier/internal/qualifier"
	"github.com/growthops/deal-qualifier/internal/revenue"
	"github.com/growthops/deal-qualifier/internal/search"
	"github.com/growthops/deal-qualifier/internal/traffic"
	"github.com/growthops/deal-qualifier/internal/triage"
	"github.com/growthops/deal-qualifier/pkg/anthropic"
	"github.com/growthops/deal-qualifier/pkg/browser"
	"github.com/growthops/deal-qualifier/pkg/hubspot"
	"github.com/growthops/deal-qualifier/pkg/ollama"
	"github.com/growthops/deal-qualifier/pkg/semrush"
	"github.com/growthops/deal-qualifier/pkg/similarweb"
	"github.com/growthops/deal-qualifier/pkg/slack"
	"github.com/growthops/deal-qualifier/pkg/tavily"
	"github.com/growthops/deal-qualifier/pkg/vies"
	"github.com/growthops/deal-qualifier/pkg/websearchapi"
)

// env holds everything a command needs, wired from config.
type env struct {
	Qualifier *qualifier.Qualifier
	Ledger    ledger.Ledger
	Resolver  *revenue.Resolver
	Detector  *payment.Detector
	Ollama    ollama.Client
}

func (e *env) Close() {
	if e.Ledger != nil {
		if err := e.Ledger.Close(); err != nil {
			zap.L().Warn("ledger close failed", zap.Error(err))
		}
	}
}

// buildEnv wires the full pipeline from the loaded config. Components whose
// credentials are missing are left unwired; the pipeline degrades their
// sections to N/D.
func buildEnv() (*env, error) {
	crm := hubspot.NewClient(cfg.HubSpot.Token)
	notifier := slack.NewClient(cfg.Slack.Token)

	var led ledger.Ledger
	if cfg.Ledger.Driver == "memory" {
		led = ledger.NewMemory()
	} else {
		l, err := ledger.NewSQLite(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		led = l
	}

	fetcher := fetch.New()
	var renderer browser.Client
	if cfg.Payment.UseBrowser && browser.Available(cfg.Payment.BrowserBinary) {
		var browserOpts []browser.Option
		if cfg.Payment.BrowserBinary != "" {
			browserOpts = append(browserOpts, browser.WithBinary(cfg.Payment.BrowserBinary))
		}
		renderer = browser.NewClient(browserOpts...)
	} else if cfg.Payment.UseBrowser {
		zap.L().Warn("browser binary not found, payment detection falls back to HTTP only")
	}

	var providers []search.Searcher
	if cfg.Search.TavilyKey != "" {
		providers = append(providers, search.NewTavilySearcher(tavily.NewClient(cfg.Search.TavilyKey)))
	}
	if cfg.Search.WebSearchAPIKey != "" {
		providers = append(providers, search.NewWebSearchAPISearcher(websearchapi.NewClient(cfg.Search.WebSearchAPIKey)))
	}
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.Search.RatePerMinute)/60.0), 1)
	searcher := search.NewChain(limiter, providers...)

	llm := revenue.NewLLMExtractor(ollama.NewClient(
		ollama.WithBaseURL(cfg.Ollama.BaseURL),
		ollama.WithModel(cfg.Ollama.Model),
	))
	deps := revenue.Deps{Fetcher: fetcher, Searcher: searcher, LLM: llm}
	resolver := revenue.NewResolver(vies.NewClient(), revenue.DefaultExtractors(deps)...)

	llmClient := anthropic.NewClient(cfg.Anthropic.Key)

	paymentOpts := []payment.Option{
		payment.WithLinkPicker(llmClient, cfg.Anthropic.TriageModel),
	}
	if renderer != nil {
		paymentOpts = append(paymentOpts, payment.WithBrowser(renderer))
	}
	if cfg.Payment.KeywordsPath != "" {
		kw, err := payment.LoadKeywords(cfg.Payment.KeywordsPath)
		if err != nil {
			return nil, err
		}
		paymentOpts = append(paymentOpts, payment.WithKeywords(kw))
	}
	detector := payment.NewDetector(fetcher, paymentOpts...)

	var semrushClient semrush.Client
	if cfg.Semrush.Key != "" {
		semrushClient = semrush.NewClient(cfg.Semrush.Key, semrush.WithDatabase(cfg.Semrush.Database))
	}
	var similarwebClient similarweb.Client
	if cfg.Similarweb.Key != "" {
		similarwebClient = similarweb.NewClient(cfg.Similarweb.Key)
	}

	q := qualifier.New(
		qualifier.Config{
			PipelineID:    cfg.HubSpot.PipelineID,
			Source:        cfg.HubSpot.Source,
			SlackChannel:  cfg.Slack.Channel,
			DealURLFormat: cfg.HubSpot.DealURLFormat,
		},
		crm, notifier, led,
		qualifier.WithTraffic(traffic.NewEnricher(semrushClient, similarwebClient)),
		qualifier.WithRevenue(resolver),
		qualifier.WithPayment(detector),
		qualifier.WithTriage(triage.New(llmClient, cfg.Anthropic.TriageModel)),
		qualifier.WithCostTracker(cost.NewTracker()),
	)

	return &env{
		Qualifier: q,
		Ledger:    led,
		Resolver:  resolver,
		Detector:  detector,
		Ollama: ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModel(cfg.Ollama.Model),
		),
	}, nil
}
