package revenue

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
	"github.com/growthops/deal-qualifier/pkg/ollama"
)

// Extraction is one strategy's claim about the page's revenue figure.
type Extraction struct {
	Raw        string
	Confidence model.Confidence
}

// Strategy attempts to pull a revenue figure out of raw HTML. Strategies run
// in priority order; the first hit wins.
type Strategy interface {
	Name() string
	TryExtract(html string) (Extraction, bool)
}

// patternStrategy anchors a regex to a known fragment of a source's markup.
// The first capture group must be the monetary amount.
type patternStrategy struct {
	name       string
	re         *regexp.Regexp
	confidence model.Confidence
}

// NewPatternStrategy builds a Strategy from an anchored regex. The pattern's
// first capture group is taken as the amount.
func NewPatternStrategy(name, pattern string, confidence model.Confidence) Strategy {
	return &patternStrategy{
		name:       name,
		re:         regexp.MustCompile(pattern),
		confidence: confidence,
	}
}

func (s *patternStrategy) Name() string { return s.name }

func (s *patternStrategy) TryExtract(html string) (Extraction, bool) {
	m := s.re.FindStringSubmatch(html)
	if m == nil || len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return Extraction{}, false
	}
	return Extraction{
		Raw:        "€ " + strings.TrimSpace(m[1]),
		Confidence: s.confidence,
	}, true
}

// negativeContexts are terms that commonly sit next to a number that is NOT
// revenue in financial-summary layouts. A sweep match whose surroundings
// contain any of them is discarded.
var negativeContexts = []string{
	"capitale sociale", "capitale soc.", "cap. soc.", "cap sociale",
	"patrimonio netto", "patr. netto", "patrimonio",
	"debiti", "debito",
	"attivo", "passivo",
	"immobilizzazioni", "immob.",
	"crediti", "credito",
}

var (
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	wsRe       = regexp.MustCompile(`\s+`)
	sweepRe    = regexp.MustCompile(`(?i)(?:fatturato|ricavi).{0,80}?(\d{1,3}(?:\.\d{3})+(?:,\d{2})?)\s*(?:€|euro)?`)
	sweepGuard = 100
)

// keywordSweepStrategy de-tags the page and looks for a thousand-grouped
// amount near a revenue keyword. Requiring grouped digits keeps small
// unrelated numbers out; the negative-context guard keeps share capital and
// balance-sheet figures out.
type keywordSweepStrategy struct{}

// NewKeywordSweepStrategy returns the generic last-regex-resort sweep.
func NewKeywordSweepStrategy() Strategy {
	return keywordSweepStrategy{}
}

func (keywordSweepStrategy) Name() string { return "keyword_sweep" }

func (keywordSweepStrategy) TryExtract(html string) (Extraction, bool) {
	text := wsRe.ReplaceAllString(tagRe.ReplaceAllString(html, " "), " ")

	loc := sweepRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Extraction{}, false
	}
	amount := text[loc[2]:loc[3]]

	start := loc[0] - sweepGuard
	if start < 0 {
		start = 0
	}
	end := loc[1] + sweepGuard
	if end > len(text) {
		end = len(text)
	}
	context := strings.ToLower(text[start:end])
	for _, neg := range negativeContexts {
		if strings.Contains(context, neg) {
			zap.L().Debug("sweep candidate discarded",
				zap.String("amount", amount),
				zap.String("negative_context", neg))
			return Extraction{}, false
		}
	}

	return Extraction{
		Raw:        "€ " + amount,
		Confidence: model.ConfidenceMedium,
	}, true
}

// RunStrategies evaluates strategies in order and returns the first hit.
func RunStrategies(html string, strategies []Strategy) (Extraction, string, bool) {
	for _, s := range strategies {
		if ex, ok := s.TryExtract(html); ok {
			return ex, s.Name(), true
		}
	}
	return Extraction{}, "", false
}

// LLMExtractor is the absolute last resort: hand the cleaned page text to a
// local small model and parse a single JSON object out of the answer. Only
// used when the page is already known to be the right company's detail page.
type LLMExtractor struct {
	client ollama.Client
}

// NewLLMExtractor wraps an Ollama client.
func NewLLMExtractor(c ollama.Client) *LLMExtractor {
	return &LLMExtractor{client: c}
}

type llmExtraction struct {
	Fatturato    string `json:"fatturato"`
	AnnoBilancio string `json:"anno_bilancio"`
}

// Extract asks the local model for the annual revenue in the page text.
// Returns soft failures as errors; the caller degrades to N/D.
func (e *LLMExtractor) Extract(ctx context.Context, pageText, companyName, vat string) (raw, fiscalYear string, err error) {
	if e == nil || e.client == nil {
		return "", "", eris.New("llm extractor: not configured")
	}
	if err := e.client.Health(ctx); err != nil {
		return "", "", eris.Wrap(err, "llm extractor: health check")
	}

	if len(pageText) > 3000 {
		pageText = pageText[:3000]
	}
	prompt := fmt.Sprintf(`From the following text, taken from the financial page of company %s (VAT %s),
extract ONLY the annual revenue (fatturato/ricavi).

PAGE TEXT:
%s

Answer ONLY with this JSON (no other text):
{
  "fatturato": "<amount in euro, e.g. '459.326' or '3.815.456' or 'N/D'>",
  "anno_bilancio": "<year, e.g. '2024' or 'N/D'>"
}`, companyName, vat, pageText)

	answer, err := e.client.Generate(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	parsed, err := parseLLMJSON(answer)
	if err != nil {
		return "", "", err
	}
	if parsed.Fatturato == "" || parsed.Fatturato == model.NotAvailable {
		return "", "", eris.New("llm extractor: no revenue in answer")
	}
	raw = parsed.Fatturato
	if !strings.HasPrefix(raw, "€") {
		raw = "€ " + raw
	}
	if parsed.AnnoBilancio != "" && parsed.AnnoBilancio != model.NotAvailable {
		fiscalYear = parsed.AnnoBilancio
	}
	return raw, fiscalYear, nil
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseLLMJSON tolerates markdown fences and mildly broken JSON, which small
// local models produce constantly.
func parseLLMJSON(answer string) (*llmExtraction, error) {
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
		return nil, eris.New("llm extractor: no JSON object in answer")
	}

	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, eris.Wrap(err, "llm extractor: repair JSON")
	}

	var out llmExtraction
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, eris.Wrap(err, "llm extractor: unmarshal JSON")
	}
	return &out, nil
}

// Shared auxiliary-fact patterns.
var (
	fiscalYearRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)nell'esercizio\s+(\d{4})`),
		regexp.MustCompile(`(?i)(?:fatturato|bilancio|esercizio)[^(]{0,40}\((\d{4})\)`),
		regexp.MustCompile(`(?i)(?:Anno|Esercizio|Bilancio)[:\s]+(\d{4})`),
	}
	employeesRe = regexp.MustCompile(`(?i)(\d+)\s*addetti`)
	profitRe    = regexp.MustCompile(`(?i)(?:utile|perdita)[^<]*?<b>\s*([-\d.,]+)\s*€`)
)

// FiscalYear pulls a balance-sheet year out of the page, "" when absent.
func FiscalYear(html string) string {
	for _, re := range fiscalYearRes {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1]
		}
	}
	return ""
}

// Employees pulls a headcount out of the page, "" when absent.
func Employees(html string) string {
	if m := employeesRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// ProfitLoss pulls a profit or loss amount out of the page, "" when absent.
func ProfitLoss(html string) string {
	if m := profitRe.FindStringSubmatch(html); m != nil {
		return "€ " + strings.TrimSpace(m[1])
	}
	return ""
}
