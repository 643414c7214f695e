// Package payment detects payment processors and buy-now-pay-later providers
// on merchant storefronts. Detection walks the purchase funnel in three
// stages (homepage, product page, checkout) because BNPL widgets often render
// only deep in the funnel; the final confidence reflects how far the walk got.
package payment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/internal/model"
	"github.com/growthops/deal-qualifier/pkg/anthropic"
	"github.com/growthops/deal-qualifier/pkg/browser"
)

// Checkout-stage paths probed over plain HTTP no matter how the scripted
// flow went. Many BNPL widgets render only on these pages.
var cartCheckoutPaths = []string{
	"/cart", "/carrello", "/basket", "/shopping-cart",
	"/checkout", "/cassa", "/payment", "/order",
}

// Clicks the add-to-cart control via the DOM instead of simulated pointer
// events, which time out on storefronts with animated buttons.
const addToCartJS = `(function(){var b=document.querySelectorAll("button,[role=button],input[type=submit]");var k=["aggiungi al carrello","add to cart","acquista ora","buy now","buy it now","compra ora"];for(var i=0;i<b.length;i++){var t=b[i].textContent.toLowerCase().trim();for(var j=0;j<k.length;j++){if(t.indexOf(k[j])>=0){b[i].click();return"clicked:"+t.substring(0,40)}}}var s=document.querySelector("[name=add],.product-form__submit,[data-add-to-cart]");if(s){s.click();return"shopify"}return"none"})()`

const checkoutJS = `(function(){var b=document.querySelectorAll("button,a,[role=button],input[type=submit]");var k=["checkout","pagamento","procedi al checkout","vai al pagamento","paga ora","cassa","procedi all"];for(var i=0;i<b.length;i++){var t=b[i].textContent.toLowerCase().trim();for(var j=0;j<k.length;j++){if(t.indexOf(k[j])>=0){b[i].click();return"clicked:"+t.substring(0,40)}}}var s=document.querySelector("[name=checkout],.cart__checkout-button,a[href*=checkout]");if(s){s.click();return"shopify"}return"none"})()`

// Detector walks a storefront's purchase funnel looking for provider
// keywords. The scripted browser and the LLM link picker are both optional;
// without them detection degrades to HTTP-only with lower coverage.
type Detector struct {
	fetcher  *fetch.Client
	browser  browser.Client
	llm      anthropic.Client
	llmModel string

	paymentMatchers []matcher
	bnplMatchers    []matcher
	logger          *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithBrowser enables the scripted-browser checkout flow.
func WithBrowser(b browser.Client) Option {
	return func(d *Detector) { d.browser = b }
}

// WithLinkPicker enables LLM-assisted product link discovery.
func WithLinkPicker(client anthropic.Client, llmModel string) Option {
	return func(d *Detector) {
		d.llm = client
		d.llmModel = llmModel
	}
}

// WithKeywords replaces the built-in provider tables.
func WithKeywords(kw *Keywords) Option {
	return func(d *Detector) {
		d.paymentMatchers = compile(kw.Payment)
		d.bnplMatchers = compile(kw.BNPL)
	}
}

// NewDetector creates a Detector with the default keyword tables.
func NewDetector(fetcher *fetch.Client, opts ...Option) *Detector {
	kw := DefaultKeywords()
	d := &Detector{
		fetcher:         fetcher,
		paymentMatchers: compile(kw.Payment),
		bnplMatchers:    compile(kw.BNPL),
		logger:          zap.L(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect inspects a merchant domain and reports which payment and BNPL
// providers appear, where in the funnel they appear, and how much the
// absence-of-evidence can be trusted. It never returns an error: blocked or
// unreachable sites yield a low-confidence result instead.
func (d *Detector) Detect(ctx context.Context, domain string) *model.PaymentResult {
	res := model.NewPaymentResult()
	if domain == "" || domain == "N/A" {
		res.Confidence = model.PaymentConfidence{Score: 0, Label: "low", Reason: "no domain to inspect"}
		return res
	}

	base := domain
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/")

	s := &session{d: d, base: base, res: res, checked: make(map[string]bool)}
	d.logger.Info("payment detection started", zap.String("domain", domain))

	homepageHTML := s.fetchAndScan(ctx, base, model.StageHomepage)
	s.homepageOK = homepageHTML != ""

	if homepageHTML != "" {
		s.discoverProduct(ctx, homepageHTML)
	}
	if !s.pdpReached && d.browser != nil {
		// JS-rendered storefronts expose no product links in raw HTML.
		s.discoverProductViaBrowser(ctx)
	}

	s.checkoutFlow(ctx)

	// Safety net: the scripted flow can silently fail, so the fixed paths are
	// probed whenever checkout-stage BNPL has not been confirmed yet.
	if !res.Locations[model.StageCheckout] {
		for _, path := range cartCheckoutPaths {
			if s.fetchAndScan(ctx, base+path, model.StageCheckout) != "" {
				s.checkoutReached = true
			}
			if res.Locations[model.StageCheckout] {
				s.checkoutReached = true
				break
			}
		}
	}

	d.score(s)
	d.logger.Info("payment detection complete",
		zap.String("domain", domain),
		zap.Strings("providers", res.Providers),
		zap.Strings("bnpl", res.BNPLProviders),
		zap.Bool("has_bnpl", res.HasBNPL),
		zap.Int("score", res.Confidence.Score),
		zap.String("method", res.Method))
	return res
}

// session carries the per-detection state across the funnel stages.
type session struct {
	d       *Detector
	base    string
	res     *model.PaymentResult
	checked map[string]bool

	homepageOK      bool
	pdpReached      bool
	pdpURL          string
	checkoutReached bool
}

func (s *session) abs(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.base + path
	}
	return path
}

// fetchAndScan fetches a URL once, scans it for provider keywords and returns
// the HTML, or "" on any failure. Blocks are recorded but never escalate.
func (s *session) fetchAndScan(ctx context.Context, url string, stage model.FunnelStage) string {
	if s.checked[url] {
		return ""
	}
	s.checked[url] = true

	page, err := s.d.fetcher.Get(ctx, url)
	if err != nil {
		s.d.logger.Warn("payment fetch failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	if page.Blocked {
		s.recordBlock(page.BlockType)
		return ""
	}
	if page.StatusCode >= 400 {
		return ""
	}

	s.scan(page.Body, stage)
	return page.Body
}

func (s *session) recordBlock(bt fetch.BlockType) {
	if s.res.BlockedBy != "" {
		return
	}
	switch bt {
	case fetch.BlockCloudflare:
		s.res.BlockedBy = "Cloudflare"
	case fetch.BlockCaptcha:
		s.res.BlockedBy = "bot protection (captcha)"
	default:
		s.res.BlockedBy = "bot protection"
	}
}

func (s *session) scan(text string, stage model.FunnelStage) {
	lower := strings.ToLower(text)
	for _, m := range s.d.bnplMatchers {
		if m.re.MatchString(lower) {
			s.res.HasBNPL = true
			s.res.Locations[stage] = true
			s.res.BNPLProviders = appendUnique(s.res.BNPLProviders, m.name)
		}
	}
	for _, m := range s.d.paymentMatchers {
		if m.re.MatchString(lower) {
			s.res.Providers = appendUnique(s.res.Providers, m.name)
		}
	}
}

// scanSnapshot checks a browser accessibility snapshot, which catches
// JS-rendered widgets the raw HTML fetch misses.
func (s *session) scanSnapshot(snap string, stage model.FunnelStage) {
	lower := strings.ToLower(snap)
	if strings.Contains(lower, "verifying you are human") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "security")) {
		s.recordBlock(fetch.BlockCloudflare)
		return
	}
	if strings.Contains(lower, "captcha") && len(snap) < 500 {
		s.recordBlock(fetch.BlockCaptcha)
		return
	}
	s.scan(snap, stage)
}

// discoverProduct finds and scans a product page: regex over the homepage
// links first, then the LLM link picker, with one level of collection
// drill-down when the picked link is a category rather than a single item.
func (s *session) discoverProduct(ctx context.Context, homepageHTML string) {
	for _, path := range productPaths(homepageHTML) {
		if html := s.fetchAndScan(ctx, s.abs(path), model.StageProduct); html != "" {
			s.pdpReached = true
			s.pdpURL = s.abs(path)
			s.d.logger.Debug("product page found via url patterns", zap.String("url", s.pdpURL))
			return
		}
	}

	if s.d.llm == nil {
		return
	}
	path := pickProductLink(ctx, s.d.llm, s.d.llmModel, homepageHTML)
	if path == "" {
		return
	}
	html := s.fetchAndScan(ctx, s.abs(path), model.StageProduct)
	if html == "" {
		return
	}
	if isProductPath(path) {
		s.pdpReached = true
		s.pdpURL = s.abs(path)
		s.d.logger.Debug("product page found via link picker", zap.String("url", s.pdpURL))
		return
	}

	// Collection page: drill one level down for an actual item.
	inner := productPaths(html)
	if len(inner) == 0 {
		if p := pickProductLink(ctx, s.d.llm, s.d.llmModel, html); p != "" {
			inner = []string{p}
		}
	}
	if len(inner) > 3 {
		inner = inner[:3]
	}
	for _, p := range inner {
		if h := s.fetchAndScan(ctx, s.abs(p), model.StageProduct); h != "" {
			s.pdpReached = true
			s.pdpURL = s.abs(p)
			s.d.logger.Debug("product page found via collection drill-down", zap.String("url", s.pdpURL))
			return
		}
	}
}

// discoverProductViaBrowser retries discovery on the rendered homepage.
func (s *session) discoverProductViaBrowser(ctx context.Context) {
	rendered, err := s.d.browser.Render(ctx, s.base)
	if err != nil {
		s.d.logger.Debug("homepage render failed", zap.Error(err))
		return
	}
	s.res.Method = "browser"
	s.scan(rendered, model.StageHomepage)
	s.homepageOK = true
	s.discoverProduct(ctx, rendered)
}

// checkoutFlow drives the scripted browser through add-to-cart and checkout.
func (s *session) checkoutFlow(ctx context.Context) {
	if s.d.browser == nil {
		return
	}
	s.res.Method = "browser"

	if s.pdpReached {
		if snap, err := s.d.browser.Snapshot(ctx, s.pdpURL); err == nil {
			s.scanSnapshot(snap, model.StageProduct)
		}
		if out, err := s.d.browser.Eval(ctx, s.pdpURL, addToCartJS); err == nil {
			s.d.logger.Debug("add to cart", zap.String("result", out))
		} else {
			s.d.logger.Warn("add to cart failed", zap.Error(err))
		}
	}

	cartURL := s.base + "/cart"
	snap, err := s.d.browser.Snapshot(ctx, cartURL)
	if err != nil {
		s.d.logger.Warn("cart snapshot failed", zap.Error(err))
		return
	}
	s.scanSnapshot(snap, model.StageCheckout)
	s.checkoutReached = true

	if out, err := s.d.browser.Eval(ctx, cartURL, checkoutJS); err == nil {
		s.d.logger.Debug("checkout navigation", zap.String("result", out))
	}
}

// score derives the 0-100 confidence. A BNPL hit is graded by how deep in
// the funnel it was confirmed; a no-BNPL claim is graded by how much of the
// funnel was actually inspected. An anti-bot block caps the label at low
// either way, since a blocked site hides exactly the pages that matter.
func (d *Detector) score(s *session) {
	res := s.res
	stepsChecked := 0
	for _, ok := range []bool{s.homepageOK, s.pdpReached, s.checkoutReached || res.Locations[model.StageCheckout]} {
		if ok {
			stepsChecked++
		}
	}

	var score int
	var reason string

	if res.HasBNPL {
		locCount := 0
		for _, hit := range res.Locations {
			if hit {
				locCount++
			}
		}
		switch {
		case res.Locations[model.StageCheckout]:
			score = 80
			if locCount > 1 {
				score = 90
			}
			reason = "BNPL confirmed at checkout"
		case res.Locations[model.StageProduct]:
			score = 65
			reason = "BNPL found on product page, not verified at checkout"
		default:
			score = 40
			reason = "BNPL found on homepage only (may be a mention or logo)"
		}
		if res.Method == "browser" && score < 100 {
			score += 5
		}
		if res.BlockedBy != "" && score > 45 {
			score = 45
			reason += fmt.Sprintf(" (partially blocked by %s)", res.BlockedBy)
		}
	} else {
		switch {
		case res.BlockedBy != "":
			score = 20
			reason = fmt.Sprintf("site blocked by %s, inspection unreliable", res.BlockedBy)
		case stepsChecked == 3:
			score = 85
			reason = "no BNPL detected (homepage, product and checkout inspected)"
		case stepsChecked == 2:
			score = 55
			reason = "no BNPL detected (2 of 3 funnel stages inspected)"
		default:
			score = 30
			reason = "no BNPL detected (homepage only)"
		}
	}

	label := "low"
	switch {
	case score >= 75:
		label = "high"
	case score >= 50:
		label = "medium"
	}
	res.Confidence = model.PaymentConfidence{Score: score, Label: label, Reason: reason}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
