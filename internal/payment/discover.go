package payment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/fetch"
	"github.com/growthops/deal-qualifier/pkg/anthropic"
)

// Common storefront URL shapes, most specific first. The generic deep-path
// pattern comes last so that explicit product paths always win.
var productPathRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)href="(/products?/[^"#?]+)"`),
	regexp.MustCompile(`(?i)href="(/shop/[^"#?]+)"`),
	regexp.MustCompile(`(?i)href="(/p/[^"#?]+)"`),
	regexp.MustCompile(`(?i)href="(/item/[^"#?]+)"`),
	regexp.MustCompile(`(?i)href="(/prodott[oi]/[^"#?]+)"`),
	regexp.MustCompile(`(?i)href="(/[a-z0-9-]+/[a-z0-9-]+/[a-z0-9-]+(?:/[a-z0-9-]+)?)"`),
}

var nonProductSegments = []string{
	"/login", "/accesso", "/register", "/account", "/cart", "/carrello",
	"/checkout", "/cassa", "/privacy", "/cookie", "/terms", "/contatt",
	"/about", "/chi-siamo", "/blog", "/news", "/faq", "/help",
	"/wishlist", "/lista-desideri", "/image/", "/static/", "/css/", "/js/",
}

const maxProductCandidates = 5

// productPaths extracts likely product page paths from storefront HTML.
func productPaths(html string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, re := range productPathRes {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			path := m[1]
			if seen[path] || isNonProductPath(path) {
				continue
			}
			seen[path] = true
			paths = append(paths, path)
			if len(paths) >= maxProductCandidates {
				return paths
			}
		}
	}
	return paths
}

func isNonProductPath(path string) bool {
	lower := strings.ToLower(path)
	for _, seg := range nonProductSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

// isProductPath reports whether a path points at a single purchasable item
// rather than a collection or category listing.
func isProductPath(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range []string{"/product", "/p/", "/item/", "/prodott"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var hrefRe = regexp.MustCompile(`(?i)href="(/[^/"#?][^"]*)"`)

var (
	skipLinkPrefixes = []string{"/cdn", "/static", "/assets", "/js/", "/css/", "/images/", "/img/", "/_"}
	skipLinkSuffixes = []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".woff", ".ttf"}
	skipLinkExact    = map[string]bool{
		"/": true, "/cart": true, "/checkout": true,
		"/search": true, "/account": true, "/login": true,
	}
)

const maxLinksForPicker = 60

// candidateLinks collects deduplicated relative link paths suitable for the
// LLM link picker, with asset and navigation noise removed.
func candidateLinks(html string) []string {
	var links []string
	seen := make(map[string]bool)
	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		href := strings.ToLower(m[1])
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		if href == "" || seen[href] || skipLinkExact[href] {
			continue
		}
		seen[href] = true
		if hasAnyPrefix(href, skipLinkPrefixes) || hasAnySuffix(href, skipLinkSuffixes) {
			continue
		}
		links = append(links, href)
		if len(links) >= maxLinksForPicker {
			break
		}
	}
	return links
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

const linkPickerPrompt = `You are looking at link paths from an e-commerce storefront.
Pick the single best path for reaching a purchasable product.

Rules:
- Prefer an explicit product path (/products/, /product/, /p/, /prodotto/).
- If only collection or category paths exist, pick the collection most likely to contain purchasable items.
- Answer with ONE line containing ONLY the path, for example: /collections/candele-profumate

Paths:
%s`

// pickProductLink asks the LLM to choose a product (or collection) path from
// the page's links. Returns "" when no usable link exists or the model gives
// no parseable answer.
func pickProductLink(ctx context.Context, client anthropic.Client, llmModel, html string) string {
	links := candidateLinks(html)
	if len(links) == 0 || client == nil {
		return ""
	}

	prompt := fmt.Sprintf(linkPickerPrompt, strings.Join(links, "\n"))
	// The store name helps the model tell product paths from editorial ones.
	if title := fetch.Title(html); title != "" {
		prompt = "Storefront: " + title + "\n\n" + prompt
	}

	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     llmModel,
		MaxTokens: 200,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		zap.L().Warn("link picker call failed", zap.Error(err))
		return ""
	}
	resp.Usage.LogCost(llmModel, "payment_link_picker")

	// The model may wrap the path in explanation or markdown; take the first
	// line that looks like a bare path.
	for _, line := range strings.Split(resp.Text(), "\n") {
		line = strings.Trim(strings.TrimSpace(line), "`'\"*")
		if strings.HasPrefix(line, "/") && !strings.Contains(line, " ") {
			return line
		}
	}
	return ""
}
