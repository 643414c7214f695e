package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTextCap bounds how much page text gets handed to downstream LLM
// prompts. Registry pages front-load the company data, so the head of the
// document is what matters.
const DefaultTextCap = 6000

var spaceRe = regexp.MustCompile(`[ \t]+`)
var blankRe = regexp.MustCompile(`\n{3,}`)

// Text converts HTML to plaintext: scripts, styles and chrome removed, tags
// stripped, whitespace collapsed, capped at maxLen runes (0 means no cap).
func Text(html string, maxLen int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, footer, header, iframe").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
	})
	text := b.String()
	if text == "" {
		text = doc.Text()
	}

	text = spaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(blankRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))

	if maxLen > 0 {
		if runes := []rune(text); len(runes) > maxLen {
			return string(runes[:maxLen])
		}
	}
	return text
}

// Title pulls the <title> of a page, trimmed.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
