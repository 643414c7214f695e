// Package identity decides whether a scraped page actually describes the
// target company. Registry sites routinely serve a near-miss (similarly named
// company, stale redirect, homepage) and a revenue figure from the wrong
// company is worse than none.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultNameThreshold is the similarity ratio above which two normalized
// company names are considered the same entity.
const DefaultNameThreshold = 0.6

var (
	legalFormRe   = regexp.MustCompile(`(?i)\b(srl|s\.?r\.?l\.?|spa|s\.?p\.?a\.?|snc|s\.?n\.?c\.?|sas|s\.?a\.?s\.?|ss|s\.?s\.?)\b`)
	punctRe       = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
	slugStripRe   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpacesRe  = regexp.MustCompile(`\s+`)
	vatLabelTmpl  = `(?i)(?:P\.?\s*IVA|Partita\s+IVA|VAT)[:\s]*`
	nameMinLength = 5
)

// NormalizeName lowercases, strips legal-form tokens and punctuation, and
// collapses whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = legalFormRe.ReplaceAllString(name, "")
	name = punctRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// FuzzyMatchName reports whether two company names refer to the same entity.
// Both sides are normalized before an edit-distance similarity ratio is
// computed against the threshold.
func FuzzyMatchName(searched, found string, threshold float64) bool {
	a := NormalizeName(searched)
	b := NormalizeName(found)
	if a == "" || b == "" {
		return false
	}
	return levenshtein.Similarity(a, b, nil) >= threshold
}

// NormalizeVAT splits a VAT identifier into country prefix and bare number.
// An identifier with no alphabetic prefix is assumed domestic (IT).
func NormalizeVAT(vat string) (country, number string) {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vat), " ", ""))
	if len(clean) >= 2 && isAlpha(clean[:2]) {
		return clean[:2], clean[2:]
	}
	return "IT", clean
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// VATInText reports whether the identifier appears anywhere in the page,
// matching the bare number, the country-prefixed form, or a labelled form
// ("P.IVA: 00139110076").
func VATInText(text, vat string) bool {
	country, number := NormalizeVAT(vat)
	if number == "" {
		return false
	}
	escaped := regexp.QuoteMeta(number)
	patterns := []string{
		`\b` + escaped + `\b`,
		`\b` + country + `\s*` + escaped + `\b`,
		vatLabelTmpl + escaped + `\b`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(`(?i)` + p).MatchString(text) {
			return true
		}
	}
	return false
}

// Slug converts a company name into a URL slug: NFKD fold to ASCII,
// lowercase, non-alphanumerics dropped, spaces to hyphens.
func Slug(name string) string {
	folded := foldASCII(strings.ToLower(name))
	folded = slugStripRe.ReplaceAllString(folded, "")
	return strings.Trim(slugSpacesRe.ReplaceAllString(strings.TrimSpace(folded), "-"), "-")
}

// BaseSlug is Slug with the legal form stripped first ("grivel" rather than
// "grivel-srl"); registries are inconsistent about including it.
func BaseSlug(name string) string {
	return Slug(strings.TrimSpace(legalFormRe.ReplaceAllString(name, "")))
}

func foldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	// Drop anything that survived decomposition but is still non-ASCII.
	var b strings.Builder
	for _, r := range out {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PageName extracts the most plausible company name from a page's h1, title
// or meta description, in that order. Returns "" when nothing plausible is
// found.
func PageName(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	candidates := []string{
		strings.TrimSpace(doc.Find("h1").First().Text()),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
	}
	for _, c := range candidates {
		// Titles often carry "Name : details | site" suffixes.
		for _, sep := range []string{" | ", " : ", " - "} {
			if idx := strings.Index(c, sep); idx > 0 {
				c = c[:idx]
			}
		}
		c = strings.TrimSpace(c)
		if len(c) > nameMinLength {
			return c
		}
	}
	return ""
}

// Validate runs both identity checks against a fetched page and returns the
// outcome with a note listing which checks passed.
func Validate(companyName, vat, html string) (bool, string) {
	var passed []string

	if name := PageName(html); name != "" && FuzzyMatchName(companyName, name, DefaultNameThreshold) {
		passed = append(passed, "name matched ('"+name+"')")
	}
	if vat != "" && vat != "N/A" && VATInText(html, vat) {
		passed = append(passed, "VAT matched")
	}

	if len(passed) == 0 {
		return false, "name/VAT not verified"
	}
	return true, strings.Join(passed, ", ")
}
