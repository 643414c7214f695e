package payment

import (
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Keywords maps lowercase page keywords to provider display names. BNPL
// providers are tracked separately because their presence is the primary
// competitive signal.
type Keywords struct {
	Payment map[string]string `yaml:"payment"`
	BNPL    map[string]string `yaml:"bnpl"`
}

// DefaultKeywords returns the built-in provider tables.
// "alma" is deliberately absent: it collides with too many product names
// (handbag lines, "calma") to detect reliably.
func DefaultKeywords() *Keywords {
	return &Keywords{
		Payment: map[string]string{
			"stripe":     "Stripe",
			"paypal":     "PayPal",
			"nexi":       "Nexi",
			"adyen":      "Adyen",
			"square":     "Square",
			"satispay":   "Satispay",
			"apple pay":  "Apple Pay",
			"google pay": "Google Pay",
		},
		BNPL: map[string]string{
			"klarna":    "Klarna",
			"clearpay":  "Clearpay",
			"afterpay":  "Afterpay",
			"scalapay":  "Scalapay",
			"oney":      "Oney",
			"pagolight": "PagoLight",
			"cofidis":   "Cofidis",
			"soisy":     "Soisy",
			"heylight":  "HeyLight",
			"pay in 3":  "PayPal Pay in 3",
			"pay in 4":  "Pay in 4",
			"paga in 3": "Pay in 3",
			"paga in 4": "Pay in 4",
		},
	}
}

// LoadKeywords reads a YAML override file and merges it over the defaults.
// Entries with an empty display name remove the keyword.
func LoadKeywords(path string) (*Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "payment: read keywords file %s", path)
	}
	var override Keywords
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "payment: parse keywords file %s", path)
	}
	kw.merge(&override)
	return kw, nil
}

func (k *Keywords) merge(other *Keywords) {
	for keyword, name := range other.Payment {
		if name == "" {
			delete(k.Payment, keyword)
		} else {
			k.Payment[keyword] = name
		}
	}
	for keyword, name := range other.BNPL {
		if name == "" {
			delete(k.BNPL, keyword)
		} else {
			k.BNPL[keyword] = name
		}
	}
}

// matcher pairs a compiled word-boundary pattern with its provider name.
type matcher struct {
	re   *regexp.Regexp
	name string
}

// compile builds word-boundary matchers so that "money" never matches "oney"
// and "company" never matches "pay". Keywords may contain spaces, so the
// guard is "no adjacent letter" rather than \b.
func compile(table map[string]string) []matcher {
	keywords := make([]string, 0, len(table))
	for keyword := range table {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	out := make([]matcher, 0, len(keywords))
	for _, keyword := range keywords {
		re := regexp.MustCompile(`(?i)(?:^|[^a-z])` + regexp.QuoteMeta(keyword) + `(?:[^a-z]|$)`)
		out = append(out, matcher{re: re, name: table[keyword]})
	}
	return out
}
