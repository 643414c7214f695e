// Package money converts heterogeneous textual monetary representations into
// canonical numeric values. Italian registry sites mix thousands-dot grouping
// ("3.815.456,00"), scale suffixes ("23.5 mln", "1.2 mld", "450 K") and plain
// decimals, often inside the same page.
package money

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixRe = regexp.MustCompile(`(?i)([\d.,]+)\s*(mln|milion\w*|mld|miliard\w*|[kmb])\b`)
	cleanRe  = regexp.MustCompile(`[^\d.,]`)
)

// Parse converts a textual amount to a float. Returns 0 for empty, "N/D",
// "N/A" or anything it cannot make sense of; it never panics on arbitrary
// input. A scale suffix takes precedence over digit-grouping parsing.
func Parse(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "N/D" || trimmed == "N/A" {
		return 0
	}

	trimmed = strings.ReplaceAll(trimmed, "€", "")
	trimmed = strings.ReplaceAll(trimmed, "EUR", "")
	trimmed = strings.TrimSpace(trimmed)

	if m := suffixRe.FindStringSubmatch(trimmed); m != nil {
		numStr := strings.ReplaceAll(m[1], ",", ".")
		// "1.234.5" style garbage: keep only the last dot as decimal point.
		if strings.Count(numStr, ".") > 1 {
			last := strings.LastIndex(numStr, ".")
			numStr = strings.ReplaceAll(numStr[:last], ".", "") + numStr[last:]
		}
		value, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0
		}
		switch strings.ToLower(m[2])[0] {
		case 'k':
			return value * 1_000
		case 'b':
			return value * 1_000_000_000
		default: // mln, milioni, mld, miliardi, m
			if strings.HasPrefix(strings.ToLower(m[2]), "mld") || strings.HasPrefix(strings.ToLower(m[2]), "miliard") {
				return value * 1_000_000_000
			}
			return value * 1_000_000
		}
	}

	clean := cleanRe.ReplaceAllString(trimmed, "")
	if clean == "" {
		return 0
	}

	// Comma present: Italian convention, comma is the decimal separator and
	// dots group thousands ("3.815.456,00").
	if strings.Contains(clean, ",") {
		parts := strings.SplitN(clean, ",", 2)
		intPart := strings.ReplaceAll(parts[0], ".", "")
		decPart := "0"
		if len(parts) > 1 && parts[1] != "" {
			decPart = parts[1]
		}
		value, err := strconv.ParseFloat(intPart+"."+decPart, 64)
		if err != nil {
			return 0
		}
		return value
	}

	// Dots only: decide between thousands grouping and a decimal point.
	dotParts := strings.Split(clean, ".")
	switch {
	case len(dotParts) > 2:
		// "3.815.456": all dots group thousands.
		value, err := strconv.ParseFloat(strings.ReplaceAll(clean, ".", ""), 64)
		if err != nil {
			return 0
		}
		return value
	case len(dotParts) == 2 && len(dotParts[1]) == 3:
		// "815.456": a single 3-digit group is a thousands separator.
		value, err := strconv.ParseFloat(dotParts[0]+dotParts[1], 64)
		if err != nil {
			return 0
		}
		return value
	default:
		// "23.5" or "23": plain decimal.
		value, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0
		}
		return value
	}
}

// FormatEUR renders a numeric amount the way the report displays it:
// millions get a "mln" suffix, smaller amounts get Italian thousands dots.
func FormatEUR(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("€ %.1f mln", v/1_000_000)
	case v >= 1_000:
		return "€ " + groupThousands(int64(v+0.5))
	case v > 0:
		return fmt.Sprintf("€ %.0f", v)
	default:
		return "N/D"
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RangeMidpoint parses a CRM revenue band like "1M - 5M" or
// "500.000-1.000.000" to its midpoint. A plain value parses to itself;
// unparseable input yields 0.
func RangeMidpoint(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" || s == "N/D" {
		return 0
	}
	if idx := strings.Index(s, "-"); idx > 0 {
		low := Parse(strings.TrimSpace(s[:idx]))
		high := Parse(strings.TrimSpace(s[idx+1:]))
		if low > 0 && high > 0 {
			return (low + high) / 2
		}
		if high > 0 {
			return high
		}
		return low
	}
	return Parse(s)
}
