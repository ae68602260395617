// Package extract scans free text for monetary amounts and date tokens.
//
// It is pure text processing: no I/O, no state. Every function is
// idempotent and order-independent so results can be cached by content.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// separatorPattern finds a comma or dot sitting between an integer part
	// and a 2 or 3 digit fraction, e.g. "45,90" or "12.345".
	separatorPattern = regexp.MustCompile(`(\d)[.,](\d{2,3})`)

	amountPattern = regexp.MustCompile(`\d+\.\d{2,3}`)
)

// Amounts returns the distinct monetary amounts found in text, rounded to
// 2 decimal places and sorted ascending. Returns an empty slice when
// nothing matches.
func Amounts(text string) []decimal.Decimal {
	normalized := separatorPattern.ReplaceAllString(text, "$1.$2")

	seen := make(map[string]bool)
	amounts := make([]decimal.Decimal, 0)

	for _, token := range amountPattern.FindAllString(normalized, -1) {
		value, err := decimal.NewFromString(token)
		if err != nil {
			continue
		}
		value = value.Round(2)

		key := value.StringFixed(2)
		if seen[key] {
			continue
		}
		seen[key] = true
		amounts = append(amounts, value)
	}

	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i].LessThan(amounts[j])
	})

	return amounts
}

// ParseAmount parses a ledger amount such as "-45,90", "1 234,56",
// "1.234,56", "+12.00" or "−3,10". When both separators appear, the last
// one is the decimal separator. The sign is preserved.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\u2212", "-")
	for _, space := range []string{" ", "\u00a0", "\u202f", "'"} {
		s = strings.ReplaceAll(s, space, "")
	}
	s = strings.TrimPrefix(s, "+")
	for _, symbol := range []string{"€", "EUR", "$"} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// WithinTolerance reports whether a and b differ by at most tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
