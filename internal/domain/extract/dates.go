package extract

import (
	"regexp"
	"strconv"
	"time"
)

var (
	dateTokenPattern = regexp.MustCompile(`\d{1,4}[/-]\d{1,2}[/-]\d{1,4}`)

	isoDatePattern   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	dayFirstPattern  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	shortYearPattern = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2})$`)
)

// DateTokens returns every date-shaped substring of text in order of
// appearance. Tokens are not validated; use ParseDate on each.
func DateTokens(text string) []string {
	tokens := dateTokenPattern.FindAllString(text, -1)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// ParseDate parses YYYY-MM-DD, DD/MM/YYYY, DD-MM-YYYY, DD/MM/YY and DD-MM-YY.
// Two digit years map to 2000+YY. Returns false for any other shape or for
// a calendar date that does not exist. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := shortYearPattern.FindStringSubmatch(s); m != nil {
		return buildDate(2000+atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	return time.Time{}, false
}

// FirstDate returns the first token in text that parses as a date.
func FirstDate(text string) (time.Time, bool) {
	for _, token := range DateTokens(text) {
		if d, ok := ParseDate(token); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// Date builds a validated calendar date. It rejects out-of-range parts
// instead of letting time.Date normalize them (Feb 30 is not Mar 2).
func Date(year, month, day int) (time.Time, bool) {
	return buildDate(year, month, day)
}

func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
