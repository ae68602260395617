package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/domain/extract"
)

// DefaultCardMarker prefixes card payments on French statements ("CB AMAZON ...").
const DefaultCardMarker = "CB "

var (
	bracketedCardDate = regexp.MustCompile(`\[(\d{6})\]`)
	bareCardDate      = regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`)
	vendorRun         = regexp.MustCompile(`^[A-Za-z0-9._-]+`)
)

// Normalizer converts raw statement rows into transactions
type Normalizer struct {
	cardMarker      string
	ignoredPatterns []string
}

// NewNormalizer creates a normalizer. An empty cardMarker uses DefaultCardMarker.
func NewNormalizer(cardMarker string, ignoredPatterns []string) *Normalizer {
	if cardMarker == "" {
		cardMarker = DefaultCardMarker
	}
	patterns := make([]string, 0, len(ignoredPatterns))
	for _, p := range ignoredPatterns {
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Normalizer{
		cardMarker:      cardMarker,
		ignoredPatterns: patterns,
	}
}

// Normalize builds a Transaction from raw. It fails with ErrUnparsableDate
// or ErrUnparsableAmount; every other irregularity (bad card date, missing
// vendor) degrades to the statement data.
func (n *Normalizer) Normalize(raw RawTransaction) (Transaction, error) {
	statementDate, ok := extract.ParseDate(strings.TrimSpace(raw.Date))
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnparsableDate, raw.Date)
	}

	amount, ok := extract.ParseAmount(raw.Amount)
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnparsableAmount, raw.Amount)
	}

	tx := Transaction{
		Reference:        raw.Reference,
		Label:            raw.Label,
		Detail:           raw.Detail,
		StatementDate:    statementDate,
		ReferenceDate:    statementDate,
		Amount:           amount,
		IsCardSettlement: n.IsCardLabel(raw.Label),
		IsIgnored:        IsIgnored(raw.Label, n.ignoredPatterns),
	}

	if tx.IsCardSettlement {
		if d, ok := CardSettlementDate(raw.Label); ok {
			tx.CardSettlementDate = &d
			tx.ReferenceDate = d
		}
		tx.VendorToken = n.VendorToken(raw.Label)
	}

	return tx, nil
}

// IsCardLabel reports whether label starts with the card marker
func (n *Normalizer) IsCardLabel(label string) bool {
	return strings.HasPrefix(label, n.cardMarker)
}

// VendorToken returns the lower-cased alphanumeric run right after the card
// marker, or "" for non-card labels.
func (n *Normalizer) VendorToken(label string) string {
	if !n.IsCardLabel(label) {
		return ""
	}
	rest := strings.TrimLeft(label[len(n.cardMarker):], " \t")
	return strings.ToLower(vendorRun.FindString(rest))
}

// CardSettlementDate recovers the purchase date from a card label. A
// bracketed [DDMMYY] wins over a bare DDMMYY token. Candidates that are not
// real calendar dates are discarded.
func CardSettlementDate(label string) (time.Time, bool) {
	var token string
	if m := bracketedCardDate.FindStringSubmatch(label); m != nil {
		token = m[1]
	} else if m := bareCardDate.FindStringSubmatch(label); m != nil {
		token = m[1]
	} else {
		return time.Time{}, false
	}
	return parseDDMMYY(token)
}

func parseDDMMYY(token string) (time.Time, bool) {
	if len(token) != 6 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(token[0:2])
	month, err2 := strconv.Atoi(token[2:4])
	year, err3 := strconv.Atoi(token[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	year += 2000
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 2000 {
		return time.Time{}, false
	}
	return extract.Date(year, month, day)
}

// IsIgnored reports whether label contains any pattern (case-sensitive
// substring, no regex).
func IsIgnored(label string, patterns []string) bool {
	if label == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(label, p) {
			return true
		}
	}
	return false
}
