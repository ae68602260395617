// Package documents holds the invoice-corpus model: the handles the host
// supplies, the content extracted from them and the dated records the
// matcher scores against.
package documents

import (
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Handle is one document supplied by the host. Identity is unique within
// the corpus (typically the slash-separated path below the corpus root).
type Handle interface {
	Identity() string
	Read() ([]byte, error)
}

// Content is the text body and amounts extracted from one document
type Content struct {
	Text      string
	Amounts   []decimal.Decimal // rounded to cents, distinct, ascending
	UsedOCR   bool
	IsScanned bool
	Pages     int
}

// Record is a corpus entry the matcher can score. Records with a nil
// FileDate never reach the matcher.
type Record struct {
	Path       string
	FileName   string
	FileDate   *time.Time
	DateSource DateSource
	Amounts    []decimal.Decimal
	IsScanned  bool
	UsedOCR    bool
}

// HasAmountWithin reports whether any amount is within tolerance of target
func (r Record) HasAmountWithin(target, tolerance decimal.Decimal) bool {
	for _, a := range r.Amounts {
		if a.Sub(target).Abs().LessThanOrEqual(tolerance) {
			return true
		}
	}
	return false
}

// ClosestAmountDistance returns the smallest |amount - target| and false
// when the record has no amounts.
func (r Record) ClosestAmountDistance(target decimal.Decimal) (decimal.Decimal, bool) {
	if len(r.Amounts) == 0 {
		return decimal.Zero, false
	}
	best := r.Amounts[0].Sub(target).Abs()
	for _, a := range r.Amounts[1:] {
		if d := a.Sub(target).Abs(); d.LessThan(best) {
			best = d
		}
	}
	return best, true
}

// BaseName returns the lower-cased file name without its extension
func (r Record) BaseName() string {
	name := strings.ToLower(r.FileName)
	return strings.TrimSuffix(name, path.Ext(name))
}

// NewRecord builds a record from a handle identity and its content.
func NewRecord(identity string, content Content) Record {
	return Record{
		Path:      identity,
		FileName:  path.Base(strings.ReplaceAll(identity, "\\", "/")),
		Amounts:   content.Amounts,
		IsScanned: content.IsScanned,
		UsedOCR:   content.UsedOCR,
	}
}
