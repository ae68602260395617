package matcher

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
)

// VendorStrategy matches on the vendor token appearing in the file name
type VendorStrategy struct{}

// NewVendorStrategy creates the vendor-name strategy
func NewVendorStrategy() *VendorStrategy {
	return &VendorStrategy{}
}

// Name implements Strategy
func (s *VendorStrategy) Name() StrategyName { return StrategyVendor }

// TryMatch keeps documents whose name contains the vendor token and whose
// date falls in the reference month or an adjacent one, then picks the
// closest date. Ties keep corpus order.
func (s *VendorStrategy) TryMatch(tx ledger.Transaction, corpus []documents.Record) *Candidate {
	if !tx.HasVendorToken() {
		return nil
	}

	ref := tx.ReferenceDate
	refMonth := monthIndex(ref)

	var best *documents.Record
	bestScore := 0.0

	for i := range corpus {
		doc := &corpus[i]
		if doc.FileDate == nil || !strings.Contains(doc.BaseName(), tx.VendorToken) {
			continue
		}

		delta := monthIndex(*doc.FileDate) - refMonth
		if delta < -1 || delta > 1 {
			continue
		}

		score := daysBetween(*doc.FileDate, ref)
		if best == nil || score < bestScore {
			best = doc
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}
	return &Candidate{Document: *best, Strategy: StrategyVendor, DateDiff: bestScore}
}

// ExactDateStrategy matches documents dated on the transaction day
type ExactDateStrategy struct {
	tolerance decimal.Decimal
}

// NewExactDateStrategy creates the exact-date strategy
func NewExactDateStrategy(tolerance decimal.Decimal) *ExactDateStrategy {
	return &ExactDateStrategy{tolerance: tolerance}
}

// Name implements Strategy
func (s *ExactDateStrategy) Name() StrategyName { return StrategyExactDate }

// TryMatch prefers the first same-day document carrying the amount. Failing
// that, it trusts the date and takes the same-day document whose closest
// amount is nearest.
func (s *ExactDateStrategy) TryMatch(tx ledger.Transaction, corpus []documents.Record) *Candidate {
	ref := tx.SettlementOrReferenceDate()
	target := tx.AbsAmount()

	var sameDate []*documents.Record
	for i := range corpus {
		doc := &corpus[i]
		if doc.FileDate == nil || !sameDay(*doc.FileDate, ref) {
			continue
		}
		if doc.HasAmountWithin(target, s.tolerance) {
			return &Candidate{Document: *doc, Strategy: StrategyExactDateAmount}
		}
		sameDate = append(sameDate, doc)
	}

	if len(sameDate) == 0 {
		return nil
	}

	// Documents without amounts rank after any document with one
	best := sameDate[0]
	bestDist, bestHas := best.ClosestAmountDistance(target)
	for _, doc := range sameDate[1:] {
		dist, has := doc.ClosestAmountDistance(target)
		if !has {
			continue
		}
		if !bestHas || dist.LessThan(bestDist) {
			best, bestDist, bestHas = doc, dist, true
		}
	}

	return &Candidate{Document: *best, Strategy: StrategyExactDate}
}

// AmountProximityStrategy matches on amount alone, then searches by date
type AmountProximityStrategy struct {
	tolerance decimal.Decimal
}

// NewAmountProximityStrategy creates the amount-then-proximity strategy
func NewAmountProximityStrategy(tolerance decimal.Decimal) *AmountProximityStrategy {
	return &AmountProximityStrategy{tolerance: tolerance}
}

// Name implements Strategy
func (s *AmountProximityStrategy) Name() StrategyName { return StrategyAmountProximity }

// TryMatch filters documents carrying the amount and picks one by a fixed
// priority around the anchor date:
//  1. same month, on or before the anchor day: latest
//  2. same month, after the anchor day: earliest
//  3. previous month: latest
//  4. next month: earliest
//  5. any month: closest
func (s *AmountProximityStrategy) TryMatch(tx ledger.Transaction, corpus []documents.Record) *Candidate {
	target := tx.AbsAmount()

	var candidates []*documents.Record
	for i := range corpus {
		doc := &corpus[i]
		if doc.FileDate != nil && doc.HasAmountWithin(target, s.tolerance) {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	anchor := AnchorDate(tx)
	doc := pickByProximity(candidates, anchor)
	return &Candidate{
		Document: *doc,
		Strategy: StrategyAmountProximity,
		DateDiff: daysBetween(*doc.FileDate, anchor),
	}
}

// AnchorDate is the date the proximity search is centred on: the card
// settlement date when recovered, else the statement date for card
// payments and the reference date otherwise.
func AnchorDate(tx ledger.Transaction) time.Time {
	if tx.IsCardSettlement {
		if tx.CardSettlementDate != nil {
			return *tx.CardSettlementDate
		}
		return tx.StatementDate
	}
	return tx.ReferenceDate
}

func pickByProximity(candidates []*documents.Record, anchor time.Time) *documents.Record {
	anchorMonth := monthIndex(anchor)
	anchorDay := anchor.Day()

	inMonth := func(doc *documents.Record, offset int) bool {
		return monthIndex(*doc.FileDate) == anchorMonth+offset
	}
	docDay := func(doc *documents.Record) int { return doc.FileDate.Day() }

	// 1. same month, day <= anchor day, latest
	if doc := pick(candidates, func(d *documents.Record) bool {
		return inMonth(d, 0) && docDay(d) <= anchorDay
	}, latest); doc != nil {
		return doc
	}

	// 2. same month, day > anchor day, earliest
	if doc := pick(candidates, func(d *documents.Record) bool {
		return inMonth(d, 0) && docDay(d) > anchorDay
	}, earliest); doc != nil {
		return doc
	}

	// 3. previous month, latest
	if doc := pick(candidates, func(d *documents.Record) bool {
		return inMonth(d, -1)
	}, latest); doc != nil {
		return doc
	}

	// 4. next month, earliest
	if doc := pick(candidates, func(d *documents.Record) bool {
		return inMonth(d, 1)
	}, earliest); doc != nil {
		return doc
	}

	// 5. closest overall
	best := candidates[0]
	bestScore := daysBetween(*best.FileDate, anchor)
	for _, doc := range candidates[1:] {
		if score := daysBetween(*doc.FileDate, anchor); score < bestScore {
			best, bestScore = doc, score
		}
	}
	return best
}

// better reports whether a should replace the current pick b
type better func(a, b *documents.Record) bool

func latest(a, b *documents.Record) bool   { return a.FileDate.After(*b.FileDate) }
func earliest(a, b *documents.Record) bool { return a.FileDate.Before(*b.FileDate) }

// pick returns the first-best document satisfying keep, or nil
func pick(candidates []*documents.Record, keep func(*documents.Record) bool, isBetter better) *documents.Record {
	var chosen *documents.Record
	for _, doc := range candidates {
		if !keep(doc) {
			continue
		}
		if chosen == nil || isBetter(doc, chosen) {
			chosen = doc
		}
	}
	return chosen
}
