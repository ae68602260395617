// Package matcher pairs bank transactions with invoice documents.
//
// Each transaction runs through an ordered cascade of strategies and the
// first one that proposes a document wins:
//   - vendor: the vendor token appears in the file name, document dated in
//     the same or an adjacent month, closest date wins
//   - exact date: document dated on the settlement/reference day, preferring
//     one that carries the amount (within 1 cent, configurable)
//   - amount then proximity: any document carrying the amount, chosen by a
//     fixed same-month / previous-month / next-month / closest search
//
// A document may be claimed by several transactions; nothing is marked used.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	result, err := m.MatchAll(ctx, transactions, records, nil)
//	if match, ok := result.Matches[tx.Reference]; ok {
//		// Found a document!
//		path := match.DocumentPath
//	}
package matcher

import (
	"context"
	"math"
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
)

// ProgressFunc is called after each scored transaction
type ProgressFunc func(done, total int)

// Matcher runs the strategy cascade
type Matcher struct {
	config     Config
	strategies []Strategy
}

// NewMatcher creates a matcher with the standard cascade
func NewMatcher(config Config) *Matcher {
	return NewMatcherWithStrategies(config,
		NewVendorStrategy(),
		NewExactDateStrategy(config.AmountTolerance),
		NewAmountProximityStrategy(config.AmountTolerance),
	)
}

// NewMatcherWithStrategies creates a matcher running strategies in the given order
func NewMatcherWithStrategies(config Config, strategies ...Strategy) *Matcher {
	return &Matcher{
		config:     config,
		strategies: strategies,
	}
}

// Strategies returns the cascade in evaluation order
func (m *Matcher) Strategies() []Strategy {
	return m.strategies
}

// FindMatch runs the cascade for one transaction.
// Returns nil if no strategy found a document.
func (m *Matcher) FindMatch(tx ledger.Transaction, corpus []documents.Record) *Candidate {
	for _, s := range m.strategies {
		if c := s.TryMatch(tx, corpus); c != nil {
			if c.Strategy == "" {
				c.Strategy = s.Name()
			}
			return c
		}
	}
	return nil
}

// MatchAll matches every non-ignored transaction against the dated part
// of the corpus. It stops between transactions when ctx is done and
// returns the partial result together with ctx.Err().
func (m *Matcher) MatchAll(
	ctx context.Context,
	transactions []ledger.Transaction,
	corpus []documents.Record,
	progress ProgressFunc,
) (*Result, error) {
	result := newResult()
	dated := DatedOnly(corpus)

	for i, tx := range transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if tx.IsIgnored {
			result.Skipped = append(result.Skipped, tx.Reference)
		} else if c := m.FindMatch(tx, dated); c != nil {
			result.Matches[tx.Reference] = Match{
				DocumentPath: c.Document.Path,
				DocumentDate: *c.Document.FileDate,
				Strategy:     c.Strategy,
				DateDiff:     c.DateDiff,
			}
		} else {
			result.Unmatched = append(result.Unmatched, tx.Reference)
		}

		if progress != nil {
			progress(i+1, len(transactions))
		}
	}

	return result, nil
}

// DatedOnly drops records without a file date
func DatedOnly(corpus []documents.Record) []documents.Record {
	dated := make([]documents.Record, 0, len(corpus))
	for _, r := range corpus {
		if r.FileDate != nil {
			dated = append(dated, r)
		}
	}
	return dated
}

func daysBetween(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours() / 24)
}

// monthIndex numbers months continuously so December and the following
// January are adjacent.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
