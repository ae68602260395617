package reconcile

import "sync"

// progressReporter serializes callbacks and clamps Percent so it never
// goes backwards.
type progressReporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last float64
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(state State, percent float64, done, total int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if percent < p.last {
		percent = p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.fn(Progress{State: state, Percent: percent, Done: done, Total: total})
}
