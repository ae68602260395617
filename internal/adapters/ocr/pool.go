package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by a pool after Close
var ErrPoolClosed = errors.New("ocr pool closed")

// Pool lends engines to concurrent callers, at most size at a time.
//
// Terminate releases every idle engine; engines lent out at that moment
// are terminated when they come back. The next Recognize creates new ones,
// so a terminated pool stays usable. Close terminates and refuses further work.
type Pool struct {
	factory Factory
	sem     chan struct{}
	logger  *slog.Logger

	mu         sync.Mutex
	idle       []Recognizer
	generation int
	created    int
	closed     bool
}

type lease struct {
	engine     Recognizer
	generation int
}

// NewPool creates a pool of at most size engines built by factory
func NewPool(factory Factory, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		factory: factory,
		sem:     make(chan struct{}, size),
		logger:  logger,
	}
}

// Recognize runs image through a pooled engine
func (p *Pool) Recognize(ctx context.Context, image []byte) (string, error) {
	l, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer p.release(l)

	return l.engine.Recognize(ctx, image)
}

func (p *Pool) acquire(ctx context.Context) (*lease, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, ErrPoolClosed
	}
	gen := p.generation
	if n := len(p.idle); n > 0 {
		engine := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return &lease{engine: engine, generation: gen}, nil
	}
	p.mu.Unlock()

	engine, err := p.factory()
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("create ocr engine: %w", err)
	}

	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	p.logger.Debug("created ocr engine", "generation", gen)

	return &lease{engine: engine, generation: gen}, nil
}

func (p *Pool) release(l *lease) {
	p.mu.Lock()
	stale := p.closed || l.generation != p.generation
	if !stale {
		p.idle = append(p.idle, l.engine)
	}
	p.mu.Unlock()

	if stale {
		p.closeEngine(l.engine)
	}
	<-p.sem
}

// Terminate releases all idle engines. The pool remains usable.
func (p *Pool) Terminate() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.generation++
	p.mu.Unlock()

	for _, e := range idle {
		p.closeEngine(e)
	}
	if len(idle) > 0 {
		p.logger.Debug("terminated ocr engines", "count", len(idle))
	}
}

// Close terminates all engines and rejects later calls with ErrPoolClosed
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.Terminate()
	return nil
}

// Created reports how many engines the pool has built so far
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Idle reports how many engines are parked in the pool
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *Pool) closeEngine(e Recognizer) {
	if err := e.Close(); err != nil {
		p.logger.Warn("failed to close ocr engine", "error", err)
	}
}
