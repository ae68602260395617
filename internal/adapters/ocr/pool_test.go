package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	id     int
	closed atomic.Bool
	active *atomic.Int32
	peak   *atomic.Int32
}

func (f *fakeEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if f.closed.Load() {
		return "", errors.New("engine used after close")
	}
	if f.active != nil {
		n := f.active.Add(1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		f.active.Add(-1)
	}
	return string(image), nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	err     error
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *fakeFactory) New() (Recognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{id: len(f.engines), active: &f.active, peak: &f.peak}
	f.engines = append(f.engines, e)
	return e, nil
}

func TestPool_LazyCreation(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 2, nil)

	assert.Equal(t, 0, p.Created())

	text, err := p.Recognize(context.Background(), []byte("page"))
	require.NoError(t, err)
	assert.Equal(t, "page", text)

	// Sequential calls reuse the same engine
	_, err = p.Recognize(context.Background(), []byte("page 2"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Created())
	assert.Equal(t, 1, p.Idle())
}

func TestPool_OneEnginePerConcurrentCaller(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 3, nil)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Recognize(context.Background(), []byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Created(), 3)
	assert.LessOrEqual(t, int(f.peak.Load()), 3)
}

func TestPool_TerminateThenRecreate(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 1, nil)

	_, err := p.Recognize(context.Background(), []byte("a"))
	require.NoError(t, err)

	p.Terminate()
	assert.Equal(t, 0, p.Idle())
	require.Len(t, f.engines, 1)
	assert.True(t, f.engines[0].closed.Load())

	// Next call transparently builds a new engine
	text, err := p.Recognize(context.Background(), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", text)
	assert.Equal(t, 2, p.Created())
	assert.False(t, f.engines[1].closed.Load())
}

func TestPool_StaleLeaseClosedOnReturn(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 1, nil)

	l, err := p.acquire(context.Background())
	require.NoError(t, err)

	p.Terminate()
	p.release(l)

	assert.Equal(t, 0, p.Idle())
	assert.True(t, f.engines[0].closed.Load())
}

func TestPool_Close(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 1, nil)

	_, err := p.Recognize(context.Background(), []byte("a"))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, f.engines[0].closed.Load())

	_, err = p.Recognize(context.Background(), []byte("b"))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_FactoryError(t *testing.T) {
	f := &fakeFactory{err: errors.New("tesseract missing")}
	p := NewPool(f.New, 1, nil)

	_, err := p.Recognize(context.Background(), []byte("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract missing")

	// The slot was returned: a later call is not blocked
	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	_, err = p.Recognize(context.Background(), []byte("b"))
	assert.NoError(t, err)
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	f := &fakeFactory{}
	p := NewPool(f.New, 1, nil)

	l, err := p.acquire(context.Background())
	require.NoError(t, err)
	defer p.release(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Recognize(ctx, []byte("blocked"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
