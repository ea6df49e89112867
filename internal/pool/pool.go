// Package pool implements the single bounded worker pool shared between
// top-level task dispatch and in-task sub-work submitted via multitask().
//
// Grounded on specialistvlad-burstgridgo's dag.Executor worker loop
// (internal/dag/executor.go): a fixed number of goroutines pulling ready
// units off a channel. Here the "ready unit" is an arbitrary closure rather
// than a graph node, and the worker-goroutine-per-N pattern is replaced
// with a golang.org/x/sync/semaphore.Weighted sized to N so that both the
// driver's top-level submissions and a task's own multitask() scope draw
// from exactly the same bound with no separate goroutine pools to keep in
// sync.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool is a shared bounded executor. When N==1, Submit runs its function
// synchronously on the caller's goroutine instead of handing it to the
// semaphore at all — this is what makes N==1 degrade to in-line execution
// with no special-cased caller code, per the concurrency model.
type Pool struct {
	n   int64
	sem *semaphore.Weighted
}

// New returns a Pool bounded to n concurrent units. n must be >= 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{n: int64(n), sem: semaphore.NewWeighted(int64(n))}
}

// N returns the pool's concurrency bound.
func (p *Pool) N() int { return int(p.n) }

// Handle is the completion handle returned by Submit: wait-with-result,
// wait-with-exception, and a non-blocking "done" query.
type Handle struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the submitted unit completes and returns its result or
// its error. The pool never logs or swallows a unit's error: Wait always
// surfaces exactly what the unit returned.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.result, h.err
}

// Done reports, without blocking, whether the unit has completed.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(result any, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Submit runs fn, bounded by the pool's concurrency limit, and returns a
// Handle for observing its outcome. If n==1, fn runs synchronously before
// Submit returns, its Handle already resolved.
func (p *Pool) Submit(ctx context.Context, fn func() (any, error)) *Handle {
	h := newHandle()

	if p.n == 1 {
		result, err := runRecovered(fn)
		h.resolve(result, err)
		return h
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		h.resolve(nil, err)
		return h
	}

	go func() {
		defer p.sem.Release(1)
		result, err := runRecovered(fn)
		h.resolve(result, err)
	}()

	return h
}

func runRecovered(fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return fn()
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if e, ok := p.v.(error); ok {
		return e.Error()
	}
	return "panic in submitted unit"
}

// Scope is a bounded, awaitable batch of Submit calls sharing one Pool. It
// backs multitask(): submissions inside the scope compete for the same
// semaphore as everything else on the pool, and the scope's end waits for
// every submitted unit and propagates the first (by submission order)
// error, exactly as the task-context facade requires.
type Scope struct {
	pool    *Pool
	ctx     context.Context
	mu      sync.Mutex
	handles []*Handle
}

// Sub returns a new Scope drawing from p.
func (p *Pool) Sub(ctx context.Context) *Scope {
	return &Scope{pool: p, ctx: ctx}
}

// Go submits fn into the scope.
func (s *Scope) Go(fn func() (any, error)) *Handle {
	h := s.pool.Submit(s.ctx, fn)
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// Wait blocks until every unit submitted to the scope has completed
// (success or failure — nothing submitted is cancelled) and returns the
// first error in submission order, or nil if all succeeded.
func (s *Scope) Wait() error {
	s.mu.Lock()
	handles := append([]*Handle{}, s.handles...)
	s.mu.Unlock()

	var first error
	for _, h := range handles {
		_, err := h.Wait()
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
