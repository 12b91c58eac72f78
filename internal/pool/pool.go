// Package pool bounds the number of concurrently running fetch tasks across
// every refresh cycle of the process.
package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is a process-wide ceiling on running tasks. Groups created from the
// same Pool compete for the same slots.
type Pool struct {
	size   int64
	sem    *semaphore.Weighted
	active atomic.Int64
	wg     sync.WaitGroup
}

// DefaultSize is the ceiling used when New is given a non-positive size.
func DefaultSize() int {
	return 4 * runtime.NumCPU()
}

// New creates a pool that runs at most size tasks at once.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the pool ceiling.
func (p *Pool) Size() int {
	return int(p.size)
}

// Active returns the number of tasks currently holding a slot.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Wait blocks until every task submitted through any group has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Group is a set of tasks belonging to one refresh cycle.
type Group struct {
	pool   *Pool
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// Group starts a task group bound to ctx. Cancelling ctx, calling Cancel or a
// task returning an error stops tasks that have not acquired a slot yet.
func (p *Pool) Group(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	return &Group{pool: p, eg: eg, ctx: egCtx, cancel: cancel}
}

// Context is cancelled once the group is cancelled or a task fails.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go schedules fn. It returns immediately; fn runs once a pool slot is free.
// If the group is cancelled before a slot is acquired, fn is skipped.
// Go may be called from inside a running task.
func (g *Group) Go(fn func() error) {
	g.pool.wg.Add(1)
	g.eg.Go(func() error {
		defer g.pool.wg.Done()
		if err := g.pool.sem.Acquire(g.ctx, 1); err != nil {
			return nil
		}
		g.pool.active.Add(1)
		defer func() {
			g.pool.active.Add(-1)
			g.pool.sem.Release(1)
		}()
		return fn()
	})
}

// Cancel stops tasks that have not started.
func (g *Group) Cancel() {
	g.cancel()
}

// Wait blocks until every task of the group, including tasks scheduled by
// other tasks, has finished, and returns the first task error.
func (g *Group) Wait() error {
	err := g.eg.Wait()
	g.cancel()
	return err
}
