// Package tasks runs best-effort background work that must never block or fail
// the request that scheduled it.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ideaboard.app/internal/obs"
)

const (
	defaultConcurrency = 32
	defaultTimeout     = 5 * time.Second
)

// Func is a unit of background work. The context carries the per-task timeout.
type Func func(ctx context.Context) error

// Runner is a bounded, non-blocking executor. Submitted work is not ordered with
// respect to the caller and its outcome is only visible in logs and metrics.
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup
}

// Option configures Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of tasks running at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout sets the deadline applied to every task.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		sem:     semaphore.NewWeighted(defaultConcurrency),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit schedules fn and returns immediately. It reports false when the runner
// is saturated and the task was dropped.
func (r *Runner) Submit(name string, fn Func) bool {
	if r == nil || fn == nil {
		return false
	}
	if !r.sem.TryAcquire(1) {
		obs.ObserveTask(name, "dropped")
		obs.Warn("background_task_dropped", map[string]any{"task": name})
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		r.run(name, fn)
	}()
	return true
}

func (r *Runner) run(name string, fn Func) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		err = fn(ctx)
	}()

	if err != nil {
		obs.ObserveTask(name, "failed")
		obs.Warn("background_task_failed", map[string]any{"task": name, "error": err.Error()})
		return
	}
	obs.ObserveTask(name, "ok")
}

// Wait blocks until all submitted tasks finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
