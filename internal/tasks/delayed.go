// Package tasks runs deferred and recurring background work: one-shot
// delayed tasks such as the welcome notification, and cron schedules such
// as the nightly retention sweep.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrShutdown is reported by tasks that were pending when the runner stopped.
var ErrShutdown = errors.New("task runner shut down")

// Handle tracks a single scheduled task.
type Handle struct {
	Name string

	timer *time.Timer
	done  chan struct{}
	once  sync.Once
	err   error
}

// Done is closed once the task has finished or was cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task error. Only valid after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Runner executes tasks after a delay, outside the caller's request path.
// Failures are logged and never propagated to the scheduler of the task.
type Runner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[*Handle]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner. Each task gets a context bounded by timeout
// when timeout > 0.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger.With("component", "DelayedTaskRunner"),
		pending: make(map[*Handle]struct{}),
	}
}

// Schedule runs fn once after delay. A non-positive delay runs it
// immediately on a separate goroutine.
func (r *Runner) Schedule(name string, delay time.Duration, fn func(ctx context.Context) error) *Handle {
	h := &Handle{Name: name, done: make(chan struct{})}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		h.finish(ErrShutdown)
		return h
	}
	r.pending[h] = struct{}{}
	r.wg.Add(1)
	h.timer = time.AfterFunc(max(delay, 0), func() { r.run(h, fn) })
	r.logger.Debug("Task scheduled", "task", name, "delay", delay)
	return h
}

func (r *Runner) run(h *Handle, fn func(ctx context.Context) error) {
	defer r.wg.Done()

	r.mu.Lock()
	delete(r.pending, h)
	r.mu.Unlock()

	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.New("task panicked")
				r.logger.Error("Task panicked", "task", h.Name, "panic", p)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		r.logger.Error("Task failed", "task", h.Name, "duration", time.Since(start), "err", err)
	} else {
		r.logger.Debug("Task finished", "task", h.Name, "duration", time.Since(start))
	}
	h.finish(err)
}

// Pending returns the number of tasks whose delay has not yet elapsed.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Shutdown drops tasks that have not started and waits for running ones
// until ctx is done. Running tasks see their context cancelled only if ctx
// expires first.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var dropped []string
	for h := range r.pending {
		if h.timer.Stop() {
			dropped = append(dropped, h.Name)
			r.wg.Done()
			h.finish(ErrShutdown)
		}
		delete(r.pending, h)
	}
	r.mu.Unlock()
	// Dropped tasks are not persisted anywhere; the names are the only trace.
	if len(dropped) > 0 {
		sort.Strings(dropped)
		r.logger.Warn("Dropped pending tasks on shutdown", "count", len(dropped), "tasks", dropped)
	}

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}
