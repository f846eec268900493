// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Reducer folds one settled task into the accumulator.
type Reducer[T, A any] func(acc A, out Outcome[T]) A

// CompleteFunc receives the final accumulator and a nil error when every
// task has settled, or the zero accumulator and ErrCanceled when the run
// was canceled. It is called exactly once.
type CompleteFunc[A any] func(acc A, err error)

// Stats is a point-in-time snapshot of a Runner.
type Stats struct {
	State     State
	Total     int
	Started   int
	Running   int
	Peak      int
	Completed int
	Failed    int
	Progress  float64

	// Canceled is set once the run has terminated through cancellation.
	Canceled bool
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes a fixed list of tasks with bounded concurrency.
//
// Scheduling, the reducer and the completion callback all run on a single
// coordinating goroutine (or on the caller of New for the first pass), so
// the accumulator never needs locking. The mutex only guards the counters
// read by Progress, Stats and State.
type Runner[T, A any] struct {
	tasks       []Task[T]
	limit       int
	taskTimeout time.Duration
	log         *slog.Logger

	ctx     context.Context
	taskCtx context.Context
	abandon context.CancelFunc

	// Owned by the coordinator.
	acc      A
	reduce   Reducer[T, A]
	complete CompleteFunc[A]

	settled  chan Outcome[T]
	cancelCh chan struct{}
	done     chan struct{}

	final    A
	finalErr error

	mu        sync.Mutex
	state     State
	next      int // index of the next factory to invoke
	running   int
	peak      int
	completed int
	failed    int
	progress  float64
	canceled  bool
}

// New creates a Runner and immediately starts up to limit tasks.
//
// The context bounds the whole run: when it is done the run is canceled as
// if Cancel had been called. Tasks receive a context derived from it that
// is canceled once the run terminates, signalling that any result they
// still produce will be discarded.
//
// New returns ErrInvalidConcurrency if limit is not positive and
// ErrNilCallback if reduce or complete is nil. If tasks is empty the
// completion callback runs before New returns.
func New[T, A any](
	ctx context.Context,
	tasks []Task[T],
	limit int,
	initial A,
	reduce Reducer[T, A],
	complete CompleteFunc[A],
	opts ...Option,
) (*Runner[T, A], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}
	if reduce == nil || complete == nil {
		return nil, ErrNilCallback
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	queue := make([]Task[T], len(tasks))
	copy(queue, tasks)

	taskCtx, abandon := context.WithCancel(ctx)

	r := &Runner[T, A]{
		tasks:       queue,
		limit:       limit,
		taskTimeout: cfg.taskTimeout,
		log:         cfg.logger,
		ctx:         ctx,
		taskCtx:     taskCtx,
		abandon:     abandon,
		acc:         initial,
		reduce:      reduce,
		complete:    complete,
		settled:     make(chan Outcome[T]),
		cancelCh:    make(chan struct{}, 1),
		done:        make(chan struct{}),
		state:       StateRunning,
	}

	r.log.Debug("batch started", "total", len(queue), "limit", limit)

	if r.schedule() {
		go r.loop()
	}
	return r, nil
}

// =============================================================================
// PUBLIC API
// =============================================================================

// Cancel requests cancellation. It never blocks and may be called from any
// goroutine, including from inside the reducer. Calls after the first, or
// after the run has terminated, have no effect.
//
// In-flight tasks are not waited for; the completion callback fires with
// ErrCanceled at the next scheduling pass.
func (r *Runner[T, A]) Cancel() {
	r.mu.Lock()
	if !r.state.canTransition(StateCancelRequested) {
		r.mu.Unlock()
		return
	}
	r.state = StateCancelRequested
	r.mu.Unlock()

	select {
	case r.cancelCh <- struct{}{}:
	default:
	}
}

// Progress returns the percentage of tasks settled so far, rounded to two
// decimal places.
func (r *Runner[T, A]) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// State returns the current lifecycle state.
func (r *Runner[T, A]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner[T, A]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		State:     r.state,
		Total:     len(r.tasks),
		Started:   r.next,
		Running:   r.running,
		Peak:      r.peak,
		Completed: r.completed,
		Failed:    r.failed,
		Progress:  r.progress,
		Canceled:  r.canceled,
	}
}

// Done returns a channel that is closed after the completion callback
// has returned.
func (r *Runner[T, A]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run terminates or ctx is done. It returns the same
// values that were passed to the completion callback.
func (r *Runner[T, A]) Wait(ctx context.Context) (A, error) {
	select {
	case <-r.done:
		return r.final, r.finalErr
	case <-ctx.Done():
		var zero A
		return zero, ctx.Err()
	}
}

// =============================================================================
// SCHEDULING
// =============================================================================

// loop is the coordinator. Every settlement or cancellation signal is
// followed by one scheduling pass.
func (r *Runner[T, A]) loop() {
	for {
		select {
		case out := <-r.settled:
			r.settle(out)
		case <-r.cancelCh:
		case <-r.ctx.Done():
			r.Cancel()
		}
		if !r.schedule() {
			return
		}
	}
}

// schedule performs one scheduling pass and reports whether the runner is
// still live afterwards.
func (r *Runner[T, A]) schedule() bool {
	if r.ctx.Err() != nil {
		r.Cancel()
	}

	r.mu.Lock()
	switch r.state {
	case StateTerminated:
		r.mu.Unlock()
		return false
	case StateCancelRequested:
		r.state = StateTerminated
		r.canceled = true
		r.mu.Unlock()
		r.log.Debug("batch canceled", "completed", r.completed, "total", len(r.tasks))
		var zero A
		r.finish(zero, ErrCanceled)
		return false
	}
	if r.completed == len(r.tasks) {
		r.state = StateTerminated
		r.progress = percent(r.completed, len(r.tasks))
		r.mu.Unlock()
		r.log.Debug("batch complete", "total", len(r.tasks), "failed", r.failed)
		r.finish(r.acc, nil)
		return false
	}
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if r.state != StateRunning || r.running >= r.limit || r.next >= len(r.tasks) {
			r.mu.Unlock()
			break
		}
		idx := r.next
		r.next++
		r.running++
		if r.running > r.peak {
			r.peak = r.running
		}
		r.mu.Unlock()

		r.start(idx)
	}
	return true
}

// start invokes the factory at idx and hands its pending handle to a
// forwarding goroutine.
func (r *Runner[T, A]) start(idx int) {
	task := r.tasks[idx]
	r.tasks[idx] = nil
	r.log.Debug("task started", "index", idx)
	go r.forward(idx, r.invoke(task))
}

// invoke calls a factory, converting a panic or a nil handle into a
// settled failure.
func (r *Runner[T, A]) invoke(task Task[T]) (p Pending[T]) {
	if task == nil {
		return Rejected[T](ErrNoResult)
	}
	defer func() {
		if rec := recover(); rec != nil {
			p = Rejected[T](&PanicError{Value: rec})
		}
	}()
	p = task(r.taskCtx)
	if p == nil {
		return Rejected[T](ErrNoResult)
	}
	return p
}

// forward waits for one pending handle to settle and reports the outcome
// to the coordinator. Outcomes arriving after termination are dropped.
func (r *Runner[T, A]) forward(idx int, p Pending[T]) {
	var timeout <-chan time.Time
	if r.taskTimeout > 0 {
		timer := time.NewTimer(r.taskTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	out := Outcome[T]{Index: idx}
	select {
	case res, ok := <-p:
		if ok {
			out.Value, out.Err = res.Value, res.Err
		} else {
			out.Err = ErrNoResult
		}
	case <-timeout:
		out.Err = ErrTaskTimeout
	case <-r.done:
		return
	}

	select {
	case r.settled <- out:
	case <-r.done:
	}
}

// settle records one settlement and runs the reducer. Settlements that
// race with a cancellation request are discarded.
func (r *Runner[T, A]) settle(out Outcome[T]) {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return
	}
	r.progress = percent(r.completed+1, len(r.tasks))
	r.completed++
	r.running--
	if out.Err != nil {
		r.failed++
	}
	r.mu.Unlock()

	if out.Err != nil {
		r.log.Debug("task failed", "index", out.Index, "error", out.Err)
	} else {
		r.log.Debug("task settled", "index", out.Index)
	}

	r.acc = r.reduce(r.acc, out)
}

// finish records the final result, signals abandonment to in-flight tasks,
// runs the completion callback and closes done.
func (r *Runner[T, A]) finish(acc A, err error) {
	r.final, r.finalErr = acc, err
	r.abandon()
	r.complete(acc, err)
	close(r.done)
}

// percent returns done/total as a percentage rounded to two decimals.
// An empty batch counts as fully done.
func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(done)/float64(total)*100*100) / 100
}
