// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// gated builds n tasks whose pending handles settle only when the test
// sends on the matching gate. It records factory invocation order.
type gated struct {
	mu      sync.Mutex
	order   []int
	gates   []chan Result[int]
	tasks   []Task[int]
	reduced atomic.Int32
}

func newGated(n int) *gated {
	g := &gated{}
	for i := 0; i < n; i++ {
		i := i
		gate := make(chan Result[int], 1)
		g.gates = append(g.gates, gate)
		g.tasks = append(g.tasks, func(ctx context.Context) Pending[int] {
			g.mu.Lock()
			g.order = append(g.order, i)
			g.mu.Unlock()
			return gate
		})
	}
	return g
}

func (g *gated) release(i int) {
	g.gates[i] <- Result[int]{Value: i}
}

func (g *gated) invoked() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.order...)
}

func (g *gated) collect(acc []int, out Outcome[int]) []int {
	g.reduced.Add(1)
	if out.Err != nil {
		return acc
	}
	return append(acc, out.Value)
}

func resolved(n int) []Task[int] {
	tasks := make([]Task[int], n)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) Pending[int] {
			return Resolved(i)
		}
	}
	return tasks
}

type completion struct {
	calls atomic.Int32
}

func (c *completion) fn(acc []int, err error) {
	c.calls.Add(1)
}

func waitDone(t *testing.T, r *Runner[int, []int]) ([]int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acc, err := r.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "runner did not terminate")
	return acc, err
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_RejectsNonPositiveConcurrency(t *testing.T) {
	for _, limit := range []int{0, -1, -100} {
		r, err := New(context.Background(), resolved(3), limit, []int(nil),
			func(acc []int, out Outcome[int]) []int { return acc },
			func(acc []int, err error) {},
		)
		assert.Nil(t, r)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	}
}

func TestNew_RejectsNilCallbacks(t *testing.T) {
	_, err := New[int, int](context.Background(), nil, 1, 0, nil, func(int, error) {})
	assert.ErrorIs(t, err, ErrNilCallback)

	_, err = New[int, int](context.Background(), nil, 1, 0,
		func(acc int, out Outcome[int]) int { return acc }, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
}

func TestRunner_EmptyBatchCompletesImmediately(t *testing.T) {
	var got []int
	var gotErr error
	calls := 0

	r, err := New(context.Background(), nil, 2, []int{},
		func(acc []int, out Outcome[int]) []int {
			t.Fatal("reducer must not run for an empty batch")
			return acc
		},
		func(acc []int, err error) {
			calls++
			got, gotErr = acc, err
		},
	)
	require.NoError(t, err)

	// The callback runs before New returns.
	assert.Equal(t, 1, calls)
	assert.NoError(t, gotErr)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	select {
	case <-r.Done():
	default:
		t.Fatal("Done should be closed")
	}
	stats := r.Stats()
	assert.Equal(t, StateTerminated, stats.State)
	assert.Equal(t, 0, stats.Started)
	assert.Equal(t, 100.0, r.Progress())
}

// =============================================================================
// SCHEDULING
// =============================================================================

func TestRunner_ImmediateTasks(t *testing.T) {
	done := &completion{}
	reduced := 0

	r, err := New(context.Background(), resolved(5), 2, []int(nil),
		func(acc []int, out Outcome[int]) []int {
			reduced++
			return append(acc, out.Value)
		},
		done.fn,
	)
	require.NoError(t, err)

	acc, err := waitDone(t, r)
	require.NoError(t, err)

	sort.Ints(acc)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, acc)
	assert.Equal(t, 5, reduced)
	assert.Equal(t, int32(1), done.calls.Load())

	stats := r.Stats()
	assert.Equal(t, 2, stats.Peak)
	assert.Equal(t, 5, stats.Completed)
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 100.0, stats.Progress)
}

func TestRunner_LimitAboveTaskCount(t *testing.T) {
	g := newGated(3)
	r, err := New(context.Background(), g.tasks, 10, []int(nil), g.collect, (&completion{}).fn)
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 3, stats.Started)
	assert.Equal(t, 3, stats.Running)

	for i := range g.gates {
		g.release(i)
	}
	acc, err := waitDone(t, r)
	require.NoError(t, err)
	assert.Len(t, acc, 3)
	assert.Equal(t, 3, r.Stats().Peak)
}

func TestRunner_StartsInSubmissionOrder(t *testing.T) {
	g := newGated(6)
	// Settle in reverse order; start order must not follow.
	for i := len(g.gates) - 1; i >= 0; i-- {
		g.release(i)
	}

	r, err := New(context.Background(), g.tasks, 2, []int(nil), g.collect, (&completion{}).fn)
	require.NoError(t, err)

	_, err = waitDone(t, r)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, g.invoked())
	assert.LessOrEqual(t, r.Stats().Peak, 2)
	assert.Equal(t, int32(6), g.reduced.Load())
}

func TestRunner_BackfillsFreedSlots(t *testing.T) {
	g := newGated(4)
	r, err := New(context.Background(), g.tasks, 2, []int(nil), g.collect, (&completion{}).fn)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, g.invoked())

	// Finishing the second task frees one slot for the third.
	g.release(1)
	require.Eventually(t, func() bool { return r.Stats().Started == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, r.Stats().Running)
	assert.Equal(t, []int{0, 1, 2}, g.invoked())

	g.release(0)
	g.release(2)
	g.release(3)
	acc, err := waitDone(t, r)
	require.NoError(t, err)
	sort.Ints(acc)
	assert.Equal(t, []int{0, 1, 2, 3}, acc)
}

func TestRunner_ProgressIsRoundedAndMonotonic(t *testing.T) {
	g := newGated(3)
	r, err := New(context.Background(), g.tasks, 1, []int(nil), g.collect, (&completion{}).fn)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Progress())

	want := []float64{33.33, 66.67, 100}
	last := 0.0
	for i, expected := range want {
		g.release(i)
		completed := i + 1
		require.Eventually(t, func() bool { return r.Stats().Completed == completed }, time.Second, time.Millisecond)

		p := r.Progress()
		assert.Equal(t, expected, p)
		assert.GreaterOrEqual(t, p, last)
		last = p
	}

	_, err = waitDone(t, r)
	require.NoError(t, err)
}

func TestRunner_InFlightNeverExceedsLimit(t *testing.T) {
	const n, limit = 50, 5
	var current, peak atomic.Int32

	tasks := make([]Task[int], n)
	for i := range tasks {
		i := i
		delay := time.Duration(rand.Intn(3)) * time.Millisecond
		tasks[i] = Func(func(ctx context.Context) (int, error) {
			now := current.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(delay)
			current.Add(-1)
			return i, nil
		})
	}

	reduced := 0
	r, err := New(context.Background(), tasks, limit, []int(nil),
		func(acc []int, out Outcome[int]) []int {
			reduced++
			return append(acc, out.Value)
		},
		func([]int, error) {},
	)
	require.NoError(t, err)

	acc, err := waitDone(t, r)
	require.NoError(t, err)
	assert.Len(t, acc, n)
	assert.Equal(t, n, reduced)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.LessOrEqual(t, r.Stats().Peak, limit)
	assert.Equal(t, n, r.Stats().Completed)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestRunner_CancelFromReducer(t *testing.T) {
	g := newGated(4)
	var runner atomic.Pointer[Runner[int, []int]]

	reduce := func(acc []int, out Outcome[int]) []int {
		if g.reduced.Add(1) == 2 {
			runner.Load().Cancel()
		}
		return append(acc, out.Value)
	}
	done := &completion{}

	r, err := New(context.Background(), g.tasks, 1, []int(nil), reduce, done.fn)
	require.NoError(t, err)
	runner.Store(r)

	g.release(0)
	g.release(1)

	acc, err := waitDone(t, r)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Nil(t, acc)
	assert.Equal(t, int32(2), g.reduced.Load())
	assert.Equal(t, []int{0, 1}, g.invoked(), "tasks 3 and 4 must never start")
	assert.Equal(t, int32(1), done.calls.Load())
	assert.Equal(t, StateTerminated, r.State())
}

func TestRunner_CancelBeforeAnySettlement(t *testing.T) {
	g := newGated(3)
	done := &completion{}
	r, err := New(context.Background(), g.tasks, 2, []int(nil), g.collect, done.fn)
	require.NoError(t, err)

	r.Cancel()
	acc, err := waitDone(t, r)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Nil(t, acc)

	// Late settlements of abandoned tasks are ignored.
	g.release(0)
	g.release(1)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), g.reduced.Load())
	assert.Equal(t, []int{0, 1}, g.invoked())
	assert.Equal(t, int32(1), done.calls.Load())
	assert.True(t, r.Stats().Canceled)
}

func TestRunner_CancelIsIdempotent(t *testing.T) {
	g := newGated(2)
	done := &completion{}
	r, err := New(context.Background(), g.tasks, 1, []int(nil), g.collect, done.fn)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Cancel()
		}()
	}
	wg.Wait()

	_, err = waitDone(t, r)
	assert.ErrorIs(t, err, ErrCanceled)
	r.Cancel()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), done.calls.Load())
}

func TestRunner_CancelAfterCompletionIsNoop(t *testing.T) {
	done := &completion{}
	r, err := New(context.Background(), resolved(2), 2, []int(nil),
		func(acc []int, out Outcome[int]) []int { return append(acc, out.Value) },
		done.fn,
	)
	require.NoError(t, err)

	acc, err := waitDone(t, r)
	require.NoError(t, err)
	assert.Len(t, acc, 2)

	r.Cancel()
	assert.Equal(t, StateTerminated, r.State())
	assert.Equal(t, int32(1), done.calls.Load())
	assert.False(t, r.Stats().Canceled)
}

func TestRunner_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan struct{})

	tasks := []Task[int]{
		Func(func(taskCtx context.Context) (int, error) {
			<-taskCtx.Done()
			close(abandoned)
			return 0, taskCtx.Err()
		}),
	}
	r, err := New(ctx, tasks, 1, []int(nil),
		func(acc []int, out Outcome[int]) []int { return acc },
		func([]int, error) {},
	)
	require.NoError(t, err)

	cancel()
	_, err = waitDone(t, r)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, r.Stats().Canceled, "a parent context cancel is reported like Cancel")

	select {
	case <-abandoned:
	case <-time.After(time.Second):
		t.Fatal("in-flight task context was not canceled")
	}
}

// =============================================================================
// FAILURES
// =============================================================================

func TestRunner_FailuresSettleAsOutcomes(t *testing.T) {
	boom := errors.New("routing service unavailable")
	closed := make(chan Result[int])
	close(closed)

	tasks := []Task[int]{
		func(ctx context.Context) Pending[int] { return Resolved(7) },
		func(ctx context.Context) Pending[int] { return Rejected[int](boom) },
		Func(func(ctx context.Context) (int, error) { panic("body") }),
		func(ctx context.Context) Pending[int] { panic("factory") },
		func(ctx context.Context) Pending[int] { return nil },
		func(ctx context.Context) Pending[int] { return closed },
		nil,
	}

	var outcomes []Outcome[int]
	r, err := New(context.Background(), tasks, 3, 0,
		func(acc int, out Outcome[int]) int {
			outcomes = append(outcomes, out)
			if out.Failed() {
				return acc
			}
			return acc + out.Value
		},
		func(int, error) {},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := r.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, sum)

	stats := r.Stats()
	assert.Equal(t, 7, stats.Completed)
	assert.Equal(t, 6, stats.Failed)

	byIndex := make(map[int]error)
	for _, out := range outcomes {
		byIndex[out.Index] = out.Err
	}
	assert.NoError(t, byIndex[0])
	assert.ErrorIs(t, byIndex[1], boom)
	assert.True(t, IsPanic(byIndex[2]))
	assert.True(t, IsPanic(byIndex[3]))
	assert.ErrorIs(t, byIndex[4], ErrNoResult)
	assert.ErrorIs(t, byIndex[5], ErrNoResult)
	assert.ErrorIs(t, byIndex[6], ErrNoResult)
}

// A task that never settles holds its slot forever unless a task timeout
// is configured or the run is canceled.
func TestRunner_NeverSettlingTaskHangsUntilCanceled(t *testing.T) {
	never := make(chan Result[int])
	done := &completion{}
	r, err := New(context.Background(),
		[]Task[int]{func(ctx context.Context) Pending[int] { return never }},
		1, []int(nil),
		func(acc []int, out Outcome[int]) []int { return acc },
		done.fn,
	)
	require.NoError(t, err)

	assert.Never(t, func() bool {
		select {
		case <-r.Done():
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(0), done.calls.Load())

	r.Cancel()
	_, err = waitDone(t, r)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestRunner_TaskTimeout(t *testing.T) {
	never := make(chan Result[int])
	var got error
	r, err := New(context.Background(),
		[]Task[int]{func(ctx context.Context) Pending[int] { return never }},
		1, []int(nil),
		func(acc []int, out Outcome[int]) []int {
			got = out.Err
			return acc
		},
		func([]int, error) {},
		WithTaskTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = waitDone(t, r)
	require.NoError(t, err)
	assert.ErrorIs(t, got, ErrTaskTimeout)
	assert.Equal(t, 1, r.Stats().Failed)
}

// =============================================================================
// STATE AND PROGRESS
// =============================================================================

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateRunning, StateCancelRequested, true},
		{StateRunning, StateTerminated, true},
		{StateCancelRequested, StateTerminated, true},
		{StateCancelRequested, StateRunning, false},
		{StateTerminated, StateCancelRequested, false},
		{StateTerminated, StateRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.canTransition(tt.to))
		})
	}
	assert.Equal(t, "Unknown", State(42).String())
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{0, 0, 100},
		{0, 4, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 8, 12.5},
		{5, 5, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percent(tt.done, tt.total), "percent(%d, %d)", tt.done, tt.total)
	}
}
