// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"context"
)

// =============================================================================
// TASKS AND RESULTS
// =============================================================================

// Result is what a pending operation delivers when it settles.
type Result[T any] struct {
	Value T
	Err   error
}

// Pending is the in-flight handle of one task. It delivers exactly one
// Result. A Pending that is closed without a value settles as ErrNoResult.
type Pending[T any] <-chan Result[T]

// Task is a task factory. Invoking it starts one unit of work and returns
// its Pending handle. The runner invokes each Task at most once, in
// submission order, on its coordinating goroutine, so a Task must return
// promptly and do the actual work elsewhere.
type Task[T any] func(ctx context.Context) Pending[T]

// Outcome is a settled task as handed to the reducer.
type Outcome[T any] struct {
	// Index is the task's position in the submitted list.
	Index int
	Value T
	Err   error
}

// Failed reports whether the task settled unsuccessfully.
func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

// Resolved returns a Pending that has already settled with v.
func Resolved[T any](v T) Pending[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: v}
	close(ch)
	return ch
}

// Rejected returns a Pending that has already settled with err.
func Rejected[T any](err error) Pending[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Err: err}
	close(ch)
	return ch
}

// Go runs fn on its own goroutine and returns its Pending handle.
// A panic in fn settles the handle with a *PanicError.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) Pending[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				ch <- Result[T]{Err: &PanicError{Value: r}}
			}
		}()
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// Func adapts a blocking function into a Task that runs it with Go.
func Func[T any](fn func(context.Context) (T, error)) Task[T] {
	return func(ctx context.Context) Pending[T] {
		return Go(ctx, fn)
	}
}
