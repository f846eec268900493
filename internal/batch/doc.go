// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package batch provides a bounded-concurrency runner for batches of
// asynchronous tasks.
//
// A Runner is created with an ordered list of task factories, a concurrency
// limit, an initial accumulator, a reducer and a completion callback. It
// starts scheduling as soon as it is constructed: at most limit tasks are in
// flight at once, factories are invoked strictly in submission order, and
// each settled task is folded into the accumulator in settlement order.
//
// # Key Types
//
//   - Task: a factory that starts one unit of work and returns a Pending
//   - Pending: a channel that delivers exactly one Result
//   - Outcome: a settled task as seen by the reducer (index, value, error)
//   - Runner: the scheduler, with Cancel, Progress, Stats, Done and Wait
//   - State: Running, CancelRequested or Terminated
//
// # Usage
//
//	tasks := make([]batch.Task[int], 0, len(ids))
//	for _, id := range ids {
//	    tasks = append(tasks, batch.Func(func(ctx context.Context) (int, error) {
//	        return fetch(ctx, id)
//	    }))
//	}
//
//	r, err := batch.New(ctx, tasks, 4, []int(nil),
//	    func(acc []int, out batch.Outcome[int]) []int {
//	        if out.Err != nil {
//	            return acc
//	        }
//	        return append(acc, out.Value)
//	    },
//	    func(acc []int, err error) {
//	        if errors.Is(err, batch.ErrCanceled) {
//	            log.Println("canceled")
//	        }
//	    },
//	)
//
// Failed tasks never stall a run: errors, panics and malformed pending
// handles all settle the task as an Outcome with a non-nil Err.
package batch
