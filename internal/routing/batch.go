// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jeranaias/routebatch/internal/batch"
	"github.com/jeranaias/routebatch/internal/tasks"
)

// =============================================================================
// TASK SUPPLY
// =============================================================================

// NewBatch builds one runner task per request, in input order.
//
// When queue is non-nil a record is added for every request up front, and
// each task keeps its record current as it runs. Records of tasks that end
// because the run was abandoned are left for Queue.CancelPending. Record
// updates that fail (an invalid status transition) are logged at debug
// level on logger, which may be nil.
func NewBatch(router Router, requests []Request, queue *tasks.Queue, logger *slog.Logger) []batch.Task[Route] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	track := func(id, op string, err error) {
		if err != nil {
			logger.Debug("task record not updated", "task", id, "op", op, "error", err)
		}
	}

	out := make([]batch.Task[Route], len(requests))
	for i, req := range requests {
		var id string
		if queue != nil {
			id = queue.Add(req.DisplayLabel()).ID
		}
		out[i] = batch.Func(func(ctx context.Context) (Route, error) {
			if queue == nil {
				return router.Route(ctx, req)
			}

			track(id, "running", queue.MarkRunning(id))
			ctx = WithRetryHook(ctx, func(int, error) { queue.MarkAttempt(id) })

			route, err := router.Route(ctx, req)
			if err != nil {
				if ctx.Err() == nil {
					track(id, "failed", queue.MarkFailed(id, err))
				}
				return Route{}, err
			}
			track(id, "complete", queue.MarkComplete(id))
			return route, nil
		})
	}
	return out
}

// =============================================================================
// RESULT COLLECTION
// =============================================================================

// Failure is a request that did not produce a route.
type Failure struct {
	Index   int
	Request Request
	Err     error
}

// Results is the accumulator of a routing batch.
type Results struct {
	Routes   []Route
	Failures []Failure
}

// Collect returns the reducer for a batch built from requests. Routes and
// failures are appended in settlement order.
func Collect(requests []Request) batch.Reducer[Route, Results] {
	return func(acc Results, out batch.Outcome[Route]) Results {
		if out.Failed() {
			f := Failure{Index: out.Index, Err: out.Err}
			if out.Index >= 0 && out.Index < len(requests) {
				f.Request = requests[out.Index]
			}
			acc.Failures = append(acc.Failures, f)
			return acc
		}
		route := out.Value
		route.Index = out.Index
		acc.Routes = append(acc.Routes, route)
		return acc
	}
}

// Total returns the number of settled requests.
func (r Results) Total() int {
	return len(r.Routes) + len(r.Failures)
}

// Sorted returns the routes in submission order.
func (r Results) Sorted() []Route {
	routes := make([]Route, len(r.Routes))
	copy(routes, r.Routes)
	sort.Slice(routes, func(i, j int) bool { return routes[i].Index < routes[j].Index })
	return routes
}

// SortedFailures returns the failures in submission order.
func (r Results) SortedFailures() []Failure {
	failures := make([]Failure, len(r.Failures))
	copy(failures, r.Failures)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return failures
}

// TotalDistance returns the summed distance of all routes in meters.
func (r Results) TotalDistance() float64 {
	var d float64
	for _, route := range r.Routes {
		d += route.Distance
	}
	return d
}
