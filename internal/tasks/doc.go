// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks tracks the lifecycle of the individual requests in a batch.
//
// The batch runner itself only knows opaque task factories. This package
// keeps the human-facing side: one Task record per request with a status,
// timing, attempt count and error, collected in a Queue that the terminal
// UI and the run store read from.
//
// # Key Types
//
//   - Task: one request's record (Queued, Running, Complete, Failed, Canceled)
//   - Queue: ordered records for one batch, with counts and notifications
//   - TaskStatus: status enumeration with validated transitions
//
// # Usage
//
//	queue := tasks.NewQueue()
//	task := queue.Add("Hamburg -> Berlin")
//	queue.MarkRunning(task.ID)
//	queue.MarkComplete(task.ID)
//
//	for n := range queue.Notifications() {
//	    fmt.Printf("%s: %s\n", n.Label, n.Status)
//	}
package tasks
