// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a request in a batch.
type TaskStatus string

const (
	// TaskStatusQueued indicates the request has not been started yet
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates the request is in flight
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the request produced a result
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the request settled with an error
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the batch was canceled before the request settled
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed || s == TaskStatusCanceled
}

// validTransition checks a status change.
// Valid transitions: Queued -> Running -> Complete/Failed/Canceled, Queued -> Canceled.
func validTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusFailed || to == TaskStatusCanceled
	default:
		return false
	}
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is the record of one request in a batch.
type Task struct {
	// ID is a unique identifier for this record
	ID string

	// Index is the request's position in the submitted batch
	Index int

	// Label is a human-readable description of the request
	Label string

	// Status is the current state
	Status TaskStatus

	// Attempts counts calls made to the remote service, retries included
	Attempts int

	// StartTime is when the request was started
	StartTime time.Time

	// EndTime is when the request settled or was canceled
	EndTime time.Time

	// Error is the error message if the request failed
	Error string

	mu sync.RWMutex
}

// NewTask creates a queued record.
func NewTask(index int, label string) *Task {
	return &Task{
		ID:     uuid.New().String(),
		Index:  index,
		Label:  label,
		Status: TaskStatusQueued,
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus moves the task to status, validating the transition.
// Start and end times are stamped as a side effect.
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setStatusLocked(status)
}

func (t *Task) setStatusLocked(status TaskStatus) error {
	if !validTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	if t.Status == status {
		return nil
	}
	now := time.Now()
	if status == TaskStatusRunning {
		t.StartTime = now
	}
	if status.IsTerminal() {
		t.EndTime = now
	}
	t.Status = status
	return nil
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// Fail marks a running task as failed with cause.
func (t *Task) Fail(cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.setStatusLocked(TaskStatusFailed); err != nil {
		return err
	}
	if cause != nil {
		t.Error = cause.Error()
	}
	return nil
}

// AddAttempt records one more call to the remote service.
func (t *Task) AddAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Attempts++
}

// Duration returns how long the task has been running or took to settle.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Clone creates a copy of the task for reading.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:        t.ID,
		Index:     t.Index,
		Label:     t.Label,
		Status:    t.Status,
		Attempts:  t.Attempts,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Error:     t.Error,
	}
}
