// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue holds the records of one batch in submission order.
type Queue struct {
	// tasks is every record, in submission order
	tasks []*Task

	// byID indexes tasks by ID
	byID map[string]*Task

	// mu protects concurrent access to the queue
	mu sync.RWMutex

	// notifyChan sends notifications when tasks settle; nil until a
	// consumer calls Notifications
	notifyChan chan TaskNotification
	dropped    int

	log *slog.Logger
}

// TaskNotification represents a notification about a task state change.
type TaskNotification struct {
	TaskID   string
	Index    int
	Label    string
	Status   TaskStatus
	Error    string
	Duration time.Duration
}

// Counts summarises a queue by status.
type Counts struct {
	Queued   int
	Running  int
	Complete int
	Failed   int
	Canceled int
}

// Total returns the number of records counted.
func (c Counts) Total() int {
	return c.Queued + c.Running + c.Complete + c.Failed + c.Canceled
}

// =============================================================================
// QUEUE CREATION
// =============================================================================

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return NewQueueWithLogger(nil)
}

// NewQueueWithLogger creates an empty queue that logs dropped notifications
// at debug level.
func NewQueueWithLogger(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		tasks: make([]*Task, 0),
		byID:  make(map[string]*Task),
		log:   logger,
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add appends a queued record for the next request and returns it.
func (q *Queue) Add(label string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := NewTask(len(q.tasks), label)
	q.tasks = append(q.tasks, task)
	q.byID[task.ID] = task
	return task
}

// Get returns a copy of the task with id, or nil.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if task, ok := q.byID[id]; ok {
		return task.Clone()
	}
	return nil
}

// MarkRunning marks a task as running and counts an attempt.
func (q *Queue) MarkRunning(id string) error {
	task, err := q.lookup(id)
	if err != nil {
		return err
	}
	if err := task.SetStatus(TaskStatusRunning); err != nil {
		return err
	}
	task.AddAttempt()
	return nil
}

// MarkAttempt counts a retry of a running task.
func (q *Queue) MarkAttempt(id string) {
	if task, err := q.lookup(id); err == nil {
		task.AddAttempt()
	}
}

// MarkComplete marks a task as complete.
func (q *Queue) MarkComplete(id string) error {
	task, err := q.lookup(id)
	if err != nil {
		return err
	}
	if err := task.SetStatus(TaskStatusComplete); err != nil {
		return err
	}
	q.notify(task)
	return nil
}

// MarkFailed marks a task as failed.
func (q *Queue) MarkFailed(id string, cause error) error {
	task, err := q.lookup(id)
	if err != nil {
		return err
	}
	if err := task.Fail(cause); err != nil {
		return err
	}
	q.notify(task)
	return nil
}

// CancelPending marks every queued or running task as canceled and returns
// how many were changed. Settled tasks keep their status.
func (q *Queue) CancelPending() int {
	q.mu.RLock()
	all := append([]*Task(nil), q.tasks...)
	q.mu.RUnlock()

	n := 0
	for _, task := range all {
		if task.GetStatus().IsTerminal() {
			continue
		}
		if err := task.SetStatus(TaskStatusCanceled); err == nil {
			n++
		}
	}
	return n
}

func (q *Queue) lookup(id string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, ok := q.byID[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

// =============================================================================
// QUEUE QUERIES
// =============================================================================

// All returns copies of all tasks in submission order.
func (q *Queue) All() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// Running returns copies of the running tasks, longest-running first.
func (q *Queue) Running() []*Task {
	q.mu.RLock()
	result := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusRunning {
			result = append(result, task.Clone())
		}
	}
	q.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// Count returns the total number of tasks.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// Counts returns the number of tasks in each status.
func (q *Queue) Counts() Counts {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var c Counts
	for _, task := range q.tasks {
		switch task.GetStatus() {
		case TaskStatusQueued:
			c.Queued++
		case TaskStatusRunning:
			c.Running++
		case TaskStatusComplete:
			c.Complete++
		case TaskStatusFailed:
			c.Failed++
		case TaskStatusCanceled:
			c.Canceled++
		}
	}
	return c
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// notifyBuffer is how many settlements a slow consumer may lag behind.
const notifyBuffer = 100

// Notifications returns the settlement channel, creating it on first call.
// Settlements before the first call are not delivered. A consumer that
// falls more than notifyBuffer behind loses notifications; see Dropped.
func (q *Queue) Notifications() <-chan TaskNotification {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.notifyChan == nil {
		q.notifyChan = make(chan TaskNotification, notifyBuffer)
	}
	return q.notifyChan
}

// Dropped returns how many notifications were lost to a full channel.
func (q *Queue) Dropped() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dropped
}

// notify sends a notification without blocking. Without a consumer it
// does nothing.
func (q *Queue) notify(task *Task) {
	q.mu.RLock()
	ch := q.notifyChan
	q.mu.RUnlock()
	if ch == nil {
		return
	}

	c := task.Clone()
	n := TaskNotification{
		TaskID:   c.ID,
		Index:    c.Index,
		Label:    c.Label,
		Status:   c.Status,
		Error:    c.Error,
		Duration: task.Duration(),
	}
	select {
	case ch <- n:
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.log.Debug("notification channel full, dropping notification",
			"task", n.TaskID, "status", n.Status)
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

// Summary returns a formatted summary of the queue.
func (q *Queue) Summary() string {
	c := q.Counts()
	return fmt.Sprintf("Running: %d | Queued: %d | Complete: %d | Failed: %d | Canceled: %d",
		c.Running, c.Queued, c.Complete, c.Failed, c.Canceled)
}
