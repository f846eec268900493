// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTask(t *testing.T) {
	task := NewTask(3, "Hamburg -> Berlin")

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}

	if task.Index != 3 {
		t.Errorf("Expected index 3, got %d", task.Index)
	}

	if task.Label != "Hamburg -> Berlin" {
		t.Errorf("Expected label 'Hamburg -> Berlin', got '%s'", task.Label)
	}

	if task.GetStatus() != TaskStatusQueued {
		t.Errorf("Expected status Queued, got %s", task.GetStatus())
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskStatusQueued, TaskStatusRunning, true},
		{TaskStatusQueued, TaskStatusCanceled, true},
		{TaskStatusQueued, TaskStatusComplete, false},
		{TaskStatusRunning, TaskStatusComplete, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusCanceled, true},
		{TaskStatusComplete, TaskStatusRunning, false},
		{TaskStatusFailed, TaskStatusCanceled, false},
		{TaskStatusCanceled, TaskStatusRunning, false},
		{TaskStatusRunning, TaskStatusRunning, true},
	}

	for _, tt := range tests {
		if got := validTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("validTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTaskTiming(t *testing.T) {
	task := NewTask(0, "Test")

	if task.Duration() != 0 {
		t.Error("Queued task should have zero duration")
	}

	if err := task.SetStatus(TaskStatusRunning); err != nil {
		t.Fatalf("SetStatus(Running) failed: %v", err)
	}
	if task.Clone().StartTime.IsZero() {
		t.Error("StartTime should be set when running")
	}

	if err := task.SetStatus(TaskStatusComplete); err != nil {
		t.Fatalf("SetStatus(Complete) failed: %v", err)
	}
	if task.Clone().EndTime.IsZero() {
		t.Error("EndTime should be set when complete")
	}

	// Duration might be very small but should not be negative
	if task.Duration() < 0 {
		t.Error("Task duration should not be negative")
	}

	if err := task.SetStatus(TaskStatusRunning); err == nil {
		t.Error("Complete task should not go back to Running")
	}
}

func TestTaskFail(t *testing.T) {
	task := NewTask(0, "Test")

	if err := task.Fail(errors.New("no route")); err == nil {
		t.Error("Queued task should not fail directly")
	}

	task.SetStatus(TaskStatusRunning)
	if err := task.Fail(errors.New("no route")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if task.GetStatus() != TaskStatusFailed {
		t.Errorf("Expected Failed, got %s", task.GetStatus())
	}

	if task.Clone().Error != "no route" {
		t.Errorf("Error should be recorded, got %q", task.Clone().Error)
	}
}

func TestQueueOperations(t *testing.T) {
	queue := NewQueue()

	task1 := queue.Add("Task 1")
	task2 := queue.Add("Task 2")

	if queue.Count() != 2 {
		t.Errorf("Expected 2 tasks, got %d", queue.Count())
	}

	if task1.Index != 0 || task2.Index != 1 {
		t.Errorf("Expected indexes 0 and 1, got %d and %d", task1.Index, task2.Index)
	}

	retrieved := queue.Get(task1.ID)
	if retrieved == nil {
		t.Fatal("Should retrieve task by ID")
	}

	if retrieved.Label != "Task 1" {
		t.Errorf("Expected 'Task 1', got '%s'", retrieved.Label)
	}

	if queue.Get("missing") != nil {
		t.Error("Unknown ID should return nil")
	}

	if err := queue.MarkRunning("missing"); err == nil {
		t.Error("MarkRunning should fail for unknown ID")
	}
}

func TestQueueCounts(t *testing.T) {
	queue := NewQueue()

	running := queue.Add("Running")
	complete := queue.Add("Complete")
	failed := queue.Add("Failed")
	queue.Add("Queued")

	queue.MarkRunning(running.ID)
	queue.MarkRunning(complete.ID)
	queue.MarkComplete(complete.ID)
	queue.MarkRunning(failed.ID)
	queue.MarkFailed(failed.ID, errors.New("test error"))

	c := queue.Counts()
	if c.Running != 1 || c.Complete != 1 || c.Failed != 1 || c.Queued != 1 {
		t.Errorf("Unexpected counts: %+v", c)
	}

	if c.Total() != 4 {
		t.Errorf("Expected total 4, got %d", c.Total())
	}

	if got := len(queue.Running()); got != 1 {
		t.Errorf("Expected 1 running task, got %d", got)
	}

	if queue.Get(running.ID).Attempts != 1 {
		t.Error("MarkRunning should count an attempt")
	}
	queue.MarkAttempt(running.ID)
	if queue.Get(running.ID).Attempts != 2 {
		t.Error("MarkAttempt should count a retry")
	}

	if n := queue.CancelPending(); n != 2 {
		t.Errorf("Expected 2 canceled tasks, got %d", n)
	}

	c = queue.Counts()
	if c.Canceled != 2 || c.Complete != 1 || c.Failed != 1 {
		t.Errorf("Unexpected counts after cancel: %+v", c)
	}

	if !strings.Contains(queue.Summary(), "Canceled: 2") {
		t.Errorf("Unexpected summary %q", queue.Summary())
	}
}

func TestQueueNotifications(t *testing.T) {
	queue := NewQueue()
	ch := queue.Notifications()
	task := queue.Add("Hamburg -> Berlin")
	queue.MarkRunning(task.ID)
	queue.MarkComplete(task.ID)

	select {
	case n := <-ch:
		if n.TaskID != task.ID || n.Status != TaskStatusComplete {
			t.Errorf("Unexpected notification: %+v", n)
		}
	default:
		t.Fatal("Expected a notification")
	}
}

func TestQueueNotificationsDoNotBlock(t *testing.T) {
	var logs bytes.Buffer
	queue := NewQueueWithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	queue.Notifications()

	// Nobody reads the channel; marking must not block once it is full.
	for i := 0; i < 150; i++ {
		task := queue.Add("t")
		queue.MarkRunning(task.ID)
		queue.MarkComplete(task.ID)
	}

	if queue.Counts().Complete != 150 {
		t.Errorf("Expected 150 complete tasks, got %d", queue.Counts().Complete)
	}
	if queue.Dropped() != 150-notifyBuffer {
		t.Errorf("Expected %d dropped notifications, got %d", 150-notifyBuffer, queue.Dropped())
	}
	if logs.Len() != 0 {
		t.Errorf("Dropped notifications should not warn, got %q", logs.String())
	}
}

func TestQueueWithoutConsumerIsSilent(t *testing.T) {
	var logs bytes.Buffer
	queue := NewQueueWithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	for i := 0; i < 150; i++ {
		task := queue.Add("t")
		queue.MarkRunning(task.ID)
		queue.MarkComplete(task.ID)
	}

	if queue.Dropped() != 0 {
		t.Errorf("Expected nothing dropped without a consumer, got %d", queue.Dropped())
	}
	if logs.Len() != 0 {
		t.Errorf("Expected no log output, got %q", logs.String())
	}
}
