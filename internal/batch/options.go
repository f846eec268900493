// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"log/slog"
	"time"
)

// Option configures a Runner.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	taskTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger used for scheduling events (debug level).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTaskTimeout settles any task that has not delivered a result within d
// as ErrTaskTimeout. Zero (the default) waits indefinitely.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}
