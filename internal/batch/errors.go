// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidConcurrency is returned by New when the limit is not positive.
	ErrInvalidConcurrency = errors.New("concurrency limit must be positive")

	// ErrNilCallback is returned by New when the reducer or completion
	// callback is missing.
	ErrNilCallback = errors.New("reducer and completion callback are required")

	// ErrCanceled is passed to the completion callback when the run ended
	// because cancellation was requested.
	ErrCanceled = errors.New("batch canceled")

	// ErrTaskTimeout settles a task that did not deliver a result within the
	// configured task timeout.
	ErrTaskTimeout = errors.New("task did not settle before timeout")

	// ErrNoResult settles a task whose pending handle was nil or was closed
	// without delivering a result.
	ErrNoResult = errors.New("task produced no result")
)

// PanicError reports a panic raised by a task factory or task body.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// IsPanic reports whether err was caused by a panicking task.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
