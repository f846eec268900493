// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

// State is the lifecycle state of a Runner.
//
// Valid transitions:
//
//	Running -> CancelRequested -> Terminated
//	Running -> Terminated
type State int

const (
	// StateRunning means the runner is scheduling tasks.
	StateRunning State = iota

	// StateCancelRequested means Cancel was called but the coordinator has
	// not yet observed it.
	StateCancelRequested

	// StateTerminated means the completion callback has fired (or is about
	// to) and nothing else will be scheduled.
	StateTerminated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateCancelRequested:
		return "CancelRequested"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// canTransition reports whether moving from s to next is allowed.
func (s State) canTransition(next State) bool {
	switch s {
	case StateRunning:
		return next == StateCancelRequested || next == StateTerminated
	case StateCancelRequested:
		return next == StateTerminated
	default:
		return false
	}
}
