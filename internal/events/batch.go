package events

import (
	"time"

	"github.com/hanpama/odatabatch/internal/batch"
)

// BatchStart is emitted before the executor runs the operations of a batch.
type BatchStart struct {
	Operations int
}

// BatchFinish is emitted after every operation of a batch has a response.
type BatchFinish struct {
	Operations int
	// FailedChangeSets counts change sets that ended in the Failed state.
	FailedChangeSets int
	Duration         time.Duration
}

// ChangeSetStart is emitted before a change set is ordered.
type ChangeSetStart struct {
	// Operation is the index of the change set within the batch.
	Operation int
	Size      int
}

// ChangeSetFinish is emitted when a change set reaches a terminal state.
type ChangeSetFinish struct {
	Operation  int
	Size       int
	Dispatched int
	State      batch.State
	// Err is the ordering error, if ordering failed.
	Err      error
	Duration time.Duration
}

// DispatchStart is emitted before a request is handed to the dispatcher.
type DispatchStart struct {
	Operation int
	// Member is the index of the request in execution order inside its
	// change set, or -1 for a single request.
	Member    int
	Method    string
	Path      string
	ContentID string
}

// DispatchFinish is emitted after the dispatcher returned.
type DispatchFinish struct {
	Operation int
	Member    int
	Method    string
	Path      string
	ContentID string
	Status    int
	// Err is the dispatcher error that was converted into a failing result.
	Err      error
	Duration time.Duration
}
