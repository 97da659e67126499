package enrich

import "fmt"

// Status is the lifecycle state shared by tickets and the entities they
// enrich. The set is closed; see CanTransition for the permitted moves.
type Status string

const (
	// StatusQueued means the ticket is waiting to be claimed by a worker.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker holds the claim and is executing the job.
	StatusProcessing Status = "processing"
	// StatusCompleted means the job finished and its result is stored.
	StatusCompleted Status = "completed"
	// StatusFailed means the job will not be attempted again.
	StatusFailed Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s (other than repeating it).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusQueued, StatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is part of the
// lifecycle. Repeating a terminal status is accepted so that completion and
// failure write-backs stay idempotent.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusQueued
	case StatusCompleted:
		return next == StatusCompleted
	case StatusFailed:
		return next == StatusFailed
	default:
		return false
	}
}

// Transition returns ErrInvalidTransition (wrapped with both ends) when
// moving from s to next is not permitted.
func (s Status) Transition(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}
