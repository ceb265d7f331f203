package pipeline

import (
	"errors"
	"fmt"

	"horse.fit/relay/internal/db"
)

// ErrInvalidTransition reports a lifecycle move the state machine forbids.
var ErrInvalidTransition = errors.New("invalid item status transition")

// allowedTransitions is the full item lifecycle: items are born pending, a
// moderation decision lands them in approved or rejected, and only approved
// items publish. Published and rejected are terminal.
var allowedTransitions = map[string]map[string]struct{}{
	db.StatusPending: {
		db.StatusApproved: {},
		db.StatusRejected: {},
	},
	db.StatusApproved: {
		db.StatusPublished: {},
	},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to string) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// ValidateTransition returns ErrInvalidTransition with both statuses named
// when the move is not permitted.
func ValidateTransition(from, to string) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
