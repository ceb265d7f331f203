package pipeline

import (
	"errors"
	"testing"

	"horse.fit/relay/internal/db"
)

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	allowed := [][2]string{
		{db.StatusPending, db.StatusApproved},
		{db.StatusPending, db.StatusRejected},
		{db.StatusApproved, db.StatusPublished},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("transition %s -> %s should be allowed", pair[0], pair[1])
		}
	}

	forbidden := [][2]string{
		{db.StatusPending, db.StatusPublished},
		{db.StatusApproved, db.StatusRejected},
		{db.StatusRejected, db.StatusApproved},
		{db.StatusRejected, db.StatusPublished},
		{db.StatusPublished, db.StatusPending},
		{db.StatusPublished, db.StatusApproved},
		{db.StatusApproved, db.StatusPending},
		{"unknown", db.StatusApproved},
	}
	for _, pair := range forbidden {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("transition %s -> %s should be forbidden", pair[0], pair[1])
		}
	}
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	if err := ValidateTransition(db.StatusPending, db.StatusApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateTransition(db.StatusPublished, db.StatusPending)
	if err == nil {
		t.Fatalf("expected error for terminal state transition")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error %v should wrap ErrInvalidTransition", err)
	}
}
