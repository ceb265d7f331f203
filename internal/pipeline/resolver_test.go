package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
)

type stubHistory struct {
	trackedURLs         map[string]bool
	trackedFingerprints map[string]bool
	seenStatuses        map[string]string
	seenFingerprints    map[string]bool
	windowTitles        []db.ActiveTitle

	windowStatuses []string
	windowSince    time.Time
	windowLimit    int
}

func (h *stubHistory) ItemExistsByCanonicalURL(_ context.Context, canonicalURL string) (bool, error) {
	return h.trackedURLs[canonicalURL], nil
}

func (h *stubHistory) ItemExistsByFingerprint(_ context.Context, fingerprint string) (bool, error) {
	return h.trackedFingerprints[fingerprint], nil
}

func (h *stubHistory) SeenStatusByCanonicalURL(_ context.Context, canonicalURL string) (string, bool, error) {
	status, ok := h.seenStatuses[canonicalURL]
	return status, ok, nil
}

func (h *stubHistory) SeenExistsByFingerprint(_ context.Context, fingerprint string) (bool, error) {
	return h.seenFingerprints[fingerprint], nil
}

func (h *stubHistory) RecentActiveTitles(_ context.Context, statuses []string, since time.Time, limit int) ([]db.ActiveTitle, error) {
	h.windowStatuses = statuses
	h.windowSince = since
	h.windowLimit = limit
	return h.windowTitles, nil
}

func newTestResolver(history *stubHistory) *Resolver {
	return NewResolver(history, DefaultWindow(), zerolog.Nop())
}

func TestResolveEmptyHistoryIsNew(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&stubHistory{})
	resolution, err := resolver.Resolve(context.Background(), "https://example.com/a", "fp1", "Fresh Story")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Outcome != OutcomeNew {
		t.Fatalf("got outcome %q, want %q", resolution.Outcome, OutcomeNew)
	}
}

func TestResolveTrackedURLDuplicate(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&stubHistory{
		trackedURLs: map[string]bool{"https://example.com/a": true},
	})
	resolution, err := resolver.Resolve(context.Background(), "https://example.com/a", "fp1", "Story")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Outcome != OutcomeDuplicate {
		t.Fatalf("got outcome %q, want %q", resolution.Outcome, OutcomeDuplicate)
	}
	if resolution.Reason != "url seen" {
		t.Fatalf("got reason %q, want %q", resolution.Reason, "url seen")
	}
}

func TestResolveSeenFailedPreviously(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&stubHistory{
		seenStatuses: map[string]string{"https://example.com/a": db.SeenFailed},
	})
	resolution, err := resolver.Resolve(context.Background(), "https://example.com/a", "fp1", "Story")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Outcome != OutcomeFailedPreviously {
		t.Fatalf("got outcome %q, want %q", resolution.Outcome, OutcomeFailedPreviously)
	}
}

func TestResolveFingerprintDuplicate(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&stubHistory{
		seenFingerprints: map[string]bool{"fp1": true},
	})
	resolution, err := resolver.Resolve(context.Background(), "https://example.com/b", "fp1", "Story")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Outcome != OutcomeDuplicate {
		t.Fatalf("got outcome %q, want %q", resolution.Outcome, OutcomeDuplicate)
	}
	if resolution.Reason != "content hash match" {
		t.Fatalf("got reason %q, want %q", resolution.Reason, "content hash match")
	}
}

func TestResolveTitleSimilarityDuplicate(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(&stubHistory{
		windowTitles: []db.ActiveTitle{
			{ItemID: 7, ItemUUID: "5f6c7d8e", Title: "Scientists Discover New Species in Amazon"},
		},
	})
	resolution, err := resolver.Resolve(
		context.Background(),
		"https://example.com/c",
		"fp2",
		"Scientists Discover a New Species in the Amazon",
	)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Outcome != OutcomeDuplicate {
		t.Fatalf("got outcome %q, want %q", resolution.Outcome, OutcomeDuplicate)
	}
	if !strings.Contains(resolution.Reason, "5f6c7d8e") {
		t.Fatalf("reason %q should name the matched item", resolution.Reason)
	}
}

func TestResolveWindowIsBoundedAndActiveOnly(t *testing.T) {
	t.Parallel()

	history := &stubHistory{}
	window := WindowConfig{
		Limit:     100,
		MaxAge:    7 * 24 * time.Hour,
		Threshold: 0.9,
		Statuses:  []string{db.StatusPending, db.StatusApproved, db.StatusPublished},
	}
	resolver := NewResolver(history, window, zerolog.Nop())

	before := time.Now().UTC().Add(-window.MaxAge)
	if _, err := resolver.Resolve(context.Background(), "https://example.com/d", "fp3", "Story"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if history.windowLimit != 100 {
		t.Fatalf("window limit = %d, want 100", history.windowLimit)
	}
	if len(history.windowStatuses) != 3 {
		t.Fatalf("window statuses = %v, want three active statuses", history.windowStatuses)
	}
	for _, status := range history.windowStatuses {
		if status == db.StatusRejected {
			t.Fatalf("rejected items must not join the similarity window")
		}
	}
	if history.windowSince.Before(before.Add(-time.Minute)) {
		t.Fatalf("window since %v reaches past the configured max age", history.windowSince)
	}
}
