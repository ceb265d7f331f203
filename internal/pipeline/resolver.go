package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/globaltime"
)

// Outcome is the screening verdict for one candidate.
type Outcome string

const (
	OutcomeNew              Outcome = "new"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeFailedPreviously Outcome = "failed_previously"
)

// Resolution pairs an outcome with a human-readable reason for persistence
// and operator reporting.
type Resolution struct {
	Outcome Outcome
	Reason  string
}

// History is the persisted lookup surface the resolver screens against.
// *db.Pool implements it.
type History interface {
	ItemExistsByCanonicalURL(ctx context.Context, canonicalURL string) (bool, error)
	ItemExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	SeenStatusByCanonicalURL(ctx context.Context, canonicalURL string) (status string, found bool, err error)
	SeenExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	RecentActiveTitles(ctx context.Context, statuses []string, since time.Time, limit int) ([]db.ActiveTitle, error)
}

// WindowConfig bounds the fuzzy title pass. Comparing against full history
// is O(n) per candidate and unbounded as history grows; a recency-bounded
// window over active items trades a small false-negative rate on very old
// re-posts for constant per-candidate cost.
type WindowConfig struct {
	Limit     int
	MaxAge    time.Duration
	Threshold float64
	Statuses  []string
}

// DefaultWindow returns the production screening window.
func DefaultWindow() WindowConfig {
	return WindowConfig{
		Limit:     500,
		MaxAge:    30 * 24 * time.Hour,
		Threshold: 0.85,
		Statuses:  []string{db.StatusPending, db.StatusApproved, db.StatusPublished},
	}
}

// Resolver decides whether a screened candidate is new or a repeat.
type Resolver struct {
	history History
	window  WindowConfig
	logger  zerolog.Logger
}

func NewResolver(history History, window WindowConfig, logger zerolog.Logger) *Resolver {
	if window.Limit <= 0 {
		window.Limit = DefaultWindow().Limit
	}
	if window.MaxAge <= 0 {
		window.MaxAge = DefaultWindow().MaxAge
	}
	if window.Threshold <= 0 || window.Threshold > 1 {
		window.Threshold = DefaultWindow().Threshold
	}
	if len(window.Statuses) == 0 {
		window.Statuses = DefaultWindow().Statuses
	}

	return &Resolver{
		history: history,
		window:  window,
		logger:  logger,
	}
}

// Resolve runs the ordered screening checks, cheapest and most
// authoritative first: canonical URL exact match, fingerprint exact match,
// then fuzzy title similarity over the bounded recent window.
func (r *Resolver) Resolve(ctx context.Context, canonicalURL, fingerprint, title string) (Resolution, error) {
	if r == nil || r.history == nil {
		return Resolution{}, fmt.Errorf("resolver is not initialized")
	}

	tracked, err := r.history.ItemExistsByCanonicalURL(ctx, canonicalURL)
	if err != nil {
		return Resolution{}, fmt.Errorf("check tracked url: %w", err)
	}
	if tracked {
		return Resolution{Outcome: OutcomeDuplicate, Reason: "url seen"}, nil
	}

	seenStatus, seen, err := r.history.SeenStatusByCanonicalURL(ctx, canonicalURL)
	if err != nil {
		return Resolution{}, fmt.Errorf("check seen url: %w", err)
	}
	if seen {
		if seenStatus == db.SeenFailed {
			return Resolution{Outcome: OutcomeFailedPreviously, Reason: "failed previously"}, nil
		}
		return Resolution{Outcome: OutcomeDuplicate, Reason: "url seen"}, nil
	}

	if fingerprint != "" {
		trackedHash, err := r.history.ItemExistsByFingerprint(ctx, fingerprint)
		if err != nil {
			return Resolution{}, fmt.Errorf("check tracked fingerprint: %w", err)
		}
		if !trackedHash {
			seenHash, seenErr := r.history.SeenExistsByFingerprint(ctx, fingerprint)
			if seenErr != nil {
				return Resolution{}, fmt.Errorf("check seen fingerprint: %w", seenErr)
			}
			trackedHash = seenHash
		}
		if trackedHash {
			return Resolution{Outcome: OutcomeDuplicate, Reason: "content hash match"}, nil
		}
	}

	since := globaltime.UTC().Add(-r.window.MaxAge)
	window, err := r.history.RecentActiveTitles(ctx, r.window.Statuses, since, r.window.Limit)
	if err != nil {
		return Resolution{}, fmt.Errorf("load similarity window: %w", err)
	}
	for _, recent := range window {
		score := titleSequenceRatio(title, recent.Title)
		if score >= r.window.Threshold {
			r.logger.Debug().
				Str("item_uuid", recent.ItemUUID).
				Float64("score", score).
				Msg("title similarity duplicate")
			return Resolution{
				Outcome: OutcomeDuplicate,
				Reason:  fmt.Sprintf("similar to item %s", recent.ItemUUID),
			}, nil
		}
	}

	return Resolution{Outcome: OutcomeNew}, nil
}
