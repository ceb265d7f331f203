package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/globaltime"
)

// Queue is the approved-item backlog the publisher drains. *db.Pool
// satisfies it.
type Queue interface {
	NextApprovedItem(ctx context.Context) (db.ItemSummary, error)
	LastPublishedAt(ctx context.Context) (*time.Time, error)
	MarkItemPublished(ctx context.Context, itemID int64, publishedAt time.Time) error
}

// Broadcaster delivers one post to the channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, text, mediaPath string) error
}

// Service posts at most one approved item per call, oldest first, while the
// pacing gate allows it.
type Service struct {
	queue       Queue
	broadcaster Broadcaster
	gate        Gate
	logger      zerolog.Logger
}

func NewService(queue Queue, broadcaster Broadcaster, gate Gate, logger zerolog.Logger) *Service {
	return &Service{
		queue:       queue,
		broadcaster: broadcaster,
		gate:        gate,
		logger:      logger,
	}
}

// PublishNext evaluates the gate and, when open, broadcasts the oldest
// approved item. It reports whether an item went out. A closed gate or an
// empty queue is a normal no-op, not an error.
func (s *Service) PublishNext(ctx context.Context) (bool, error) {
	last, err := s.queue.LastPublishedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("load last publish time: %w", err)
	}

	now := globaltime.UTC()
	if !s.gate.MayPublishNow(last, now) {
		s.logger.Debug().
			Time("next_allowed_at", s.gate.NextAllowedAt(last)).
			Msg("publish gate closed")
		return false, nil
	}

	item, err := s.queue.NextApprovedItem(ctx)
	if err != nil {
		if errors.Is(err, db.ErrItemNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load next approved item: %w", err)
	}

	text := composePost(item)
	mediaPath := ""
	if item.LocalMediaPath != nil {
		mediaPath = *item.LocalMediaPath
	}

	if err := s.broadcaster.Broadcast(ctx, text, mediaPath); err != nil {
		// The item stays approved and will be retried on a later tick.
		return false, fmt.Errorf("broadcast item %s: %w", item.ItemUUID, err)
	}

	publishedAt := monotonicPublishTime(now, last)

	if err := s.queue.MarkItemPublished(ctx, item.ItemID, publishedAt); err != nil {
		return false, fmt.Errorf("mark item %s published: %w", item.ItemUUID, err)
	}

	s.logger.Info().
		Str("item_uuid", item.ItemUUID).
		Str("source", item.SourceName).
		Time("published_at", publishedAt).
		Msg("item published")

	return true, nil
}

// monotonicPublishTime keeps published_at non-decreasing even if the wall
// clock stepped back between two publishes.
func monotonicPublishTime(now time.Time, last *time.Time) time.Time {
	if last != nil && last.After(now) {
		return *last
	}
	return now
}

// composePost prefers the rewritten localized text and falls back to the
// raw title, summary and attribution when no rewrite was stored.
func composePost(item db.ItemSummary) string {
	if item.LocalizedText != nil && strings.TrimSpace(*item.LocalizedText) != "" {
		return strings.TrimSpace(*item.LocalizedText)
	}

	parts := []string{item.Title}
	if strings.TrimSpace(item.Summary) != "" {
		parts = append(parts, item.Summary)
	}
	parts = append(parts, fmt.Sprintf("via %s | %s", item.SourceName, item.CanonicalURL))
	return strings.Join(parts, "\n\n")
}
