package db

import (
	"context"
	"fmt"
	"time"
)

// Stats summarizes queue and screening state for the API and CLI.
type Stats struct {
	ItemCounts      map[string]int64 `json:"item_counts"`
	SeenCounts      map[string]int64 `json:"seen_counts"`
	LastPublishedAt *time.Time       `json:"last_published_at,omitempty"`
	OldestPendingAt *time.Time       `json:"oldest_pending_at,omitempty"`
}

// QueryStats loads per-status item and seen-record counts plus queue
// timestamps.
func (p *Pool) QueryStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ItemCounts: make(map[string]int64),
		SeenCounts: make(map[string]int64),
	}

	itemRows, err := p.Query(ctx, `SELECT status, COUNT(*) FROM relay_items GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("query item counts: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var status string
		var count int64
		if scanErr := itemRows.Scan(&status, &count); scanErr != nil {
			return Stats{}, fmt.Errorf("scan item count: %w", scanErr)
		}
		stats.ItemCounts[status] = count
	}
	if err := itemRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate item counts: %w", err)
	}

	seenRows, err := p.Query(ctx, `SELECT status, COUNT(*) FROM relay_seen_records GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("query seen counts: %w", err)
	}
	defer seenRows.Close()
	for seenRows.Next() {
		var status string
		var count int64
		if scanErr := seenRows.Scan(&status, &count); scanErr != nil {
			return Stats{}, fmt.Errorf("scan seen count: %w", scanErr)
		}
		stats.SeenCounts[status] = count
	}
	if err := seenRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate seen counts: %w", err)
	}

	const timesQ = `
SELECT
	(SELECT MAX(published_at) FROM relay_items WHERE status = 'published'),
	(SELECT MIN(created_at) FROM relay_items WHERE status = 'pending')`
	if err := p.QueryRow(ctx, timesQ).Scan(&stats.LastPublishedAt, &stats.OldestPendingAt); err != nil {
		return Stats{}, fmt.Errorf("query queue timestamps: %w", err)
	}

	return stats, nil
}
