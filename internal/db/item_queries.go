package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateURL reports an insert that lost to the canonical URL
	// uniqueness constraint.
	ErrDuplicateURL = errors.New("canonical url already tracked")

	// ErrItemNotFound reports a lookup for an unknown item identifier.
	ErrItemNotFound = errors.New("item not found")

	// ErrConflictingStatus reports a status transition whose precondition
	// no longer holds.
	ErrConflictingStatus = errors.New("item status conflicts with requested transition")
)

// NewItemParams carries the column values for one tracked item insert.
type NewItemParams struct {
	SourceName     string
	OriginalURL    string
	CanonicalURL   string
	Title          string
	Summary        string
	Fingerprint    *string
	MediaURL       *string
	LocalMediaPath *string
	MediaKind      string
	Language       string
	LocalizedText  *string
	CreatedAt      time.Time
}

// ItemSummary is the read model shared by the moderation API and CLI output.
type ItemSummary struct {
	ItemID         int64      `json:"item_id"`
	ItemUUID       string     `json:"item_uuid"`
	SourceName     string     `json:"source_name"`
	OriginalURL    string     `json:"original_url"`
	CanonicalURL   string     `json:"canonical_url"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	Fingerprint    *string    `json:"fingerprint,omitempty"`
	MediaURL       *string    `json:"media_url,omitempty"`
	LocalMediaPath *string    `json:"local_media_path,omitempty"`
	MediaKind      string     `json:"media_kind"`
	Language       string     `json:"language"`
	LocalizedText  *string    `json:"localized_text,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

const itemColumns = `
	item_id,
	item_uuid::text,
	source_name,
	original_url,
	canonical_url,
	title,
	summary,
	fingerprint,
	media_url,
	local_media_path,
	media_kind,
	language,
	localized_text,
	status,
	created_at,
	published_at`

func scanItemSummary(row interface{ Scan(dest ...any) error }) (ItemSummary, error) {
	var item ItemSummary
	err := row.Scan(
		&item.ItemID,
		&item.ItemUUID,
		&item.SourceName,
		&item.OriginalURL,
		&item.CanonicalURL,
		&item.Title,
		&item.Summary,
		&item.Fingerprint,
		&item.MediaURL,
		&item.LocalMediaPath,
		&item.MediaKind,
		&item.Language,
		&item.LocalizedText,
		&item.Status,
		&item.CreatedAt,
		&item.PublishedAt,
	)
	return item, err
}

// InsertItem creates one tracked item in status pending. The canonical URL
// is re-checked in the same transaction as the write, and a collision is
// reported as ErrDuplicateURL so the caller can treat a lost insert race as
// an ordinary duplicate.
func (p *Pool) InsertItem(ctx context.Context, params NewItemParams) (ItemSummary, error) {
	if strings.TrimSpace(params.CanonicalURL) == "" {
		return ItemSummary{}, fmt.Errorf("canonical URL is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return ItemSummary{}, fmt.Errorf("title is required")
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	mediaKind := strings.TrimSpace(params.MediaKind)
	if mediaKind == "" {
		mediaKind = "none"
	}
	language := strings.TrimSpace(params.Language)
	if language == "" {
		language = "und"
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return ItemSummary{}, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Final duplicate check under the same transaction as the write. The
	// ON CONFLICT clause below still backstops a race with a writer that
	// commits between this read and the insert.
	var exists bool
	const existsQ = `SELECT EXISTS(SELECT 1 FROM relay_items WHERE canonical_url = $1)`
	if err := tx.QueryRow(ctx, existsQ, params.CanonicalURL).Scan(&exists); err != nil {
		return ItemSummary{}, fmt.Errorf("check canonical url: %w", err)
	}
	if exists {
		return ItemSummary{}, ErrDuplicateURL
	}

	const q = `
INSERT INTO relay_items (
	item_uuid,
	source_name,
	original_url,
	canonical_url,
	title,
	summary,
	fingerprint,
	media_url,
	local_media_path,
	media_kind,
	language,
	localized_text,
	status,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending', $13)
ON CONFLICT (canonical_url) DO NOTHING
RETURNING` + itemColumns

	item, err := scanItemSummary(tx.QueryRow(ctx, q,
		uuid.NewString(),
		params.SourceName,
		params.OriginalURL,
		params.CanonicalURL,
		params.Title,
		params.Summary,
		params.Fingerprint,
		params.MediaURL,
		params.LocalMediaPath,
		mediaKind,
		language,
		params.LocalizedText,
		createdAt.UTC(),
	))
	if err != nil {
		if IsNoRows(err) {
			return ItemSummary{}, ErrDuplicateURL
		}
		return ItemSummary{}, fmt.Errorf("insert item: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ItemSummary{}, fmt.Errorf("commit insert: %w", err)
	}
	return item, nil
}

// GetItemByUUID loads one item or ErrItemNotFound.
func (p *Pool) GetItemByUUID(ctx context.Context, itemUUID string) (ItemSummary, error) {
	const q = `
SELECT` + itemColumns + `
FROM relay_items
WHERE item_uuid = $1::uuid`

	item, err := scanItemSummary(p.QueryRow(ctx, q, strings.TrimSpace(itemUUID)))
	if err != nil {
		if IsNoRows(err) {
			return ItemSummary{}, ErrItemNotFound
		}
		return ItemSummary{}, fmt.Errorf("get item by uuid: %w", err)
	}
	return item, nil
}

// ListItemsByStatus returns items in one status, oldest first.
func (p *Pool) ListItemsByStatus(ctx context.Context, status string, limit, offset int) ([]ItemSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT` + itemColumns + `
FROM relay_items
WHERE status = $1
ORDER BY created_at ASC, item_id ASC
LIMIT $2 OFFSET $3`

	rows, err := p.Query(ctx, q, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list items by status: %w", err)
	}
	defer rows.Close()

	items := make([]ItemSummary, 0, limit)
	for rows.Next() {
		item, scanErr := scanItemSummary(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan item row: %w", scanErr)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return items, nil
}

// CountItemsByStatus counts items in one status.
func (p *Pool) CountItemsByStatus(ctx context.Context, status string) (int64, error) {
	const q = `SELECT COUNT(*) FROM relay_items WHERE status = $1`

	var count int64
	if err := p.QueryRow(ctx, q, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items by status: %w", err)
	}
	return count, nil
}

// TransitionItemStatus moves one item from fromStatus to toStatus. The
// update is guarded on the current status so concurrent moderation and
// publishing cannot skip a state.
func (p *Pool) TransitionItemStatus(ctx context.Context, itemUUID, fromStatus, toStatus string) (ItemSummary, error) {
	const q = `
UPDATE relay_items
SET status = $3
WHERE item_uuid = $1::uuid
  AND status = $2
RETURNING` + itemColumns

	item, err := scanItemSummary(p.QueryRow(ctx, q, strings.TrimSpace(itemUUID), fromStatus, toStatus))
	if err == nil {
		return item, nil
	}
	if !IsNoRows(err) {
		return ItemSummary{}, fmt.Errorf("transition item status: %w", err)
	}

	if _, getErr := p.GetItemByUUID(ctx, itemUUID); getErr != nil {
		return ItemSummary{}, getErr
	}
	return ItemSummary{}, ErrConflictingStatus
}

// ItemExistsByCanonicalURL reports whether any tracked item uses the URL.
func (p *Pool) ItemExistsByCanonicalURL(ctx context.Context, canonicalURL string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM relay_items WHERE canonical_url = $1)`

	var exists bool
	if err := p.QueryRow(ctx, q, canonicalURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("item exists by canonical url: %w", err)
	}
	return exists, nil
}

// ItemExistsByFingerprint reports whether any tracked item shares the
// content fingerprint.
func (p *Pool) ItemExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM relay_items WHERE fingerprint = $1)`

	var exists bool
	if err := p.QueryRow(ctx, q, fingerprint).Scan(&exists); err != nil {
		return false, fmt.Errorf("item exists by fingerprint: %w", err)
	}
	return exists, nil
}

// ActiveTitle is one row of the bounded similarity window.
type ActiveTitle struct {
	ItemID   int64
	ItemUUID string
	Title    string
}

// RecentActiveTitles returns titles of items in the given statuses created
// after since, newest first, capped at limit. This bounds the cost of the
// fuzzy similarity pass.
func (p *Pool) RecentActiveTitles(ctx context.Context, statuses []string, since time.Time, limit int) ([]ActiveTitle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("at least one status is required")
	}

	const q = `
SELECT item_id, item_uuid::text, title
FROM relay_items
WHERE status = ANY(string_to_array($1, ','))
  AND created_at >= $2
ORDER BY created_at DESC, item_id DESC
LIMIT $3`

	rows, err := p.Query(ctx, q, strings.Join(statuses, ","), since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent active titles: %w", err)
	}
	defer rows.Close()

	titles := make([]ActiveTitle, 0, limit)
	for rows.Next() {
		var row ActiveTitle
		if scanErr := rows.Scan(&row.ItemID, &row.ItemUUID, &row.Title); scanErr != nil {
			return nil, fmt.Errorf("scan title row: %w", scanErr)
		}
		titles = append(titles, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title rows: %w", err)
	}
	return titles, nil
}

// NextApprovedItem returns the oldest approved item by creation order, or
// ErrItemNotFound when the approved queue is empty.
func (p *Pool) NextApprovedItem(ctx context.Context) (ItemSummary, error) {
	const q = `
SELECT` + itemColumns + `
FROM relay_items
WHERE status = 'approved'
ORDER BY created_at ASC, item_id ASC
LIMIT 1`

	item, err := scanItemSummary(p.QueryRow(ctx, q))
	if err != nil {
		if IsNoRows(err) {
			return ItemSummary{}, ErrItemNotFound
		}
		return ItemSummary{}, fmt.Errorf("next approved item: %w", err)
	}
	return item, nil
}

// LastPublishedAt returns the latest publish timestamp, or nil when nothing
// has been published yet.
func (p *Pool) LastPublishedAt(ctx context.Context) (*time.Time, error) {
	const q = `SELECT MAX(published_at) FROM relay_items WHERE status = 'published'`

	var last *time.Time
	if err := p.QueryRow(ctx, q).Scan(&last); err != nil {
		return nil, fmt.Errorf("last published at: %w", err)
	}
	return last, nil
}

// MarkItemPublished finalizes one approved item. The guard on status keeps
// a repeated gate evaluation from publishing the same row twice.
func (p *Pool) MarkItemPublished(ctx context.Context, itemID int64, publishedAt time.Time) error {
	const q = `
UPDATE relay_items
SET status = 'published', published_at = $2
WHERE item_id = $1
  AND status = 'approved'`

	tag, err := p.Exec(ctx, q, itemID, publishedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark item published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflictingStatus
	}
	return nil
}
