package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SeenParams carries one screening outcome for upsert.
type SeenParams struct {
	CanonicalURL string
	OriginalURL  string
	Fingerprint  *string
	Status       string
	Reason       string
}

// UpsertSeen records a screening outcome for a canonical URL. A repeat
// evaluation updates the existing row in place.
func (p *Pool) UpsertSeen(ctx context.Context, params SeenParams) error {
	if strings.TrimSpace(params.CanonicalURL) == "" {
		return fmt.Errorf("canonical URL is required")
	}

	switch params.Status {
	case SeenDuplicate, SeenIrrelevant, SeenFailed:
	default:
		return fmt.Errorf("unsupported seen status %q", params.Status)
	}

	var reason *string
	if trimmed := strings.TrimSpace(params.Reason); trimmed != "" {
		reason = &trimmed
	}

	const q = `
INSERT INTO relay_seen_records (canonical_url, original_url, fingerprint, status, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (canonical_url) DO UPDATE
SET original_url = EXCLUDED.original_url,
    fingerprint = COALESCE(EXCLUDED.fingerprint, relay_seen_records.fingerprint),
    status = EXCLUDED.status,
    reason = EXCLUDED.reason,
    updated_at = NOW()`

	if _, err := p.Exec(ctx, q, params.CanonicalURL, params.OriginalURL, params.Fingerprint, params.Status, reason); err != nil {
		return fmt.Errorf("upsert seen record: %w", err)
	}
	return nil
}

// SeenStatusByCanonicalURL returns the recorded disposition for a URL that
// was screened before, or found=false when the URL is unseen.
func (p *Pool) SeenStatusByCanonicalURL(ctx context.Context, canonicalURL string) (status string, found bool, err error) {
	const q = `SELECT status FROM relay_seen_records WHERE canonical_url = $1`

	if err := p.QueryRow(ctx, q, canonicalURL).Scan(&status); err != nil {
		if IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("seen status by canonical url: %w", err)
	}
	return status, true, nil
}

// SeenExistsByFingerprint reports whether any screened candidate shared the
// content fingerprint.
func (p *Pool) SeenExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM relay_seen_records WHERE fingerprint = $1)`

	var exists bool
	if err := p.QueryRow(ctx, q, fingerprint).Scan(&exists); err != nil {
		return false, fmt.Errorf("seen exists by fingerprint: %w", err)
	}
	return exists, nil
}

// PruneSeenBefore deletes seen records older than the cutoff and returns the
// number of rows removed. Pruning bounds table growth; it is not needed for
// correctness.
func (p *Pool) PruneSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM relay_seen_records WHERE created_at < $1`

	tag, err := p.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune seen records: %w", err)
	}
	return tag.RowsAffected(), nil
}
