package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/globaltime"
)

const (
	// MinDownloadBytes rejects tracking pixels and truncated responses.
	MinDownloadBytes = 1 << 10
	// MaxDownloadBytes keeps a single item from filling the cache volume.
	MaxDownloadBytes = 10 << 20

	defaultDownloadTimeout = 30 * time.Second
	downloadUserAgent      = "relay-media/1.0 (+https://horse.fit/relay)"
)

// extensionsByContentType doubles as the allowlist of media types the cache
// will store.
var extensionsByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Cache materializes remote media into a local directory so broadcast can
// serve files even after the origin link dies.
type Cache struct {
	dir    string
	client *http.Client
	logger zerolog.Logger
}

func NewCache(dir string, logger zerolog.Logger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("media cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media cache directory: %w", err)
	}
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: defaultDownloadTimeout},
		logger: logger,
	}, nil
}

// Materialize downloads mediaURL into the cache and returns the local path.
// A file already cached for the same URL is reused without a new download.
func (c *Cache) Materialize(ctx context.Context, mediaURL string) (string, error) {
	trimmed := strings.TrimSpace(mediaURL)
	if trimmed == "" {
		return "", fmt.Errorf("media URL is required")
	}

	if existing, ok := c.lookup(trimmed); ok {
		return existing, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	contentType := normalizeContentType(resp.Header.Get("Content-Type"))
	ext, ok := extensionsByContentType[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported media type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read media body: %w", err)
	}
	if len(body) > MaxDownloadBytes {
		return "", fmt.Errorf("media exceeds %d bytes", MaxDownloadBytes)
	}
	if len(body) < MinDownloadBytes {
		return "", fmt.Errorf("media smaller than %d bytes", MinDownloadBytes)
	}

	path := filepath.Join(c.dir, cacheKey(trimmed)+ext)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	c.logger.Debug().
		Str("url", trimmed).
		Str("path", path).
		Int("bytes", len(body)).
		Msg("media cached")

	return path, nil
}

// CleanupOlderThan removes cached files whose modification time is older
// than maxAge and reports how many were deleted.
func (c *Cache) CleanupOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read media cache directory: %w", err)
	}

	cutoff := globaltime.UTC().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			c.logger.Warn().Err(err).Str("file", entry.Name()).Msg("media eviction failed")
			continue
		}
		removed++
	}
	return removed, nil
}

// lookup finds an already materialized file for the URL, regardless of the
// extension it was stored under.
func (c *Cache) lookup(mediaURL string) (string, bool) {
	key := cacheKey(mediaURL)
	for _, ext := range extensionsByContentType {
		path := filepath.Join(c.dir, key+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func cacheKey(mediaURL string) string {
	sum := sha256.Sum256([]byte(mediaURL))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeContentType(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(trimmed, ';'); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}
