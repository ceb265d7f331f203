package media

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache
}

func imageBody(size int) []byte {
	return bytes.Repeat([]byte{0xAB}, size)
}

func TestMaterializeStoresImage(t *testing.T) {
	t.Parallel()

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(imageBody(4 << 10))
	}))
	defer server.Close()

	cache := newTestCache(t)

	path, err := cache.Materialize(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if filepath.Ext(path) != ".jpg" {
		t.Fatalf("unexpected extension for %q", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("cached file missing: %v", err)
	}
	if info.Size() != 4<<10 {
		t.Fatalf("cached size = %d, want %d", info.Size(), 4<<10)
	}

	// A second call for the same URL must reuse the cached file.
	again, err := cache.Materialize(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("Materialize (cached): %v", err)
	}
	if again != path {
		t.Fatalf("cached path changed: %q vs %q", again, path)
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}
}

func TestMaterializeRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		contentType string
		body        []byte
		status      int
		wantErr     string
	}{
		{"unsupported type", "text/html", imageBody(4 << 10), http.StatusOK, "unsupported media type"},
		{"too small", "image/png", imageBody(100), http.StatusOK, "smaller than"},
		{"too large", "image/png", imageBody(MaxDownloadBytes + 1), http.StatusOK, "exceeds"},
		{"bad status", "image/png", nil, http.StatusNotFound, "unexpected status 404"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				w.WriteHeader(tc.status)
				_, _ = w.Write(tc.body)
			}))
			defer server.Close()

			cache := newTestCache(t)

			_, err := cache.Materialize(context.Background(), server.URL)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestCleanupOlderThan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache, err := NewCache(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	stale := filepath.Join(dir, "stale.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	for _, path := range []string{stale, fresh} {
		if err := os.WriteFile(path, imageBody(2<<10), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("age file: %v", err)
	}

	removed, err := cache.CleanupOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should remain: %v", err)
	}
}

func TestCacheKeyStable(t *testing.T) {
	t.Parallel()

	a := cacheKey("https://cdn.example.com/a.jpg")
	if len(a) != 16 {
		t.Fatalf("key length = %d, want 16", len(a))
	}
	if a != cacheKey("https://cdn.example.com/a.jpg") {
		t.Fatal("key must be deterministic")
	}
	if a == cacheKey("https://cdn.example.com/b.jpg") {
		t.Fatal("distinct URLs must map to distinct keys")
	}
}
