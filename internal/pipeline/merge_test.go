package pipeline

import (
	"testing"

	"horse.fit/relay/internal/config"
)

func makeBatch(source string, urls ...string) SourceBatch {
	candidates := make([]Candidate, 0, len(urls))
	for _, u := range urls {
		candidates = append(candidates, Candidate{SourceName: source, URL: u})
	}
	return SourceBatch{
		Source:     config.Source{Name: source},
		Candidates: candidates,
	}
}

func TestMergeBatchesRoundRobin(t *testing.T) {
	t.Parallel()

	merged := MergeBatches([]SourceBatch{
		makeBatch("a", "a1", "a2", "a3"),
		makeBatch("b", "b1"),
		makeBatch("c", "c1", "c2"),
	})

	want := []string{"a1", "b1", "c1", "a2", "c2", "a3"}
	if len(merged) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(merged), len(want))
	}
	for i, url := range want {
		if merged[i].URL != url {
			t.Fatalf("position %d = %q, want %q", i, merged[i].URL, url)
		}
	}
}

func TestMergeBatchesEmpty(t *testing.T) {
	t.Parallel()

	if merged := MergeBatches(nil); merged != nil {
		t.Fatalf("nil batches should merge to nil, got %v", merged)
	}
	if merged := MergeBatches([]SourceBatch{makeBatch("a")}); merged != nil {
		t.Fatalf("empty batches should merge to nil, got %v", merged)
	}
}

func TestMergeBatchesSingleSource(t *testing.T) {
	t.Parallel()

	merged := MergeBatches([]SourceBatch{makeBatch("a", "a1", "a2")})
	if len(merged) != 2 || merged[0].URL != "a1" || merged[1].URL != "a2" {
		t.Fatalf("single source order broken: %v", merged)
	}
}
