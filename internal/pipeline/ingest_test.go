package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/classify"
	"horse.fit/relay/internal/config"
	"horse.fit/relay/internal/db"
)

type stubStore struct {
	inserted []db.NewItemParams
	seen     []db.SeenParams
	failURLs map[string]error
}

func (s *stubStore) InsertItem(_ context.Context, params db.NewItemParams) (db.ItemSummary, error) {
	if err, ok := s.failURLs[params.CanonicalURL]; ok {
		return db.ItemSummary{}, err
	}
	s.inserted = append(s.inserted, params)
	return db.ItemSummary{
		ItemID:       int64(len(s.inserted)),
		ItemUUID:     fmt.Sprintf("uuid-%d", len(s.inserted)),
		CanonicalURL: params.CanonicalURL,
		Status:       db.StatusPending,
	}, nil
}

func (s *stubStore) UpsertSeen(_ context.Context, params db.SeenParams) error {
	s.seen = append(s.seen, params)
	return nil
}

func (s *stubStore) seenWithStatus(status string) int {
	count := 0
	for _, record := range s.seen {
		if record.Status == status {
			count++
		}
	}
	return count
}

type stubSources struct {
	batches []SourceBatch
	errs    []SourceError
}

func (s *stubSources) FetchAll(context.Context) ([]SourceBatch, []SourceError) {
	return s.batches, s.errs
}

type stubClassifier struct {
	classifyCalls int
	rewriteCalls  int
	classifyErr   error
	relevant      bool
	reason        string
}

func (s *stubClassifier) Classify(context.Context, string, string, string) (classify.Decision, classify.Usage, error) {
	s.classifyCalls++
	if s.classifyErr != nil {
		return classify.Decision{}, classify.Usage{}, s.classifyErr
	}
	return classify.Decision{IsRelevant: s.relevant, Reason: s.reason},
		classify.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

func (s *stubClassifier) Rewrite(_ context.Context, req classify.RewriteRequest) (string, classify.Usage, error) {
	s.rewriteCalls++
	return "rewritten: " + req.Title, classify.Usage{PromptTokens: 20, CompletionTokens: 15}, nil
}

type stubNotifier struct {
	messages  []string
	approvals []string
}

func (n *stubNotifier) Notify(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func (n *stubNotifier) RequestApproval(_ context.Context, itemUUID, _ string) error {
	n.approvals = append(n.approvals, itemUUID)
	return nil
}

func newTestIngestor(store *stubStore, history *stubHistory, sources *stubSources, classifier *stubClassifier) *Ingestor {
	ingestor := NewIngestor(
		store,
		NewResolver(history, DefaultWindow(), zerolog.Nop()),
		sources,
		classifier,
		nil,
		nil,
		Options{MaxItems: 25, Pacing: 0},
		zerolog.Nop(),
	)
	ingestor.detectLanguage = func(string) string { return "en" }
	return ingestor
}

func TestRunCycleScreensDuplicates(t *testing.T) {
	t.Parallel()

	// Three candidates across two sources; the second in merge order repeats
	// an already tracked canonical URL.
	store := &stubStore{}
	history := &stubHistory{
		trackedURLs: map[string]bool{"https://example.com/known": true},
	}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha"},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/fresh-one", Title: "Fresh One", Body: "body one"},
					{SourceName: "alpha", URL: "https://example.com/fresh-two", Title: "Fresh Two", Body: "body two"},
				},
			},
			{
				Source: config.Source{Name: "beta"},
				Candidates: []Candidate{
					{SourceName: "beta", URL: "https://www.example.com/known", Title: "Known Story", Body: "body known"},
				},
			},
		},
	}
	classifier := &stubClassifier{relevant: true, reason: "significant"}

	report, err := newTestIngestor(store, history, sources, classifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if classifier.classifyCalls != 2 {
		t.Fatalf("classify calls = %d, want 2", classifier.classifyCalls)
	}
	if got := store.seenWithStatus(db.SeenDuplicate); got != 1 {
		t.Fatalf("duplicate seen records = %d, want 1", got)
	}
	if len(store.inserted) > 2 {
		t.Fatalf("inserted %d items, want at most 2", len(store.inserted))
	}
	if report.New != 2 || report.Duplicate != 1 {
		t.Fatalf("report new=%d duplicate=%d, want 2 and 1", report.New, report.Duplicate)
	}
	if report.Usage.Total() == 0 {
		t.Fatalf("cycle usage should aggregate token spend")
	}
}

func TestRunCycleIrrelevantCandidates(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha"},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/minor", Title: "Minor Note", Body: "body"},
				},
			},
		},
	}
	classifier := &stubClassifier{relevant: false, reason: "not newsworthy"}

	report, err := newTestIngestor(store, &stubHistory{}, sources, classifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.Irrelevant != 1 || report.New != 0 {
		t.Fatalf("report irrelevant=%d new=%d, want 1 and 0", report.Irrelevant, report.New)
	}
	if got := store.seenWithStatus(db.SeenIrrelevant); got != 1 {
		t.Fatalf("irrelevant seen records = %d, want 1", got)
	}
	if classifier.rewriteCalls != 0 {
		t.Fatalf("rewrite calls = %d, want 0", classifier.rewriteCalls)
	}
}

func TestRunCycleTerminalClassifyFailure(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha"},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/broken", Title: "Broken", Body: "body"},
				},
			},
		},
	}
	classifier := &stubClassifier{classifyErr: fmt.Errorf("invalid request payload")}

	report, err := newTestIngestor(store, &stubHistory{}, sources, classifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if classifier.classifyCalls != 1 {
		t.Fatalf("terminal failure should not retry: calls = %d, want 1", classifier.classifyCalls)
	}
	if report.Failed != 1 {
		t.Fatalf("report failed = %d, want 1", report.Failed)
	}
	if got := store.seenWithStatus(db.SeenFailed); got != 1 {
		t.Fatalf("failed seen records = %d, want 1", got)
	}
}

func TestRunCycleHonorsItemCap(t *testing.T) {
	t.Parallel()

	candidates := make([]Candidate, 0, 5)
	for i := 0; i < 5; i++ {
		candidates = append(candidates, Candidate{
			SourceName: "alpha",
			URL:        fmt.Sprintf("https://example.com/story-%d", i),
			Title:      fmt.Sprintf("Completely Distinct Headline Number %d", i*31),
			Body:       fmt.Sprintf("body %d", i),
		})
	}

	store := &stubStore{}
	sources := &stubSources{
		batches: []SourceBatch{{Source: config.Source{Name: "alpha"}, Candidates: candidates}},
	}
	classifier := &stubClassifier{relevant: true, reason: "significant"}

	ingestor := newTestIngestor(store, &stubHistory{}, sources, classifier)
	ingestor.opts.MaxItems = 3

	report, err := ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.Remaining != 2 {
		t.Fatalf("report remaining = %d, want 2", report.Remaining)
	}
	if classifier.classifyCalls != 3 {
		t.Fatalf("classify calls = %d, want 3", classifier.classifyCalls)
	}
}

func TestRunCyclePrefilters(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha", RequireMedia: true, MinScore: 1000},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/no-media", Title: "No Media", Score: 5000, HasScore: true},
					{SourceName: "alpha", URL: "https://example.com/low-score", Title: "Low Score", MediaURL: "https://img.example/a.jpg", MediaKind: MediaImage, Score: 10, HasScore: true},
					{SourceName: "alpha", URL: "https://example.com/keeper", Title: "Keeper Headline", MediaURL: "https://img.example/b.jpg", MediaKind: MediaImage, Score: 5000, HasScore: true},
				},
			},
		},
	}
	classifier := &stubClassifier{relevant: true, reason: "significant"}

	report, err := newTestIngestor(store, &stubHistory{}, sources, classifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.Fetched != 1 {
		t.Fatalf("fetched after pre-filters = %d, want 1", report.Fetched)
	}
	if len(store.inserted) != 1 || store.inserted[0].CanonicalURL != "https://example.com/keeper" {
		t.Fatalf("unexpected inserts: %+v", store.inserted)
	}
}

func TestRunCycleInsertRaceBecomesDuplicate(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		failURLs: map[string]error{"https://example.com/racy": db.ErrDuplicateURL},
	}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha"},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/racy", Title: "Racy Story", Body: "body"},
				},
			},
		},
	}
	classifier := &stubClassifier{relevant: true, reason: "significant"}

	report, err := newTestIngestor(store, &stubHistory{}, sources, classifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.Duplicate != 1 || report.Failed != 0 {
		t.Fatalf("report duplicate=%d failed=%d, want 1 and 0", report.Duplicate, report.Failed)
	}
	if got := store.seenWithStatus(db.SeenDuplicate); got != 1 {
		t.Fatalf("duplicate seen records = %d, want 1", got)
	}
}

func TestRunCycleRequestsApprovalForNewItems(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sources := &stubSources{
		batches: []SourceBatch{
			{
				Source: config.Source{Name: "alpha"},
				Candidates: []Candidate{
					{SourceName: "alpha", URL: "https://example.com/one", Title: "Story One", Body: "body one"},
					{SourceName: "alpha", URL: "https://example.com/two", Title: "Story Two", Body: "body two"},
				},
			},
		},
	}
	classifier := &stubClassifier{relevant: true, reason: "significant"}
	notifier := &stubNotifier{}

	ingestor := newTestIngestor(store, &stubHistory{}, sources, classifier)
	ingestor.notifier = notifier

	report, err := ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if report.New != 2 {
		t.Fatalf("report new = %d, want 2", report.New)
	}
	if len(notifier.approvals) != 2 {
		t.Fatalf("approval requests = %d, want 2", len(notifier.approvals))
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("summary messages = %d, want 1", len(notifier.messages))
	}
}

func TestTruncateReasonKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ü", maxReasonLen+20)
	got := truncateReason(long)
	if !utf8.ValidString(got) {
		t.Fatal("truncated reason is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != maxReasonLen {
		t.Fatalf("rune count = %d, want %d", n, maxReasonLen)
	}

	short := "too similar"
	if truncateReason(short) != short {
		t.Fatal("short reason must pass through unchanged")
	}
}
