package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/classify"
	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/globaltime"
	"horse.fit/relay/internal/langdetect"
	"horse.fit/relay/internal/retry"
)

// Store is the persistence surface the ingestion cycle writes through.
// *db.Pool implements it.
type Store interface {
	InsertItem(ctx context.Context, params db.NewItemParams) (db.ItemSummary, error)
	UpsertSeen(ctx context.Context, params db.SeenParams) error
}

// Sources produces per-source candidate batches. A failing source yields a
// SourceError instead of aborting the others.
type Sources interface {
	FetchAll(ctx context.Context) ([]SourceBatch, []SourceError)
}

// Classifier is the generative capability: one relevance verdict and one
// rewrite per accepted candidate. Calls are single attempts; the cycle owns
// the backoff wrapper.
type Classifier interface {
	Classify(ctx context.Context, title, body, mediaHint string) (classify.Decision, classify.Usage, error)
	Rewrite(ctx context.Context, req classify.RewriteRequest) (string, classify.Usage, error)
}

// Media materializes a remote media URL into a local cached file.
type Media interface {
	Materialize(ctx context.Context, mediaURL string) (string, error)
}

// Notifier delivers best-effort operator messages and moderation cards.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	RequestApproval(ctx context.Context, itemUUID, text string) error
}

// Options tunes one ingestion cycle.
type Options struct {
	MaxItems int
	Pacing   time.Duration
	Retry    retry.Config
}

// CycleReport is the value one ingestion cycle returns: outcome counts,
// per-source fetch failures, and the model token spend for this cycle.
type CycleReport struct {
	Fetched      int            `json:"fetched"`
	New          int            `json:"new"`
	Duplicate    int            `json:"duplicate"`
	Irrelevant   int            `json:"irrelevant"`
	Failed       int            `json:"failed"`
	Remaining    int            `json:"remaining"`
	SourceErrors []SourceError  `json:"source_errors,omitempty"`
	Usage        classify.Usage `json:"usage"`
}

// Summary renders the operator-channel digest for the cycle.
func (r CycleReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fetch cycle: %d new, %d duplicate, %d irrelevant, %d failed",
		r.New, r.Duplicate, r.Irrelevant, r.Failed)
	if r.Remaining > 0 {
		fmt.Fprintf(&b, ", %d remaining", r.Remaining)
	}
	if r.Usage.Total() > 0 {
		fmt.Fprintf(&b, " (tokens: %d prompt, %d completion)",
			r.Usage.PromptTokens, r.Usage.CompletionTokens)
	}
	for _, srcErr := range r.SourceErrors {
		fmt.Fprintf(&b, "\nsource %s failed: %s", srcErr.SourceName, srcErr.Message)
	}
	return b.String()
}

// Ingestor runs ingestion cycles: fetch, pre-filter, merge, screen,
// classify, rewrite, persist.
type Ingestor struct {
	store      Store
	resolver   *Resolver
	sources    Sources
	classifier Classifier
	media      Media
	notifier   Notifier
	opts       Options
	logger     zerolog.Logger

	detectLanguage func(string) string
}

func NewIngestor(store Store, resolver *Resolver, sources Sources, classifier Classifier, media Media, notifier Notifier, opts Options, logger zerolog.Logger) *Ingestor {
	if opts.MaxItems <= 0 {
		opts.MaxItems = 25
	}
	if opts.Pacing < 0 {
		opts.Pacing = 0
	}

	return &Ingestor{
		store:          store,
		resolver:       resolver,
		sources:        sources,
		classifier:     classifier,
		media:          media,
		notifier:       notifier,
		opts:           opts,
		logger:         logger,
		detectLanguage: langdetect.DetectISO6391,
	}
}

// RunCycle executes one full ingestion cycle and returns its report. The
// error return covers only setup-level failures; per-candidate and
// per-source problems are folded into the report so one bad item never
// aborts the batch.
func (s *Ingestor) RunCycle(ctx context.Context) (CycleReport, error) {
	if s == nil || s.store == nil || s.resolver == nil || s.sources == nil || s.classifier == nil {
		return CycleReport{}, fmt.Errorf("ingestor is not initialized")
	}

	var report CycleReport

	batches, sourceErrors := s.sources.FetchAll(ctx)
	report.SourceErrors = sourceErrors
	for _, srcErr := range sourceErrors {
		s.logger.Warn().
			Str("source", srcErr.SourceName).
			Str("error", srcErr.Message).
			Msg("source fetch failed")
	}

	filtered := make([]SourceBatch, 0, len(batches))
	for _, batch := range batches {
		filtered = append(filtered, s.prefilter(batch))
	}

	merged := MergeBatches(filtered)
	report.Fetched = len(merged)

	for i, candidate := range merged {
		if err := ctx.Err(); err != nil {
			report.Remaining = len(merged) - i
			return report, err
		}
		if i >= s.opts.MaxItems {
			report.Remaining = len(merged) - i
			break
		}
		if i > 0 && s.opts.Pacing > 0 {
			timer := time.NewTimer(s.opts.Pacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				report.Remaining = len(merged) - i
				return report, ctx.Err()
			case <-timer.C:
			}
		}

		s.processCandidate(ctx, candidate, &report)
	}

	s.logger.Info().
		Int("fetched", report.Fetched).
		Int("new", report.New).
		Int("duplicate", report.Duplicate).
		Int("irrelevant", report.Irrelevant).
		Int("failed", report.Failed).
		Int("remaining", report.Remaining).
		Int("tokens", report.Usage.Total()).
		Msg("ingestion cycle finished")

	s.notify(ctx, report.Summary())

	return report, nil
}

// prefilter drops candidates that can never publish on this source: missing
// required media, or a popularity score below the source floor.
func (s *Ingestor) prefilter(batch SourceBatch) SourceBatch {
	kept := make([]Candidate, 0, len(batch.Candidates))
	for _, candidate := range batch.Candidates {
		if batch.Source.RequireMedia && strings.TrimSpace(candidate.MediaURL) == "" {
			s.logger.Debug().Str("url", candidate.URL).Msg("skipping candidate without media")
			continue
		}
		if batch.Source.MinScore > 0 && candidate.HasScore && candidate.Score < batch.Source.MinScore {
			s.logger.Debug().
				Str("url", candidate.URL).
				Int("score", candidate.Score).
				Msg("skipping low-score candidate")
			continue
		}
		kept = append(kept, candidate)
	}
	return SourceBatch{Source: batch.Source, Candidates: kept}
}

func (s *Ingestor) processCandidate(ctx context.Context, candidate Candidate, report *CycleReport) {
	canonical := Canonicalize(candidate.URL)
	fingerprint := Fingerprint(candidate.Title, candidate.Body)

	resolution, err := s.resolver.Resolve(ctx, canonical, fingerprint, candidate.Title)
	if err != nil {
		s.logger.Error().Err(err).Str("url", candidate.URL).Msg("resolve failed")
		report.Failed++
		return
	}

	switch resolution.Outcome {
	case OutcomeDuplicate:
		s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenDuplicate, resolution.Reason)
		report.Duplicate++
		return
	case OutcomeFailedPreviously:
		// Already screened and failed; do not re-spend a classification call.
		report.Duplicate++
		return
	}

	verdict, err := retry.Do(ctx, s.logger, "classify", s.opts.Retry, func(ctx context.Context) (classifyResult, error) {
		d, u, classifyErr := s.classifier.Classify(ctx, candidate.Title, candidate.Body, candidate.MediaKind)
		return classifyResult{decision: d, usage: u}, classifyErr
	})
	report.Usage.Add(verdict.usage)
	if err != nil {
		s.logger.Error().Err(err).Str("url", candidate.URL).Msg("classification failed")
		s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenFailed, truncateReason(err.Error()))
		report.Failed++
		return
	}
	if !verdict.decision.IsRelevant {
		s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenIrrelevant, truncateReason(verdict.decision.Reason))
		report.Irrelevant++
		return
	}

	attribution := fmt.Sprintf("via %s | %s", candidate.SourceName, canonical)
	localized, err := retry.Do(ctx, s.logger, "rewrite", s.opts.Retry, func(ctx context.Context) (rewriteResult, error) {
		text, u, rewriteErr := s.classifier.Rewrite(ctx, classify.RewriteRequest{
			Title:       candidate.Title,
			Body:        candidate.Body,
			Attribution: attribution,
			MediaKind:   candidate.MediaKind,
		})
		return rewriteResult{text: text, usage: u}, rewriteErr
	})
	report.Usage.Add(localized.usage)
	if err != nil {
		s.logger.Error().Err(err).Str("url", candidate.URL).Msg("rewrite failed")
		s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenFailed, truncateReason(err.Error()))
		report.Failed++
		return
	}

	params := db.NewItemParams{
		SourceName:   candidate.SourceName,
		OriginalURL:  candidate.URL,
		CanonicalURL: canonical,
		Title:        candidate.Title,
		Summary:      excerptSummary(candidate.Body),
		MediaKind:    candidate.MediaKind,
		CreatedAt:    globaltime.UTC(),
	}
	if fingerprint != "" {
		params.Fingerprint = &fingerprint
	}
	if text := strings.TrimSpace(localized.text); text != "" {
		params.LocalizedText = &text
	}
	if language := s.detectLanguage(candidate.Title + " " + candidate.Body); language != "" {
		params.Language = language
	}
	if mediaURL := strings.TrimSpace(candidate.MediaURL); mediaURL != "" {
		params.MediaURL = &mediaURL
		if s.media != nil {
			localPath, mediaErr := s.media.Materialize(ctx, mediaURL)
			if mediaErr != nil {
				// Media failure degrades the item to text-only, never drops it.
				s.logger.Warn().Err(mediaErr).Str("media_url", mediaURL).Msg("media materialization failed")
				s.notify(ctx, fmt.Sprintf("Media download failed for %s: %v", canonical, mediaErr))
			} else {
				params.LocalMediaPath = &localPath
			}
		}
	}

	inserted, err := s.store.InsertItem(ctx, params)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateURL) {
			// Lost an insert race; the uniqueness constraint turns it into
			// an ordinary duplicate.
			s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenDuplicate, "url seen")
			report.Duplicate++
			return
		}
		s.logger.Error().Err(err).Str("url", candidate.URL).Msg("insert item failed")
		s.markSeen(ctx, candidate, canonical, fingerprint, db.SeenFailed, truncateReason(err.Error()))
		report.Failed++
		return
	}

	s.requestApproval(ctx, inserted)
	report.New++
}

func (s *Ingestor) requestApproval(ctx context.Context, item db.ItemSummary) {
	if s.notifier == nil {
		return
	}
	card := fmt.Sprintf("Pending review: %s\nSource: %s\n%s", item.Title, item.SourceName, item.CanonicalURL)
	if err := s.notifier.RequestApproval(ctx, item.ItemUUID, card); err != nil {
		s.logger.Warn().Err(err).Str("item_uuid", item.ItemUUID).Msg("approval request failed")
	}
}

type classifyResult struct {
	decision classify.Decision
	usage    classify.Usage
}

type rewriteResult struct {
	text  string
	usage classify.Usage
}

func (s *Ingestor) markSeen(ctx context.Context, candidate Candidate, canonical, fingerprint, status, reason string) {
	params := db.SeenParams{
		CanonicalURL: canonical,
		OriginalURL:  candidate.URL,
		Status:       status,
		Reason:       reason,
	}
	if fingerprint != "" {
		params.Fingerprint = &fingerprint
	}
	if err := s.store.UpsertSeen(ctx, params); err != nil {
		s.logger.Error().Err(err).Str("url", candidate.URL).Msg("upsert seen record failed")
	}
}

func (s *Ingestor) notify(ctx context.Context, text string) {
	if s.notifier == nil || strings.TrimSpace(text) == "" {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("operator notification failed")
	}
}

const summaryExcerptLen = 500

func excerptSummary(body string) string {
	trimmed := strings.TrimSpace(body)
	if runes := []rune(trimmed); len(runes) > summaryExcerptLen {
		return string(runes[:summaryExcerptLen])
	}
	return trimmed
}

const maxReasonLen = 500

func truncateReason(reason string) string {
	trimmed := strings.TrimSpace(reason)
	if runes := []rune(trimmed); len(runes) > maxReasonLen {
		return string(runes[:maxReasonLen])
	}
	return trimmed
}
