package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/globaltime"
	"horse.fit/relay/internal/pipeline"
)

// Ingest runs one fetch and screening cycle.
type Ingest interface {
	RunCycle(ctx context.Context) (pipeline.CycleReport, error)
}

// Publisher evaluates the pacing gate and posts at most one item.
type Publisher interface {
	PublishNext(ctx context.Context) (bool, error)
}

// Store is the subset of the database the scheduler drives directly.
// *db.Pool satisfies it.
type Store interface {
	CountItemsByStatus(ctx context.Context, status string) (int64, error)
	PruneSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MediaJanitor evicts stale cached media files.
type MediaJanitor interface {
	CleanupOlderThan(maxAge time.Duration) (int, error)
}

// Notifier delivers operator status messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Options carries the scheduler cadence. Zero fields fall back to the
// defaults used in production.
type Options struct {
	TickInterval      time.Duration
	RemainderInterval time.Duration
	HousekeepInterval time.Duration
	HeartbeatInterval time.Duration
	SeenRetention     time.Duration
	MediaRetention    time.Duration
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Minute
	}
	if o.RemainderInterval <= 0 {
		o.RemainderInterval = 5 * time.Minute
	}
	if o.HousekeepInterval <= 0 {
		o.HousekeepInterval = 24 * time.Hour
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = time.Hour
	}
	if o.SeenRetention <= 0 {
		o.SeenRetention = 90 * 24 * time.Hour
	}
	if o.MediaRetention <= 0 {
		o.MediaRetention = 24 * time.Hour
	}
}

// Scheduler owns the periodic loop: fetch cycles when the moderation queue
// drains, remainder re-checks, publish gate evaluation, housekeeping and
// heartbeats. Each unit of a tick fails independently.
type Scheduler struct {
	ingest    Ingest
	publisher Publisher
	store     Store
	media     MediaJanitor
	notifier  Notifier
	opts      Options
	logger    zerolog.Logger

	fetchRequests chan struct{}

	queueWasEmpty bool
	lastRemaining int
	lastCycleAt   time.Time
	lastHousekeep time.Time
	lastHeartbeat time.Time
}

func New(ingest Ingest, publisher Publisher, store Store, media MediaJanitor, notifier Notifier, opts Options, logger zerolog.Logger) *Scheduler {
	opts.applyDefaults()
	return &Scheduler{
		ingest:        ingest,
		publisher:     publisher,
		store:         store,
		media:         media,
		notifier:      notifier,
		opts:          opts,
		logger:        logger,
		fetchRequests: make(chan struct{}, 1),
	}
}

// RequestFetch asks the loop to run a fetch cycle on its next wakeup. It
// never blocks; a request already queued absorbs the new one.
func (s *Scheduler) RequestFetch() {
	select {
	case s.fetchRequests <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	now := globaltime.UTC()
	s.lastHousekeep = now
	s.lastHeartbeat = now

	// An already populated moderation queue means a fresh deploy should
	// not pile more items on top.
	pending, err := s.store.CountItemsByStatus(ctx, db.StatusPending)
	if err != nil {
		return fmt.Errorf("count pending items: %w", err)
	}
	s.queueWasEmpty = pending == 0
	if pending == 0 {
		s.runFetchCycle(ctx)
	} else {
		s.logger.Info().Int64("pending", pending).Msg("startup fetch skipped, queue not empty")
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-s.fetchRequests:
			s.runManualFetch(ctx)
			s.tick(ctx)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one evaluation of all periodic units.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := globaltime.UTC()

	if due, reason := s.fetchDue(ctx, now); due {
		s.logger.Debug().Str("reason", reason).Msg("fetch cycle due")
		s.runFetchCycle(ctx)
	}

	if _, err := s.publisher.PublishNext(ctx); err != nil {
		s.logger.Error().Err(err).Msg("publish evaluation failed")
	}

	if intervalElapsed(s.lastHousekeep, now, s.opts.HousekeepInterval) {
		s.lastHousekeep = now
		s.housekeep(ctx, now)
	}

	if intervalElapsed(s.lastHeartbeat, now, s.opts.HeartbeatInterval) {
		s.lastHeartbeat = now
		s.heartbeat(ctx)
	}
}

// fetchDue decides whether this tick should run a fetch cycle: either the
// moderation queue just drained, or a capped previous cycle left candidates
// behind and the remainder interval elapsed.
func (s *Scheduler) fetchDue(ctx context.Context, now time.Time) (bool, string) {
	pending, err := s.store.CountItemsByStatus(ctx, db.StatusPending)
	if err != nil {
		s.logger.Error().Err(err).Msg("pending count failed")
		return false, ""
	}

	empty := pending == 0
	drained := empty && !s.queueWasEmpty
	s.queueWasEmpty = empty

	if drained {
		return true, "queue drained"
	}
	// Remainder re-checks only run against an empty queue. A populated
	// queue means moderators already have work, so held-back candidates
	// wait until it clears.
	if empty && s.lastRemaining > 0 && intervalElapsed(s.lastCycleAt, now, s.opts.RemainderInterval) {
		return true, "remainder due"
	}
	return false, ""
}

// runManualFetch honors an operator fetch request, but not while items are
// still awaiting moderation.
func (s *Scheduler) runManualFetch(ctx context.Context) {
	pending, err := s.store.CountItemsByStatus(ctx, db.StatusPending)
	if err != nil {
		s.logger.Error().Err(err).Msg("pending count failed")
		return
	}
	if pending > 0 {
		s.logger.Info().Int64("pending", pending).Msg("manual fetch skipped, queue not empty")
		return
	}
	s.runFetchCycle(ctx)
}

func (s *Scheduler) runFetchCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	report, err := s.ingest.RunCycle(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("fetch cycle failed")
		return
	}

	s.lastRemaining = report.Remaining
	s.lastCycleAt = globaltime.UTC()

	s.logger.Info().
		Int("fetched", report.Fetched).
		Int("new", report.New).
		Int("remaining", report.Remaining).
		Msg("fetch cycle finished")
}

func (s *Scheduler) housekeep(ctx context.Context, now time.Time) {
	pruned, err := s.store.PruneSeenBefore(ctx, now.Add(-s.opts.SeenRetention))
	if err != nil {
		s.logger.Error().Err(err).Msg("seen record pruning failed")
	} else if pruned > 0 {
		s.logger.Info().Int64("pruned", pruned).Msg("seen records pruned")
	}

	removed, err := s.media.CleanupOlderThan(s.opts.MediaRetention)
	if err != nil {
		s.logger.Error().Err(err).Msg("media eviction failed")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("stale media evicted")
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	pending, err := s.store.CountItemsByStatus(ctx, db.StatusPending)
	if err != nil {
		s.logger.Error().Err(err).Msg("heartbeat pending count failed")
		return
	}
	text := fmt.Sprintf("Relay alive: %d items pending review", pending)
	s.logger.Info().Int64("pending", pending).Msg("heartbeat")
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("heartbeat notification failed")
	}
}

func intervalElapsed(last, now time.Time, every time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= every
}
