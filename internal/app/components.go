package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/classify"
	"horse.fit/relay/internal/config"
	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/feed"
	"horse.fit/relay/internal/media"
	"horse.fit/relay/internal/notify"
	"horse.fit/relay/internal/pipeline"
	"horse.fit/relay/internal/publish"
	"horse.fit/relay/internal/retry"
)

// components bundles the wired services each command picks from.
type components struct {
	ingestor  *pipeline.Ingestor
	publisher *publish.Service
	cache     *media.Cache
	telegram  *notify.Telegram
	notifier  pipeline.Notifier
}

func buildComponents(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*components, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	for i := range sources {
		if sources[i].Kind == "reddit" && sources[i].MinScore == 0 {
			sources[i].MinScore = cfg.RedditMinScore
		}
	}

	fetcher := feed.NewFetcher(sources, logger)

	registry := classify.NewRegistry(cfg.ClassifyProvider)
	_ = registry.Register(classify.NewLocalProvider(cfg.ClassifyEndpoint, cfg.ClassifyModel, cfg.ClassifyAPIKey))
	_ = registry.Register(classify.NewGeminiProviderFromEnv())
	provider, err := registry.Provider(cfg.ClassifyProvider)
	if err != nil {
		return nil, fmt.Errorf("resolve classify provider: %w", err)
	}
	classifier := classify.NewService(provider, cfg.RewriteLanguage, logger)

	cache, err := media.NewCache(cfg.MediaCacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open media cache: %w", err)
	}

	var telegram *notify.Telegram
	var notifier pipeline.Notifier
	var broadcaster publish.Broadcaster
	if cfg.TelegramBotToken != "" {
		telegram = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChat, cfg.TelegramChannel, logger)
		notifier = telegram
		broadcaster = telegram
	} else {
		// Without bot credentials everything still runs; posts and cards
		// land in the log instead.
		fallback := logSink{logger: logger}
		notifier = fallback
		broadcaster = fallback
	}

	window := pipeline.WindowConfig{
		Limit:     cfg.DedupWindowLimit,
		MaxAge:    cfg.DedupWindowAge,
		Threshold: cfg.SimilarityCutoff,
		Statuses:  []string{db.StatusPending, db.StatusApproved, db.StatusPublished},
	}
	resolver := pipeline.NewResolver(pool, window, logger)

	ingestor := pipeline.NewIngestor(
		pool,
		resolver,
		fetcher,
		classifier,
		cache,
		notifier,
		pipeline.Options{
			MaxItems: cfg.MaxItemsPerCycle,
			Pacing:   cfg.ItemPacing,
			Retry:    retry.DefaultConfig(),
		},
		logger,
	)

	publisher := publish.NewService(pool, broadcaster, publish.NewGate(cfg.MinPublishGap), logger)

	return &components{
		ingestor:  ingestor,
		publisher: publisher,
		cache:     cache,
		telegram:  telegram,
		notifier:  notifier,
	}, nil
}

// logSink stands in for Telegram when no bot token is configured.
type logSink struct {
	logger zerolog.Logger
}

func (l logSink) Notify(_ context.Context, text string) error {
	l.logger.Info().Str("text", text).Msg("operator notification")
	return nil
}

func (l logSink) RequestApproval(_ context.Context, itemUUID, text string) error {
	l.logger.Info().Str("item_uuid", itemUUID).Str("text", text).Msg("approval requested")
	return nil
}

func (l logSink) Broadcast(_ context.Context, text, mediaPath string) error {
	l.logger.Info().Str("text", text).Str("media", mediaPath).Msg("broadcast")
	return nil
}
