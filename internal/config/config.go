package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"RELAY_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"RELAY_DB_MAX_CONNS" default:"8"`

	SourcesFile   string `envconfig:"RELAY_SOURCES_FILE" default:"sources.yaml"`
	MediaCacheDir string `envconfig:"RELAY_MEDIA_CACHE_DIR" default:"media_cache"`

	TelegramBotToken  string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramAdminChat string `envconfig:"TELEGRAM_ADMIN_CHAT_ID" default:""`
	TelegramChannel   string `envconfig:"TELEGRAM_CHANNEL_ID" default:""`

	ClassifyProvider string `envconfig:"CLASSIFY_PROVIDER" default:"local"`
	ClassifyEndpoint string `envconfig:"CLASSIFY_ENDPOINT" default:"http://127.0.0.1:8840"`
	ClassifyAPIKey   string `envconfig:"CLASSIFY_API_KEY" default:""`
	ClassifyModel    string `envconfig:"CLASSIFY_MODEL" default:""`
	RewriteLanguage  string `envconfig:"REWRITE_LANGUAGE" default:"en"`

	APIToken string `envconfig:"RELAY_API_TOKEN" default:""`

	FetchInterval      time.Duration `envconfig:"RELAY_FETCH_INTERVAL" default:"60s"`
	RemainderInterval  time.Duration `envconfig:"RELAY_REMAINDER_INTERVAL" default:"5m"`
	MinPublishGap      time.Duration `envconfig:"RELAY_MIN_PUBLISH_GAP" default:"60m"`
	ItemPacing         time.Duration `envconfig:"RELAY_ITEM_PACING" default:"500ms"`
	MaxItemsPerCycle   int           `envconfig:"RELAY_MAX_ITEMS_PER_CYCLE" default:"25"`
	RedditMinScore     int           `envconfig:"RELAY_REDDIT_MIN_SCORE" default:"1000"`
	DedupWindowLimit   int           `envconfig:"RELAY_DEDUP_WINDOW_LIMIT" default:"500"`
	DedupWindowAge     time.Duration `envconfig:"RELAY_DEDUP_WINDOW_AGE" default:"720h"`
	SimilarityCutoff   float64       `envconfig:"RELAY_SIMILARITY_CUTOFF" default:"0.85"`
	SeenRetention      time.Duration `envconfig:"RELAY_SEEN_RETENTION" default:"2160h"`
	MediaRetention     time.Duration `envconfig:"RELAY_MEDIA_RETENTION" default:"24h"`
	HousekeepInterval  time.Duration `envconfig:"RELAY_HOUSEKEEP_INTERVAL" default:"24h"`
	HeartbeatInterval  time.Duration `envconfig:"RELAY_HEARTBEAT_INTERVAL" default:"1h"`
	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("RELAY_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("RELAY_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("RELAY_DB_MIN_CONNS (%d) cannot exceed RELAY_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FetchInterval < time.Second {
		return fmt.Errorf("RELAY_FETCH_INTERVAL must be >= 1s")
	}
	if c.RemainderInterval < time.Second {
		return fmt.Errorf("RELAY_REMAINDER_INTERVAL must be >= 1s")
	}
	if c.MinPublishGap <= 0 {
		return fmt.Errorf("RELAY_MIN_PUBLISH_GAP must be > 0")
	}
	if c.MaxItemsPerCycle < 1 {
		return fmt.Errorf("RELAY_MAX_ITEMS_PER_CYCLE must be >= 1")
	}
	if c.DedupWindowLimit < 1 {
		return fmt.Errorf("RELAY_DEDUP_WINDOW_LIMIT must be >= 1")
	}
	if c.DedupWindowAge <= 0 {
		return fmt.Errorf("RELAY_DEDUP_WINDOW_AGE must be > 0")
	}
	if c.SimilarityCutoff <= 0 || c.SimilarityCutoff > 1 {
		return fmt.Errorf("RELAY_SIMILARITY_CUTOFF must be in (0, 1]")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
