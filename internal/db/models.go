package db

import (
	"time"
)

// Item statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusPublished = "published"
)

// Seen record dispositions.
const (
	SeenDuplicate  = "duplicate"
	SeenIrrelevant = "irrelevant"
	SeenFailed     = "failed"
)

// Item maps relay_items. Rows are append-only; only status and the
// publish columns mutate after insert.
type Item struct {
	ItemID         int64      `gorm:"column:item_id;primaryKey;autoIncrement"`
	ItemUUID       string     `gorm:"column:item_uuid;type:uuid;not null;unique"`
	SourceName     string     `gorm:"column:source_name;type:text;not null"`
	OriginalURL    string     `gorm:"column:original_url;type:text;not null"`
	CanonicalURL   string     `gorm:"column:canonical_url;type:text;not null;uniqueIndex"`
	Title          string     `gorm:"column:title;type:text;not null"`
	Summary        string     `gorm:"column:summary;type:text;not null;default:''"`
	Fingerprint    *string    `gorm:"column:fingerprint;type:text;index"`
	MediaURL       *string    `gorm:"column:media_url;type:text"`
	LocalMediaPath *string    `gorm:"column:local_media_path;type:text"`
	MediaKind      string     `gorm:"column:media_kind;type:text;not null;default:none"`
	Language       string     `gorm:"column:language;type:text;not null;default:und"`
	LocalizedText  *string    `gorm:"column:localized_text;type:text"`
	Status         string     `gorm:"column:status;type:text;not null;default:pending;index"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	PublishedAt    *time.Time `gorm:"column:published_at;type:timestamptz"`
}

func (Item) TableName() string { return "relay_items" }

// SeenRecord maps relay_seen_records: one row per canonical URL ever
// screened, updated in place on re-evaluation.
type SeenRecord struct {
	SeenID       int64     `gorm:"column:seen_id;primaryKey;autoIncrement"`
	CanonicalURL string    `gorm:"column:canonical_url;type:text;not null;uniqueIndex"`
	OriginalURL  string    `gorm:"column:original_url;type:text;not null"`
	Fingerprint  *string   `gorm:"column:fingerprint;type:text;index"`
	Status       string    `gorm:"column:status;type:text;not null"`
	Reason       *string   `gorm:"column:reason;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SeenRecord) TableName() string { return "relay_seen_records" }

func autoMigrateModels() []any {
	return []any{
		&Item{},
		&SeenRecord{},
	}
}
