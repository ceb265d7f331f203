package pipeline

import (
	"horse.fit/relay/internal/config"
)

// Media kinds attached to candidates and tracked items.
const (
	MediaNone  = "none"
	MediaImage = "image"
	MediaVideo = "video"
)

// Candidate is one raw feed entry before screening. It is consumed once and
// never persisted as-is.
type Candidate struct {
	SourceName string
	URL        string
	Title      string
	Body       string
	MediaURL   string
	MediaKind  string
	Score      int
	HasScore   bool
}

// SourceBatch is the ordered candidate list one source produced in a cycle.
type SourceBatch struct {
	Source     config.Source
	Candidates []Candidate
}

// SourceError is a per-source fetch failure. One source failing never aborts
// the rest of the batch.
type SourceError struct {
	SourceName string `json:"source_name"`
	Message    string `json:"message"`
}
