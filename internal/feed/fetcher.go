package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"horse.fit/relay/internal/config"
	"horse.fit/relay/internal/pipeline"
)

const (
	defaultUserAgent    = "relay-fetcher/1.0 (+https://horse.fit/relay)"
	defaultFetchTimeout = 20 * time.Second

	// maxCandidatesPerSource caps how much one feed can contribute to a
	// cycle before merging.
	maxCandidatesPerSource = 50
)

// Fetcher pulls candidates from every configured source. It implements
// pipeline.Sources.
type Fetcher struct {
	sources []config.Source
	parser  *gofeed.Parser
	client  *http.Client
	logger  zerolog.Logger
}

func NewFetcher(sources []config.Source, logger zerolog.Logger) *Fetcher {
	client := &http.Client{Timeout: defaultFetchTimeout}

	parser := gofeed.NewParser()
	parser.UserAgent = defaultUserAgent
	parser.Client = client

	return &Fetcher{
		sources: sources,
		parser:  parser,
		client:  client,
		logger:  logger,
	}
}

// FetchAll pulls every source sequentially. A failing source contributes a
// SourceError; it never aborts the remaining sources.
func (f *Fetcher) FetchAll(ctx context.Context) ([]pipeline.SourceBatch, []pipeline.SourceError) {
	batches := make([]pipeline.SourceBatch, 0, len(f.sources))
	var sourceErrors []pipeline.SourceError

	for _, source := range f.sources {
		if ctx.Err() != nil {
			break
		}

		var candidates []pipeline.Candidate
		var err error
		switch source.Kind {
		case "reddit":
			candidates, err = f.fetchReddit(ctx, source)
		default:
			candidates, err = f.fetchRSS(ctx, source)
		}
		if err != nil {
			sourceErrors = append(sourceErrors, pipeline.SourceError{
				SourceName: source.Name,
				Message:    err.Error(),
			})
			continue
		}

		if len(candidates) > maxCandidatesPerSource {
			candidates = candidates[:maxCandidatesPerSource]
		}

		f.logger.Debug().
			Str("source", source.Name).
			Int("candidates", len(candidates)).
			Msg("source fetched")

		batches = append(batches, pipeline.SourceBatch{
			Source:     source,
			Candidates: candidates,
		})
	}

	return batches, sourceErrors
}
