package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"horse.fit/relay/internal/config"
	"horse.fit/relay/internal/pipeline"
)

func (f *Fetcher) fetchRSS(ctx context.Context, source config.Source) ([]pipeline.Candidate, error) {
	parsed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source.URL, err)
	}

	candidates := make([]pipeline.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		candidate, ok := f.candidateFromFeedItem(source, item)
		if !ok {
			continue
		}
		f.enrichThinBody(ctx, &candidate)
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (f *Fetcher) candidateFromFeedItem(source config.Source, item *gofeed.Item) (pipeline.Candidate, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return pipeline.Candidate{}, false
	}

	// Full content beats the summary when the feed carries both.
	rawBody := item.Content
	if strings.TrimSpace(stripHTML(rawBody)) == "" {
		rawBody = item.Description
	}
	body := stripHTML(rawBody)

	mediaURL, mediaKind := feedItemMedia(item, link)

	return pipeline.Candidate{
		SourceName: source.Name,
		URL:        link,
		Title:      title,
		Body:       body,
		MediaURL:   mediaURL,
		MediaKind:  mediaKind,
	}, true
}

// feedItemMedia picks the best media reference a feed entry offers: a
// declared feed image, then enclosures, then the first usable <img> inside
// the entry body.
func feedItemMedia(item *gofeed.Item, baseURL string) (mediaURL, mediaKind string) {
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL), pipeline.MediaImage
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || strings.TrimSpace(enclosure.URL) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enclosure.Type, "image/"):
			return strings.TrimSpace(enclosure.URL), pipeline.MediaImage
		case strings.HasPrefix(enclosure.Type, "video/"):
			return strings.TrimSpace(enclosure.URL), pipeline.MediaVideo
		}
	}

	raw := item.Content
	if strings.TrimSpace(raw) == "" {
		raw = item.Description
	}
	if img := firstImageURL(raw, baseURL); img != "" {
		return img, pipeline.MediaImage
	}

	return "", pipeline.MediaNone
}
