package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"horse.fit/relay/internal/config"
	"horse.fit/relay/internal/pipeline"
)

// redditListing mirrors the subset of a subreddit listing response the
// fetcher reads. Reddit serves it from <subreddit>/hot.json without
// authentication as long as a distinctive User-Agent is sent.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Permalink string `json:"permalink"`
	Selftext  string `json:"selftext"`
	Score     int    `json:"score"`
	Stickied  bool   `json:"stickied"`
	IsVideo   bool   `json:"is_video"`
	PostHint  string `json:"post_hint"`
	Preview   struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

func (f *Fetcher) fetchReddit(ctx context.Context, source config.Source) ([]pipeline.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", source.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch listing %s: unexpected status %d", source.URL, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", source.URL, err)
	}

	candidates := make([]pipeline.Candidate, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		candidate, ok := candidateFromRedditPost(source, child.Data)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func candidateFromRedditPost(source config.Source, post redditPost) (pipeline.Candidate, bool) {
	title := strings.TrimSpace(post.Title)
	if title == "" || post.Stickied {
		return pipeline.Candidate{}, false
	}

	link := strings.TrimSpace(post.URL)
	if link == "" && post.Permalink != "" {
		link = "https://reddit.com" + post.Permalink
	}
	if link == "" {
		return pipeline.Candidate{}, false
	}

	mediaURL, mediaKind := redditPostMedia(post)

	return pipeline.Candidate{
		SourceName: source.Name,
		URL:        link,
		Title:      title,
		Body:       strings.TrimSpace(post.Selftext),
		MediaURL:   mediaURL,
		MediaKind:  mediaKind,
		Score:      post.Score,
		HasScore:   true,
	}, true
}

func redditPostMedia(post redditPost) (mediaURL, mediaKind string) {
	if post.IsVideo {
		return "", pipeline.MediaVideo
	}

	if len(post.Preview.Images) > 0 {
		// Preview URLs come back HTML-escaped in the JSON payload.
		raw := html.UnescapeString(post.Preview.Images[0].Source.URL)
		if strings.TrimSpace(raw) != "" {
			return raw, pipeline.MediaImage
		}
	}

	if post.PostHint == "image" && strings.TrimSpace(post.URL) != "" {
		return strings.TrimSpace(post.URL), pipeline.MediaImage
	}

	return "", pipeline.MediaNone
}
