package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"

	"horse.fit/relay/internal/pipeline"
)

const (
	// articleBodyByteLimit bounds how much of an article page is read when
	// a feed entry arrives without usable body text.
	articleBodyByteLimit = 2 * 1024 * 1024

	// thinBodyRunes is the cutoff below which a feed entry body is treated
	// as a stub worth replacing with extracted article text.
	thinBodyRunes = 140
)

// stripHTML renders markup down to its visible text. Plain text passes
// through cleaned.
func stripHTML(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, "<>") {
		return cleanText(trimmed)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return cleanText(trimmed)
	}
	doc.Find("script, style").Remove()
	return cleanText(doc.Text())
}

// firstImageURL returns the first absolute <img src> found in an HTML
// fragment, or "" when none qualifies.
func firstImageURL(rawHTML, baseURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	base, _ := url.Parse(baseURL)

	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		parsed, err := url.Parse(src)
		if err != nil {
			return true
		}
		if base != nil {
			parsed = base.ResolveReference(parsed)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return true
		}
		found = parsed.String()
		return false
	})
	return found
}

// fetchArticleText downloads a page and extracts its readable body text.
func (f *Fetcher) fetchArticleText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch article status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, articleBodyByteLimit))
	if err != nil {
		return "", fmt.Errorf("read article body: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse article url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render article text: %w", err)
	}

	text := cleanText(rendered.String())
	if text == "" {
		text = cleanText(article.Excerpt())
	}
	if text == "" {
		return "", fmt.Errorf("article extracted empty content")
	}
	return text, nil
}

// enrichThinBody swaps a stub feed body for extracted article text when the
// page yields one. The candidate keeps its original body on any failure.
func (f *Fetcher) enrichThinBody(ctx context.Context, candidate *pipeline.Candidate) {
	if len([]rune(candidate.Body)) >= thinBodyRunes {
		return
	}
	text, err := f.fetchArticleText(ctx, candidate.URL)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", candidate.URL).Msg("article text extraction failed")
		return
	}
	candidate.Body = text
}

// cleanText normalizes line endings and collapses in-line whitespace while
// preserving paragraph breaks.
func cleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
