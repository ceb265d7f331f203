package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const classifyBodyLimit = 2000

const classifySystemPrompt = "You screen news candidates for a curated broadcast channel. " +
	"Judge whether the item is significant, current, and of broad interest. " +
	"Respond with a single JSON object {\"is_relevant\": bool, \"reason\": string} and nothing else."

const rewriteSystemPrompt = "You rewrite news items for a broadcast channel. " +
	"Write a tight, neutral post in the requested language. No hashtags, no emoji, " +
	"no editorializing. End with the source attribution line you are given."

// RewriteRequest describes one localization/rewrite call.
type RewriteRequest struct {
	Title       string
	Body        string
	Attribution string
	MediaKind   string
}

// Service runs relevance classification and rewrite calls against one
// generative provider. Each call is a single attempt; retry policy belongs
// to the caller's backoff wrapper.
type Service struct {
	provider    Provider
	rewriteLang string
	logger      zerolog.Logger
}

func NewService(provider Provider, rewriteLang string, logger zerolog.Logger) *Service {
	lang := strings.TrimSpace(rewriteLang)
	if lang == "" {
		lang = "en"
	}
	return &Service{
		provider:    provider,
		rewriteLang: lang,
		logger:      logger,
	}
}

// Classify asks the provider whether the candidate belongs on the channel.
func (s *Service) Classify(ctx context.Context, title, body, mediaHint string) (Decision, Usage, error) {
	if s == nil || s.provider == nil {
		return Decision{}, Usage{}, fmt.Errorf("classify service is not initialized")
	}

	excerpt := body
	if runes := []rune(excerpt); len(runes) > classifyBodyLimit {
		excerpt = string(runes[:classifyBodyLimit])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(title))
	if strings.TrimSpace(excerpt) != "" {
		fmt.Fprintf(&b, "Body: %s\n", strings.TrimSpace(excerpt))
	}
	if strings.TrimSpace(mediaHint) != "" {
		fmt.Fprintf(&b, "Media: %s\n", strings.TrimSpace(mediaHint))
	}

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System:      classifySystemPrompt,
		Prompt:      b.String(),
		Temperature: 0.2,
	})
	if err != nil {
		return Decision{}, Usage{}, err
	}

	decision, err := ParseDecision(resp.Text)
	if err != nil {
		return Decision{}, resp.Usage, fmt.Errorf("parse relevance decision: %w", err)
	}

	s.logger.Debug().
		Str("provider", resp.ProviderName).
		Bool("is_relevant", decision.IsRelevant).
		Int64("latency_ms", resp.LatencyMs).
		Msg("candidate classified")

	return decision, resp.Usage, nil
}

// Rewrite produces the localized broadcast text for an accepted candidate.
func (s *Service) Rewrite(ctx context.Context, req RewriteRequest) (string, Usage, error) {
	if s == nil || s.provider == nil {
		return "", Usage{}, fmt.Errorf("classify service is not initialized")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target language: %s\n", s.rewriteLang)
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	if strings.TrimSpace(req.Body) != "" {
		fmt.Fprintf(&b, "Body: %s\n", strings.TrimSpace(req.Body))
	}
	if strings.TrimSpace(req.MediaKind) != "" && req.MediaKind != "none" {
		fmt.Fprintf(&b, "The post will carry %s media.\n", req.MediaKind)
	}
	fmt.Fprintf(&b, "Attribution line: %s\n", strings.TrimSpace(req.Attribution))

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System:      rewriteSystemPrompt,
		Prompt:      b.String(),
		Temperature: 0.7,
	})
	if err != nil {
		return "", Usage{}, err
	}

	return resp.Text, resp.Usage, nil
}
