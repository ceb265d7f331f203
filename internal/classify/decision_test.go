package classify

import (
	"strings"
	"testing"
)

func TestParseDecision(t *testing.T) {
	t.Parallel()

	decision, err := ParseDecision(`{"is_relevant": true, "reason": "major breaking story"}`)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if !decision.IsRelevant {
		t.Fatalf("decision should be relevant")
	}
	if decision.Reason != "major breaking story" {
		t.Fatalf("got reason %q", decision.Reason)
	}
}

func TestParseDecisionMarkdownFence(t *testing.T) {
	t.Parallel()

	raw := "Here is my verdict:\n```json\n{\"is_relevant\": false, \"reason\": \"local interest only\"}\n```\n"
	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if decision.IsRelevant {
		t.Fatalf("decision should not be relevant")
	}
	if decision.Reason != "local interest only" {
		t.Fatalf("got reason %q", decision.Reason)
	}
}

func TestParseDecisionBracesInsideStrings(t *testing.T) {
	t.Parallel()

	decision, err := ParseDecision(`{"is_relevant": true, "reason": "covers {unusual} formatting"}`)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if decision.Reason != "covers {unusual} formatting" {
		t.Fatalf("got reason %q", decision.Reason)
	}
}

func TestParseDecisionRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{name: "no json", raw: "the story looks relevant to me"},
		{name: "missing reason", raw: `{"is_relevant": true}`},
		{name: "missing is_relevant", raw: `{"reason": "x"}`},
		{name: "wrong type", raw: `{"is_relevant": "yes", "reason": "x"}`},
		{name: "extra field", raw: `{"is_relevant": true, "reason": "x", "confidence": 0.9}`},
		{name: "empty reason", raw: `{"is_relevant": true, "reason": ""}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseDecision(tc.raw); err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
		})
	}
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		endpoint string
		want     string
	}{
		{endpoint: "http://127.0.0.1:8840/v1", want: "http://127.0.0.1:8840/v1/chat/completions"},
		{endpoint: "http://127.0.0.1:8840", want: "http://127.0.0.1:8840/v1/chat/completions"},
		{endpoint: "https://api.example.com/v1/chat/completions", want: "https://api.example.com/v1/chat/completions"},
	}

	for _, tc := range cases {
		normalized := normalizeEndpoint(tc.endpoint)
		if got := chatCompletionsURL(normalized); got != tc.want {
			t.Fatalf("chatCompletionsURL(%q) = %q, want %q", tc.endpoint, got, tc.want)
		}
	}
}

func TestUsageAggregation(t *testing.T) {
	t.Parallel()

	var total Usage
	total.Add(Usage{PromptTokens: 10, CompletionTokens: 5})
	total.Add(Usage{PromptTokens: 3, CompletionTokens: 2})
	if total.PromptTokens != 13 || total.CompletionTokens != 7 {
		t.Fatalf("unexpected usage: %+v", total)
	}
	if total.Total() != 20 {
		t.Fatalf("Total() = %d, want 20", total.Total())
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	if got := extractJSONObject("no braces here"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	if got := extractJSONObject(`prefix {"a": {"b": 1}} suffix`); got != `{"a": {"b": 1}}` {
		t.Fatalf("got %q", got)
	}
	if got := extractJSONObject(`{"unterminated": `); got != "" {
		t.Fatalf("unterminated object should yield empty, got %q", got)
	}
	if !strings.HasPrefix(extractJSONObject(`{"a": "}"}`), `{"a": "}"}`) {
		t.Fatalf("brace inside string terminated the scan early")
	}
}
