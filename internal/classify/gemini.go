package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultGeminiEndpoint is the Gemini REST API base.
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	// DefaultGeminiModel is used when GEMINI_MODEL is unset.
	DefaultGeminiModel = "gemini-2.0-flash"
)

// GeminiProvider calls the Gemini generateContent REST API.
type GeminiProvider struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewGeminiProviderFromEnv builds a Gemini provider from env vars.
//   - GEMINI_API_KEY (required for live calls)
//   - GEMINI_MODEL (default: gemini-2.0-flash)
//   - GEMINI_ENDPOINT (default: https://generativelanguage.googleapis.com)
func NewGeminiProviderFromEnv() *GeminiProvider {
	endpoint := strings.TrimSpace(os.Getenv("GEMINI_ENDPOINT"))
	if endpoint == "" {
		endpoint = DefaultGeminiEndpoint
	}
	model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if model == "" {
		model = DefaultGeminiModel
	}
	return NewGeminiProvider(endpoint, model, strings.TrimSpace(os.Getenv("GEMINI_API_KEY")))
}

// NewGeminiProvider builds a Gemini provider for the given endpoint/model.
func NewGeminiProvider(endpoint, model, apiKey string) *GeminiProvider {
	trimmedEndpoint := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmedEndpoint == "" {
		trimmedEndpoint = DefaultGeminiEndpoint
	}
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultGeminiModel
	}
	return &GeminiProvider{
		endpoint: trimmedEndpoint,
		model:    trimmedModel,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("gemini provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not configured")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if req.Temperature > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{Temperature: req.Temperature}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.endpoint, p.model)

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload geminiErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini response missing candidates")
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("gemini response was empty")
	}

	return &CompletionResponse{
		Text: text,
		Usage: Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		},
		ProviderName: p.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
