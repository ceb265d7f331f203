package classify

import "context"

// Provider executes one generative completion against a remote model.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// CompletionRequest describes one prompt execution.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
}

// CompletionResponse contains generated text and provider metadata.
type CompletionResponse struct {
	Text         string
	Usage        Usage
	ProviderName string
	LatencyMs    int64
}

// Usage counts tokens spent on one call. It is returned by value so each
// ingestion cycle can aggregate its own spend instead of reading ambient
// counters.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates another call's spend.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}
