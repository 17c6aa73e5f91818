package llm

import (
	"context"
	"fmt"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
)

// Message roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Provider defines the interface for LLM providers. The model identifier is
// opaque to callers; nothing above this package knows the vendor.
type Provider interface {
	// ChatCompletion issues one model call and returns the response text
	// plus token usage.
	ChatCompletion(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// Name returns the provider name (e.g., "openai", "gemini")
	Name() string
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest contains all parameters for one model call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting for one call.
type Usage struct {
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatResponse contains the result from the LLM.
type ChatResponse struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// NewProvider builds the configured provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case providerNameOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey), nil
	case providerNameGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
