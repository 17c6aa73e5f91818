package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

const (
	providerNameGemini = "gemini"
	geminiUserRole     = "user"
)

// GeminiProvider implements the Provider interface using Google's Gemini API
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return providerNameGemini
}

// ChatCompletion issues one generateContent call. System messages become the
// system instruction; the remaining turns all map to the user role since the
// pipeline never replays model turns.
func (p *GeminiProvider) ChatCompletion(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	transaction := sentry.StartTransaction(ctx, "gemini.chat_completion")
	defer transaction.Finish()
	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameGemini)

	var systemParts []string
	var contents []*genai.Content
	for _, m := range request.Messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  geminiUserRole,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if request.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(request.MaxTokens)
	}

	span := transaction.StartChild("gemini.api_call")
	result, err := p.client.Models.GenerateContent(ctx, request.Model, contents, cfg)
	span.Finish()

	if err != nil {
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil ||
		len(result.Candidates[0].Content.Parts) == 0 {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("gemini response contained no output")
	}

	var usage Usage
	if result.UsageMetadata != nil {
		usage = Usage{
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	transaction.SetTag("success", "true")
	return &ChatResponse{
		Text:  result.Candidates[0].Content.Parts[0].Text,
		Usage: usage,
	}, nil
}
