package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerNameOpenAI = "openai"

// OpenAIProvider implements the Provider interface using OpenAI's Chat
// Completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// ChatCompletion issues one chat completion call.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	transaction := sentry.StartTransaction(ctx, "openai.chat_completion")
	defer transaction.Finish()
	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenAI)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages))
	for _, m := range request.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	span := transaction.StartChild("openai.api_call")
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	span.Finish()

	if err != nil {
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("openai response contained no choices")
	}

	transaction.SetTag("success", "true")
	transaction.SetData("duration_ms", time.Since(start).Milliseconds())

	return &ChatResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			TotalTokens:      int(resp.Usage.TotalTokens),
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
