package observability

import (
	"strconv"

	"github.com/creatorpulse/creatorpulse-api/internal/llm"
)

// Pricing constants
const (
	tokensPerKilo       = 1000.0
	costFormatPrecision = 6

	// GPT-4o pricing
	gpt4oInputPrice  = 0.005
	gpt4oOutputPrice = 0.015

	// GPT-4o-mini pricing
	gpt4oMiniInputPrice  = 0.00015
	gpt4oMiniOutputPrice = 0.0006

	// Gemini 2.0 Flash pricing
	geminiFlashInputPrice  = 0.0001
	geminiFlashOutputPrice = 0.0004

	// Gemini 1.5 Pro pricing
	geminiProInputPrice  = 0.00125
	geminiProOutputPrice = 0.005
)

// ModelPricing contains pricing information per 1K tokens
type ModelPricing struct {
	InputPricePer1K  float64 // Price per 1K input tokens in USD
	OutputPricePer1K float64 // Price per 1K output tokens in USD
}

// PricingTable contains pricing for all models
var PricingTable = map[string]ModelPricing{
	"gpt-4o": {
		InputPricePer1K:  gpt4oInputPrice,
		OutputPricePer1K: gpt4oOutputPrice,
	},
	"gpt-4o-mini": {
		InputPricePer1K:  gpt4oMiniInputPrice,
		OutputPricePer1K: gpt4oMiniOutputPrice,
	},
	"gemini-2.0-flash": {
		InputPricePer1K:  geminiFlashInputPrice,
		OutputPricePer1K: geminiFlashOutputPrice,
	},
	"gemini-1.5-pro": {
		InputPricePer1K:  geminiProInputPrice,
		OutputPricePer1K: geminiProOutputPrice,
	},
}

// CalculateCost calculates the cost in USD for one model call. Unknown models
// fall back to gpt-4o-mini pricing so cost tracking never reports zero.
func CalculateCost(model string, usage llm.Usage) float64 {
	pricing, exists := PricingTable[model]
	if !exists {
		pricing = PricingTable["gpt-4o-mini"]
	}

	inputCost := (float64(usage.PromptTokens) / tokensPerKilo) * pricing.InputPricePer1K
	outputCost := (float64(usage.CompletionTokens) / tokensPerKilo) * pricing.OutputPricePer1K
	return inputCost + outputCost
}

// FormatCost formats a cost value as a USD string
func FormatCost(cost float64) string {
	return "$" + strconv.FormatFloat(cost, 'f', costFormatPrecision, 64)
}
