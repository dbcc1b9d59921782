package stats

import (
	"strings"

	"sessionhub/internal/transcript"
)

// ModelPricing is USD per million tokens.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cache writes bill at 125% of input, cache reads at 10%.
const (
	cacheWriteRate = 1.25
	cacheReadRate  = 0.10
)

// Keys match as prefixes; the longest wins.
var modelPricing = map[string]ModelPricing{
	"claude-opus-4-5":   {InputPerMillion: 5.0, OutputPerMillion: 25.0},
	"claude-opus-4":     {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	"claude-sonnet-4":   {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-3-7-sonnet": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-haiku-4-5":  {InputPerMillion: 1.0, OutputPerMillion: 5.0},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.0},
	"claude-3-haiku":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
}

// Unknown models are priced at the sonnet tier.
var defaultPricing = ModelPricing{InputPerMillion: 3.0, OutputPerMillion: 15.0}

// PricingFor returns the pricing of model, matching
// "claude-sonnet-4-5-20250929" against "claude-sonnet-4".
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	best := ""
	for key := range modelPricing {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return defaultPricing
	}
	return modelPricing[best]
}

// Cost estimates the USD cost of u billed against model.
func Cost(model string, u transcript.EntryUsage) float64 {
	p := PricingFor(model)
	perToken := p.InputPerMillion / 1_000_000
	return float64(u.InputTokens)*perToken +
		float64(u.OutputTokens)*p.OutputPerMillion/1_000_000 +
		float64(u.CacheCreationTokens)*perToken*cacheWriteRate +
		float64(u.CacheReadTokens)*perToken*cacheReadRate
}
