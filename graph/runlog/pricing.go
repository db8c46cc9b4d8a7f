package runlog

// ModelPricing is the cost of a model in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Pricing maps model names to their token prices. Unknown models cost 0.
type Pricing map[string]ModelPricing

// DefaultPricing covers the models the bundled adapters default to.
// Prices change; override through configuration for accurate estimates.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
		"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
		"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
		"gemini-1.5-pro":           {InputPer1M: 1.25, OutputPer1M: 5.00},
		"gemini-1.5-flash":         {InputPer1M: 0.075, OutputPer1M: 0.30},
		"gemini-2.0-flash":         {InputPer1M: 0.10, OutputPer1M: 0.40},
	}
}

// Cost estimates the USD cost of one usage event.
func (p Pricing) Cost(u Usage) float64 {
	price, ok := p[u.Model]
	if !ok {
		return 0
	}
	return float64(u.PromptTokens)/1_000_000*price.InputPer1M +
		float64(u.CompletionTokens)/1_000_000*price.OutputPer1M
}
