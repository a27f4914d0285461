package inference

// costPer1MTokens is the provider price per one million tokens, in USD.
var costPer1MTokens = map[string]float64{
	"llama-3.1-8b-instant":    0.05,
	"llama-3.1-70b-versatile": 0.59,
	"mixtral-8x7b-32768":      0.24,
	"gemma-7b-it":             0.07,
}

// defaultCostPer1M applies to models missing from the price table.
const defaultCostPer1M = 0.10

// Cost returns the USD cost of a call given its total token usage.
func Cost(model string, tokens int) float64 {
	rate, ok := costPer1MTokens[model]
	if !ok {
		rate = defaultCostPer1M
	}
	return float64(tokens) / 1_000_000 * rate
}
