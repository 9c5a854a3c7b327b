package cost

import "github.com/manash/designedit/pkg/models"

const (
	CurrencyUSD = "USD"
)

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate estimates the price of count images. Unknown models fall back
// to the provider's default model price rather than zero.
func (c *Calculator) Calculate(provider models.ProviderType, model, size string, count int) *models.CostInfo {
	var perImage float64

	switch provider {
	case models.ProviderOpenAI:
		perImage = c.calculateOpenAI(model, size)
	case models.ProviderGemini:
		perImage = c.calculateGemini(model)
	}

	return &models.CostInfo{
		PerImage: perImage,
		Total:    perImage * float64(count),
		Currency: CurrencyUSD,
	}
}

func (c *Calculator) calculateOpenAI(model, size string) float64 {
	if price, ok := GetOpenAIPrice(model, size); ok {
		return price
	}

	switch model {
	case "gpt-image-1":
		return 0.042
	case "dall-e-3":
		return 0.040
	case "dall-e-2":
		return 0.020
	default:
		return 0
	}
}

func (c *Calculator) calculateGemini(model string) float64 {
	if price, ok := GetGeminiPrice(model); ok {
		return price
	}
	return 0.039
}
