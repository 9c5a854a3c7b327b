package cost

// Per-image prices in USD for a single edit or generation.
// Sources: https://openai.com/api/pricing/ and https://ai.google.dev/pricing

type PricingKey struct {
	Model string
	Size  string
}

// gpt-image-1 edits run at medium quality.
var openAIPricing = map[PricingKey]float64{
	{Model: "gpt-image-1", Size: "1024x1024"}: 0.042,
	{Model: "gpt-image-1", Size: "1536x1024"}: 0.063,
	{Model: "gpt-image-1", Size: "1024x1536"}: 0.063,
	{Model: "gpt-image-1", Size: "auto"}:      0.042,

	{Model: "dall-e-3", Size: "1024x1024"}: 0.040,
	{Model: "dall-e-3", Size: "1024x1792"}: 0.080,
	{Model: "dall-e-3", Size: "1792x1024"}: 0.080,

	{Model: "dall-e-2", Size: "256x256"}:   0.016,
	{Model: "dall-e-2", Size: "512x512"}:   0.018,
	{Model: "dall-e-2", Size: "1024x1024"}: 0.020,
}

// Gemini image output is billed per image regardless of size.
var geminiPricing = map[string]float64{
	"gemini-2.5-flash-image":                   0.039,
	"gemini-2.0-flash-preview-image-generation": 0.039,
}

func GetOpenAIPrice(model, size string) (float64, bool) {
	price, ok := openAIPricing[PricingKey{Model: model, Size: size}]
	return price, ok
}

func GetGeminiPrice(model string) (float64, bool) {
	price, ok := geminiPricing[model]
	return price, ok
}
