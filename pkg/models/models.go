package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyPrompt       = errors.New("prompt cannot be empty")
	ErrEditNotSupported  = errors.New("image editing not supported by model")
	ErrNoImageData       = errors.New("image data is required for editing")
	ErrPromptOrImageNeed = errors.New("either a prompt or a base image is required")
)

type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
)

func (p ProviderType) String() string {
	return string(p)
}

func ParseProviderType(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGemini:
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

func (f OutputFormat) MIME() string {
	switch f {
	case FormatJPEG:
		return MIMEJPEG
	case FormatWebP:
		return MIMEWebP
	default:
		return MIMEPNG
	}
}

// SourceImage is the image an edit is conditioned on.
type SourceImage struct {
	Data []byte
	MIME string
}

// EditRequest asks a provider to produce one image from a prompt and,
// optionally, a base image.
type EditRequest struct {
	Prompt string
	Base   *SourceImage
	Model  string
	Size   string
	Format OutputFormat
}

func NewEditRequest(prompt string, base *SourceImage) *EditRequest {
	return &EditRequest{
		Prompt: prompt,
		Base:   base,
		Format: FormatPNG,
	}
}

func (r *EditRequest) HasBase() bool {
	return r.Base != nil && len(r.Base.Data) > 0
}

func (r *EditRequest) Validate() error {
	if r.Base != nil && len(r.Base.Data) == 0 {
		return ErrNoImageData
	}
	if strings.TrimSpace(r.Prompt) == "" && !r.HasBase() {
		return ErrPromptOrImageNeed
	}
	return nil
}

// Result is a single generated image plus what the provider reported
// about the call.
type Result struct {
	Data          []byte
	MIME          string
	RevisedPrompt string
	Usage         map[string]any
	Cost          *CostInfo
	Provider      ProviderType
	Model         string
}

type CostInfo struct {
	PerImage float64 `json:"per_image"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

type ModelCapabilities struct {
	Name           string
	Provider       ProviderType
	SupportedSizes []string
	DefaultSize    string
	SupportsEdit   bool
}

func (c *ModelCapabilities) Validate(req *EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.HasBase() && !c.SupportsEdit {
		return fmt.Errorf("%w: %s", ErrEditNotSupported, c.Name)
	}
	if req.Size != "" && len(c.SupportedSizes) > 0 && !slices.Contains(c.SupportedSizes, req.Size) {
		return fmt.Errorf("invalid size for model: %q not in %v", req.Size, c.SupportedSizes)
	}
	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *EditRequest) {
	if req.Size == "" {
		req.Size = c.DefaultSize
	}
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Format == "" {
		req.Format = FormatPNG
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// DefaultModel returns the model used for a provider when none is configured.
func (r *ModelRegistry) DefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderGemini:
		return "gemini-2.5-flash-image"
	default:
		return "gpt-image-1"
	}
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           "gpt-image-1",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"1024x1024", "1536x1024", "1024x1536", "auto"},
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
	})

	r.Register(&ModelCapabilities{
		Name:           "dall-e-2",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"256x256", "512x512", "1024x1024"},
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
	})

	r.Register(&ModelCapabilities{
		Name:           "dall-e-3",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"1024x1024", "1024x1792", "1792x1024"},
		DefaultSize:    "1024x1024",
		SupportsEdit:   false,
	})

	r.Register(&ModelCapabilities{
		Name:         "gemini-2.5-flash-image",
		Provider:     ProviderGemini,
		SupportsEdit: true,
	})

	r.Register(&ModelCapabilities{
		Name:         "gemini-2.0-flash-preview-image-generation",
		Provider:     ProviderGemini,
		SupportsEdit: true,
	})

	return r
}
