package models

import (
	"errors"
	"testing"
)

func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   bool
	}{
		{"valid png", FormatPNG, true},
		{"valid jpeg", FormatJPEG, true},
		{"valid webp", FormatWebP, true},
		{"invalid format", OutputFormat("gif"), false},
		{"empty format", OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("OutputFormat.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutputFormat_MIME(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatPNG, MIMEPNG},
		{FormatJPEG, MIMEJPEG},
		{FormatWebP, MIMEWebP},
		{OutputFormat(""), MIMEPNG},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.MIME(); got != tt.want {
				t.Errorf("OutputFormat.MIME() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{" Gemini ", ProviderGemini, false},
		{"stability", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProviderType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEditRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *EditRequest
		wantErr error
	}{
		{"prompt only", NewEditRequest("a cat", nil), nil},
		{"prompt and base", NewEditRequest("add glow", &SourceImage{Data: []byte{1}, MIME: MIMEPNG}), nil},
		{"base only", NewEditRequest("", &SourceImage{Data: []byte{1}, MIME: MIMEPNG}), nil},
		{"empty base data", NewEditRequest("add glow", &SourceImage{}), ErrNoImageData},
		{"nothing", NewEditRequest("  ", nil), ErrPromptOrImageNeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelCapabilities_Validate(t *testing.T) {
	registry := DefaultRegistry()
	base := &SourceImage{Data: []byte{1, 2, 3}, MIME: MIMEPNG}

	dalle3, _ := registry.Get("dall-e-3")
	if err := dalle3.Validate(NewEditRequest("glow", base)); !errors.Is(err, ErrEditNotSupported) {
		t.Errorf("dall-e-3 edit error = %v, want ErrEditNotSupported", err)
	}

	gptImage, _ := registry.Get("gpt-image-1")
	req := NewEditRequest("glow", base)
	req.Size = "999x999"
	if err := gptImage.Validate(req); err == nil {
		t.Error("Validate() with unsupported size: expected error")
	}

	req.Size = ""
	gptImage.ApplyDefaults(req)
	if req.Size != "1024x1024" || req.Model != "gpt-image-1" {
		t.Errorf("ApplyDefaults() size=%q model=%q", req.Size, req.Model)
	}
	if err := gptImage.Validate(req); err != nil {
		t.Errorf("Validate() after defaults error = %v", err)
	}
}

func TestModelRegistry(t *testing.T) {
	r := DefaultRegistry()

	if _, ok := r.Get("gpt-image-1"); !ok {
		t.Error("Get(gpt-image-1) not found")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("Get(unknown) should not be found")
	}

	gemini := r.ListByProvider(ProviderGemini)
	if len(gemini) != 2 {
		t.Errorf("ListByProvider(gemini) = %v, want 2 models", gemini)
	}

	if got := r.DefaultModel(ProviderGemini); got != "gemini-2.5-flash-image" {
		t.Errorf("DefaultModel(gemini) = %q", got)
	}
	if got := r.DefaultModel(ProviderOpenAI); got != "gpt-image-1" {
		t.Errorf("DefaultModel(openai) = %q", got)
	}
	if _, ok := r.Get(r.DefaultModel(ProviderGemini)); !ok {
		t.Error("default gemini model missing from registry")
	}
}
