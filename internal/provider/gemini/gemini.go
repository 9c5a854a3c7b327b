// Package gemini talks to the Gemini generateContent API. The base image,
// when present, travels as an inlineData part next to the prompt text.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/cost"
	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/pkg/models"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata map[string]any `json:"usageMetadata,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

type Provider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	registry     *models.ModelRegistry
	calculator   *cost.Calculator
	verbose      bool
	log          zerolog.Logger
}

// New constructs a Gemini provider. The HTTP client uses the configured
// timeout, 180 seconds unless overridden.
func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = registry.DefaultModel(models.ProviderGemini)
	}

	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: model,
		httpClient:   &http.Client{Timeout: cfg.Timeout()},
		registry:     registry,
		calculator:   cost.NewCalculator(),
		verbose:      cfg.Verbose,
		log:          cfg.Log().With().Str("provider", string(models.ProviderGemini)).Logger(),
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	return ok && cap.Provider == models.ProviderGemini
}

func (p *Provider) SupportsEdit(model string) bool {
	cap, ok := p.registry.Get(model)
	return ok && cap.Provider == models.ProviderGemini && cap.SupportsEdit
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderGemini)
}

func (p *Provider) Generate(ctx context.Context, req *models.EditRequest) (*models.Result, error) {
	if req.Model == "" {
		req.Model = p.defaultModel
	}
	cap, ok := p.registry.Get(req.Model)
	if !ok || cap.Provider != models.ProviderGemini {
		return nil, fmt.Errorf("%w: %s", provider.ErrModelNotSupported, req.Model)
	}
	cap.ApplyDefaults(req)
	if err := cap.Validate(req); err != nil {
		return nil, err
	}

	var response generateContentResponse
	raw, err := p.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(req.Model)), buildRequest(req), &response)
	if err != nil {
		return nil, err
	}

	for _, cand := range response.Candidates {
		for _, pt := range cand.Content.Parts {
			if pt.InlineData == nil || pt.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(pt.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			mime := pt.InlineData.MimeType
			if mime == "" {
				mime = models.MIMEPNG
			}

			p.log.Debug().
				Str("model", req.Model).
				Str("mime", mime).
				Int("bytes", len(data)).
				Msg("gemini: image returned")

			return &models.Result{
				Data:     data,
				MIME:     mime,
				Usage:    response.UsageMetadata,
				Cost:     p.calculator.Calculate(models.ProviderGemini, req.Model, req.Size, 1),
				Provider: models.ProviderGemini,
				Model:    req.Model,
			}, nil
		}
	}

	return nil, &provider.NoImageReturnedError{Provider: models.ProviderGemini, RawResponse: string(truncateInlineData(raw))}
}

func buildRequest(req *models.EditRequest) generateContentRequest {
	parts := make([]part, 0, 2)
	if strings.TrimSpace(req.Prompt) != "" {
		parts = append(parts, part{Text: req.Prompt})
	}
	if req.HasBase() {
		mime := req.Base.MIME
		if mime == "" {
			mime = models.MIMEPNG
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.Base.Data),
		}})
	}

	return generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
}

// invoke posts payload and decodes a success reply into out, returning the
// raw body so callers can report what came back.
func (p *Provider) invoke(ctx context.Context, path string, payload any, out any) ([]byte, error) {
	endpoint := p.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", p.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	if p.verbose {
		p.log.Debug().Str("url", endpoint).Int("body_bytes", len(body)).Msg("gemini: request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &provider.NetworkError{Op: "invoke gemini", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.NetworkError{Op: "read gemini response", Err: err}
	}

	if p.verbose {
		p.log.Debug().Int("status", resp.StatusCode).Bytes("body", truncateInlineData(data)).Msg("gemini: response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		msg := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &provider.ProviderError{Provider: models.ProviderGemini, Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return nil, &provider.NoImageReturnedError{Provider: models.ProviderGemini, RawResponse: string(data)}
	}
	return data, nil
}

func truncateInlineData(body []byte) []byte {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return body
	}
	for i := range resp.Candidates {
		for j := range resp.Candidates[i].Content.Parts {
			inline := resp.Candidates[i].Content.Parts[j].InlineData
			if inline != nil && len(inline.Data) > 100 {
				inline.Data = inline.Data[:100] + "... [truncated]"
			}
		}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return body
	}
	return out
}
