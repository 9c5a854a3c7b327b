package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/cost"
	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/pkg/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

type apiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
}

type apiResponse struct {
	Created int64          `json:"created"`
	Data    []imageData    `json:"data"`
	Usage   map[string]any `json:"usage,omitempty"`
	Error   *apiError      `json:"error,omitempty"`
}

type imageData struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
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
		model = registry.DefaultModel(models.ProviderOpenAI)
	}

	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		registry:   registry,
		calculator: cost.NewCalculator(),
		verbose:    cfg.Verbose,
		log:        cfg.Log().With().Str("provider", string(models.ProviderOpenAI)).Logger(),
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderOpenAI
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderOpenAI
}

func (p *Provider) SupportsEdit(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.SupportsEdit && cap.Provider == models.ProviderOpenAI
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderOpenAI)
}

// Generate calls /images/edits when the request carries a base image and
// /images/generations otherwise.
func (p *Provider) Generate(ctx context.Context, req *models.EditRequest) (*models.Result, error) {
	if req.Model == "" {
		req.Model = p.defaultModel
	}
	cap, ok := p.registry.Get(req.Model)
	if !ok || cap.Provider != models.ProviderOpenAI {
		return nil, fmt.Errorf("%w: %s", provider.ErrModelNotSupported, req.Model)
	}
	cap.ApplyDefaults(req)
	if err := cap.Validate(req); err != nil {
		return nil, err
	}

	var (
		body []byte
		err  error
	)
	if req.HasBase() {
		body, err = p.postEdit(ctx, req)
	} else {
		body, err = p.postGeneration(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	result, err := p.buildResult(ctx, body, req)
	if err != nil {
		return nil, err
	}
	result.Cost = p.calculator.Calculate(models.ProviderOpenAI, req.Model, req.Size, 1)
	return result, nil
}

func (p *Provider) postGeneration(ctx context.Context, req *models.EditRequest) ([]byte, error) {
	apiReq := p.buildAPIRequest(req)

	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logRequest(http.MethodPost, url, httpReq.Header, jsonData)
	return p.do(httpReq)
}

func (p *Provider) buildAPIRequest(req *models.EditRequest) *apiRequest {
	apiReq := &apiRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		N:      1,
		Size:   req.Size,
	}

	switch req.Model {
	case "gpt-image-1":
		if req.Format != "" {
			apiReq.OutputFormat = req.Format.String()
		}
	default:
		apiReq.ResponseFormat = "b64_json"
	}

	return apiReq
}

// do sends the request and returns the body of a 200 reply. Anything else
// becomes one of the provider error types.
func (p *Provider) do(httpReq *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &provider.NetworkError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.NetworkError{Op: "read response", Err: err}
	}

	p.logResponse(resp.StatusCode, resp.Header, body)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
			msg = apiResp.Error.Message
		}
		return nil, &provider.ProviderError{Provider: models.ProviderOpenAI, Status: resp.StatusCode, Message: msg}
	}

	return body, nil
}

func (p *Provider) buildResult(ctx context.Context, body []byte, req *models.EditRequest) (*models.Result, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &provider.NoImageReturnedError{Provider: models.ProviderOpenAI, RawResponse: string(truncateBase64InJSON(body))}
	}

	if apiResp.Error != nil {
		return nil, &provider.ProviderError{Provider: models.ProviderOpenAI, Status: http.StatusOK, Message: apiResp.Error.Message}
	}

	for _, data := range apiResp.Data {
		var (
			decoded []byte
			err     error
		)
		switch {
		case data.B64JSON != "":
			decoded, err = base64.StdEncoding.DecodeString(data.B64JSON)
		case data.URL != "":
			decoded, err = p.DownloadImage(ctx, data.URL)
		default:
			continue
		}
		if err != nil || len(decoded) == 0 {
			continue
		}

		return &models.Result{
			Data:          decoded,
			MIME:          resultMIME(req),
			RevisedPrompt: data.RevisedPrompt,
			Usage:         apiResp.Usage,
			Provider:      models.ProviderOpenAI,
			Model:         req.Model,
		}, nil
	}

	return nil, &provider.NoImageReturnedError{Provider: models.ProviderOpenAI, RawResponse: string(truncateBase64InJSON(body))}
}

func resultMIME(req *models.EditRequest) string {
	if req.Model == "gpt-image-1" {
		return req.Format.MIME()
	}
	return models.MIMEPNG
}

func (p *Provider) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &provider.NetworkError{Op: "download image", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.ProviderError{Provider: models.ProviderOpenAI, Status: resp.StatusCode, Message: "image download failed"}
	}

	return io.ReadAll(resp.Body)
}

func (p *Provider) logRequest(method, url string, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	ev := p.log.Debug().
		Str("method", method).
		Str("url", url).
		Interface("headers", redactHeaders(headers))
	if len(body) > 0 {
		ev = ev.RawJSON("body", compactJSON(body))
	}
	ev.Msg("openai: request")
}

func (p *Provider) logResponse(statusCode int, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	ev := p.log.Debug().
		Int("status", statusCode).
		Interface("headers", headers)
	if len(body) > 0 {
		ev = ev.RawJSON("body", compactJSON(truncateBase64InJSON(body)))
	}
	ev.Msg("openai: response")
}

func redactHeaders(headers http.Header) map[string][]string {
	out := make(map[string][]string, len(headers))
	for key, values := range headers {
		if strings.EqualFold(key, "authorization") {
			out[key] = []string{"[REDACTED]"}
			continue
		}
		out[key] = values
	}
	return out
}

// compactJSON returns body as valid JSON for RawJSON, quoting it when it
// is not JSON already.
func compactJSON(body []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		return buf.Bytes()
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func truncateBase64InJSON(body []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if key == "b64_json" && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
