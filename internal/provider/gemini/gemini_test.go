package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/pkg/models"
)

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(&provider.Config{APIKey: "g-key", BaseURL: url}, models.DefaultRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func imageReply(data []byte, mime string) generateContentResponse {
	return generateContentResponse{
		Candidates: []candidate{{
			Content: content{Role: "model", Parts: []part{
				{Text: "here you go"},
				{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}},
			}},
		}},
		UsageMetadata: map[string]any{"totalTokenCount": 1290},
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(&provider.Config{}, models.DefaultRegistry()); !errors.Is(err, provider.ErrAPIKeyRequired) {
		t.Errorf("New() error = %v, want ErrAPIKeyRequired", err)
	}
}

func TestProvider_Generate_SendsInlineBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash-image:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "g-key" {
			t.Error("api key missing from query")
		}

		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Fatalf("unexpected contents: %+v", req.Contents)
		}
		if req.Contents[0].Parts[0].Text != "add glow" {
			t.Errorf("text part = %q", req.Contents[0].Parts[0].Text)
		}
		inline := req.Contents[0].Parts[1].InlineData
		if inline == nil || inline.MimeType != models.MIMEJPEG {
			t.Fatalf("inline part = %+v", inline)
		}
		decoded, _ := base64.StdEncoding.DecodeString(inline.Data)
		if string(decoded) != "base" {
			t.Errorf("inline data = %q", decoded)
		}

		json.NewEncoder(w).Encode(imageReply([]byte("glowing"), models.MIMEWebP))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	res, err := p.Generate(context.Background(), models.NewEditRequest("add glow", &models.SourceImage{Data: []byte("base"), MIME: models.MIMEJPEG}))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(res.Data) != "glowing" || res.MIME != models.MIMEWebP {
		t.Errorf("Generate() = %q (%s)", res.Data, res.MIME)
	}
	if res.Usage["totalTokenCount"] != float64(1290) {
		t.Errorf("Usage = %v", res.Usage)
	}
	if res.Provider != models.ProviderGemini || res.Model != "gemini-2.5-flash-image" {
		t.Errorf("Provider/Model = %s/%s", res.Provider, res.Model)
	}
}

func TestProvider_Generate_PromptOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents[0].Parts) != 1 {
			t.Errorf("parts = %d, want 1", len(req.Contents[0].Parts))
		}
		json.NewEncoder(w).Encode(imageReply([]byte("img"), ""))
	}))
	defer server.Close()

	res, err := newTestProvider(t, server.URL).Generate(context.Background(), models.NewEditRequest("a cat", nil))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.MIME != models.MIMEPNG {
		t.Errorf("MIME = %q, want default image/png", res.MIME)
	}
}

func TestProvider_Generate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "api error",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			check: func(t *testing.T, err error) {
				var provErr *provider.ProviderError
				if !errors.As(err, &provErr) {
					t.Fatalf("error = %v, want *ProviderError", err)
				}
				if provErr.Status != 429 || provErr.Message != "quota exceeded" {
					t.Errorf("ProviderError = %+v", provErr)
				}
			},
		},
		{
			name:   "text only reply",
			status: http.StatusOK,
			body:   `{"candidates":[{"content":{"parts":[{"text":"I can't draw that"}]}}]}`,
			check: func(t *testing.T, err error) {
				var noImg *provider.NoImageReturnedError
				if !errors.As(err, &noImg) {
					t.Fatalf("error = %v, want *NoImageReturnedError", err)
				}
				if !strings.Contains(noImg.RawResponse, "can't draw") {
					t.Errorf("RawResponse = %q", noImg.RawResponse)
				}
			},
		},
		{
			name:   "garbage reply",
			status: http.StatusOK,
			body:   `<<html>>`,
			check: func(t *testing.T, err error) {
				var noImg *provider.NoImageReturnedError
				if !errors.As(err, &noImg) {
					t.Fatalf("error = %v, want *NoImageReturnedError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestProvider(t, server.URL).Generate(context.Background(), models.NewEditRequest("x", nil))
			tt.check(t, err)
		})
	}
}

func TestProvider_Generate_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestProvider(t, url).Generate(context.Background(), models.NewEditRequest("x", nil))
	var netErr *provider.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
}

func TestProvider_Generate_WrongModel(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1")
	req := models.NewEditRequest("x", nil)
	req.Model = "gpt-image-1"
	if _, err := p.Generate(context.Background(), req); !errors.Is(err, provider.ErrModelNotSupported) {
		t.Errorf("error = %v, want ErrModelNotSupported", err)
	}
}

func TestTruncateInlineData(t *testing.T) {
	reply, _ := json.Marshal(imageReply([]byte(strings.Repeat("z", 400)), models.MIMEPNG))
	out := string(truncateInlineData(reply))
	if !strings.Contains(out, "[truncated]") {
		t.Errorf("inline data not truncated: %s", out)
	}
}
