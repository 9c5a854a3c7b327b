package openai

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/manash/designedit/pkg/models"
)

func (p *Provider) postEdit(ctx context.Context, req *models.EditRequest) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeImagePart(writer, req.Base); err != nil {
		return nil, err
	}

	if err := writer.WriteField("prompt", req.Prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt: %w", err)
	}

	if err := writer.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("failed to write model: %w", err)
	}

	if req.Size != "" {
		if err := writer.WriteField("size", req.Size); err != nil {
			return nil, fmt.Errorf("failed to write size: %w", err)
		}
	}

	if req.Model == "gpt-image-1" && req.Format != "" {
		if err := writer.WriteField("output_format", req.Format.String()); err != nil {
			return nil, fmt.Errorf("failed to write output_format: %w", err)
		}
	} else if req.Model == "dall-e-2" {
		if err := writer.WriteField("response_format", "b64_json"); err != nil {
			return nil, fmt.Errorf("failed to write response_format: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := p.baseURL + "/images/edits"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logMultipartRequest(http.MethodPost, url, httpReq.Header, req)
	return p.do(httpReq)
}

// writeImagePart attaches the base image with its real content type; the
// edits endpoint rejects parts it cannot sniff as png, jpeg or webp.
func writeImagePart(writer *multipart.Writer, img *models.SourceImage) error {
	mime := img.MIME
	if mime == "" {
		mime = models.MIMEPNG
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, imageFilename(mime)))
	h.Set("Content-Type", mime)

	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

func imageFilename(mime string) string {
	switch mime {
	case models.MIMEJPEG:
		return "image.jpg"
	case models.MIMEWebP:
		return "image.webp"
	default:
		return "image.png"
	}
}

func (p *Provider) logMultipartRequest(method, url string, headers http.Header, req *models.EditRequest) {
	if !p.verbose {
		return
	}

	p.log.Debug().
		Str("method", method).
		Str("url", url).
		Interface("headers", redactHeaders(headers)).
		Str("model", req.Model).
		Str("prompt", req.Prompt).
		Str("size", req.Size).
		Str("image_mime", req.Base.MIME).
		Int("image_bytes", len(req.Base.Data)).
		Msg("openai: multipart request")
}
