package image

import (
	"bytes"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/manash/designedit/pkg/models"
)

var ErrNotAnImage = errors.New("data is not a recognized image")

// AcceptedMIMETypes are the formats both providers take as a base image.
func AcceptedMIMETypes() []string {
	return []string{models.MIMEPNG, models.MIMEJPEG, models.MIMEWebP}
}

func IsProviderAccepted(mime string) bool {
	return slices.Contains(AcceptedMIMETypes(), canonicalMIME(mime))
}

// ExtensionForMIME maps a MIME type to the stored file extension.
func ExtensionForMIME(mime string) string {
	switch canonicalMIME(mime) {
	case models.MIMEJPEG:
		return "jpg"
	case models.MIMEWebP:
		return "webp"
	default:
		return "png"
	}
}

// MIMEForExtension is the inverse of ExtensionForMIME for stored files.
func MIMEForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return models.MIMEJPEG
	case "webp":
		return models.MIMEWebP
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return models.MIMEPNG
	}
}

func canonicalMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpg", "image/pjpeg":
		return models.MIMEJPEG
	case "image/x-png":
		return models.MIMEPNG
	case "image/x-ms-bmp":
		return "image/bmp"
	}
	return mime
}

// DetectMIME sniffs the content type from the leading bytes. TIFF is
// checked by magic number since net/http does not sniff it.
func DetectMIME(data []byte) string {
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return canonicalMIME(http.DetectContentType(data))
}

// Normalized is the outcome of Normalize. When Converted is false the
// Data and MIME are the input unchanged; ConversionErr says why when
// a conversion was attempted and failed.
type Normalized struct {
	Data          []byte
	MIME          string
	Converted     bool
	ConversionErr error
}

// Normalize re-encodes images the providers do not accept as PNG. It is
// best effort: undecodable input is handed back untouched.
func Normalize(data []byte, declaredMIME string) Normalized {
	mime := DetectMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = canonicalMIME(declaredMIME)
	}

	if IsProviderAccepted(mime) {
		return Normalized{Data: data, MIME: mime}
	}

	out, err := ConvertToPNG(data)
	if err != nil {
		return Normalized{Data: data, MIME: mime, ConversionErr: err}
	}
	return Normalized{Data: out, MIME: models.MIMEPNG, Converted: true}
}

func ConvertToPNG(data []byte) ([]byte, error) {
	img, format, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
