// Package imaging turns caller-supplied base64 payloads into decoded images
// and re-encodes them for the extraction services.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PNGMimeType is the MIME type of images produced by EncodePNG.
const PNGMimeType = "image/png"

// MaxPixels bounds width*height so a tiny payload cannot expand into a huge bitmap.
const MaxPixels = 40_000_000

const dataURLMarker = "base64,"

// ErrTooLarge is returned when an image exceeds MaxPixels.
var ErrTooLarge = errors.New("image dimensions too large")

// DecodeError reports why a payload could not be turned into an image.
// Its message is the underlying cause so callers can surface it verbatim.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// StripDataURL drops a leading "data:<mime>;base64," header when present.
func StripDataURL(s string) string {
	if i := strings.Index(s, dataURLMarker); i >= 0 {
		return s[i+len(dataURLMarker):]
	}
	return s
}

// DecodeBase64 decodes a base64 (or data-URL) payload into an image and
// returns the detected format name.
func DecodeBase64(payload string) (image.Image, string, error) {
	data, err := decodeBase64(strings.TrimSpace(StripDataURL(payload)))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return img, format, nil
}

// EncodePNG re-encodes img as PNG, the transport format sent to every provider.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode png: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeBase64 accepts standard or URL-safe alphabets, with or without padding.
func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty base64 payload")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if alt, altErr := enc.DecodeString(s); altErr == nil {
			return alt, nil
		}
	}
	return nil, err
}
