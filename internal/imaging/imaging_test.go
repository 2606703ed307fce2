package imaging_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/kiranshivaraju/captchaocr/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func sampleImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sampleImage()))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestStripDataURL(t *testing.T) {
	assert.Equal(t, "AAAA", imaging.StripDataURL("data:image/png;base64,AAAA"))
	assert.Equal(t, "AAAA", imaging.StripDataURL("AAAA"))
	assert.Equal(t, "", imaging.StripDataURL("data:image/png;base64,"))
	// Only the first marker is a header; later occurrences stay in the payload.
	assert.Equal(t, "AAAAbase64,BBBB", imaging.StripDataURL("data:image/png;base64,AAAAbase64,BBBB"))
}

func TestDecodeBase64_PNG(t *testing.T) {
	img, format, err := imaging.DecodeBase64(pngBase64(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestDecodeBase64_DataURL(t *testing.T) {
	_, format, err := imaging.DecodeBase64("data:image/png;base64," + pngBase64(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestDecodeBase64_MissingPadding(t *testing.T) {
	b64 := pngBase64(t)
	for len(b64) > 0 && b64[len(b64)-1] == '=' {
		b64 = b64[:len(b64)-1]
	}
	_, _, err := imaging.DecodeBase64(b64)
	require.NoError(t, err)
}

func TestDecodeBase64_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, sampleImage(), nil))

	_, format, err := imaging.DecodeBase64(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDecodeBase64_BMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, sampleImage()))

	_, format, err := imaging.DecodeBase64(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
}

func TestDecodeBase64_InvalidBase64(t *testing.T) {
	_, _, err := imaging.DecodeBase64("not-valid-base64!!")
	require.Error(t, err)

	var decErr *imaging.DecodeError
	assert.True(t, errors.As(err, &decErr))
	assert.Contains(t, err.Error(), "illegal base64 data")
}

func TestDecodeBase64_NotAnImage(t *testing.T) {
	_, _, err := imaging.DecodeBase64(base64.StdEncoding.EncodeToString([]byte("hello world")))
	require.Error(t, err)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestDecodeBase64_Empty(t *testing.T) {
	_, _, err := imaging.DecodeBase64("data:image/png;base64,")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDecodeBase64_TooLarge(t *testing.T) {
	// A PNG header claiming huge dimensions is rejected before full decode.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8000, 6000))))

	_, _, err := imaging.DecodeBase64(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, imaging.ErrTooLarge)
}

func TestEncodePNG_Roundtrip(t *testing.T) {
	data, err := imaging.EncodePNG(sampleImage())
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sampleImage().Bounds(), decoded.Bounds())
}

func TestEncodePNG_Nil(t *testing.T) {
	_, err := imaging.EncodePNG(nil)
	assert.Error(t, err)
}
