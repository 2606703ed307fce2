package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/internal/extract/mock"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.ExtractRequest {
	return models.ExtractRequest{APIKey: "k", Image: []byte("png"), MIMEType: "image/png"}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	assert.Equal(t, "mock", mock.NewMockProvider("x").Name())
}

func TestNewMockProvider_Extract(t *testing.T) {
	text, err := mock.NewMockProvider("HELLO").Extract(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "HELLO", text)
}

func TestMockProvider_ZeroValue(t *testing.T) {
	text, err := (&mock.MockProvider{}).Extract(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestMockProvider_CustomFunc(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "custom",
		ExtractFunc: func(_ context.Context, req models.ExtractRequest) (string, error) {
			return req.APIKey + "-seen", nil
		},
	}
	text, err := p.Extract(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "k-seen", text)
	assert.Equal(t, "custom", p.Name())
}

// --- NewFailingProvider ---

func TestNewFailingProvider(t *testing.T) {
	want := errors.New("boom")
	p := mock.NewFailingProvider(want)

	_, err := p.Extract(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, want)
	assert.Equal(t, "mock-failing", p.Name())
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := mock.NewTimeoutProvider().Extract(ctx, sampleRequest())
	assert.ErrorIs(t, err, extract.ErrInferenceTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
