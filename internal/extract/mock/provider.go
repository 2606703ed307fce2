package mock

import (
	"context"

	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// MockProvider satisfies models.Extractor for testing.
type MockProvider struct {
	Name_       string
	ExtractFunc func(ctx context.Context, req models.ExtractRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Extract(ctx context.Context, req models.ExtractRequest) (string, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider that always extracts the given text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ExtractFunc: func(_ context.Context, _ models.ExtractRequest) (string, error) {
			return text, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ExtractFunc: func(_ context.Context, _ models.ExtractRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ExtractFunc: func(ctx context.Context, _ models.ExtractRequest) (string, error) {
			<-ctx.Done()
			return "", extract.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Extractor.
var _ models.Extractor = (*MockProvider)(nil)
