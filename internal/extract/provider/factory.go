// Package provider selects the extraction backend named in configuration.
package provider

import (
	"fmt"

	"github.com/kiranshivaraju/captchaocr/internal/config"
	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/internal/extract/anthropic"
	"github.com/kiranshivaraju/captchaocr/internal/extract/gemini"
	"github.com/kiranshivaraju/captchaocr/internal/extract/openai"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// New constructs the configured extractor. Called once at server startup.
func New(cfg config.AIConfig, opts extract.Options) (models.Extractor, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	switch cfg.Provider {
	case "gemini":
		return gemini.NewProvider(cfg.Gemini, opts), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, opts), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, opts), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gemini, openai, anthropic", cfg.Provider)
	}
}
