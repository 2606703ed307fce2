package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/captchaocr/internal/config"
	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

const (
	apiVersion = "2023-06-01"
	maxTokens  = 1024
)

// Provider implements models.Extractor using the Anthropic Messages API.
type Provider struct {
	cfg  config.AnthropicConfig
	opts extract.Options
}

func NewProvider(cfg config.AnthropicConfig, opts extract.Options) *Provider {
	return &Provider{cfg: cfg, opts: opts}
}

func (p *Provider) Name() string { return "anthropic" }

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (p *Provider) Extract(ctx context.Context, req models.ExtractRequest) (string, error) {
	instr := req.Instruction
	if instr == "" {
		instr = models.DefaultInstruction
	}

	body := messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: req.MIMEType,
					Data:      base64.StdEncoding.EncodeToString(req.Image),
				}},
				{Type: "text", Text: instr},
			},
		}},
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	headers := map[string]string{
		"x-api-key":         req.APIKey,
		"anthropic-version": apiVersion,
	}

	raw, err := extract.PostJSON(ctx, endpoint, headers, body, p.opts)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrInvalidResponse, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text content (stop reason %q)", extract.ErrInvalidResponse, resp.StopReason)
	}
	return text, nil
}

var _ models.Extractor = (*Provider)(nil)
