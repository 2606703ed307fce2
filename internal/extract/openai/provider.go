package openai

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

// Provider implements models.Extractor using an OpenAI-compatible chat
// completions endpoint. Self-hosted servers (vLLM, LocalAI) work by pointing
// BaseURL at them.
type Provider struct {
	cfg  config.OpenAIConfig
	opts extract.Options
}

func NewProvider(cfg config.OpenAIConfig, opts extract.Options) *Provider {
	return &Provider{cfg: cfg, opts: opts}
}

func (p *Provider) Name() string { return "openai" }

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) Extract(ctx context.Context, req models.ExtractRequest) (string, error) {
	instr := req.Instruction
	if instr == "" {
		instr = models.DefaultInstruction
	}
	dataURL := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: instr},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + req.APIKey}

	raw, err := extract.PostJSON(ctx, endpoint, headers, body, p.opts)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", extract.ErrInvalidResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content (finish reason %q)",
			extract.ErrInvalidResponse, resp.Choices[0].FinishReason)
	}
	return text, nil
}

var _ models.Extractor = (*Provider)(nil)
