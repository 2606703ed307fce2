package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/captchaocr/internal/config"
	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// Provider implements models.Extractor using the Gemini generateContent API.
type Provider struct {
	cfg  config.GeminiConfig
	opts extract.Options
}

func NewProvider(cfg config.GeminiConfig, opts extract.Options) *Provider {
	return &Provider{cfg: cfg, opts: opts}
}

func (p *Provider) Name() string { return "gemini" }

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Extract sends the instruction and image as one user turn and returns the
// concatenated text of the first candidate.
func (p *Provider) Extract(ctx context.Context, req models.ExtractRequest) (string, error) {
	body := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: instruction(req)},
				{InlineData: &inlineData{
					MimeType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.Model))
	headers := map[string]string{"x-goog-api-key": req.APIKey}

	raw, err := extract.PostJSON(ctx, endpoint, headers, body, p.opts)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrInvalidResponse, err)
	}
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", extract.ErrInvalidResponse, reason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", extract.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty text (finish reason %q)",
			extract.ErrInvalidResponse, resp.Candidates[0].FinishReason)
	}
	return text, nil
}

func instruction(req models.ExtractRequest) string {
	if req.Instruction != "" {
		return req.Instruction
	}
	return models.DefaultInstruction
}

var _ models.Extractor = (*Provider)(nil)
