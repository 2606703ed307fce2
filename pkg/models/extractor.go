// Package models contains shared data models used across the captchaocr codebase.
package models

import "context"

// DefaultInstruction is the prompt sent alongside every image.
const DefaultInstruction = "Extract text from this image"

// Extractor is the core interface that all extraction service integrations must implement.
// Never call a specific provider directly; always inject this interface.
type Extractor interface {
	// Extract sends the encoded image to the remote service and returns the text it finds.
	// The credential travels with each request; providers hold no per-caller state.
	Extract(ctx context.Context, req ExtractRequest) (string, error)
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string
}

// ExtractRequest is the input to a single extraction call.
type ExtractRequest struct {
	APIKey      string
	Image       []byte
	MIMEType    string
	Instruction string
}
