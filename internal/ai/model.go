// Package ai turns bus requests into generation calls against the hosted
// model and normalizes whatever comes back into displayable results.
package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt   = errors.New("empty prompt")
	ErrMissingAPIKey = errors.New("no Gemini API key configured")
)

// Part is one piece of generation input: text or inline binary data
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart returns a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// BlobPart returns an inline binary part
func BlobPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// GenerateRequest is a single call to the model
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Temperature       *float32
	MaxOutputTokens   int32
	Parts             []Part
}

// GenerateResponse is the model output. Text may be empty.
type GenerateResponse struct {
	Text string
}

// Model is the generation collaborator
type Model interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// UpstreamError reports a failed or timed out generation call
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s failed: the AI service did not respond in time", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
