// Package llm defines the generative-model boundary used by the analysis
// pipeline and its Gemini implementation.
package llm

import (
	"context"
	"errors"
)

// ErrNoCandidates is returned when the model answers without any candidate.
var ErrNoCandidates = errors.New("model returned no candidates")

// Image is an inline image sent alongside a prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is a single prompt. Parts are sent in order: Prompt, Images, Text.
type Request struct {
	Prompt string
	Images []Image
	Text   string

	// Grounding enables the provider's web search tool when it has one.
	Grounding bool
}

// Response is the generated text plus optional grounding metadata.
type Response struct {
	Text string

	// GroundingHTML is the rendered search entry point, empty when the call
	// was not grounded.
	GroundingHTML string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
