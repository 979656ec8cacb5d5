package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

// GeminiOptions configures a Gemini generator.
type GeminiOptions struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API endpoint (for testing).
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini generates text with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator. The client is built once here and
// shared by every call.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &Gemini{client: client, model: opts.Model}, nil
}

// Model returns the model name requests are sent to.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends req as a single user turn. With req.Grounding set the
// Google Search tool is attached and the rendered search entry point is
// returned in Response.GroundingHTML.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	if req.Text != "" {
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var cfg *genai.GenerateContentConfig
	if req.Grounding {
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, ErrNoCandidates
	}

	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return Response{}, fmt.Errorf("candidate has no content parts")
	}

	// Grounded answers are often split over several text parts.
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}

	out := Response{Text: sb.String()}
	if gm := cand.GroundingMetadata; gm != nil && gm.SearchEntryPoint != nil {
		out.GroundingHTML = gm.SearchEntryPoint.RenderedContent
	}
	return out, nil
}
