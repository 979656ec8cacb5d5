package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// geminiServer returns a fake Gemini endpoint that answers every request
// with respJSON and records the last request body.
func geminiServer(t *testing.T, status int, respJSON string) (*httptest.Server, *string) {
	t.Helper()
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, respJSON)
	}))
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func newTestGemini(t *testing.T, srv *httptest.Server) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), GeminiOptions{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return g
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiOptions{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewGemini_DefaultModel(t *testing.T) {
	g, err := NewGemini(context.Background(), GeminiOptions{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if g.Model() != DefaultGeminiModel {
		t.Errorf("Model() = %q, want %q", g.Model(), DefaultGeminiModel)
	}
}

func TestGemini_Generate(t *testing.T) {
	srv, body := geminiServer(t, http.StatusOK, `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Hello "}, {"text": "world"}]},
			"finishReason": "STOP",
			"groundingMetadata": {"searchEntryPoint": {"renderedContent": "<div>chips</div>"}}
		}]
	}`)
	g := newTestGemini(t, srv)

	resp, err := g.Generate(context.Background(), Request{
		Prompt:    "Analyze this",
		Images:    []Image{{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
		Text:      "Based on the product description: shoes",
		Grounding: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text != "Hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello world")
	}
	if resp.GroundingHTML != "<div>chips</div>" {
		t.Errorf("GroundingHTML = %q", resp.GroundingHTML)
	}
	for _, want := range []string{"Analyze this", "Based on the product description: shoes", "googleSearch", "image/png"} {
		if !strings.Contains(*body, want) {
			t.Errorf("request body missing %q:\n%s", want, *body)
		}
	}
}

func TestGemini_Generate_NoGrounding(t *testing.T) {
	srv, body := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"plain"}]}}]}`)
	g := newTestGemini(t, srv)

	resp, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text != "plain" {
		t.Errorf("Text = %q, want plain", resp.Text)
	}
	if resp.GroundingHTML != "" {
		t.Errorf("GroundingHTML = %q, want empty", resp.GroundingHTML)
	}
	if strings.Contains(*body, "googleSearch") {
		t.Error("request should not attach the search tool")
	}
}

func TestGemini_Generate_NoCandidates(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusOK, `{"candidates":[]}`)
	g := newTestGemini(t, srv)

	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("error = %v, want ErrNoCandidates", err)
	}
}

func TestGemini_Generate_UpstreamError(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusInternalServerError, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`)
	g := newTestGemini(t, srv)

	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoCandidates) {
		t.Errorf("error = %v, want an upstream error, not ErrNoCandidates", err)
	}
}
