// Package api exposes the analysis pipeline and the segment cache over HTTP
// and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/marketlens/internal/llm"
	"github.com/kalambet/marketlens/internal/pipeline"
	"github.com/kalambet/marketlens/internal/storage"
)

// Analyzer runs one market analysis.
type Analyzer interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Fetcher retrieves remote product inputs.
type Fetcher interface {
	Image(ctx context.Context, url string) (llm.Image, error)
	Page(ctx context.Context, url string) (string, error)
}

// Deps holds everything the handlers need. Token enables bearer auth on all
// routes except /health when non-empty.
type Deps struct {
	Analyzer       Analyzer
	Store          storage.Store
	Fetcher        Fetcher
	Token          string
	AllowedOrigins []string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/analyze", handleAnalyze(deps))
		r.Get("/persona/{segment_key}", handleGetPersona(deps))
		r.Get("/personas", handleListPersonas(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
