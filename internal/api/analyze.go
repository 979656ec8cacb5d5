package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/marketlens/internal/pipeline"
)

const (
	maxUploadSize    = 16 << 20 // 16MB
	maxMultipartForm = 8 << 20  // kept in memory, the rest spills to disk
)

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		spec, err := readInputSpec(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		in, err := ResolveInput(r.Context(), deps.Fetcher, spec)
		if err != nil {
			writeRunError(w, err)
			return
		}

		res, err := deps.Analyzer.Run(r.Context(), in)
		if err != nil {
			writeRunError(w, err)
			return
		}

		writeJSON(w, res)
	}
}

// readInputSpec reads the multipart (or urlencoded) analyze form.
func readInputSpec(r *http.Request) (InputSpec, error) {
	if err := r.ParseMultipartForm(maxMultipartForm); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return InputSpec{}, err
	}

	spec := InputSpec{
		ImageURL: r.FormValue("image_url"),
		Text:     r.FormValue("text_input"),
		TextType: r.FormValue("text_input_type"),
	}
	if spec.TextType == "" {
		spec.TextType = TextTypeText
	}

	if r.MultipartForm != nil {
		file, _, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return spec, err
		default:
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return spec, err
			}
			spec.File = data
		}
	}
	return spec, nil
}

// writeRunError maps input and pipeline errors to a status code.
func writeRunError(w http.ResponseWriter, err error) {
	var ie *InputError
	var se *pipeline.StepError
	switch {
	case errors.As(err, &ie):
		httpError(w, http.StatusBadRequest, "%s", ie.Msg)
	case errors.Is(err, pipeline.ErrNoInput):
		httpError(w, http.StatusBadRequest, msgNoInput)
	case errors.As(err, &se) && se.Stage == pipeline.StageCacheWrite:
		slog.Error("caching analysis failed", "error", se.Err)
		httpError(w, http.StatusInternalServerError, "%s", se.Message)
	case errors.As(err, &se):
		slog.Warn("analysis failed", "stage", se.Stage, "error", se.Err)
		httpError(w, http.StatusBadGateway, "%s", se.Message)
	default:
		slog.Error("analysis failed", "error", err)
		httpError(w, http.StatusInternalServerError, "Analysis failed: %v", err)
	}
}
