package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/marketlens/internal/fetch"
	"github.com/kalambet/marketlens/internal/llm"
	"github.com/kalambet/marketlens/internal/pipeline"
)

// Text input types accepted by ResolveInput.
const (
	TextTypeText = "text"
	TextTypeURL  = "url"
)

const msgNoInput = "Please provide either an image or text description"

// InputSpec is an analysis request as submitted, before anything is fetched.
type InputSpec struct {
	// File is an uploaded image or PDF. It takes precedence over ImageURL.
	File     []byte
	ImageURL string
	Text     string
	TextType string
}

// InputError is a problem with the submitted input. Its message is shown to
// the caller as-is.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

// ResolveInput fetches remote images and websites and extracts PDF text so
// the result can be handed to the pipeline.
func ResolveInput(ctx context.Context, f Fetcher, spec InputSpec) (pipeline.Input, error) {
	var in pipeline.Input

	switch {
	case len(spec.File) > 0:
		mime := fetch.DetectMIME(spec.File)
		switch {
		case mime == "application/pdf":
			text, err := fetch.PDFText(spec.File)
			if err != nil {
				return in, &InputError{Msg: "Error reading PDF: " + err.Error()}
			}
			in.Text = text
		case strings.HasPrefix(mime, "image/"):
			in.Images = append(in.Images, llm.Image{Data: spec.File, MIMEType: mime})
		default:
			return in, &InputError{Msg: "Unsupported file type: " + mime}
		}
	case strings.TrimSpace(spec.ImageURL) != "":
		img, err := f.Image(ctx, strings.TrimSpace(spec.ImageURL))
		if err != nil {
			return in, &InputError{Msg: "Error fetching image: " + err.Error()}
		}
		in.Images = append(in.Images, img)
	}

	text := strings.TrimSpace(spec.Text)
	if text != "" {
		if spec.TextType == TextTypeURL {
			page, err := f.Page(ctx, text)
			if err != nil {
				var se *fetch.StatusError
				if errors.As(err, &se) {
					return in, &InputError{Msg: fmt.Sprintf("Error fetching website content: HTTP %d", se.Code)}
				}
				return in, &InputError{Msg: "Error fetching website content: " + err.Error()}
			}
			in.Website = text
			text = page
		}
		in.Text = joinText(in.Text, text)
	}

	if !in.HasContent() {
		return in, &InputError{Msg: msgNoInput}
	}
	return in, nil
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
