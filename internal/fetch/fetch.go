// Package fetch retrieves product inputs from the network: images by URL and
// company websites reduced to their visible text. It also extracts text from
// uploaded PDF documents.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/marketlens/internal/llm"
)

const (
	maxImageSize = 10 << 20 // 10MB
	maxPageSize  = 5 << 20  // 5MB

	userAgent = "Mozilla/5.0 (compatible; marketlens/1.0)"
)

// ErrNotImage is returned when a fetched or uploaded payload is not an image.
var ErrNotImage = errors.New("content is not an image")

// ErrTooLarge is returned when a response body exceeds the fetch limit.
var ErrTooLarge = errors.New("response too large")

// StatusError reports a non-200 response from the fetched URL.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Fetcher downloads images and pages over HTTP.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New returns a Fetcher. A nil client uses http.DefaultClient. The timeout
// bounds each fetch; zero means only ctx bounds it.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Image downloads url and returns it as a model image part. The MIME type is
// sniffed from the bytes; the server's Content-Type is ignored.
func (f *Fetcher) Image(ctx context.Context, url string) (llm.Image, error) {
	body, err := f.get(ctx, url, "image/*", maxImageSize)
	if err != nil {
		return llm.Image{}, err
	}
	return ImageFromBytes(body)
}

// Page downloads url and returns its visible text. Non-HTML bodies are
// returned as-is.
func (f *Fetcher) Page(ctx context.Context, url string) (string, error) {
	body, err := f.get(ctx, url, "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8", maxPageSize)
	if err != nil {
		return "", err
	}
	if !isHTML(body) {
		return strings.TrimSpace(string(body)), nil
	}
	text, err := HTMLText(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string, limit int64) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: exceeds %dMB", ErrTooLarge, limit>>20)
	}
	return body, nil
}

// ImageFromBytes sniffs data and wraps it as a model image part.
func ImageFromBytes(data []byte) (llm.Image, error) {
	mime := DetectMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		return llm.Image{}, fmt.Errorf("%w (detected %s)", ErrNotImage, mime)
	}
	return llm.Image{Data: data, MIMEType: mime}, nil
}

// DetectMIME returns the sniffed media type of data without parameters.
func DetectMIME(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

func isHTML(body []byte) bool {
	m := mimetype.Detect(body)
	for ; m != nil; m = m.Parent() {
		if m.Is("text/html") || m.Is("application/xhtml+xml") {
			return true
		}
	}
	// Fragments without a doctype or <html> tag sniff as text/plain.
	return bytes.Contains(bytes.ToLower(body[:min(len(body), 1024)]), []byte("<body"))
}

// PDFText extracts the plain text of a PDF document.
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
