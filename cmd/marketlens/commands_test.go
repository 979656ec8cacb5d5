package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tealeg/xlsx/v2"

	"github.com/kalambet/marketlens/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Form   map[string]string
	File   []byte
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
			Form:   map[string]string{},
		}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				rec.Form[k] = v[0]
			}
			if f, _, err := r.FormFile("file"); err == nil {
				rec.File, _ = io.ReadAll(f)
				f.Close()
			}
		}
		ts.mu.Lock()
		ts.requests = append(ts.requests, rec)
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		resp, ok := responses[key]
		if !ok {
			resp = cannedResponse{status: http.StatusNotFound, body: `{"error":"Persona not found"}`}
		}
		if resp.status == 0 {
			resp.status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return ts.requests[len(ts.requests)-1]
}

// useServer points the CLI at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	resetFlags(rootCmd)
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

const analyzeResponse = `{
	"run_id": "run-1",
	"segments": "[Cyclists]Commuters[Durable]",
	"personas": {"Cyclists": "Meet Dana, 34."},
	"segment_keys": {"Cyclists": "1a2b3c4d"},
	"grounding_data": ""
}`

func TestAnalyzeCommand_Text(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /analyze": {body: analyzeResponse},
	})
	useServer(t, ts)

	out, err := execute(t, "analyze", "--text", "insulated bottle", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.lastRequest(t)
	if r.Method != "POST" || r.Path != "/analyze" {
		t.Errorf("request = %s %s, want POST /analyze", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if r.Form["text_input"] != "insulated bottle" {
		t.Errorf("text_input = %q", r.Form["text_input"])
	}
	if r.Form["text_input_type"] != "text" {
		t.Errorf("text_input_type = %q, want text", r.Form["text_input_type"])
	}
	if _, ok := r.Form["image_url"]; ok {
		t.Error("empty image_url should not be sent")
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	keys, _ := got["segment_keys"].(map[string]any)
	if keys["Cyclists"] != "1a2b3c4d" {
		t.Errorf("segment_keys = %v", got["segment_keys"])
	}
}

func TestAnalyzeCommand_Website(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /analyze": {body: analyzeResponse},
	})
	useServer(t, ts)

	out, err := execute(t, "analyze", "--url", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.lastRequest(t)
	if r.Form["text_input"] != "https://example.com" || r.Form["text_input_type"] != "url" {
		t.Errorf("form = %v, want website text input", r.Form)
	}
	if !strings.Contains(out, "Cyclists") || !strings.Contains(out, "1a2b3c4d") || !strings.Contains(out, "Meet Dana") {
		t.Errorf("output = %q, want segment name, key and persona", out)
	}
}

func TestAnalyzeCommand_ImageUpload(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /analyze": {body: analyzeResponse},
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "bottle.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "analyze", "--image", path, "--json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.lastRequest(t)
	if string(r.File) != "png-bytes" {
		t.Errorf("uploaded file = %q, want png-bytes", r.File)
	}
}

func TestAnalyzeCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "analyze")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestAnalyzeCommand_TextAndURL(t *testing.T) {
	_, err := execute(t, "analyze", "--text", "a", "--url", "https://example.com")
	if err == nil {
		t.Fatal("expected error when combining --text and --url")
	}
}

func TestAnalyzeCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /analyze": {status: http.StatusBadGateway, body: `{"error":"No analysis generated"}`},
	})
	useServer(t, ts)

	_, err := execute(t, "analyze", "--text", "bottle")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "No analysis generated") {
		t.Errorf("error = %q, want status and server message", err.Error())
	}
}

func TestPersonasList(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /personas": {body: `[{"segment_key":"1a2b3c4d","segment_name":"Cyclists","value_proposition":"Durable"}]`},
	})
	useServer(t, ts)

	out, err := execute(t, "personas", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "1a2b3c4d") || !strings.Contains(out, "Cyclists") {
		t.Errorf("output = %q, want key and name", out)
	}
}

func TestPersonasShow(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /persona/1a2b3c4d": {body: `{"segment_key":"1a2b3c4d","segment_name":"Cyclists","persona":"Meet Dana, 34."}`},
	})
	useServer(t, ts)

	out, err := execute(t, "personas", "show", "1a2b3c4d", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rec storage.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec.Persona != "Meet Dana, 34." {
		t.Errorf("persona = %q", rec.Persona)
	}
	if r := ts.lastRequest(t); r.Path != "/persona/1a2b3c4d" {
		t.Errorf("path = %q", r.Path)
	}
}

func TestPersonasShow_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	_, err := execute(t, "personas", "show", "deadbeef")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Persona not found") {
		t.Errorf("error = %q, want server message", err.Error())
	}
}

func TestClient_ServerDown(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()
	ts.server.Close()

	_, err := client.get(context.Background(), "/personas")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(strings.NewReader("boom")),
	}
	err := decodeJSON(resp, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "500: boom") {
		t.Errorf("error = %v, want 500: boom", err)
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.xlsx")
	records := []storage.Record{
		{Timestamp: "2024-01-01T00:00:00.000000", SegmentName: "Cyclists", SegmentKey: "1a2b3c4d", Persona: "Dana"},
		{Timestamp: "2024-01-01T00:00:00.000000", SegmentName: "Hikers", SegmentKey: "5e6f7a8b", Persona: strings.Repeat("x", maxCellLen+10)},
	}

	if err := writeXLSX(path, records); err != nil {
		t.Fatalf("writeXLSX: %v", err)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sheet, ok := f.Sheet["Personas"]
	if !ok {
		t.Fatal("missing Personas sheet")
	}
	if len(sheet.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(sheet.Rows))
	}
	for i, col := range storage.Columns {
		if got := sheet.Rows[0].Cells[i].String(); got != col {
			t.Errorf("header[%d] = %q, want %q", i, got, col)
		}
	}
	if got := sheet.Rows[1].Cells[3].String(); got != "1a2b3c4d" {
		t.Errorf("segment_key = %q", got)
	}
	if got := sheet.Rows[2].Cells[6].String(); len(got) != maxCellLen {
		t.Errorf("persona length = %d, want %d", len(got), maxCellLen)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\nline   text", 20, "multi line text"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
