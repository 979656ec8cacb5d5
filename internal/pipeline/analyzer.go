// Package pipeline runs the three chained model calls of a market analysis
// and caches the resulting segments.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/marketlens/internal/llm"
	"github.com/kalambet/marketlens/internal/segment"
	"github.com/kalambet/marketlens/internal/storage"
)

// TimestampFormat is the layout of Record.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000000"

// ErrNoInput is returned when a run has neither an image nor text.
var ErrNoInput = errors.New("please provide either an image or text description")

// Input is what a user submitted for analysis.
type Input struct {
	Images []llm.Image

	// Text is a product description, or the visible text of Website.
	Text string

	// Website is the URL Text was fetched from, if any.
	Website string
}

// HasContent reports whether in carries anything to analyze.
func (in Input) HasContent() bool {
	return len(in.Images) > 0 || strings.TrimSpace(in.Text) != "" || in.Website != ""
}

// Result is the outcome of a successful run.
type Result struct {
	RunID         string            `json:"run_id"`
	Segments      string            `json:"segments"`
	Personas      map[string]string `json:"personas"`
	SegmentKeys   map[string]string `json:"segment_keys"`
	GroundingData string            `json:"grounding_data"`
}

// Options tunes an Analyzer.
type Options struct {
	// Grounding requests web search grounding on every model call.
	Grounding bool

	// PersonaConcurrency bounds parallel persona calls (default 1).
	PersonaConcurrency int
}

// Analyzer runs DETAILED_ANALYSIS -> REVENUE_SEGMENTS -> PERSONAS ->
// CACHE_WRITE. The first failing stage aborts the run and nothing is cached.
type Analyzer struct {
	gen   llm.Generator
	store storage.Store
	opts  Options
	now   func() time.Time
}

// NewAnalyzer creates an Analyzer that generates with gen and caches in store.
func NewAnalyzer(gen llm.Generator, store storage.Store, opts Options) *Analyzer {
	if opts.PersonaConcurrency <= 0 {
		opts.PersonaConcurrency = 1
	}
	return &Analyzer{gen: gen, store: store, opts: opts, now: time.Now}
}

// Run executes one analysis. Stage failures are returned as *StepError.
func (a *Analyzer) Run(ctx context.Context, in Input) (*Result, error) {
	if !in.HasContent() {
		return nil, ErrNoInput
	}

	runID := uuid.NewString()
	log := slog.With("run_id", runID)

	start := time.Now()
	analysis, err := a.detailedAnalysis(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Debug("stage complete", "stage", StageDetailedAnalysis, "duration", time.Since(start))

	start = time.Now()
	segText, grounding, err := a.revenueSegments(ctx, analysis)
	if err != nil {
		return nil, err
	}
	log.Debug("stage complete", "stage", StageRevenueSegments, "duration", time.Since(start))

	segs := segment.Parse(segText)

	start = time.Now()
	personas, err := a.personas(ctx, segs)
	if err != nil {
		return nil, err
	}
	log.Debug("stage complete", "stage", StagePersonas, "duration", time.Since(start), "segments", len(segs))

	queryHash := segment.QueryHash(len(in.Images) > 0, in.Text)
	records := make([]storage.Record, 0, len(segs))
	keys := make(map[string]string, len(segs))
	for _, s := range segs {
		key := s.Key()
		keys[s.Name] = key
		records = append(records, storage.Record{
			Timestamp:        a.now().Format(TimestampFormat),
			QueryHash:        queryHash,
			SegmentName:      s.Name,
			SegmentKey:       key,
			DetailedAnalysis: s.Body,
			RevenueAnalysis:  grounding,
			Persona:          personas[s.Name],
			ValueProposition: s.ValueProposition,
		})
	}

	if err := a.store.WriteAll(records); err != nil {
		return nil, &StepError{Stage: StageCacheWrite, Message: "Analysis failed: " + err.Error(), Err: err}
	}
	log.Info("analysis cached", "segments", len(records), "query_hash", queryHash)

	return &Result{
		RunID:         runID,
		Segments:      segText,
		Personas:      personas,
		SegmentKeys:   keys,
		GroundingData: grounding,
	}, nil
}

func (a *Analyzer) detailedAnalysis(ctx context.Context, in Input) (string, error) {
	resp, err := a.gen.Generate(ctx, llm.Request{
		Prompt:    detailedAnalysisPrompt,
		Images:    in.Images,
		Text:      inputText(in),
		Grounding: a.opts.Grounding,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return "", stepError(StageDetailedAnalysis, "Failed to generate analysis", "Error in detailed analysis: ", err)
	}
	return resp.Text, nil
}

func (a *Analyzer) revenueSegments(ctx context.Context, analysis string) (string, string, error) {
	resp, err := a.gen.Generate(ctx, llm.Request{
		Prompt:    revenueSegmentsPrompt + analysis,
		Grounding: a.opts.Grounding,
	})
	// Empty segment text is not a failure: it parses to zero segments and
	// clears the cache.
	if err != nil {
		return "", "", stepError(StageRevenueSegments, "Failed to generate revenue segments", "Error in revenue analysis: ", err)
	}
	return resp.Text, resp.GroundingHTML, nil
}

// personas generates one persona per segment. A failed call is recorded as
// that segment's persona text; only cancellation fails the stage.
func (a *Analyzer) personas(ctx context.Context, segs []segment.Segment) (map[string]string, error) {
	texts := make([]string, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.PersonaConcurrency)
	for i, s := range segs {
		g.Go(func() error {
			resp, err := a.gen.Generate(gctx, llm.Request{
				Prompt:    personaPrompt(s.Name, s.ValueProposition),
				Grounding: a.opts.Grounding,
			})
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, llm.ErrNoCandidates), err == nil && strings.TrimSpace(resp.Text) == "":
				texts[i] = "Failed to generate persona"
			case err != nil:
				slog.Warn("persona generation failed", "segment", s.Name, "error", err)
				texts[i] = "Error generating persona: " + err.Error()
			default:
				texts[i] = resp.Text
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &StepError{Stage: StagePersonas, Message: "Error generating personas: " + err.Error(), Err: err}
	}

	out := make(map[string]string, len(segs))
	for i, s := range segs {
		out[s.Name] = texts[i]
	}
	return out, nil
}
