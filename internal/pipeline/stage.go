package pipeline

import (
	"errors"

	"github.com/kalambet/marketlens/internal/llm"
)

// Stage names a step of the analysis pipeline.
type Stage string

const (
	StageDetailedAnalysis Stage = "DETAILED_ANALYSIS"
	StageRevenueSegments  Stage = "REVENUE_SEGMENTS"
	StagePersonas         Stage = "PERSONAS"
	StageCacheWrite       Stage = "CACHE_WRITE"
)

// StepError reports the stage a run failed at. Message is safe to show to
// the caller.
type StepError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *StepError) Error() string {
	return e.Message
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// stepError builds the error for a failed model stage. An empty answer or no
// candidates yields emptyMsg; any other failure is prefixed with errPrefix.
func stepError(stage Stage, emptyMsg, errPrefix string, err error) *StepError {
	if err == nil || errors.Is(err, llm.ErrNoCandidates) {
		return &StepError{Stage: stage, Message: emptyMsg, Err: err}
	}
	return &StepError{Stage: stage, Message: errPrefix + err.Error(), Err: err}
}
