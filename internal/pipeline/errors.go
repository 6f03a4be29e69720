package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies which step of a pipeline run failed. Every stage aborts
// the run immediately; there are no retries and exactly one error is
// surfaced per failed run.
type Stage int

const (
	StageInvalidInput Stage = iota
	StageExtraction
	StageDownload
	StageTranscription
	StageSummarization
	StagePersistence
	StageCancelled
	StageBusy
)

func (s Stage) String() string {
	switch s {
	case StageInvalidInput:
		return "InvalidInput"
	case StageExtraction:
		return "ExtractionFailed"
	case StageDownload:
		return "DownloadFailed"
	case StageTranscription:
		return "TranscriptionFailed"
	case StageSummarization:
		return "SummarizationFailed"
	case StagePersistence:
		return "PersistenceFailed"
	case StageCancelled:
		return "Cancelled"
	case StageBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Error is the single error type surfaced by a pipeline run, optionally
// wrapping the underlying cause for diagnostic display.
type Error struct {
	Stage   Stage
	Message string
	Cause   error
}

func NewError(stage Stage, message string) *Error {
	return &Error{Stage: stage, Message: message}
}

func NewErrorWithCause(stage Stage, message string, cause error) *Error {
	return &Error{Stage: stage, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Stage, e.Message)}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsStage reports whether err is a pipeline Error for the given stage.
func IsStage(err error, stage Stage) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Stage == stage
	}
	return false
}

// ErrBusy is returned when Process is called while a run is in flight.
var ErrBusy = NewError(StageBusy, "a pipeline run is already in progress")
