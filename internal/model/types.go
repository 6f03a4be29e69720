package model

import "time"

// ProcessingStatus tracks one pipeline run from submission to a terminal
// state. Completed and failed are terminal; failed is reachable from any
// non-terminal status.
type ProcessingStatus string

const (
	StatusPending      ProcessingStatus = "pending"
	StatusDownloading  ProcessingStatus = "downloading"
	StatusTranscribing ProcessingStatus = "transcribing"
	StatusSummarizing  ProcessingStatus = "summarizing"
	StatusCompleted    ProcessingStatus = "completed"
	StatusFailed       ProcessingStatus = "failed"
)

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ModelState is the readiness state machine of an on-device model. It is
// independent from ProcessingStatus; the pipeline polls it, never owns it.
type ModelState string

const (
	ModelNotLoaded   ModelState = "not_loaded"
	ModelDownloading ModelState = "downloading"
	ModelLoading     ModelState = "loading"
	ModelLoaded      ModelState = "loaded"
	ModelError       ModelState = "error"
)

// ModelStatus carries the state plus the error message for ModelError and a
// fractional download progress while the model is being fetched.
type ModelStatus struct {
	State            ModelState `json:"state"`
	Message          string     `json:"message,omitempty"`
	DownloadProgress float64    `json:"download_progress,omitempty"`
}

func (s ModelStatus) Ready() bool {
	return s.State == ModelLoaded
}

// VideoMetadata is the result of resolving a source URL. Immutable once
// produced; cached by the hash of the canonical source URL.
type VideoMetadata struct {
	Title          string  `json:"title"`
	Duration       float64 `json:"duration,omitempty"`
	ThumbnailURL   string  `json:"thumbnail_url,omitempty"`
	AudioStreamURL string  `json:"audio_stream_url"`
	Uploader       string  `json:"uploader,omitempty"`
}

// Transcription is the durable record of a completed pipeline run. It is
// created at the save step, never mutated after its run completes, and
// deleted only by explicit user action.
type Transcription struct {
	ID             string           `json:"id"`
	SourceURL      string           `json:"source_url"`
	VideoTitle     string           `json:"video_title"`
	TranscriptText string           `json:"transcript_text"`
	Summary        string           `json:"summary"`
	Language       string           `json:"language,omitempty"`
	Duration       float64          `json:"duration,omitempty"`
	ThumbnailURL   string           `json:"thumbnail_url,omitempty"`
	Status         ProcessingStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}
