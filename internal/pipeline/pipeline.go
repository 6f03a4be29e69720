package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/downloader"
	"github.com/clipsum/summaryd/internal/extractor"
	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/internal/summarize"
	"github.com/clipsum/summaryd/pkg/log"
)

const idleLabel = "Waiting..."

// Status is the observable snapshot of the orchestrator: whether a run is in
// flight, a human-readable label for the current step, a 0.0-1.0 progress
// value and the last run's error, readable until the next run clears it.
type Status struct {
	Processing bool    `json:"processing"`
	Label      string  `json:"label"`
	Progress   float64 `json:"progress"`
	Error      string  `json:"error,omitempty"`
}

// MetadataExtractor resolves a canonical source URL into video metadata.
type MetadataExtractor interface {
	Extract(ctx context.Context, canonicalURL string) (*model.VideoMetadata, error)
}

// AudioFetcher streams a remote audio resource to local storage. Cancel
// aborts the in-flight transfer and makes the pending Download fail.
type AudioFetcher interface {
	Download(ctx context.Context, sourceURL, destPath string) (string, error)
	Cancel()
}

// TranscriptionEngine converts a local audio file to text.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// SummaryEngine converts text to a short summary. Its readiness is an
// independent state machine this orchestrator polls, never owns.
type SummaryEngine interface {
	Ready() bool
	Status() model.ModelStatus
	Summarize(ctx context.Context, text string) (string, error)
}

// Cache is the content cache consumed by the orchestrator: metadata and
// transcript entries are independent per URL.
type Cache interface {
	GetMetadata(ctx context.Context, url string) (*model.VideoMetadata, bool, error)
	PutMetadata(ctx context.Context, url string, meta *model.VideoMetadata) error
	GetTranscript(ctx context.Context, url string) (string, bool, error)
	PutTranscript(ctx context.Context, url string, text string) error
	ClearCache(ctx context.Context) error
	ClearCacheFor(ctx context.Context, url string) error
}

// RecordStore persists completed run results.
type RecordStore interface {
	InsertTranscription(ctx context.Context, rec *model.Transcription) error
}

// Service drives one end-to-end transcription-and-summary request at a time:
// extraction, download, transcription, summarization and persistence, with
// cache lookups before the extraction and transcription steps.
type Service struct {
	cfg          config.PipelineConfig
	downloadsDir string

	cache       Cache
	records     RecordStore
	extractor   MetadataExtractor
	fetcher     AudioFetcher
	transcriber TranscriptionEngine
	summarizer  SummaryEngine

	// runMu is the single-run lock: a second concurrent Process call gets
	// ErrBusy instead of queueing.
	runMu sync.Mutex

	mu        sync.Mutex
	status    Status
	runCancel context.CancelFunc

	now   func() time.Time
	newID func() string
}

func New(
	cfg config.PipelineConfig,
	downloadsDir string,
	cache Cache,
	records RecordStore,
	metadataExtractor MetadataExtractor,
	fetcher AudioFetcher,
	transcriber TranscriptionEngine,
	summarizer SummaryEngine,
) *Service {
	return &Service{
		cfg:          cfg,
		downloadsDir: downloadsDir,
		cache:        cache,
		records:      records,
		extractor:    metadataExtractor,
		fetcher:      fetcher,
		transcriber:  transcriber,
		summarizer:   summarizer,
		status:       Status{Label: idleLabel},
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Process runs the full pipeline for one source URL. It returns the persisted
// record on success, ErrBusy when a run is already in flight, and a staged
// pipeline Error on any failure. Observable state is reset in the epilogue
// whatever the outcome; the error stays readable until the next call.
func (s *Service) Process(ctx context.Context, sourceURL string) (*model.Transcription, error) {
	run, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return run(sourceURL)
}

// Start begins a run in the background. It returns ErrBusy synchronously when
// a run is already in flight; the run's outcome is observable through Status.
func (s *Service) Start(sourceURL string) error {
	run, err := s.begin(context.Background())
	if err != nil {
		return err
	}
	go func() {
		_, _ = run(sourceURL)
	}()
	return nil
}

// begin acquires the single-run lock and returns the run closure, which owns
// the lock and the epilogue that resets observable state.
func (s *Service) begin(ctx context.Context) (func(string) (*model.Transcription, error), error) {
	if !s.runMu.TryLock() {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCancel = cancel
	s.status = Status{Processing: true, Label: idleLabel}
	s.mu.Unlock()

	return func(sourceURL string) (*model.Transcription, error) {
		defer func() {
			cancel()
			s.mu.Lock()
			s.runCancel = nil
			s.status.Processing = false
			s.status.Label = idleLabel
			s.status.Progress = 0.0
			s.mu.Unlock()
			s.runMu.Unlock()
		}()
		return s.run(runCtx, sourceURL)
	}, nil
}

func (s *Service) run(ctx context.Context, sourceURL string) (*model.Transcription, error) {
	canonical, err := extractor.CanonicalURL(sourceURL)
	if err != nil {
		return nil, s.fail(StageInvalidInput, "invalid YouTube URL", err)
	}

	s.setStage(0.1, "Extracting video information...")
	meta, err := s.resolveMetadata(ctx, canonical)
	if err != nil {
		return nil, err
	}

	s.setStage(0.2, "Checking cache...")
	transcript, err := s.resolveTranscript(ctx, canonical, meta)
	if err != nil {
		return nil, err
	}

	if err := s.awaitSummarizer(ctx); err != nil {
		return nil, err
	}

	s.setStage(0.9, "Generating summary...")
	summary, err := s.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return nil, s.fail(StageSummarization, "summary generation failed", err)
	}

	s.setStage(0.95, "Saving...")
	rec := &model.Transcription{
		ID:             s.newID(),
		SourceURL:      canonical,
		VideoTitle:     meta.Title,
		TranscriptText: transcript,
		Summary:        summary,
		Language:       summarize.DetectLanguage(transcript),
		Duration:       meta.Duration,
		ThumbnailURL:   meta.ThumbnailURL,
		Status:         model.StatusCompleted,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.records.InsertTranscription(ctx, rec); err != nil {
		return nil, s.fail(StagePersistence, "failed to save result", err)
	}

	s.setStage(1.0, "Completed!")
	s.hold(ctx)

	log.Info("Pipeline completed for %s (%q)", canonical, meta.Title)
	return rec, nil
}

// resolveMetadata serves the metadata step from cache when possible and
// falls back to the extractor, writing the result back to the cache.
func (s *Service) resolveMetadata(ctx context.Context, canonical string) (*model.VideoMetadata, error) {
	if cached, ok, err := s.cache.GetMetadata(ctx, canonical); err == nil && ok {
		s.setStage(0.1, "Video information found in cache...")
		return cached, nil
	} else if err != nil {
		log.Warn("Metadata cache lookup failed for %s: %v", canonical, err)
	}

	meta, err := s.extractor.Extract(ctx, canonical)
	if err != nil {
		return nil, s.fail(StageExtraction, "failed to extract video information", err)
	}

	if err := s.cache.PutMetadata(ctx, canonical, meta); err != nil {
		// Cache write failure degrades the next run, not this one.
		log.Warn("Failed to cache metadata for %s: %v", canonical, err)
	}
	return meta, nil
}

// resolveTranscript serves the transcript from cache, or downloads and
// transcribes the audio. The downloaded file is removed afterwards on a
// best-effort basis.
func (s *Service) resolveTranscript(ctx context.Context, canonical string, meta *model.VideoMetadata) (string, error) {
	if cached, ok, err := s.cache.GetTranscript(ctx, canonical); err == nil && ok {
		s.setStage(0.6, "Transcription found in cache...")
		return cached, nil
	} else if err != nil {
		log.Warn("Transcript cache lookup failed for %s: %v", canonical, err)
	}

	s.setStage(0.3, "Preparing download...")
	if err := downloader.EnsureDir(s.downloadsDir); err != nil {
		return "", s.fail(StageDownload, "failed to prepare downloads directory", err)
	}
	destPath := filepath.Join(s.downloadsDir, downloader.AudioFileName(meta.Title, s.now()))

	s.setStage(0.4, "Downloading audio...")
	localPath, err := s.fetcher.Download(ctx, meta.AudioStreamURL, destPath)
	if err != nil {
		if errors.Is(err, downloader.ErrCancelled) {
			return "", s.fail(StageCancelled, "processing cancelled", err)
		}
		return "", s.fail(StageDownload, "audio download failed", err)
	}

	s.setStage(0.6, "Transcription in progress...")
	transcript, err := s.transcriber.Transcribe(ctx, localPath)
	if err != nil {
		return "", s.fail(StageTranscription, "transcription failed", err)
	}

	if err := s.cache.PutTranscript(ctx, canonical, transcript); err != nil {
		log.Warn("Failed to cache transcript for %s: %v", canonical, err)
	}

	// Best-effort cleanup; a leftover file is not worth failing the run.
	if err := os.Remove(localPath); err != nil {
		log.Warn("Failed to delete audio file %s: %v", localPath, err)
	}

	return transcript, nil
}

// awaitSummarizer blocks until the summary model reports loaded, polling at
// the configured interval. The wait has no timeout; only run cancellation
// breaks it.
func (s *Service) awaitSummarizer(ctx context.Context) error {
	if s.summarizer.Ready() {
		return nil
	}

	s.setStage(0.85, readinessLabel(s.summarizer.Status()))

	ticker := time.NewTicker(s.cfg.ModelPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.fail(StageCancelled, "processing cancelled", ctx.Err())
		case <-ticker.C:
			if s.summarizer.Ready() {
				return nil
			}
			s.setStage(0.85, readinessLabel(s.summarizer.Status()))
		}
	}
}

func readinessLabel(status model.ModelStatus) string {
	if status.State == model.ModelDownloading && status.DownloadProgress > 0 {
		return fmt.Sprintf("Downloading summary model... (%d%%)", int(status.DownloadProgress*100))
	}
	return "Preparing summary model..."
}

// hold keeps the completed state visible briefly so observers can render it.
func (s *Service) hold(ctx context.Context) {
	if s.cfg.CompletionHold() <= 0 {
		return
	}
	timer := time.NewTimer(s.cfg.CompletionHold())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Cancel signals the fetcher to abort an in-flight transfer and cancels the
// run context, then resets the observable state immediately without waiting
// for the run goroutine to unwind. Steps past the download phase that ignore
// context cancellation run to completion with their results discarded.
func (s *Service) Cancel() {
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()

	s.fetcher.Cancel()
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.status.Processing = false
	s.status.Label = "Cancelled"
	s.status.Progress = 0.0
	s.mu.Unlock()
	log.Info("Pipeline cancellation requested")
}

// Status returns the current observable snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ready reports whether the summary model is loaded.
func (s *Service) Ready() bool {
	return s.summarizer.Ready()
}

// ModelStatus exposes the summary engine's readiness state machine.
func (s *Service) ModelStatus() model.ModelStatus {
	return s.summarizer.Status()
}

// ClearCache removes every cache entry.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.ClearCache(ctx)
}

// ClearCacheFor removes the cache entries for one URL, accepting any
// supported URL spelling.
func (s *Service) ClearCacheFor(ctx context.Context, sourceURL string) error {
	canonical, err := extractor.CanonicalURL(sourceURL)
	if err != nil {
		return NewErrorWithCause(StageInvalidInput, "invalid YouTube URL", err)
	}
	return s.cache.ClearCacheFor(ctx, canonical)
}

// ReportDownloadProgress reflects a fractional byte progress in the status
// label while the download step is active. Wired to the fetcher's progress
// callback at startup.
func (s *Service) ReportDownloadProgress(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Processing || s.status.Progress != 0.4 {
		return
	}
	s.status.Label = fmt.Sprintf("Downloading audio... (%d%%)", int(fraction*100))
}

func (s *Service) setStage(progress float64, label string) {
	s.mu.Lock()
	s.status.Progress = progress
	s.status.Label = label
	s.mu.Unlock()
	log.Debug("Pipeline stage %.2f: %s", progress, label)
}

// fail records the run's single surfaced error and returns it.
func (s *Service) fail(stage Stage, message string, cause error) error {
	err := NewErrorWithCause(stage, message, cause)
	s.mu.Lock()
	s.status.Error = err.Error()
	s.status.Label = fmt.Sprintf("Error: %s", message)
	s.mu.Unlock()
	log.Error("Pipeline failed: %v", err)
	return err
}
