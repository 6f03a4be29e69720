package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/pkg/log"
)

// ErrEmptyTranscript is returned when the engine produces no text.
var ErrEmptyTranscript = errors.New("transcription produced empty output")

// Engine converts a local audio file to text through an OpenAI-compatible
// audio endpoint served by a local whisper-style server.
type Engine struct {
	client *openai.Client
	model  string

	mu     sync.Mutex
	status model.ModelStatus
}

func New(cfg config.EngineConfig) *Engine {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.APIURL
	clientCfg.HTTPClient = &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	}

	return &Engine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		status: model.ModelStatus{State: model.ModelNotLoaded},
	}
}

// Start probes the local server until it answers, then marks the engine
// loaded. Runs until the context is cancelled or the probe succeeds.
func (e *Engine) Start(ctx context.Context, probeInterval time.Duration) {
	e.setStatus(model.ModelStatus{State: model.ModelLoading})
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			if _, err := e.client.ListModels(ctx); err == nil {
				e.setStatus(model.ModelStatus{State: model.ModelLoaded})
				log.Info("Transcription engine ready (model %s)", e.model)
				return
			} else if ctx.Err() == nil {
				log.Debug("Transcription engine not ready yet: %v", err)
			}
			select {
			case <-ctx.Done():
				e.setStatus(model.ModelStatus{State: model.ModelError, Message: ctx.Err().Error()})
				return
			case <-ticker.C:
			}
		}
	}()
}

func (e *Engine) Status() model.ModelStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s model.ModelStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Transcribe converts the audio file at audioPath to text.
func (e *Engine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
