package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/sashabaranov/go-openai"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/pkg/log"
)

var (
	// ErrModelNotLoaded is returned by Summarize before the model is ready.
	ErrModelNotLoaded = errors.New("summary model not loaded")
	// ErrEmptySummary is returned when the model output cleans down to
	// nothing usable.
	ErrEmptySummary = errors.New("model did not produce a usable summary")
)

const (
	maxPromptRunes   = 3000
	maxSummaryRunes  = 500
	minSummaryRunes  = 20
	summaryEndMarker = "[END]"
)

// Engine generates short natural-language summaries through an
// OpenAI-compatible chat endpoint served by a local model server. Its
// readiness is a state machine the pipeline polls: the model may still be
// downloading or loading when a run reaches the summarize step.
type Engine struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64

	mu     sync.Mutex
	status model.ModelStatus
}

func New(cfg config.SummarizeConfig) *Engine {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.APIURL
	clientCfg.HTTPClient = &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	}

	return &Engine{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		status:      model.ModelStatus{State: model.ModelNotLoaded},
	}
}

// Start launches the background loader: it probes the local server until the
// configured model is served, moving through loading/downloading to loaded.
// The wait is unbounded; a server that never comes up leaves the engine
// unready and any pipeline run blocked at the summarize step until cancelled.
func (e *Engine) Start(ctx context.Context, probeInterval time.Duration) {
	e.setState(model.ModelLoading, "", 0)
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			e.probe(ctx)
			if e.Ready() {
				return
			}
			select {
			case <-ctx.Done():
				e.setState(model.ModelError, ctx.Err().Error(), 0)
				return
			case <-ticker.C:
			}
		}
	}()
}

func (e *Engine) probe(ctx context.Context) {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		log.Debug("Summary model server not reachable yet: %v", err)
		e.setState(model.ModelLoading, err.Error(), e.DownloadProgress())
		return
	}
	for _, m := range list.Models {
		if m.ID == e.model {
			e.setState(model.ModelLoaded, "", 1.0)
			log.Info("Summary model %s ready", e.model)
			return
		}
	}
	// Server is up but the model is not served yet: it is still being
	// fetched on the server side.
	e.setState(model.ModelDownloading, "", e.DownloadProgress())
}

// SetDownloadProgress records a fractional model-download progress reported
// by an out-of-band channel (or by tests).
func (e *Engine) SetDownloadProgress(fraction float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.DownloadProgress = fraction
}

func (e *Engine) DownloadProgress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.DownloadProgress
}

func (e *Engine) Ready() bool {
	return e.Status().Ready()
}

func (e *Engine) Status() model.ModelStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setState(state model.ModelState, message string, progress float64) {
	e.mu.Lock()
	e.status = model.ModelStatus{State: state, Message: message, DownloadProgress: progress}
	e.mu.Unlock()
}

// Summarize produces a short summary of text in the text's own language.
func (e *Engine) Summarize(ctx context.Context, text string) (string, error) {
	if !e.Ready() {
		return "", ErrModelNotLoaded
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: float32(e.temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(text),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptySummary
	}

	summary := CleanSummary(resp.Choices[len(resp.Choices)-1].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

// DetectLanguage returns the ISO 639-1 code of the text's language, or ""
// when detection has nothing to go on.
func DetectLanguage(text string) string {
	return whatlanggo.DetectLang(text).Iso6391()
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`You are an assistant that writes summaries. Create a concise, informative summary of the following text.

Instructions:
- Write 3-4 sentences at most
- Capture the key points and essential information
- Use clear, accessible language
- Write the summary in the same language as the text
- End with %s

Text to summarize:
%s

Summary:`, summaryEndMarker, truncateRunes(text, maxPromptRunes))
}

// CleanSummary strips generation markers, trims whitespace, rejects output
// that is too short to be a summary and truncates overly long output at the
// last sentence boundary.
func CleanSummary(response string) string {
	cleaned := response
	for _, marker := range []string{summaryEndMarker, "</summary>", "<eos>"} {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) < minSummaryRunes {
		return ""
	}

	if utf8.RuneCountInString(cleaned) > maxSummaryRunes {
		truncated := truncateRunes(cleaned, maxSummaryRunes)
		if i := strings.LastIndex(truncated, "."); i >= 0 {
			cleaned = truncated[:i+1]
		} else {
			cleaned = truncated + "..."
		}
	}

	return cleaned
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
