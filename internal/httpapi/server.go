package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/internal/pipeline"
	"github.com/clipsum/summaryd/internal/store"
)

type processor interface {
	Start(sourceURL string) error
	Cancel()
	Status() pipeline.Status
	ClearCache(ctx context.Context) error
	ClearCacheFor(ctx context.Context, sourceURL string) error
}

type historyStore interface {
	ListTranscriptions(ctx context.Context, limit int) ([]model.Transcription, error)
	SearchTranscriptions(ctx context.Context, q string) ([]model.Transcription, error)
	DeleteTranscription(ctx context.Context, id string) (bool, error)
	CacheStats(ctx context.Context) (store.CacheStats, error)
}

type engineStatus struct {
	name   string
	status func() model.ModelStatus
}

type Server struct {
	proc    processor
	history historyStore
	engines []engineStatus

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithEngineStatus registers a named model-status source for /api/models.
func WithEngineStatus(name string, status func() model.ModelStatus) Option {
	return func(s *Server) {
		s.engines = append(s.engines, engineStatus{name: name, status: status})
	}
}

func NewServer(proc processor, history historyStore, opts ...Option) *Server {
	s := &Server{
		proc:    proc,
		history: history,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/process", s.handleProcess)
	s.mux.HandleFunc("/api/cancel", s.handleCancel)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/history/", s.handleHistoryByID)
	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.HandleFunc("/api/cache", s.handleCache)
	s.mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/api/models", s.handleModels)
}
