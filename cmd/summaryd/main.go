package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/downloader"
	"github.com/clipsum/summaryd/internal/extractor"
	"github.com/clipsum/summaryd/internal/httpapi"
	"github.com/clipsum/summaryd/internal/maintenance"
	"github.com/clipsum/summaryd/internal/pipeline"
	"github.com/clipsum/summaryd/internal/store"
	"github.com/clipsum/summaryd/internal/summarize"
	"github.com/clipsum/summaryd/internal/transcribe"
	"github.com/clipsum/summaryd/pkg/log"
)

type cacheSweeper interface {
	Schedule(ctx context.Context) error
	Sweep(ctx context.Context)
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Server.LogLevel))

	st, err := store.Open(cfg.Data.DatabasePath())
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcriber := transcribe.New(cfg.Transcribe)
	transcriber.Start(ctx, cfg.Pipeline.ModelPollInterval())
	summarizer := summarize.New(cfg.Summarize)
	summarizer.Start(ctx, cfg.Pipeline.ModelPollInterval())

	// The fetcher's progress callback feeds the pipeline status label, so the
	// service variable is bound after the fetcher is built.
	var svc *pipeline.Service
	fetcher := downloader.New(downloader.WithProgressCallback(func(p downloader.Progress) {
		if svc != nil && p.TotalBytes > 0 {
			svc.ReportDownloadProgress(p.Fraction)
		}
	}))

	svc = pipeline.New(
		cfg.Pipeline,
		cfg.Data.DownloadsDir,
		st,
		st,
		extractor.New(cfg.Extractor),
		fetcher,
		transcriber,
		summarizer,
	)

	cronEngine := cron.New()
	sweeper := maintenance.NewSweeper(cfg.Cache, st, cronEngine)

	srv := httpapi.NewServer(svc, st,
		httpapi.WithEngineStatus("transcription", transcriber.Status),
		httpapi.WithEngineStatus("summary", summarizer.Status),
	)

	if err := runWithComponents(ctx, cfg, sweeper, cronEngine, srv); err != nil {
		log.Fatal("summaryd exited: %v", err)
	}
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sweeper cacheSweeper,
	cronEngine cronRunner,
	srv httpServer,
) error {
	if err := sweeper.Schedule(ctx); err != nil {
		return err
	}
	// One pass at boot so an oversized cache does not wait for the first
	// cron fire.
	sweeper.Sweep(ctx)
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Server.ListenAddr)
	}()
	log.Info("summaryd listening on %s", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
