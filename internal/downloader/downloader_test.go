package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadWritesFileAndReportsProgress(t *testing.T) {
	payload := strings.Repeat("audio-bytes-", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []Progress
	d := New(WithProgressCallback(func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}))

	dest := filepath.Join(t.TempDir(), "clip.mp3")
	got, err := d.Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, int64(len(payload)), last.BytesDownloaded)
	assert.InDelta(t, 1.0, last.Fraction, 1e-9)

	// No partial file left behind.
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadRejectsInvalidURL(t *testing.T) {
	d := New()
	_, err := d.Download(context.Background(), "not a url", filepath.Join(t.TempDir(), "x.mp3"))
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestDownloadNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New()
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.mp3"))
	require.ErrorIs(t, err, ErrNoData)
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New()
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCancelAbortsInFlightTransfer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("first chunk"))
		flusher.Flush()
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := New()
	dest := filepath.Join(t.TempDir(), "cancelled.mp3")

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Download(context.Background(), srv.URL, dest)
		errCh <- err
	}()

	<-started
	d.Cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not abort after cancel")
	}

	// Neither the final file nor the partial one survives a cancel.
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))

	_, downloading := d.Progress()
	assert.False(t, downloading)
}

func TestCancelWithParentContextCancelledStillReportsCancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("first chunk"))
		flusher.Flush()
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := New()
	dest := filepath.Join(t.TempDir(), "cancelled.mp3")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Download(ctx, srv.URL, dest)
		errCh <- err
	}()

	// Cancel the transfer and the surrounding run, the way an
	// orchestrator-level cancel tears both down.
	<-started
	d.Cancel()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not abort after cancel")
	}
}

func TestAudioFileName(t *testing.T) {
	now := time.Unix(1700000000, 0)

	got := AudioFileName("Go Concurrency Patterns!? (2012)", now)
	assert.Equal(t, "Go_Concurrency_Patterns_2012_1700000000.mp3", got)

	// Titles that clean down to nothing still produce a usable name.
	got = AudioFileName("!!!???", now)
	assert.Equal(t, "audio_1700000000.mp3", got)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
