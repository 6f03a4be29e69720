package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/clipsum/summaryd/pkg/log"
)

var (
	// ErrInvalidURL is returned when the audio source URL does not parse.
	ErrInvalidURL = errors.New("invalid audio URL")
	// ErrCancelled is returned by Download when Cancel aborts the transfer.
	ErrCancelled = errors.New("download cancelled")
	// ErrNoData is returned when the server closes the stream without bytes.
	ErrNoData = errors.New("no data received")
)

// Progress is a snapshot of an in-flight transfer.
type Progress struct {
	BytesDownloaded int64
	TotalBytes      int64
	Fraction        float64
}

func newProgress(downloaded, total int64) Progress {
	p := Progress{BytesDownloaded: downloaded, TotalBytes: total}
	if total > 0 {
		p.Fraction = float64(downloaded) / float64(total)
	}
	return p
}

// Downloader streams a remote audio resource to local storage, reporting
// byte-level progress through an optional callback and supporting one
// in-flight transfer at a time.
type Downloader struct {
	client     *http.Client
	onProgress func(Progress)

	mu          sync.Mutex
	cancel      context.CancelFunc
	progress    Progress
	downloading bool
}

type Option func(*Downloader)

// WithProgressCallback registers a callback invoked as bytes arrive.
func WithProgressCallback(fn func(Progress)) Option {
	return func(d *Downloader) {
		d.onProgress = fn
	}
}

func New(opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches sourceURL into destPath, writing through a temp file so a
// partial transfer never leaves a usable-looking file behind. Returns the
// final local path.
func (d *Downloader) Download(ctx context.Context, sourceURL, destPath string) (string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrInvalidURL
	}

	dlCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.downloading = true
	d.progress = Progress{}
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.cancel = nil
		d.downloading = false
		d.progress = Progress{}
		d.mu.Unlock()
	}()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", ErrInvalidURL
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(dlCtx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download request: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create destination file: %w", err)
	}

	written, err := io.Copy(out, d.trackReader(resp.Body, resp.ContentLength))
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(dlCtx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("stream audio bytes: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close destination file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return "", ErrNoData
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move downloaded file: %w", err)
	}

	log.Info("Downloaded %d bytes to %s", written, destPath)
	return destPath, nil
}

// Cancel aborts the current transfer, if any. The pending Download call
// fails with ErrCancelled.
func (d *Downloader) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Progress reports the current transfer state; ok is false when no transfer
// is in flight.
func (d *Downloader) Progress() (Progress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress, d.downloading
}

func (d *Downloader) trackReader(r io.Reader, total int64) io.Reader {
	return &progressReader{d: d, r: r, total: total}
}

type progressReader struct {
	d     *Downloader
	r     io.Reader
	total int64
	read  int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		snapshot := newProgress(p.read, p.total)
		p.d.mu.Lock()
		p.d.progress = snapshot
		cb := p.d.onProgress
		p.d.mu.Unlock()
		if cb != nil {
			cb(snapshot)
		}
	}
	return n, err
}

var fileNameCleanRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// AudioFileName derives a destination file name from the video title plus a
// timestamp disambiguator.
func AudioFileName(videoTitle string, now time.Time) string {
	clean := fileNameCleanRe.ReplaceAllString(videoTitle, "")
	clean = strings.TrimSpace(clean)
	clean = whitespaceRe.ReplaceAllString(clean, "_")
	if clean == "" {
		clean = "audio"
	}
	return fmt.Sprintf("%s_%d.mp3", clean, now.Unix())
}

// EnsureDir creates the downloads directory if absent.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create downloads directory: %w", err)
	}
	return nil
}
