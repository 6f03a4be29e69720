package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/pkg/log"
)

// ErrInvalidURL is returned for inputs that do not match any supported
// YouTube URL form.
var ErrInvalidURL = errors.New("invalid YouTube URL")

var (
	ogTitleRe    = regexp.MustCompile(`<meta property="og:title" content="([^"]*)"`)
	ogImageRe    = regexp.MustCompile(`<meta property="og:image" content="([^"]*)"`)
	titleTagRe   = regexp.MustCompile(`<title>([^<]*)</title>`)
	durationRe   = regexp.MustCompile(`"lengthSeconds":"(\d+)"`)
	uploaderRe   = regexp.MustCompile(`"ownerChannelName":"([^"]*)"`)
)

// Extractor resolves a YouTube watch page into VideoMetadata. The page is
// scraped for title, duration, thumbnail and uploader; resolving the actual
// audio stream is delegated to a local resolver service.
type Extractor struct {
	resolverURL string
	client      *http.Client
}

func New(cfg config.ExtractorConfig) *Extractor {
	return &Extractor{
		resolverURL: strings.TrimRight(cfg.ResolverURL, "/"),
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// CanonicalURL trims the input and rewrites the youtu.be and /embed/ short
// forms to the watch?v= form, so every spelling of one video shares a single
// cache slot. Inputs matching none of the supported forms are rejected.
func CanonicalURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	switch {
	case strings.Contains(clean, "youtu.be/"):
		id := videoID(clean)
		if id == "" {
			return "", ErrInvalidURL
		}
		return "https://www.youtube.com/watch?v=" + id, nil
	case strings.Contains(clean, "youtube.com/watch"):
		id := videoID(clean)
		if id == "" {
			return "", ErrInvalidURL
		}
		return "https://www.youtube.com/watch?v=" + id, nil
	case strings.Contains(clean, "youtube.com/embed/"):
		id := videoID(clean)
		if id == "" {
			return "", ErrInvalidURL
		}
		return "https://www.youtube.com/watch?v=" + id, nil
	default:
		return "", ErrInvalidURL
	}
}

func videoID(urlString string) string {
	cutAt := func(s string, seps ...string) string {
		for _, sep := range seps {
			if i := strings.Index(s, sep); i >= 0 {
				s = s[:i]
			}
		}
		return s
	}
	if _, after, ok := strings.Cut(urlString, "youtu.be/"); ok {
		return cutAt(after, "?", "&", "/")
	}
	if _, after, ok := strings.Cut(urlString, "watch?v="); ok {
		return cutAt(after, "&", "#")
	}
	if _, after, ok := strings.Cut(urlString, "embed/"); ok {
		return cutAt(after, "?", "&", "/")
	}
	return ""
}

// Extract fetches the watch page for a canonical URL and scrapes its
// metadata. The returned AudioStreamURL points at the local resolver.
func (e *Extractor) Extract(ctx context.Context, canonicalURL string) (*model.VideoMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonicalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch watch page: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}

	meta := e.parse(string(body), canonicalURL)
	log.Debug("Extracted metadata for %s: title=%q duration=%.0fs", canonicalURL, meta.Title, meta.Duration)
	return meta, nil
}

func (e *Extractor) parse(html, canonicalURL string) *model.VideoMetadata {
	title := firstGroup(ogTitleRe, html)
	if title == "" {
		title = strings.TrimSpace(firstGroup(titleTagRe, html))
	}
	if title == "" {
		title = "YouTube video"
	}

	var duration float64
	if raw := firstGroup(durationRe, html); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
			duration = seconds
		}
	}

	return &model.VideoMetadata{
		Title:          title,
		Duration:       duration,
		ThumbnailURL:   firstGroup(ogImageRe, html),
		Uploader:       firstGroup(uploaderRe, html),
		AudioStreamURL: e.AudioStreamURL(canonicalURL),
	}
}

// AudioStreamURL composes the local resolver endpoint that serves the audio
// bytes for a video.
func (e *Extractor) AudioStreamURL(canonicalURL string) string {
	return e.resolverURL + "/extract-audio?url=" + url.QueryEscape(canonicalURL)
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
