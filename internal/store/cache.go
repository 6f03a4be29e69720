package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/clipsum/summaryd/internal/model"
	"github.com/clipsum/summaryd/pkg/log"
)

const (
	kindMetadata   = "metadata"
	kindTranscript = "transcript"
)

// CacheKey hashes the trimmed source URL string. Two URL strings that trim
// to the same bytes share one cache slot; distinct strings colliding in the
// hash space would silently share one too, which is an accepted risk.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

type CacheStats struct {
	MetadataCount   int   `json:"metadata_count"`
	TranscriptCount int   `json:"transcript_count"`
	Bytes           int64 `json:"bytes"`
}

// GetMetadata returns the cached metadata for url, or ok=false on a miss.
// A corrupt entry is treated as a miss, not an error.
func (s *Store) GetMetadata(ctx context.Context, url string) (*model.VideoMetadata, bool, error) {
	payload, ok, err := s.getEntry(ctx, CacheKey(url), kindMetadata)
	if err != nil || !ok {
		return nil, false, err
	}
	var meta model.VideoMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		log.Warn("Corrupt metadata cache entry for key %s: %v", CacheKey(url), err)
		return nil, false, nil
	}
	return &meta, true, nil
}

// PutMetadata serializes and stores metadata, overwriting any prior entry
// for the same URL hash.
func (s *Store) PutMetadata(ctx context.Context, url string, meta *model.VideoMetadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.putEntry(ctx, CacheKey(url), kindMetadata, payload)
}

func (s *Store) GetTranscript(ctx context.Context, url string) (string, bool, error) {
	payload, ok, err := s.getEntry(ctx, CacheKey(url), kindTranscript)
	if err != nil || !ok {
		return "", false, err
	}
	return string(payload), true, nil
}

func (s *Store) PutTranscript(ctx context.Context, url string, text string) error {
	return s.putEntry(ctx, CacheKey(url), kindTranscript, []byte(text))
}

func (s *Store) getEntry(ctx context.Context, cacheKey, kind string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT payload FROM content_cache WHERE cache_key = ? AND kind = ?`,
		cacheKey,
		kind,
	)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) putEntry(ctx context.Context, cacheKey, kind string, payload []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO content_cache (cache_key, kind, payload)
		 VALUES (?, ?, ?)
		 ON CONFLICT(cache_key, kind) DO UPDATE SET
			payload=excluded.payload`,
		cacheKey,
		kind,
		payload,
	)
	return err
}

// ClearCache removes every cache entry of both kinds.
func (s *Store) ClearCache(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_cache`)
	return err
}

// ClearCacheFor removes both the metadata and the transcript entry for one
// URL, leaving every other URL's entries untouched.
func (s *Store) ClearCacheFor(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_cache WHERE cache_key = ?`, CacheKey(url))
	return err
}

func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
			COUNT(CASE WHEN kind = ? THEN 1 END),
			COUNT(CASE WHEN kind = ? THEN 1 END),
			COALESCE(SUM(LENGTH(payload)), 0)
		 FROM content_cache`,
		kindMetadata,
		kindTranscript,
	)
	var stats CacheStats
	if err := row.Scan(&stats.MetadataCount, &stats.TranscriptCount, &stats.Bytes); err != nil {
		return CacheStats{}, err
	}
	return stats, nil
}

// CacheFootprint returns the summed serialized size of all cache entries.
func (s *Store) CacheFootprint(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM content_cache`)
	var bytes int64
	if err := row.Scan(&bytes); err != nil {
		return 0, err
	}
	return bytes, nil
}

// EvictIfOversized deletes all but keep entries when the total footprint
// exceeds maxBytes. Survivors are whichever rows the store enumerates
// first; no recency or frequency is tracked per entry, so the order is
// arbitrary rather than LRU. Returns the number of rows removed.
func (s *Store) EvictIfOversized(ctx context.Context, maxBytes int64, keep int) (int64, error) {
	footprint, err := s.CacheFootprint(ctx)
	if err != nil {
		return 0, err
	}
	if footprint <= maxBytes {
		return 0, nil
	}

	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM content_cache WHERE rowid NOT IN (
			SELECT rowid FROM content_cache LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info("Cache eviction removed %d entries (footprint was %d bytes, cap %d)", removed, footprint, maxBytes)
	}
	return removed, nil
}
