package store

import (
	"context"
	"fmt"
	"time"

	"github.com/clipsum/summaryd/internal/model"
)

const transcriptionColumns = `id, source_url, video_title, transcript_text, summary, language, duration, thumbnail_url, status, created_at`

// InsertTranscription persists a completed pipeline result. Records are
// immutable once written; there is no update path.
func (s *Store) InsertTranscription(ctx context.Context, rec *model.Transcription) error {
	if rec == nil {
		return fmt.Errorf("transcription is nil")
	}
	createdAt := rec.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcriptions (`+transcriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SourceURL,
		rec.VideoTitle,
		rec.TranscriptText,
		rec.Summary,
		rec.Language,
		rec.Duration,
		rec.ThumbnailURL,
		string(rec.Status),
		createdAt,
	)
	return err
}

// ListTranscriptions returns records newest first. limit <= 0 means no limit.
func (s *Store) ListTranscriptions(ctx context.Context, limit int) ([]model.Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions ORDER BY created_at DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTranscriptions(rows)
}

// SearchTranscriptions matches the query against title, transcript and
// summary text, newest first.
func (s *Store) SearchTranscriptions(ctx context.Context, q string) ([]model.Transcription, error) {
	pattern := "%" + q + "%"
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+transcriptionColumns+`
		 FROM transcriptions
		 WHERE video_title LIKE ? OR transcript_text LIKE ? OR summary LIKE ?
		 ORDER BY created_at DESC`,
		pattern,
		pattern,
		pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTranscriptions(rows)
}

// DeleteTranscription removes one record and reports whether it existed.
func (s *Store) DeleteTranscription(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CountTranscriptions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTranscriptions(rows rowScanner) ([]model.Transcription, error) {
	ret := make([]model.Transcription, 0)
	for rows.Next() {
		var rec model.Transcription
		var status string
		if err := rows.Scan(
			&rec.ID,
			&rec.SourceURL,
			&rec.VideoTitle,
			&rec.TranscriptText,
			&rec.Summary,
			&rec.Language,
			&rec.Duration,
			&rec.ThumbnailURL,
			&status,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Status = model.ProcessingStatus(status)
		ret = append(ret, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
