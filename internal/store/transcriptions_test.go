package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipsum/summaryd/internal/model"
)

func testRecord(title string, createdAt time.Time) *model.Transcription {
	return &model.Transcription{
		ID:             uuid.NewString(),
		SourceURL:      "https://www.youtube.com/watch?v=" + uuid.NewString()[:8],
		VideoTitle:     title,
		TranscriptText: "transcript of " + title,
		Summary:        "summary of " + title,
		Language:       "eng",
		Duration:       120,
		Status:         model.StatusCompleted,
		CreatedAt:      createdAt,
	}
}

func TestInsertAndListTranscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := testRecord("oldest", base)
	middle := testRecord("middle", base.Add(time.Hour))
	newest := testRecord("newest", base.Add(2*time.Hour))

	for _, rec := range []*model.Transcription{middle, oldest, newest} {
		require.NoError(t, s.InsertTranscription(ctx, rec))
	}

	got, err := s.ListTranscriptions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "newest", got[0].VideoTitle)
	assert.Equal(t, "middle", got[1].VideoTitle)
	assert.Equal(t, "oldest", got[2].VideoTitle)

	limited, err := s.ListTranscriptions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "newest", limited[0].VideoTitle)
}

func TestTranscriptionRoundTripFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &model.Transcription{
		ID:             uuid.NewString(),
		SourceURL:      "https://www.youtube.com/watch?v=round",
		VideoTitle:     "Round Trip",
		TranscriptText: "full text",
		Summary:        "short text",
		Language:       "fra",
		Duration:       901.5,
		ThumbnailURL:   "https://i.ytimg.com/vi/round/hq720.jpg",
		Status:         model.StatusCompleted,
		CreatedAt:      time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.InsertTranscription(ctx, rec))

	got, err := s.ListTranscriptions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, rec.Summary, got[0].Summary)
	assert.Equal(t, rec.Language, got[0].Language)
	assert.Equal(t, rec.ThumbnailURL, got[0].ThumbnailURL)
	assert.Equal(t, model.StatusCompleted, got[0].Status)
	assert.InDelta(t, 901.5, got[0].Duration, 1e-9)
	assert.True(t, got[0].CreatedAt.Equal(rec.CreatedAt))
}

func TestDeleteTranscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keep := testRecord("keep", time.Now().UTC())
	drop := testRecord("drop", time.Now().UTC())
	require.NoError(t, s.InsertTranscription(ctx, keep))
	require.NoError(t, s.InsertTranscription(ctx, drop))

	deleted, err := s.DeleteTranscription(ctx, drop.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.ListTranscriptions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].ID)

	deleted, err = s.DeleteTranscription(ctx, "no-such-id")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSearchTranscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	goTalk := testRecord("Concurrency in Go", base)
	goTalk.TranscriptText = "goroutines and channels"
	cooking := testRecord("Pasta night", base.Add(time.Hour))
	cooking.Summary = "how to cook carbonara"

	require.NoError(t, s.InsertTranscription(ctx, goTalk))
	require.NoError(t, s.InsertTranscription(ctx, cooking))

	byTitle, err := s.SearchTranscriptions(ctx, "Concurrency")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, goTalk.ID, byTitle[0].ID)

	byTranscript, err := s.SearchTranscriptions(ctx, "goroutines")
	require.NoError(t, err)
	require.Len(t, byTranscript, 1)

	bySummary, err := s.SearchTranscriptions(ctx, "carbonara")
	require.NoError(t, err)
	require.Len(t, bySummary, 1)
	assert.Equal(t, cooking.ID, bySummary[0].ID)

	none, err := s.SearchTranscriptions(ctx, "blockchain")
	require.NoError(t, err)
	assert.Empty(t, none)
}
