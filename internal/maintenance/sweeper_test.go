package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/internal/store"
)

type recordingEvicter struct {
	calls    int
	maxBytes int64
	keep     int
	removed  int64
	err      error
}

func (r *recordingEvicter) EvictIfOversized(_ context.Context, maxBytes int64, keep int) (int64, error) {
	r.calls++
	r.maxBytes = maxBytes
	r.keep = keep
	return r.removed, r.err
}

func TestSweepPassesConfiguredLimits(t *testing.T) {
	evicter := &recordingEvicter{removed: 3}
	cfg := config.CacheConfig{MaxBytes: 1024, KeepCount: 5, SweepCron: "0 * * * *"}

	sweeper := NewSweeper(cfg, evicter, cron.New())
	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, evicter.calls)
	assert.Equal(t, int64(1024), evicter.maxBytes)
	assert.Equal(t, 5, evicter.keep)
}

func TestSweepSwallowsEvictionError(t *testing.T) {
	evicter := &recordingEvicter{err: errors.New("database is locked")}
	cfg := config.CacheConfig{MaxBytes: 1024, KeepCount: 5, SweepCron: "0 * * * *"}

	sweeper := NewSweeper(cfg, evicter, cron.New())
	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, evicter.calls)
}

func TestScheduleRejectsBadCronExpression(t *testing.T) {
	evicter := &recordingEvicter{}
	cfg := config.CacheConfig{MaxBytes: 1024, KeepCount: 5, SweepCron: "not a cron expr"}

	sweeper := NewSweeper(cfg, evicter, cron.New())
	require.Error(t, sweeper.Schedule(context.Background()))
}

func TestScheduleAcceptsValidExpression(t *testing.T) {
	evicter := &recordingEvicter{}
	cfg := config.CacheConfig{MaxBytes: 1024, KeepCount: 5, SweepCron: "*/5 * * * *"}

	sweeper := NewSweeper(cfg, evicter, cron.New())
	require.NoError(t, sweeper.Schedule(context.Background()))
}

func TestSweepAgainstRealStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	payload := make([]byte, 1024)
	for i := range 30 {
		url := "https://www.youtube.com/watch?v=" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, st.PutTranscript(ctx, url, string(payload)))
	}

	cfg := config.CacheConfig{MaxBytes: 10 * 1024, KeepCount: 20, SweepCron: "0 * * * *"}
	sweeper := NewSweeper(cfg, st, cron.New())
	sweeper.Sweep(ctx)

	stats, err := st.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TranscriptCount)
}
