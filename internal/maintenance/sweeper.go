package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/clipsum/summaryd/internal/config"
	"github.com/clipsum/summaryd/pkg/log"
)

type cacheEvicter interface {
	EvictIfOversized(ctx context.Context, maxBytes int64, keep int) (int64, error)
}

// Sweeper enforces the cache size cap on a cron schedule.
type Sweeper struct {
	cfg   config.CacheConfig
	store cacheEvicter
	cron  *cron.Cron
}

func NewSweeper(cfg config.CacheConfig, store cacheEvicter, c *cron.Cron) *Sweeper {
	return &Sweeper{
		cfg:   cfg,
		store: store,
		cron:  c,
	}
}

var sweepGroup singleflight.Group

// Schedule registers the sweep on the cron runner. Overlapping triggers
// collapse into one sweep via singleflight.
func (s *Sweeper) Schedule(ctx context.Context) error {
	runFunc := func() {
		_, _, _ = sweepGroup.Do("sweep", func() (any, error) {
			s.Sweep(ctx)
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cfg.SweepCron, runFunc)
	return err
}

// Sweep runs one eviction pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	removed, err := s.store.EvictIfOversized(ctx, s.cfg.MaxBytes, s.cfg.KeepCount)
	if err != nil {
		log.Error("Cache sweep failed: %v", err)
		return
	}
	if removed > 0 {
		log.Info("Cache sweep evicted %d entries", removed)
	}
}
