package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"places-cache/internal/common/logging"
	"places-cache/internal/locks"
	"places-cache/internal/storage"
)

const purgeTimeout = 10 * time.Minute

// PurgeStale deletes durable rows older than olderThan. Tiers with native
// expiry do not implement storage.Purger and report an error.
func PurgeStale(ctx context.Context, durable storage.DurableTier, olderThan time.Duration) (int64, error) {
	if durable == nil {
		return 0, fmt.Errorf("no durable tier configured")
	}
	purger, ok := durable.(storage.Purger)
	if !ok {
		return 0, fmt.Errorf("durable tier %s expires entries natively and does not support purging", durable.Name())
	}
	return purger.Purge(ctx, time.Now().Add(-olderThan))
}

// startPurgeJob schedules PurgeStale on CACHE_PURGE_SCHEDULE for SQL tiers
func (app *App) startPurgeJob() error {
	schedule := app.Config.CachePurgeSchedule
	if schedule == "" {
		app.Logger.Info("Purge job disabled")
		return nil
	}
	if _, ok := app.Durable.(storage.Purger); !ok {
		app.Logger.Info("Purge job skipped, durable tier expires entries natively",
			logging.Field{Key: "durable_tier", Value: durableName(app.Durable)},
		)
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, app.runPurge); err != nil {
		return fmt.Errorf("invalid CACHE_PURGE_SCHEDULE %q: %w", schedule, err)
	}
	c.Start()
	app.purgeCron = c

	app.Logger.Info("Purge job scheduled",
		logging.Field{Key: "schedule", Value: schedule},
		logging.Field{Key: "older_than", Value: app.Config.LongestDurableTTL()},
	)
	return nil
}

func (app *App) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	if app.Locker != nil {
		unlock, err := app.Locker.TryLock(ctx, "purge", purgeTimeout)
		if errors.Is(err, locks.ErrLockHeld) {
			app.Logger.Debug("Purge running on another instance, skipping")
			return
		}
		if err != nil {
			app.Logger.Error("Could not lock purge job", err)
			return
		}
		defer unlock()
	}

	start := time.Now()
	deleted, err := PurgeStale(ctx, app.Durable, app.Config.LongestDurableTTL())
	if err != nil {
		app.Logger.Error("Purge of stale cache entries failed", err)
		return
	}
	app.Logger.Info("Purged stale cache entries",
		logging.Field{Key: "deleted", Value: deleted},
		logging.Field{Key: "duration", Value: time.Since(start)},
	)
}

func (app *App) stopPurgeJob() {
	if app.purgeCron == nil {
		return
	}
	<-app.purgeCron.Stop().Done()
	app.purgeCron = nil
}
