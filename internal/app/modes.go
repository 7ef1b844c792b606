package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/scheduler"
)

// SettleMode runs the settlement tick, expiry sweep, and price feed loops.
// Archival is excluded; pair this mode with a separate archive-mode process
// when cold storage is needed.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	if deps.Settlement == nil {
		return fmt.Errorf("app: settle mode requires postgres and treasury configuration")
	}

	sched := scheduler.New(
		deps.Settlement,
		deps.Entries,
		nil,
		deps.Feed,
		a.schedulerConfig(),
		a.logger,
	)
	return sched.Run(ctx)
}

// ArchiveMode executes a single archive pass and exits. It is intended to be
// run from an external scheduler (cron, CI) against the same database as the
// settlement process.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires postgres and s3 configuration")
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour)
	count, err := deps.Archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive run: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete", "events", count)
	return nil
}

// WatchMode tails the engine's pub/sub channels and logs every signal. It is
// a read-only diagnostic mode that needs nothing but Redis.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, channel := range []string{"settlements", "boosts"} {
		channel := channel
		g.Go(func() error {
			msgs, err := deps.SignalBus.Subscribe(ctx, channel)
			if err != nil {
				return fmt.Errorf("app: subscribe %s: %w", channel, err)
			}
			a.logger.InfoContext(ctx, "watching channel", "channel", channel)
			for {
				select {
				case <-ctx.Done():
					return nil
				case payload, ok := <-msgs:
					if !ok {
						return nil
					}
					a.logger.InfoContext(ctx, "signal",
						"channel", channel,
						"payload", string(payload),
					)
				}
			}
		})
	}

	return g.Wait()
}

// FullMode runs every subsystem in one process: settlement, expiry, the price
// feed, and (when enabled) scheduled archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if deps.Settlement == nil {
		return fmt.Errorf("app: full mode requires postgres and treasury configuration")
	}

	sched := scheduler.New(
		deps.Settlement,
		deps.Entries,
		deps.Archiver,
		deps.Feed,
		a.schedulerConfig(),
		a.logger,
	)
	return sched.Run(ctx)
}

func (a *App) schedulerConfig() scheduler.Config {
	cfg := scheduler.Config{
		TickInterval:   a.cfg.Settlement.TickInterval.Duration,
		ExpiryInterval: a.cfg.Settlement.ExpiryInterval.Duration,
		BatchSize:      a.cfg.Settlement.BatchSize,
	}
	if a.cfg.Archive.Enabled {
		cfg.ArchiveCron = a.cfg.Archive.Cron
		cfg.RetentionDays = a.cfg.Archive.RetentionDays
	}
	return cfg
}
