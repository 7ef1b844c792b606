// Package scheduler coordinates the engine's background loops: the
// settlement tick, the expiry sweep, the price feed, and archival.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/platform/pricefeed"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/service"
)

// Scheduler runs all periodic work as concurrent goroutines under an
// errgroup. Each loop respects ctx cancellation; a non-context error from
// any loop cancels the shared context and stops the rest.
type Scheduler struct {
	settlement *service.SettlementService
	entries    *service.EntryService
	archiver   domain.Archiver
	feed       *pricefeed.Feed

	tickInterval   time.Duration
	expiryInterval time.Duration
	batchSize      int
	archiveCron    string
	retentionDays  int

	logger *slog.Logger
}

type Config struct {
	TickInterval   time.Duration
	ExpiryInterval time.Duration
	BatchSize      int
	ArchiveCron    string
	RetentionDays  int
}

func New(
	settlement *service.SettlementService,
	entries *service.EntryService,
	archiver domain.Archiver,
	feed *pricefeed.Feed,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		settlement:     settlement,
		entries:        entries,
		archiver:       archiver,
		feed:           feed,
		tickInterval:   cfg.TickInterval,
		expiryInterval: cfg.ExpiryInterval,
		batchSize:      cfg.BatchSize,
		archiveCron:    cfg.ArchiveCron,
		retentionDays:  cfg.RetentionDays,
		logger:         logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled or a loop fails.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Duration("expiry_interval", s.expiryInterval),
		slog.String("archive_cron", s.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.runSettlementLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("settlement loop: %w", err)
	})

	g.Go(func() error {
		err := s.runExpiryLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("expiry loop: %w", err)
	})

	if s.feed != nil {
		g.Go(func() error {
			err := s.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price feed: %w", err)
		})
	}

	if s.archiver != nil && s.archiveCron != "" {
		g.Go(func() error {
			err := s.runArchiveCron(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive cron: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// runSettlementLoop ticks at a fixed interval. It runs once immediately so a
// fresh deploy does not wait a full interval before its first pass.
func (s *Scheduler) runSettlementLoop(ctx context.Context) error {
	s.tickOnce(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tickOnce(ctx)
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) {
	report, err := s.settlement.RunTick(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("settlement tick failed", slog.String("error", err.Error()))
		return
	}
	if report.Skipped {
		s.logger.Debug("settlement tick skipped, lock held elsewhere")
		return
	}
	if report.Paused {
		s.logger.Info("settlement paused")
		return
	}
	if report.Selected > 0 {
		s.logger.Info("settlement tick complete",
			slog.Int("selected", report.Selected),
			slog.Int("paid", report.Paid),
			slog.Int("partial", report.Partial),
			slog.Int("conflicts", report.Conflicts),
			slog.Int("failed", report.Failed),
		)
	}
}

// runExpiryLoop sweeps overdue positions at a fixed interval.
func (s *Scheduler) runExpiryLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired, err := s.entries.ExpireOverdue(ctx)
			if err != nil {
				s.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if expired > 0 {
				s.logger.Info("positions expired", slog.Int("count", expired))
			}
		}
	}
}

// runArchiveCron archives settlement events older than the retention window
// on the configured cron schedule.
func (s *Scheduler) runArchiveCron(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.archiveCron, func() {
		cutoff := time.Now().UTC().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
		count, err := s.archiver.ArchiveEvents(ctx, cutoff)
		if err != nil {
			s.logger.Error("archive run failed", slog.String("error", err.Error()))
			return
		}
		if count > 0 {
			s.logger.Info("archive run complete", slog.Int64("events", count))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: parse archive cron %q: %w", s.archiveCron, err)
	}

	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}
