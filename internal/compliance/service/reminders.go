package service

import (
	"context"
	"time"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/events"
	"github.com/blociq/blociq-backend/pkg/logger"
)

// DueLister lists assets across all buildings. *repository.AssetRepository
// implements it.
type DueLister interface {
	ListDueAll(ctx context.Context, before time.Time) ([]domain.ComplianceAsset, error)
}

// ReminderScheduler periodically announces assets that fall due within the
// reminder window, including overdue ones.
type ReminderScheduler struct {
	assets   DueLister
	events   *events.Emitter
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *logger.Logger
	cancel   context.CancelFunc
}

// NewReminderScheduler creates a scheduler. Nothing runs until Start.
func NewReminderScheduler(assets DueLister, emitter *events.Emitter, interval, window time.Duration, log *logger.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		assets:   assets,
		events:   emitter,
		interval: interval,
		window:   window,
		now:      time.Now,
		log:      log.WithComponent("compliance-reminders"),
	}
}

// Start runs a scan immediately and then once per interval until ctx ends
// or Stop is called.
func (s *ReminderScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.log.Info().
			Dur("interval", s.interval).
			Dur("window", s.window).
			Msg("reminder scheduler started")

		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("reminder scheduler stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop ends the scheduler goroutine.
func (s *ReminderScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce announces every asset due within the window and returns how many
// were found.
func (s *ReminderScheduler) RunOnce(ctx context.Context) int {
	start := s.now()
	assets, err := s.assets.ListDueAll(ctx, start.Add(s.window))
	if err != nil {
		s.log.Error().Err(err).Msg("reminder scan failed")
		return 0
	}

	for _, asset := range assets {
		s.events.DueSoon(ctx, asset, start)
	}

	s.log.Info().
		Int("assets_due", len(assets)).
		Dur("duration", time.Since(start)).
		Msg("reminder scan completed")
	return len(assets)
}
