// Package scheduler runs the periodic subscription refresh: due
// subscriptions get their forecast fetched (warming cache and store) and
// handed to a Notifier.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/metrics"
	"github.com/lox/weatherreminder/internal/models"
)

const DefaultInterval = 15 * time.Minute

type Store interface {
	DueSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	GetLocation(ctx context.Context, id int64) (models.Location, error)
}

type Fetcher interface {
	FetchForecast(ctx context.Context, loc models.Location, period models.Period) (models.Snapshot, int, error)
}

// Notifier delivers a refreshed snapshot to a subscriber.
type Notifier interface {
	Notify(ctx context.Context, sub models.Subscription, loc models.Location, snap models.Snapshot) error
}

type Refresher struct {
	store     Store
	fetcher   Fetcher
	notifier  Notifier
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
	scheduler *gocron.Scheduler
}

func NewRefresher(store Store, fetcher Fetcher, notifier Notifier, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("scheduler")
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Refresher{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
		log:      log,
	}
}

// Summary counts the outcomes of one refresh pass.
type Summary struct {
	Due      int
	Notified int
	Failed   int
}

// RunOnce refreshes every subscription due now. A failing subscription is
// logged and counted; it does not stop the pass.
func (r *Refresher) RunOnce(ctx context.Context) (Summary, error) {
	now := r.now()
	due, err := r.store.DueSubscriptions(ctx, now)
	if err != nil {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("list due subscriptions: %w", err)
	}

	sum := Summary{Due: len(due)}
	for _, sub := range due {
		if err := r.refresh(ctx, sub, now); err != nil {
			sum.Failed++
			metrics.RefreshRuns.WithLabelValues("failed").Inc()
			r.log.Warn("subscription refresh failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Int64("location_id", sub.LocationID),
				zap.Error(err))
			continue
		}
		sum.Notified++
		metrics.RefreshRuns.WithLabelValues("ok").Inc()
	}
	return sum, nil
}

func (r *Refresher) refresh(ctx context.Context, sub models.Subscription, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := r.store.GetLocation(ctx, sub.LocationID)
	if err != nil {
		return fmt.Errorf("get location: %w", err)
	}
	snap, _, err := r.fetcher.FetchForecast(ctx, loc, sub.ForecastPeriod)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", sub.ForecastPeriod, err)
	}
	if err := r.notifier.Notify(ctx, sub, loc, snap); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return r.store.MarkNotified(ctx, sub.ID, now)
}

// Start schedules RunOnce every interval, beginning immediately. Passes
// never overlap.
func (r *Refresher) Start() error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}
	_, err := s.Every(minutes).Minutes().Do(func() {
		sum, err := r.RunOnce(context.Background())
		if err != nil {
			r.log.Error("refresh pass failed", zap.Error(err))
			return
		}
		if sum.Due > 0 {
			r.log.Info("refresh pass complete",
				zap.Int("due", sum.Due), zap.Int("notified", sum.Notified), zap.Int("failed", sum.Failed))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	r.scheduler = s
	s.StartAsync()
	r.log.Info("refresher started", zap.Duration("interval", time.Duration(minutes)*time.Minute))
	return nil
}

func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
		r.log.Info("refresher stopped")
	}
}
