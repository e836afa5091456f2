package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

// Reaper expires timed-out pending bookings and sweeps orphaned inventory
// locks on a fixed interval. Safe to run in multiple instances; batches are
// claimed with row locks so no booking is expired twice.
type Reaper struct {
	bookings postgres.BookingStore
	slots    postgres.SlotStore
	eventBus events.Publisher

	interval         time.Duration
	expiryBatchSize  int
	orphanBatchSize  int
	shutdownDeadline time.Duration

	now func() time.Time
}

func NewReaper(
	bookings postgres.BookingStore,
	slots postgres.SlotStore,
	eventBus events.Publisher,
	interval time.Duration,
	expiryBatchSize, orphanBatchSize int,
	shutdownDeadline time.Duration,
) *Reaper {
	return &Reaper{
		bookings:         bookings,
		slots:            slots,
		eventBus:         eventBus,
		interval:         interval,
		expiryBatchSize:  expiryBatchSize,
		orphanBatchSize:  orphanBatchSize,
		shutdownDeadline: shutdownDeadline,
		now:              time.Now,
	}
}

// Run ticks until ctx is cancelled. The tick in flight finishes before Run
// returns, so shutdown never abandons a claimed batch.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("Reaper started",
		"interval", r.interval.String(),
		"expiry_batch", r.expiryBatchSize,
		"orphan_batch", r.orphanBatchSize,
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Reaper tick failed", "error", err)
			}
		}
	}
}

// Tick runs one expiry pass and one orphan sweep concurrently. The shutdown
// deadline bounds the pass, so a cancelled Run never waits longer than that
// for the tick in flight.
func (r *Reaper) Tick(ctx context.Context) error {
	if r.shutdownDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.shutdownDeadline)
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.expirePendings(ctx) })
	g.Go(func() error { return r.sweepOrphans(ctx) })
	return g.Wait()
}

// expirePendings drains the backlog in bounded batches. A short batch means
// the backlog is empty and the pass ends.
func (r *Reaper) expirePendings(ctx context.Context) error {
	for {
		expired, err := r.bookings.ExpireBatch(ctx, r.expiryBatchSize, r.now())
		if err != nil {
			return err
		}
		if len(expired) > 0 {
			logger.Info("Expired pending bookings", "count", len(expired))
		}
		for _, e := range expired {
			event := events.BookingExpiredEvent{
				BookingID: e.ID,
				UserID:    e.UserID,
				UserEmail: e.UserEmail,
				SlotID:    e.SlotID,
				Reason:    domain.ReasonPendingExpired,
				ExpiredAt: r.now(),
			}
			if err := r.eventBus.Publish(ctx, events.BookingExpired, event); err != nil {
				logger.Error("Failed to publish booking expired event", "error", err, "booking_id", e.ID)
			}
		}
		if len(expired) < r.expiryBatchSize {
			return nil
		}
	}
}

func (r *Reaper) sweepOrphans(ctx context.Context) error {
	for {
		released, err := r.slots.SweepExpiredLocks(ctx, r.now(), r.orphanBatchSize)
		if err != nil {
			return err
		}
		if released > 0 {
			logger.Info("Released orphaned inventory locks", "count", released)
		}
		if released < int64(r.orphanBatchSize) {
			return nil
		}
	}
}
