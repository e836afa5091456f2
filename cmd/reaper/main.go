package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/internal/service"
	"github.com/palmbay/experience-bookings/pkg/config"
	"github.com/palmbay/experience-bookings/pkg/database"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MinConns, cfg.Database.MaxConns, cfg.Database.MaxLifetime)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	slotStore := postgres.NewSlotStore(pool)
	discountStore := postgres.NewDiscountStore(pool)
	bookingStore := postgres.NewBookingStore(pool, slotStore, discountStore)

	reaper := service.NewReaper(
		bookingStore,
		slotStore,
		eventBus,
		cfg.Reaper.Interval,
		cfg.Reaper.ExpiryBatchSize,
		cfg.Reaper.OrphanBatchSize,
		cfg.Reaper.ShutdownDeadline,
	)

	if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reaper exited with error", "error", err)
		os.Exit(1)
	}
}
