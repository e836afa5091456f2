package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/palmbay/experience-bookings/internal/http/handlers"
	"github.com/palmbay/experience-bookings/internal/platform/payments"
	"github.com/palmbay/experience-bookings/internal/platform/rates"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/internal/service"
	"github.com/palmbay/experience-bookings/pkg/config"
	"github.com/palmbay/experience-bookings/pkg/database"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
	mw "github.com/palmbay/experience-bookings/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MinConns, cfg.Database.MaxConns, cfg.Database.MaxLifetime)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Repositories
	slotStore := postgres.NewSlotStore(pool)
	discountStore := postgres.NewDiscountStore(pool)
	bookingStore := postgres.NewBookingStore(pool, slotStore, discountStore)
	paymentStore := postgres.NewPaymentStore(pool)

	// Platform adapters
	var gateway payments.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
		logger.Info("Stripe gateway configured", "environment", cfg.Stripe.Environment)
	} else {
		if cfg.Stripe.Environment == "live" {
			logger.Error("STRIPE_SECRET_KEY is required when STRIPE_ENV=live")
			os.Exit(1)
		}
		logger.Warn("No Stripe key configured, using dev payment gateway")
		gateway = payments.NewDevGateway(logger.Default())
	}
	rateSource := rates.NewCachedSource(
		rates.NewHTTPSource(cfg.Rates.SourceURL),
		rdb,
		cfg.Rates.CacheTTL,
		logger.Default(),
	)

	// Services
	lifecycle := service.NewLifecycleService(bookingStore, slotStore, eventBus, rateSource, cfg.Booking.PendingTTL)
	discounts := service.NewDiscountService(discountStore)
	cancellation := service.NewCancellationService(bookingStore, slotStore, paymentStore, gateway, eventBus, cfg.Booking.RefundWindow)

	bookingsHandler := handlers.NewBookingsHandler(lifecycle, discounts, cancellation, cfg.Auth.JWTSecret)
	slotsHandler := handlers.NewSlotsHandler(lifecycle)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings-api"))
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.Health)

	r.Mount("/bookings", bookingsHandler.Routes())
	r.Mount("/slots", slotsHandler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down bookings API...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Bookings API shutdown error", "error", err)
		}
	}()

	logger.Info("Bookings API listening", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Bookings API server error", "error", err)
		os.Exit(1)
	}
}
