package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/palmbay/experience-bookings/internal/platform/mailer"
	"github.com/palmbay/experience-bookings/pkg/config"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

// notify consumes booking lifecycle events and sends customer email. It runs
// in a queue group so multiple instances share the stream without duplicate
// sends.
const queueGroup = "notify"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	var mail mailer.Service
	if cfg.Email.DevMode || cfg.Email.MailerSendKey == "" {
		logger.Warn("Mailer in dev mode, emails go to logs")
		mail = mailer.NewDevMailer(logger.Default())
	} else {
		mail = mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromAddress)
	}

	subscribe(eventBus, events.BookingConfirmed, func(data []byte) {
		var ev events.BookingConfirmedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Error("Bad confirmed event payload", "error", err)
			return
		}
		if ev.UserEmail == "" {
			return
		}
		if err := mail.SendBookingConfirmed(ev.UserEmail, "your experience", ev.BookingID); err != nil {
			logger.Error("Failed to send confirmation email", "error", err, "booking_id", ev.BookingID)
		}
	})

	subscribe(eventBus, events.BookingCancelled, func(data []byte) {
		var ev events.BookingCancelledEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Error("Bad cancelled event payload", "error", err)
			return
		}
		if ev.UserEmail == "" {
			return
		}
		var refund int64
		if ev.RefundIssued {
			refund = ev.RefundCents
		}
		if err := mail.SendBookingCancelled(ev.UserEmail, "your experience", ev.BookingID, refund, "USD"); err != nil {
			logger.Error("Failed to send cancellation email", "error", err, "booking_id", ev.BookingID)
		}
	})

	subscribe(eventBus, events.BookingExpired, func(data []byte) {
		var ev events.BookingExpiredEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Error("Bad expired event payload", "error", err)
			return
		}
		if ev.UserEmail == "" {
			return
		}
		if err := mail.SendBookingExpired(ev.UserEmail, "your experience", ev.BookingID); err != nil {
			logger.Error("Failed to send expiry email", "error", err, "booking_id", ev.BookingID)
		}
	})

	logger.Info("Notify service started", "queue", queueGroup)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Notify service stopped")
}

func subscribe(bus events.Subscriber, subject string, handle func(data []byte)) {
	err := bus.QueueSubscribe(subject, queueGroup, func(msg *events.Message) {
		handle(msg.Data)
	})
	if err != nil {
		logger.Error("Failed to subscribe", "subject", subject, "error", err)
		os.Exit(1)
	}
}
