package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

// Publisher is the outbound side of the Notifier boundary. Lifecycle
// transitions are published after the database commit; a publish failure
// never rolls back a committed transition.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Booking lifecycle subjects, one per state transition.
const (
	BookingPendingCreated = "booking.pending_created"
	BookingConfirmed      = "booking.confirmed"
	BookingCancelled      = "booking.cancelled"
	BookingExpired        = "booking.expired"
)

type BookingPendingCreatedEvent struct {
	BookingID    int64     `json:"booking_id"`
	UserID       int64     `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	ExperienceID int64     `json:"experience_id"`
	SlotID       int64     `json:"slot_id"`
	Adults       int       `json:"adults"`
	Children     int       `json:"children"`
	TotalCents   int64     `json:"total_cents"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type BookingConfirmedEvent struct {
	BookingID   int64     `json:"booking_id"`
	UserID      int64     `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type BookingCancelledEvent struct {
	BookingID    int64     `json:"booking_id"`
	UserID       int64     `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	Reason       string    `json:"reason"`
	RefundIssued bool      `json:"refund_issued"`
	RefundCents  int64     `json:"refund_cents"`
	CancelledAt  time.Time `json:"cancelled_at"`
}

type BookingExpiredEvent struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	UserEmail string    `json:"user_email"`
	SlotID    int64     `json:"slot_id"`
	Reason    string    `json:"reason"`
	ExpiredAt time.Time `json:"expired_at"`
}
