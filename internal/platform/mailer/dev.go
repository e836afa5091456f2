package mailer

import (
	"fmt"
	"log/slog"
)

// DevMailer logs instead of sending. Used when no API key is configured.
type DevMailer struct {
	logger *slog.Logger
}

func NewDevMailer(logger *slog.Logger) *DevMailer {
	return &DevMailer{logger: logger}
}

func (m *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.logger.Info("dev mailer send",
		slog.String("to", toEmail),
		slog.String("subject", subject),
		slog.String("text", text),
	)
	return "dev-message-id", nil
}

func (m *DevMailer) SendBookingConfirmed(email, experienceName string, bookingID int64) error {
	_, err := m.Send(email, "", fmt.Sprintf("Booking #%d confirmed", bookingID), experienceName, "")
	return err
}

func (m *DevMailer) SendBookingExpired(email, experienceName string, bookingID int64) error {
	_, err := m.Send(email, "", fmt.Sprintf("Booking #%d expired", bookingID), experienceName, "")
	return err
}

func (m *DevMailer) SendBookingCancelled(email, experienceName string, bookingID int64, refundCents int64, currency string) error {
	_, err := m.Send(email, "", fmt.Sprintf("Booking #%d cancelled", bookingID), experienceName, "")
	return err
}

var _ Service = (*DevMailer)(nil)
