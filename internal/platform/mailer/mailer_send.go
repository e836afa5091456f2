package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type Mailer struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailer(apiKey, fromName, fromEmail string) *Mailer {
	m := &Mailer{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *Mailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	if !m.Enabled {
		return "", errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}

func (m *Mailer) SendBookingConfirmed(email, experienceName string, bookingID int64) error {
	subject := fmt.Sprintf("Booking #%d confirmed", bookingID)
	text := fmt.Sprintf("Your booking for %s is confirmed. Booking reference: %d.", experienceName, bookingID)
	html := fmt.Sprintf(`<p>Your booking for <b>%s</b> is confirmed.</p><p>Booking reference: %d</p>`, experienceName, bookingID)
	_, err := m.Send(email, "", subject, text, html)
	return err
}

func (m *Mailer) SendBookingExpired(email, experienceName string, bookingID int64) error {
	subject := fmt.Sprintf("Booking #%d expired", bookingID)
	text := fmt.Sprintf("Your hold for %s was not confirmed in time and has been released. You can book again if seats remain.", experienceName)
	html := fmt.Sprintf(`<p>Your hold for <b>%s</b> was not confirmed in time and has been released.</p><p>You can book again if seats remain.</p>`, experienceName)
	_, err := m.Send(email, "", subject, text, html)
	return err
}

func (m *Mailer) SendBookingCancelled(email, experienceName string, bookingID int64, refundCents int64, currency string) error {
	subject := fmt.Sprintf("Booking #%d cancelled", bookingID)
	text := fmt.Sprintf("Your booking for %s has been cancelled.", experienceName)
	html := fmt.Sprintf(`<p>Your booking for <b>%s</b> has been cancelled.</p>`, experienceName)
	if refundCents > 0 {
		refund := fmt.Sprintf("A refund of %.2f %s is on its way.", float64(refundCents)/100, currency)
		text += " " + refund
		html += fmt.Sprintf(`<p>%s</p>`, refund)
	}
	_, err := m.Send(email, "", subject, text, html)
	return err
}

var _ Service = (*Mailer)(nil)
