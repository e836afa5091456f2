package mailer

type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendBookingConfirmed(email, experienceName string, bookingID int64) error
	SendBookingExpired(email, experienceName string, bookingID int64) error
	SendBookingCancelled(email, experienceName string, bookingID int64, refundCents int64, currency string) error
}
