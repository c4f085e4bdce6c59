package email

import "context"

// Sender delivers transactional email. Delivery is best-effort everywhere it
// is used: ticket creation and status changes must succeed even when the
// notification cannot be sent.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
