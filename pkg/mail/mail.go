package mail

import "context"

// Message represents an outbound email. Text is always required; HTML is
// optional and sent as a multipart alternative when present. Category tags
// the message for provider-side deliverability reporting; click and open
// tracking are disabled for every category we send.
type Message struct {
	From     string
	To       []string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
