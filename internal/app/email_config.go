package app

import (
	"fmt"
	"strings"

	"github.com/epetcare/notifier/pkg/mail"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	from := c.SMTP.From
	if from == "" {
		from = c.From
	}
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     from,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// PrimaryMailer builds the HTTP provider selected by email.provider, or nil
// when no provider is configured (fallback-only or log-only deployments).
func (c EmailConfig) PrimaryMailer() (mail.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "":
		return nil, nil
	case "sendgrid":
		return mail.NewSendGridMailer(mail.HTTPProviderSettings{
			APIKey:   c.SendGrid.APIKey,
			From:     c.From,
			FromName: c.FromName,
			Timeout:  c.SendGrid.Timeout,
		})
	case "resend":
		return mail.NewResendMailer(mail.HTTPProviderSettings{
			APIKey:   c.Resend.APIKey,
			From:     c.From,
			FromName: c.FromName,
			Timeout:  c.Resend.Timeout,
		})
	default:
		return nil, fmt.Errorf("email: unknown provider %q", c.Provider)
	}
}

// FallbackMailer builds the SMTP fallback transport; it returns a mailer even
// when disabled so the pipeline can surface mail.ErrSMTPDisabled uniformly.
func (c EmailConfig) FallbackMailer() (mail.Mailer, error) {
	return mail.NewSMTPMailer(c.SMTPSettings())
}
