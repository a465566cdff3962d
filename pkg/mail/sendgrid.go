package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const sendGridBaseURL = "https://api.sendgrid.com/v3/mail/send"

// HTTPProviderSettings configure an HTTP email provider such as SendGrid or Resend.
type HTTPProviderSettings struct {
	APIKey   string
	From     string
	FromName string
	BaseURL  string // override for tests
	Timeout  time.Duration
}

type sendGridMailer struct {
	cfg    HTTPProviderSettings
	client *http.Client
}

// NewSendGridMailer builds a Mailer backed by the SendGrid v3 mail send API.
func NewSendGridMailer(cfg HTTPProviderSettings) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &sendGridMailer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgTracking struct {
	ClickTracking sgToggle `json:"click_tracking"`
	OpenTracking  sgToggle `json:"open_tracking"`
}

type sgToggle struct {
	Enable bool `json:"enable"`
}

type sgPayload struct {
	Personalizations []struct {
		To []sgAddress `json:"to"`
	} `json:"personalizations"`
	From             sgAddress   `json:"from"`
	Subject          string      `json:"subject"`
	Content          []sgContent `json:"content"`
	Categories       []string    `json:"categories,omitempty"`
	TrackingSettings *sgTracking `json:"tracking_settings,omitempty"`
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("sendgrid: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return errors.New("sendgrid: sender address is required")
	}

	payload := sgPayload{
		From:    sgAddress{Email: from, Name: m.cfg.FromName},
		Subject: msg.Subject,
		Content: []sgContent{{Type: "text/plain", Value: msg.Text}},
	}
	payload.Personalizations = make([]struct {
		To []sgAddress `json:"to"`
	}, 1)
	for _, rcpt := range recipients {
		payload.Personalizations[0].To = append(payload.Personalizations[0].To, sgAddress{Email: rcpt})
	}
	if strings.TrimSpace(msg.HTML) != "" {
		payload.Content = append(payload.Content, sgContent{Type: "text/html", Value: msg.HTML})
	}
	if msg.Category != "" {
		payload.Categories = []string{msg.Category}
		// Transactional categories are exempt from engagement tracking.
		payload.TrackingSettings = &sgTracking{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sendgrid: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sendgrid: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
