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

const resendBaseURL = "https://api.resend.com/emails"

type resendMailer struct {
	cfg    HTTPProviderSettings
	client *http.Client
}

// NewResendMailer builds a Mailer backed by the Resend emails API.
func NewResendMailer(cfg HTTPProviderSettings) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("resend: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = resendBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &resendMailer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendPayload struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	Text    string      `json:"text"`
	HTML    string      `json:"html,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

func (m *resendMailer) Send(ctx context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("resend: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return errors.New("resend: sender address is required")
	}
	if m.cfg.FromName != "" && !strings.Contains(from, "<") {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, from)
	}

	payload := resendPayload{
		From:    from,
		To:      recipients,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}
	if msg.Category != "" {
		payload.Tags = []resendTag{{Name: "category", Value: msg.Category}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("resend: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("resend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("resend: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
