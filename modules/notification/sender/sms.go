package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"waitlist-engine/core/config"
	"waitlist-engine/core/constants"
	"waitlist-engine/core/errors"
)

type smsSender struct {
	webhookURL string
	token      string
	client     *http.Client
}

// NewSMSSender posts the message to an external SMS webhook. Without a
// configured webhook the channel is a no-op so email remains the only
// required integration.
func NewSMSSender(cfg config.SMSConfig) Sender {
	if cfg.WebhookURL == "" {
		return &noopSender{}
	}
	return &smsSender{
		webhookURL: cfg.WebhookURL,
		token:      cfg.Token,
		client:     &http.Client{Timeout: constants.DefaultTimeout},
	}
}

func (s *smsSender) Send(ctx context.Context, recipient, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      recipient,
		"message": body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewAppError(errors.ErrTransient, "sms webhook unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.NewAppError(errors.ErrTransient, "sms webhook error", nil)
	}
	if resp.StatusCode >= 400 {
		return errors.NewAppError(errors.ErrInvalidInput, "sms webhook rejected message", nil)
	}
	return nil
}

type noopSender struct{}

func (*noopSender) Send(ctx context.Context, recipient, subject, body string) error {
	return nil
}
