package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"waitlist-engine/core/config"
	"waitlist-engine/core/errors"
)

// Sender delivers one message on one channel.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type emailSender struct {
	host string
	port string
	from string
}

func NewEmailSender(cfg config.SMTPConfig) Sender {
	return &emailSender{host: cfg.Host, port: cfg.Port, from: cfg.From}
}

func (s *emailSender) Send(ctx context.Context, recipient, subject, body string) error {
	var msg strings.Builder
	msg.WriteString("From: " + s.from + "\r\n")
	msg.WriteString("To: " + recipient + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := smtp.SendMail(addr, nil, s.from, []string{recipient}, []byte(msg.String())); err != nil {
		return errors.NewAppError(errors.ErrTransient, "smtp send failed", err)
	}
	return nil
}
