package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/pkg/logger"
)

// Mailer delivers outbound email. Only invitations send email; failures
// are logged and never fail the operation that triggered the send.
type Mailer interface {
	SendInvitation(toEmail, inviterName, groupName, token string) error
}

func NewMailer(cfg config.SMTPConfig, frontendURL string) Mailer {
	if !cfg.Enabled {
		return &NoopMailer{}
	}
	return &SMTPMailer{cfg: cfg, frontendURL: frontendURL}
}

type SMTPMailer struct {
	cfg         config.SMTPConfig
	frontendURL string
}

func (m *SMTPMailer) SendInvitation(toEmail, inviterName, groupName, token string) error {
	acceptURL := fmt.Sprintf("%s/invitations/%s", strings.TrimRight(m.frontendURL, "/"), token)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", toEmail)
	fmt.Fprintf(&msg, "Subject: %s invited you to the group \"%s\"\r\n", inviterName, groupName)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s invited you to join \"%s\" on Wishlane.\r\n\r\n", inviterName, groupName)
	fmt.Fprintf(&msg, "Open this link to respond: %s\r\n", acceptURL)

	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{toEmail}, []byte(msg.String()))
}

// NoopMailer is used when SMTP is not configured; it only logs.
type NoopMailer struct{}

func (m *NoopMailer) SendInvitation(toEmail, inviterName, groupName, token string) error {
	logger.Info("invitation_email_skipped", map[string]interface{}{
		"to":    toEmail,
		"group": groupName,
	})
	return nil
}
