package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"callbridge.app/bridge/core/config"
	"callbridge.app/bridge/internal/model"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers notifications as plain-text email.
type Mailer struct {
	cfg  config.MailConfig
	send sendFunc
	now  func() time.Time
}

func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (m *Mailer) Notify(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.compose(n)
	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{m.cfg.To}, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", m.cfg.To, err)
	}
	return nil
}

func (m *Mailer) compose(n model.Notification) []byte {
	var subject string
	switch n.Kind {
	case model.NotificationDigest:
		subject = "Daily Call Digest"
	default:
		subject = "Call Summary - " + n.CallID
		if n.HasConflict {
			subject += " (scheduling conflict)"
		}
	}

	var body strings.Builder
	body.WriteString(n.SummaryText)
	body.WriteString("\n\n")
	if n.HasConflict {
		fmt.Fprintf(&body, "Conflict: overlaps the appointment from call %s at %s.\n", n.ConflictingCallID, n.ConflictingTime)
	}
	if n.CallID != "" {
		fmt.Fprintf(&body, "Call ID: %s\n", n.CallID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.cfg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return []byte(b.String())
}
