package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// SMTPTransport delivers mail through a plain SMTP relay. Used for
// self-hosted MTAs where no vendor API exists.
type SMTPTransport struct {
	providerID string
	host       string
	port       string
	username   string
	password   string
	fromName   string
	fromEmail  string
}

// NewSMTPTransport builds an SMTP transport from a provider config. Expects
// credentials keys host, port, username, password, from_name, from_email.
func NewSMTPTransport(cfg domain.ProviderConfig) (*SMTPTransport, error) {
	host := cfg.Credentials["host"]
	if host == "" {
		return nil, fmt.Errorf("provider %s: SMTP host not configured", cfg.ID)
	}
	port := cfg.Credentials["port"]
	if port == "" {
		port = "25"
	}
	return &SMTPTransport{
		providerID: cfg.ID,
		host:       host,
		port:       port,
		username:   cfg.Credentials["username"],
		password:   cfg.Credentials["password"],
		fromName:   cfg.Credentials["from_name"],
		fromEmail:  cfg.Credentials["from_email"],
	}, nil
}

// Send delivers a single email over SMTP. Connection-level failures are
// transient; permanent 5xx rejections from the relay are not.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), t.host)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", t.fromName, t.fromEmail)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	for k, v := range msg.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTML)

	addr := net.JoinHostPort(t.host, t.port)
	var auth smtp.Auth
	if t.username != "" {
		auth = smtp.PlainAuth("", t.username, t.password, t.host)
	}

	// net/smtp has no context support; bound the call with a deadline check
	// before and classify the failure after.
	if err := ctx.Err(); err != nil {
		return &SendResult{Success: false, ProviderID: t.providerID, Err: err}, nil
	}
	if err := smtp.SendMail(addr, auth, t.fromEmail, []string{msg.To}, buf.Bytes()); err != nil {
		return &SendResult{
			Success:    false,
			ProviderID: t.providerID,
			Err:        classifySMTPError(err),
		}, nil
	}

	return &SendResult{
		Success:    true,
		ProviderID: t.providerID,
		MessageID:  messageID,
		SentAt:     time.Now(),
	}, nil
}

// classifySMTPError treats network failures and 4xx responses as transient.
func classifySMTPError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient(err)
	}
	s := err.Error()
	if len(s) >= 1 && s[0] == '4' {
		return Transient(err)
	}
	if strings.Contains(s, "connection refused") || strings.Contains(s, "i/o timeout") {
		return Transient(err)
	}
	return err
}
