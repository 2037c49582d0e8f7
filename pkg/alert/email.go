package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"

	mail "github.com/go-mail/mail"
)

// EmailOptions configures the SMTP channel.
type EmailOptions struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string

	// TLSMode is one of "starttls" (default), "tls", or "none".
	TLSMode    string
	SkipVerify bool
}

// Email delivers alerts over SMTP.
type Email struct {
	opts   EmailOptions
	dialer *mail.Dialer
}

func NewEmail(opts EmailOptions) *Email {
	dialer := mail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	switch opts.TLSMode {
	case "tls":
		dialer.SSL = true
	case "none":
		dialer.StartTLSPolicy = mail.NoStartTLS
	default:
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	}
	if opts.SkipVerify {
		dialer.TLSConfig = &tls.Config{ServerName: opts.Host, InsecureSkipVerify: true}
	}
	return &Email{opts: opts, dialer: dialer}
}

func (e *Email) Name() string {
	return "email"
}

func (e *Email) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", e.opts.From)
	msg.SetHeader("To", e.opts.To...)
	msg.SetHeader("Subject", fmt.Sprintf("[failoverd] %s: %s", strings.ToUpper(string(a.Severity)), a.Summary))
	msg.SetBody("text/plain", e.body(a))

	if err := e.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (e *Email) body(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nseverity: %s\ntype: %s\n", a.Summary, a.Severity, a.Type)
	if a.InstanceID != "" {
		fmt.Fprintf(&b, "instance: %s\n", a.InstanceID)
	}
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", a.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, a.Details[k])
	}
	return b.String()
}
