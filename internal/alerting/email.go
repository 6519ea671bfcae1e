// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/tomtom215/sharesync/internal/config"
)

// EmailSink mails alerts to the support desk over SMTP.
type EmailSink struct {
	smtp    config.SMTPConfig
	to      string
	timeout time.Duration
}

// NewEmailSink returns nil when no SMTP host or support address is set.
func NewEmailSink(cfg *config.AlertingConfig) *EmailSink {
	if cfg.SMTP.Host == "" || cfg.SupportEmail == "" {
		return nil
	}
	return &EmailSink{
		smtp:    cfg.SMTP,
		to:      cfg.SupportEmail,
		timeout: 30 * time.Second,
	}
}

// Name implements Sink.
func (s *EmailSink) Name() string {
	return "email"
}

// Send implements Sink.
func (s *EmailSink) Send(ctx context.Context, alert *Alert) error {
	return s.sendSMTP(ctx, s.buildMessage(alert))
}

func (s *EmailSink) buildMessage(alert *Alert) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: ShareSync <%s>\r\n", s.smtp.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", s.to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", alert.Subject()))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("X-ShareSync-Preprint: %s\r\n", alert.PreprintID))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(alert.Text())
	return msg.String()
}

func (s *EmailSink) sendSMTP(ctx context.Context, msg string) error {
	addr := net.JoinHostPort(s.smtp.Host, fmt.Sprint(s.smtp.Port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}

	client, err := smtp.NewClient(conn, s.smtp.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.smtp.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: s.smtp.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.smtp.Username != "" && s.smtp.Password != "" {
		auth := smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.smtp.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(s.to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// The message is accepted once Data is closed.
	_ = client.Quit()
	return nil
}
