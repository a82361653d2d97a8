// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package notify sends the daily due-book reminder email.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/hearth/internal/config"
	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/metrics"
	"github.com/tomtom215/hearth/internal/models"
)

// Store defines the database operations the notifier needs.
type Store interface {
	ListDueBooks(ctx context.Context, asOf time.Time) ([]models.LibraryBook, error)
}

// Notifier composes and sends one reminder email per run covering every
// book due on or before the current date. No books due means no email.
type Notifier struct {
	store       Store
	smtp        config.SMTPConfig
	adminEmail  string
	siteURL     string
	dialTimeout time.Duration
	logger      zerolog.Logger

	// now is replaceable so tests can pin the calendar date.
	now func() time.Time
}

// NewNotifier creates a due-book notifier from the library and SMTP
// configuration sections.
func NewNotifier(store Store, smtpCfg config.SMTPConfig, libCfg config.LibraryConfig) *Notifier {
	return &Notifier{
		store:       store,
		smtp:        smtpCfg,
		adminEmail:  libCfg.AdminEmail,
		siteURL:     libCfg.SiteURL,
		dialTimeout: 30 * time.Second,
		logger:      logging.Logger().With().Str("component", "due-notifier").Logger(),
		now:         time.Now,
	}
}

// Notify checks for due books and emails the household admin when any
// exist. A run that finds nothing due is a successful no-op.
func (n *Notifier) Notify(ctx context.Context) error {
	today := n.now()

	books, err := n.store.ListDueBooks(ctx, today)
	if err != nil {
		metrics.NotifyErrors.Inc()
		return fmt.Errorf("list due books: %w", err)
	}

	if len(books) == 0 {
		n.logger.Info().Msg("No books due, skipping notification")
		return nil
	}

	n.logger.Info().Int("books", len(books)).Msg("Sending due-book notification")

	msg := n.buildMessage(books)
	if err := n.sendSMTP(ctx, msg); err != nil {
		metrics.NotifyErrors.Inc()
		return fmt.Errorf("send notification: %w", err)
	}

	metrics.NotifyEmailsSent.Inc()
	return nil
}

// buildMessage renders the multipart reminder email.
func (n *Notifier) buildMessage(books []models.LibraryBook) string {
	subject := fmt.Sprintf("%d library book(s) due", len(books))

	var text strings.Builder
	text.WriteString("The following library books are due:\r\n\r\n")
	for _, book := range books {
		line := fmt.Sprintf("  %s (due %s", book.Title, book.Due.Format("2006-01-02"))
		if book.DisplayName != "" {
			line += ", " + book.DisplayName
		}
		line += ")\r\n"
		text.WriteString(line)
	}
	if n.siteURL != "" {
		text.WriteString("\r\n" + n.siteURL + "\r\n")
	}

	var htmlBody strings.Builder
	htmlBody.WriteString("<p>The following library books are due:</p>\r\n<ul>\r\n")
	for _, book := range books {
		htmlBody.WriteString("<li>" + html.EscapeString(book.Title))
		htmlBody.WriteString(" <em>(due " + book.Due.Format("2006-01-02"))
		if book.DisplayName != "" {
			htmlBody.WriteString(", " + html.EscapeString(book.DisplayName))
		}
		htmlBody.WriteString(")</em></li>\r\n")
	}
	htmlBody.WriteString("</ul>\r\n")
	if n.siteURL != "" {
		htmlBody.WriteString(fmt.Sprintf("<p><a href=%q>Manage library accounts</a></p>\r\n", n.siteURL))
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: Hearth <%s>\r\n", n.smtp.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", n.adminEmail))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(text.String())
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody.String())
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return msg.String()
}

// sendSMTP delivers the message to the admin address.
func (n *Notifier) sendSMTP(ctx context.Context, msg string) error {
	addr := fmt.Sprintf("%s:%d", n.smtp.Host, n.smtp.Port)

	dialer := &net.Dialer{Timeout: n.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // Best effort cleanup

	client, err := smtp.NewClient(conn, n.smtp.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }() //nolint:errcheck // Best effort cleanup

	if n.smtp.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: n.smtp.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if n.smtp.Username != "" && n.smtp.Password != "" {
		auth := smtp.PlainAuth("", n.smtp.Username, n.smtp.Password, n.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.smtp.FromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(n.adminEmail); err != nil {
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

	// Quit failures after a delivered message are not worth surfacing.
	_ = client.Quit() //nolint:errcheck

	return nil
}
