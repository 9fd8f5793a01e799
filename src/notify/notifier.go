// Package notify delivers best-effort alerts. Delivery failures are logged
// and never propagate into trading logic.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// Notifier sends a subject/body alert. Implementations must not block
// trading on delivery problems.
type Notifier interface {
	Send(subject, body string)
}

// NopNotifier discards alerts. Used in tests and when alerting is disabled.
type NopNotifier struct{}

func (NopNotifier) Send(string, string) {}

// SMTPNotifier delivers alerts over SMTP. When no host is configured it
// degrades to logging the alert.
type SMTPNotifier struct {
	cfg Config
}

var _ Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier() *SMTPNotifier {
	return &SMTPNotifier{cfg: GetConfig()}
}

// NewSMTPNotifierWithConfig is used by tests.
func NewSMTPNotifierWithConfig(cfg Config) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Send(subject, body string) {
	if n.cfg.SMTPHost == "" {
		logger.WithFields(map[string]interface{}{
			"subject": subject,
		}).Info("Alert (no SMTP configured): " + body)
		return
	}
	if n.cfg.EmailTo == "" {
		logger.Warn("No NOTIFY_EMAIL_TO configured, skipping alert")
		return
	}

	from := n.cfg.EmailFrom
	if from == "" {
		from = "no-reply@" + n.cfg.SMTPHost
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + n.cfg.EmailTo,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, from, []string{n.cfg.EmailTo}, []byte(msg)); err != nil {
		logger.WithError(err).WithField("subject", subject).
			Error("Failed to send alert email")
		return
	}

	logger.WithField("to", n.cfg.EmailTo).Info("Alert sent")
}
