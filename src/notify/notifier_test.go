package notify

import "testing"

func TestSendWithoutHostDegradesToLog(t *testing.T) {
	n := NewSMTPNotifierWithConfig(Config{})

	// Must not panic or attempt a network call.
	n.Send("test subject", "test body")
}

func TestSendWithoutRecipientSkips(t *testing.T) {
	n := NewSMTPNotifierWithConfig(Config{SMTPHost: "localhost", SMTPPort: 2525})

	n.Send("test subject", "test body")
}
