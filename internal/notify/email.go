package notify

import (
	"context"
	"fmt"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"gopkg.in/gomail.v2"
)

// EmailNotifier delivers notifications over SMTP. Destination config:
// smtp_host, smtp_port, username, password, from, to.
type EmailNotifier struct{}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{}
}

// Notify implements the Notifier interface
func (e *EmailNotifier) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	to := dest.ConfigString("to")
	if to == "" {
		return fmt.Errorf("email destination %q requires a to address", dest.Name)
	}
	return e.send(dest, to, payload)
}

// SendTo delivers to an explicit recipient, used by the on-call notifier to
// reach the resolved rotation member.
func (e *EmailNotifier) SendTo(dest database.RoutingDestination, recipient string, payload Payload) error {
	return e.send(dest, recipient, payload)
}

func (e *EmailNotifier) send(dest database.RoutingDestination, to string, payload Payload) error {
	host := dest.ConfigString("smtp_host")
	from := dest.ConfigString("from")
	if host == "" || from == "" {
		return fmt.Errorf("email destination %q requires smtp_host and from", dest.Name)
	}
	port := 587
	if p, ok := dest.Config["smtp_port"].(float64); ok && p > 0 {
		port = int(p)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", payload.PriorityLabel, payload.Title))

	body := payload.Body
	if payload.RunbookURL != "" {
		body += fmt.Sprintf("\n\nRunbook: %s (%s)", payload.RunbookName, payload.RunbookURL)
	}
	m.SetBody("text/plain", body)

	dialer := gomail.NewDialer(host, port, dest.ConfigString("username"), dest.ConfigString("password"))
	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
