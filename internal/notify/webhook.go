package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// WebhookNotifier posts JSON payloads over HTTP. It backs the generic
// webhook destination plus the chat/paging channels that are reached the
// same way (discord, teams, telegram, pagerduty, opsgenie). Each type gets
// a minimal body shape; full wire fidelity is out of scope.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with a bounded timeout
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify implements the Notifier interface
func (w *WebhookNotifier) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	url, body, err := w.request(dest, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver to %s destination %q: %w", dest.Type, dest.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s destination %q returned status %d", dest.Type, dest.Name, resp.StatusCode)
	}
	return nil
}

// request builds the target URL and body for the destination type
func (w *WebhookNotifier) request(dest database.RoutingDestination, payload Payload) (string, interface{}, error) {
	text := fmt.Sprintf("[%s] %s\n%s", payload.PriorityLabel, payload.Title, payload.Body)

	switch dest.Type {
	case database.DestinationDiscord:
		url := dest.ConfigString("webhook_url")
		if url == "" {
			return "", nil, fmt.Errorf("discord destination %q requires webhook_url", dest.Name)
		}
		return url, map[string]interface{}{"content": text}, nil

	case database.DestinationTeams:
		url := dest.ConfigString("webhook_url")
		if url == "" {
			return "", nil, fmt.Errorf("teams destination %q requires webhook_url", dest.Name)
		}
		return url, map[string]interface{}{"title": payload.Title, "text": text}, nil

	case database.DestinationTelegram:
		token := dest.ConfigString("bot_token")
		chatID := dest.ConfigString("chat_id")
		if token == "" || chatID == "" {
			return "", nil, fmt.Errorf("telegram destination %q requires bot_token and chat_id", dest.Name)
		}
		url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
		return url, map[string]interface{}{"chat_id": chatID, "text": text}, nil

	case database.DestinationPagerDuty:
		key := dest.ConfigString("routing_key")
		if key == "" {
			return "", nil, fmt.Errorf("pagerduty destination %q requires routing_key", dest.Name)
		}
		return "https://events.pagerduty.com/v2/enqueue", map[string]interface{}{
			"routing_key":  key,
			"event_action": "trigger",
			"payload": map[string]interface{}{
				"summary":  payload.Title,
				"severity": string(payload.Severity),
				"source":   "pulsewatch",
			},
		}, nil

	case database.DestinationOpsgenie:
		url := dest.ConfigString("api_url")
		if url == "" {
			url = "https://api.opsgenie.com/v2/alerts"
		}
		return url, map[string]interface{}{
			"message":     payload.Title,
			"description": payload.Body,
			"priority":    payload.PriorityLabel,
		}, nil

	default: // generic webhook
		url := dest.ConfigString("url")
		if url == "" {
			return "", nil, fmt.Errorf("webhook destination %q requires url", dest.Name)
		}
		return url, payload, nil
	}
}
