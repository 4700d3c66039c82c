package notify

import (
	"context"
	"fmt"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/slack-go/slack"
)

// SlackNotifier posts alert notifications to a Slack channel. Destination
// config: bot_token, channel.
type SlackNotifier struct{}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier() *SlackNotifier {
	return &SlackNotifier{}
}

// Notify implements the Notifier interface
func (s *SlackNotifier) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	token := dest.ConfigString("bot_token")
	channel := dest.ConfigString("channel")
	if token == "" || channel == "" {
		return fmt.Errorf("slack destination %q requires bot_token and channel", dest.Name)
	}

	text := fmt.Sprintf("%s *%s*\n%s", SeverityEmoji(payload.Severity), payload.Title, payload.Body)
	if payload.RunbookURL != "" {
		text += fmt.Sprintf("\n:book: Runbook: <%s|%s>", payload.RunbookURL, payload.RunbookName)
	}

	client := slack.New(token)
	_, _, err := client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post to slack channel %s: %w", channel, err)
	}
	return nil
}
