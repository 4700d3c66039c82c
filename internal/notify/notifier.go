// Package notify implements the outbound notification capability: one
// Notifier per destination type, selected by the destination's tag. The
// engine treats every channel as "send payload to destination"; channel
// wire formats stay inside this package.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// Payload is the channel-independent notification content
type Payload struct {
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	Severity      database.AlertSeverity `json:"severity"`
	PriorityLabel string                 `json:"priority_label"`
	GroupUUID     string                 `json:"group_uuid,omitempty"`
	AlertCount    int                    `json:"alert_count,omitempty"`
	RunbookName   string                 `json:"runbook_name,omitempty"`
	RunbookURL    string                 `json:"runbook_url,omitempty"`
}

// Notifier delivers a payload to one destination
type Notifier interface {
	Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error
}

// Registry maps destination types to notifier implementations
type Registry struct {
	notifiers map[string]Notifier
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{notifiers: make(map[string]Notifier)}
}

// Register installs a notifier for a destination type, replacing any
// previous registration.
func (r *Registry) Register(destType string, n Notifier) {
	r.notifiers[destType] = n
}

// Get returns the notifier for a destination type
func (r *Registry) Get(destType string) (Notifier, bool) {
	n, ok := r.notifiers[destType]
	return n, ok
}

// Notify dispatches to the registered notifier for the destination's type
func (r *Registry) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	n, ok := r.notifiers[dest.Type]
	if !ok {
		return fmt.Errorf("no notifier registered for destination type %q", dest.Type)
	}
	return n.Notify(ctx, dest, payload)
}

// Types returns the registered destination types
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.notifiers))
	for t := range r.notifiers {
		types = append(types, t)
	}
	return types
}

// WorkflowNotifier records a dispatch for an external workflow runner to pick
// up. Delivery itself is the runner's job, so this is a logged no-op.
type WorkflowNotifier struct{}

// Notify implements the Notifier interface
func (w *WorkflowNotifier) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	log.Printf("Workflow dispatch recorded for %q: %s", dest.Name, payload.Title)
	return nil
}

// SeverityEmoji returns an emoji for the alert severity
func SeverityEmoji(severity database.AlertSeverity) string {
	switch severity {
	case database.AlertSeverityCritical:
		return ":red_circle:"
	case database.AlertSeverityHigh:
		return ":large_orange_circle:"
	case database.AlertSeverityMedium:
		return ":large_yellow_circle:"
	case database.AlertSeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
