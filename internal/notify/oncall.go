package notify

import (
	"context"
	"fmt"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// OnCallNotifier resolves an on-call schedule to its current member at
// delivery time and emails them. Destination config: schedule_id plus the
// SMTP settings the email notifier expects.
type OnCallNotifier struct {
	db    *gorm.DB
	email *EmailNotifier
}

// NewOnCallNotifier creates an on-call notifier
func NewOnCallNotifier(db *gorm.DB, email *EmailNotifier) *OnCallNotifier {
	return &OnCallNotifier{db: db, email: email}
}

// Notify implements the Notifier interface
func (o *OnCallNotifier) Notify(ctx context.Context, dest database.RoutingDestination, payload Payload) error {
	scheduleID, ok := dest.Config["schedule_id"].(float64)
	if !ok || scheduleID <= 0 {
		return fmt.Errorf("on_call destination %q requires schedule_id", dest.Name)
	}

	var schedule database.OnCallSchedule
	if err := o.db.First(&schedule, uint(scheduleID)).Error; err != nil {
		return fmt.Errorf("on-call schedule %d not found: %w", int(scheduleID), err)
	}
	if len(schedule.Members) == 0 {
		return fmt.Errorf("on-call schedule %q has no members", schedule.Name)
	}

	idx := schedule.CurrentOnCallIndex % len(schedule.Members)
	member := schedule.Members[idx]
	if member.Email == "" {
		return fmt.Errorf("on-call member %q has no email address", member.Name)
	}

	return o.email.SendTo(dest, member.Email, payload)
}
