package escalation

import (
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"gorm.io/gorm"
)

// OnCall computes and advances rotation state for on-call schedules
type OnCall struct {
	db *gorm.DB
}

// NewOnCall creates an on-call scheduler
func NewOnCall(db *gorm.DB) *OnCall {
	return &OnCall{db: db}
}

// CurrentMember returns the member currently on call
func (o *OnCall) CurrentMember(schedule *database.OnCallSchedule) (*database.OnCallMember, error) {
	if len(schedule.Members) == 0 {
		return nil, fmt.Errorf("%w: schedule %q has no members", engine.ErrConflict, schedule.Name)
	}
	idx := schedule.CurrentOnCallIndex % len(schedule.Members)
	member := schedule.Members[idx]
	return &member, nil
}

// Rotate advances the rotation to the next member, modulo the member count.
// Rotating an empty schedule is a conflict, not a silent no-op.
func (o *OnCall) Rotate(schedule *database.OnCallSchedule, now time.Time) error {
	if len(schedule.Members) == 0 {
		return fmt.Errorf("%w: cannot rotate schedule %q with no members", engine.ErrConflict, schedule.Name)
	}

	next := (schedule.CurrentOnCallIndex + 1) % len(schedule.Members)
	updates := map[string]interface{}{
		"current_on_call_index": next,
		"last_rotation_at":      now,
	}
	if err := o.db.Model(schedule).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to rotate schedule %q: %w", schedule.Name, err)
	}
	schedule.CurrentOnCallIndex = next
	schedule.LastRotationAt = now
	return nil
}

// DueForRotation reports whether the schedule's rotation interval has
// elapsed since the last rotation.
func (o *OnCall) DueForRotation(schedule *database.OnCallSchedule, now time.Time) bool {
	if !schedule.Enabled || len(schedule.Members) == 0 {
		return false
	}
	last := schedule.LastRotationAt
	if last.IsZero() {
		last = schedule.CreatedAt
	}
	return !now.Before(last.Add(schedule.RotationInterval()))
}
