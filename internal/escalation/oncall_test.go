package escalation

import (
	"errors"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

func TestRotationIsCyclic(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	oncall := NewOnCall(db)
	schedule := testhelpers.NewOnCallScheduleBuilder().Create(t, db)
	now := time.Now()

	want := []string{"Alice", "Bob", "Carol", "Alice"}
	for i, name := range want {
		member, err := oncall.CurrentMember(schedule)
		if err != nil {
			t.Fatalf("current member failed: %v", err)
		}
		if member.Name != name {
			t.Errorf("rotation step %d: on call is %s; want %s", i, member.Name, name)
		}
		if err := oncall.Rotate(schedule, now); err != nil {
			t.Fatalf("rotate failed: %v", err)
		}
	}

	// Rotation state is persisted
	var stored database.OnCallSchedule
	if err := db.First(&stored, schedule.ID).Error; err != nil {
		t.Fatalf("failed to reload schedule: %v", err)
	}
	if stored.CurrentOnCallIndex != 1 {
		t.Errorf("expected persisted index 1 after four rotations, got %d", stored.CurrentOnCallIndex)
	}
}

func TestRotateEmptyScheduleIsConflict(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	oncall := NewOnCall(db)
	schedule := testhelpers.NewOnCallScheduleBuilder().WithMembers().Create(t, db)

	if _, err := oncall.CurrentMember(schedule); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("expected conflict for empty schedule, got %v", err)
	}
	if err := oncall.Rotate(schedule, time.Now()); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("expected conflict rotating empty schedule, got %v", err)
	}
}

func TestDueForRotation(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	oncall := NewOnCall(db)
	now := time.Now()

	weekly := testhelpers.NewOnCallScheduleBuilder().LastRotatedAt(now.Add(-6 * 24 * time.Hour)).Create(t, db)
	if oncall.DueForRotation(weekly, now) {
		t.Error("weekly schedule rotated 6 days ago is not due")
	}
	if !oncall.DueForRotation(weekly, now.Add(2*24*time.Hour)) {
		t.Error("weekly schedule rotated 8 days ago is due")
	}

	daily := testhelpers.NewOnCallScheduleBuilder().
		WithRotation(database.RotationDaily, 0).
		LastRotatedAt(now.Add(-25 * time.Hour)).Create(t, db)
	if !oncall.DueForRotation(daily, now) {
		t.Error("daily schedule rotated 25 hours ago is due")
	}

	custom := testhelpers.NewOnCallScheduleBuilder().
		WithRotation(database.RotationCustom, 3).
		LastRotatedAt(now.Add(-2 * 24 * time.Hour)).Create(t, db)
	if oncall.DueForRotation(custom, now) {
		t.Error("3-day custom schedule rotated 2 days ago is not due")
	}

	disabled := testhelpers.NewOnCallScheduleBuilder().LastRotatedAt(now.Add(-30 * 24 * time.Hour)).Create(t, db)
	db.Model(disabled).Update("enabled", false)
	disabled.Enabled = false
	if oncall.DueForRotation(disabled, now) {
		t.Error("disabled schedule is never due")
	}
}
