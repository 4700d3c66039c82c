package routing

import (
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

func TestRunbookMatchPrefersMostSpecific(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := NewRunbookMatcher(db)

	testhelpers.NewRunbookBuilder().WithName("catch-all").Create(t, db)
	testhelpers.NewRunbookBuilder().WithName("any uptime").Matching("uptime", database.RunbookMatchAll).Create(t, db)
	testhelpers.NewRunbookBuilder().WithName("any critical").Matching(database.RunbookMatchAll, "critical").Create(t, db)
	testhelpers.NewRunbookBuilder().WithName("uptime critical").Matching("uptime", "critical").Create(t, db)

	tests := []struct {
		name      string
		checkType string
		severity  database.AlertSeverity
		want      string
	}{
		{"exact match wins", "uptime", database.AlertSeverityCritical, "uptime critical"},
		{"check type beats severity", "uptime", database.AlertSeverityLow, "any uptime"},
		{"severity wildcard on type", "ssl", database.AlertSeverityCritical, "any critical"},
		{"catch-all as last resort", "ssl", database.AlertSeverityLow, "catch-all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runbook, err := m.Match(1, tt.checkType, tt.severity)
			if err != nil {
				t.Fatalf("match failed: %v", err)
			}
			if runbook == nil || runbook.Name != tt.want {
				t.Errorf("matched %v; want %s", runbook, tt.want)
			}
		})
	}
}

func TestRunbookMatchNoneIsNotAnError(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := NewRunbookMatcher(db)

	runbook, err := m.Match(1, "uptime", database.AlertSeverityHigh)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if runbook != nil {
		t.Errorf("expected no runbook, got %s", runbook.Name)
	}
}

func TestRunbookMatchIgnoresDisabled(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := NewRunbookMatcher(db)

	disabled := testhelpers.NewRunbookBuilder().WithName("retired").Create(t, db)
	db.Model(disabled).Update("enabled", false)

	runbook, err := m.Match(1, "uptime", database.AlertSeverityHigh)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if runbook != nil {
		t.Errorf("disabled runbook must not match, got %s", runbook.Name)
	}
}
