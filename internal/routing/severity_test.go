package routing

import (
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func TestMapSeverity(t *testing.T) {
	tests := []struct {
		severity database.AlertSeverity
		want     database.IncidentPriority
	}{
		{database.AlertSeverityCritical, database.IncidentPriorityP1},
		{database.AlertSeverityHigh, database.IncidentPriorityP2},
		{database.AlertSeverityMedium, database.IncidentPriorityP3},
		{database.AlertSeverityLow, database.IncidentPriorityP4},
		{database.AlertSeverityInfo, database.IncidentPriorityP5},
		{"", database.IncidentPriorityP3},
		{"apocalyptic", database.IncidentPriorityP3},
	}
	for _, tt := range tests {
		if got := MapSeverity(tt.severity); got != tt.want {
			t.Errorf("MapSeverity(%q) = %s; want %s", tt.severity, got, tt.want)
		}
	}
}
