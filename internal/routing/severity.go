package routing

import "github.com/pulsewatch/pulsewatch/internal/database"

// severityPriorities is the total mapping from internal severity to the
// external priority label carried on dispatches and incidents.
var severityPriorities = map[database.AlertSeverity]database.IncidentPriority{
	database.AlertSeverityCritical: database.IncidentPriorityP1,
	database.AlertSeverityHigh:     database.IncidentPriorityP2,
	database.AlertSeverityMedium:   database.IncidentPriorityP3,
	database.AlertSeverityLow:      database.IncidentPriorityP4,
	database.AlertSeverityInfo:     database.IncidentPriorityP5,
}

// MapSeverity translates a severity into its external priority label. The
// mapping is total: unknown severities fall back to P3.
func MapSeverity(severity database.AlertSeverity) database.IncidentPriority {
	if p, ok := severityPriorities[severity]; ok {
		return p
	}
	return database.IncidentPriorityP3
}
