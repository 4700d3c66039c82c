package api

import "github.com/pulsewatch/pulsewatch/internal/database"

// AlertFromIngest converts an ingest request into the pipeline's alert
// record. Severity defaults to medium when the sender omits it.
func AlertFromIngest(req IngestAlertRequest, orgID uint) *database.Alert {
	severity := database.AlertSeverity(req.Severity)
	if severity == "" {
		severity = database.AlertSeverityMedium
	}

	alert := &database.Alert{
		OrganizationID: orgID,
		CheckID:        req.CheckID,
		CheckName:      req.CheckName,
		CheckType:      req.CheckType,
		Location:       req.Location,
		Severity:       severity,
		ErrorMessage:   req.ErrorMessage,
	}
	if req.CheckName == "" {
		alert.CheckName = req.CheckID
	}
	if req.OccurredAt != nil {
		alert.OccurredAt = *req.OccurredAt
	}
	if len(req.Tags) > 0 {
		alert.Tags = make(database.JSONB, len(req.Tags))
		for k, v := range req.Tags {
			alert.Tags[k] = v
		}
	}
	return alert
}

// GroupToListItem converts a group to its compact list representation.
func GroupToListItem(g database.AlertGroup) GroupListItem {
	return GroupListItem{
		ID:               g.ID,
		UUID:             g.UUID,
		GroupKey:         g.GroupKey,
		Status:           g.Status,
		AlertCount:       g.AlertCount,
		FirstAlertAt:     g.FirstAlertAt,
		LastAlertAt:      g.LastAlertAt,
		NotificationSent: g.NotificationSent,
		SnoozedUntil:     g.SnoozedUntil,
		AcknowledgedAt:   g.AcknowledgedAt,
		ResolvedAt:       g.ResolvedAt,
		CreatedAt:        g.CreatedAt,
	}
}

// GroupsToListItems converts a slice of groups to list items.
func GroupsToListItems(groups []database.AlertGroup) []GroupListItem {
	items := make([]GroupListItem, len(groups))
	for i, g := range groups {
		items[i] = GroupToListItem(g)
	}
	return items
}

// IncidentToListItem converts an incident to its compact list
// representation, omitting notes, responders and the timeline.
func IncidentToListItem(i database.ManagedIncident) IncidentListItem {
	return IncidentListItem{
		ID:             i.ID,
		UUID:           i.UUID,
		Title:          i.Title,
		Status:         i.Status,
		Priority:       i.Priority,
		Severity:       i.Severity,
		Source:         i.Source,
		AcknowledgedAt: i.AcknowledgedAt,
		ResolvedAt:     i.ResolvedAt,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

// IncidentsToListItems converts a slice of incidents to list items.
func IncidentsToListItems(incidents []database.ManagedIncident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}
