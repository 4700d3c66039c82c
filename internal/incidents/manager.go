// Package incidents implements the managed-incident lifecycle: creation,
// promotion from groups and correlation clusters, the status state machine,
// notes, responders and the append-only timeline.
package incidents

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/routing"
	"gorm.io/gorm"
)

// Manager owns managed incidents. Every mutation appends a timeline event;
// timeline rows are never rewritten.
type Manager struct {
	db         *gorm.DB
	partitions *engine.Partitions
	scheduler  *escalation.Scheduler
}

// NewManager creates an incident manager
func NewManager(db *gorm.DB, partitions *engine.Partitions, scheduler *escalation.Scheduler) *Manager {
	return &Manager{db: db, partitions: partitions, scheduler: scheduler}
}

// CreateParams describes a new incident
type CreateParams struct {
	OrganizationID uint
	Title          string
	Description    string
	Severity       database.AlertSeverity
	Source         string
	Actor          string
	GroupID        *uint
	CorrelationID  *uint
}

// Create opens a new incident in the triggered state and arms the
// organization's default escalation policy when one exists.
func (m *Manager) Create(params CreateParams) (*database.ManagedIncident, error) {
	if params.Title == "" {
		return nil, fmt.Errorf("%w: incident title is required", engine.ErrValidation)
	}
	if params.OrganizationID == 0 {
		return nil, fmt.Errorf("%w: organization id is required", engine.ErrValidation)
	}
	if params.Source == "" {
		params.Source = database.IncidentSourceManual
	}
	if params.Severity == "" {
		params.Severity = database.AlertSeverityMedium
	}

	unlock := m.partitions.Lock(params.OrganizationID)
	defer unlock()

	now := time.Now()
	incident := &database.ManagedIncident{
		UUID:           uuid.New().String(),
		OrganizationID: params.OrganizationID,
		Title:          params.Title,
		Description:    params.Description,
		Status:         database.IncidentStatusTriggered,
		Priority:       routing.MapSeverity(params.Severity),
		Severity:       params.Severity,
		Source:         params.Source,
		GroupID:        params.GroupID,
		CorrelationID:  params.CorrelationID,
	}
	if err := m.db.Create(incident).Error; err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventCreated, params.Actor,
		fmt.Sprintf("Incident created from %s", incident.Source), nil)

	if policy, err := database.GetDefaultEscalationPolicy(m.db, params.OrganizationID); err == nil && policy != nil {
		if _, err := m.scheduler.ArmForIncident(incident, policy, now); err != nil {
			return nil, err
		}
	}
	return incident, nil
}

// PromoteGroup creates an incident from an alert group, carrying the group's
// severity and alert context over. Promoting an already promoted group is a
// conflict.
func (m *Manager) PromoteGroup(groupID uint, actor string) (*database.ManagedIncident, error) {
	var group database.AlertGroup
	if err := m.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", engine.ErrNotFound, groupID)
		}
		return nil, err
	}

	var existing database.ManagedIncident
	err := m.db.Where("group_id = ?", groupID).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: group %d already promoted to incident %s", engine.ErrConflict, groupID, existing.UUID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var last database.Alert
	title := fmt.Sprintf("Alert group %s", group.GroupKey)
	severity := database.AlertSeverityMedium
	description := ""
	if err := m.db.Where("group_id = ?", group.ID).Order("occurred_at DESC").First(&last).Error; err == nil {
		title = fmt.Sprintf("%s failing (%d alerts)", last.CheckName, group.AlertCount)
		severity = last.Severity
		description = last.ErrorMessage
	}

	return m.Create(CreateParams{
		OrganizationID: group.OrganizationID,
		Title:          title,
		Description:    description,
		Severity:       severity,
		Source:         database.IncidentSourceAlert,
		Actor:          actor,
		GroupID:        &group.ID,
	})
}

// PromoteCorrelation creates an incident from a correlation cluster
func (m *Manager) PromoteCorrelation(correlationID uint, actor string) (*database.ManagedIncident, error) {
	var cluster database.AlertCorrelation
	if err := m.db.First(&cluster, correlationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: correlation %d", engine.ErrNotFound, correlationID)
		}
		return nil, err
	}

	var existing database.ManagedIncident
	err := m.db.Where("correlation_id = ?", correlationID).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: correlation %d already promoted to incident %s", engine.ErrConflict, correlationID, existing.UUID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var primary database.Alert
	title := fmt.Sprintf("Correlated alerts (%s)", cluster.Reason)
	severity := database.AlertSeverityMedium
	description := ""
	if err := m.db.First(&primary, cluster.PrimaryAlertID).Error; err == nil {
		title = fmt.Sprintf("%s and %d related alerts", primary.CheckName, cluster.AlertCount-1)
		severity = primary.Severity
		description = primary.ErrorMessage
	}

	return m.Create(CreateParams{
		OrganizationID: cluster.OrganizationID,
		Title:          title,
		Description:    description,
		Severity:       severity,
		Source:         database.IncidentSourceAlert,
		Actor:          actor,
		CorrelationID:  &cluster.ID,
	})
}

// Get loads an incident with notes, responders and timeline
func (m *Manager) Get(id uint) (*database.ManagedIncident, error) {
	var incident database.ManagedIncident
	err := m.db.Preload("Notes").Preload("Responders").
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&incident, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: incident %d", engine.ErrNotFound, id)
		}
		return nil, err
	}
	return &incident, nil
}

// ListFilter narrows List results. Zero-value fields match everything.
type ListFilter struct {
	Status   database.IncidentStatus
	Severity database.AlertSeverity
	Source   string
}

// List returns an organization's incidents, newest first, narrowed by the
// optional status, severity and source filters.
func (m *Manager) List(orgID uint, filter ListFilter) ([]database.ManagedIncident, error) {
	query := m.db.Where("organization_id = ?", orgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	var incidents []database.ManagedIncident
	if err := query.Order("created_at DESC").Find(&incidents).Error; err != nil {
		return nil, err
	}
	return incidents, nil
}

// UpdateStatus moves an incident to a new state. Movement among non-terminal
// states is unrestricted; leaving resolved is a conflict. Resolution must go
// through Resolve, which demands a summary.
func (m *Manager) UpdateStatus(id uint, status database.IncidentStatus, actor string) (*database.ManagedIncident, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: unknown incident status %q", engine.ErrValidation, status)
	}
	if status == database.IncidentStatusResolved {
		return nil, fmt.Errorf("%w: resolving requires a resolution summary", engine.ErrValidation)
	}

	incident, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	unlock := m.partitions.Lock(incident.OrganizationID)
	defer unlock()

	if err := m.db.First(incident, id).Error; err != nil {
		return nil, err
	}
	if incident.IsResolved() {
		return nil, fmt.Errorf("%w: incident %s is resolved", engine.ErrConflict, incident.UUID)
	}
	if incident.Status == status {
		return incident, nil
	}

	now := time.Now()
	from := incident.Status
	updates := map[string]interface{}{"status": status}

	if status == database.IncidentStatusAcknowledged && incident.AcknowledgedAt == nil {
		updates["acknowledged_at"] = now
		updates["time_to_acknowledge_seconds"] = int64(now.Sub(incident.CreatedAt).Seconds())
	}

	if err := m.db.Model(incident).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update incident status: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventStatusChanged, actor,
		fmt.Sprintf("Status changed from %s to %s", from, status),
		database.JSONB{"from": string(from), "to": string(status)})

	if status == database.IncidentStatusAcknowledged {
		if err := m.scheduler.AcknowledgeIncident(incident.ID); err != nil {
			return nil, err
		}
	}
	return m.Get(id)
}

// Resolve closes an incident. A non-empty resolution summary is required;
// resolving twice is a conflict.
func (m *Manager) Resolve(id uint, summary, actor string) (*database.ManagedIncident, error) {
	if summary == "" {
		return nil, fmt.Errorf("%w: resolution summary is required", engine.ErrValidation)
	}

	incident, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	unlock := m.partitions.Lock(incident.OrganizationID)
	defer unlock()

	if err := m.db.First(incident, id).Error; err != nil {
		return nil, err
	}
	if incident.IsResolved() {
		return nil, fmt.Errorf("%w: incident %s is already resolved", engine.ErrConflict, incident.UUID)
	}

	now := time.Now()
	from := incident.Status
	updates := map[string]interface{}{
		"status":                  database.IncidentStatusResolved,
		"resolved_at":             now,
		"resolution_summary":      summary,
		"time_to_resolve_seconds": int64(now.Sub(incident.CreatedAt).Seconds()),
	}
	if incident.AcknowledgedAt == nil {
		updates["acknowledged_at"] = now
		updates["time_to_acknowledge_seconds"] = int64(now.Sub(incident.CreatedAt).Seconds())
	}
	if err := m.db.Model(incident).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventResolved, actor, summary,
		database.JSONB{"from": string(from)})

	if err := m.scheduler.CancelForIncident(incident.ID); err != nil {
		return nil, err
	}
	return m.Get(id)
}

// SetPostmortem records the postmortem link and completion flag
func (m *Manager) SetPostmortem(id uint, url string, completed bool, actor string) (*database.ManagedIncident, error) {
	incident, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"postmortem_url":       url,
		"postmortem_completed": completed,
	}
	if err := m.db.Model(incident).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update postmortem: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventStatusChanged, actor, "Postmortem updated",
		database.JSONB{"postmortem_url": url, "completed": completed})
	return m.Get(id)
}

// AddNote appends an operator note to an open or resolved incident
func (m *Manager) AddNote(id uint, author, body string, visibility database.NoteVisibility) (*database.IncidentNote, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", engine.ErrValidation)
	}
	if visibility == "" {
		visibility = database.NoteVisibilityInternal
	}

	incident, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	note := &database.IncidentNote{
		IncidentID: incident.ID,
		Author:     author,
		Body:       body,
		Visibility: visibility,
	}
	if err := m.db.Create(note).Error; err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventNoteAdded, author, "Note added", nil)
	return note, nil
}

// AddResponder assigns a responder to an incident
func (m *Manager) AddResponder(id uint, name, email string, role database.ResponderRole) (*database.IncidentResponder, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: responder name is required", engine.ErrValidation)
	}
	if role == "" {
		role = database.ResponderRoleObserver
	}

	incident, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	responder := &database.IncidentResponder{
		IncidentID: incident.ID,
		Name:       name,
		Email:      email,
		Role:       role,
		AssignedAt: time.Now(),
	}
	if err := m.db.Create(responder).Error; err != nil {
		return nil, fmt.Errorf("failed to add responder: %w", err)
	}
	m.appendTimeline(incident.ID, database.TimelineEventResponderAdded, name,
		fmt.Sprintf("%s assigned as %s responder", name, role), nil)
	return responder, nil
}

// RemoveResponder unassigns a responder
func (m *Manager) RemoveResponder(incidentID, responderID uint, actor string) error {
	var responder database.IncidentResponder
	err := m.db.Where("id = ? AND incident_id = ?", responderID, incidentID).First(&responder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: responder %d on incident %d", engine.ErrNotFound, responderID, incidentID)
		}
		return err
	}
	if err := m.db.Delete(&responder).Error; err != nil {
		return fmt.Errorf("failed to remove responder: %w", err)
	}
	m.appendTimeline(incidentID, database.TimelineEventResponderRemoved, actor,
		fmt.Sprintf("%s unassigned", responder.Name), nil)
	return nil
}

func (m *Manager) appendTimeline(incidentID uint, eventType, actor, detail string, metadata database.JSONB) {
	event := &database.IncidentTimelineEvent{
		IncidentID: incidentID,
		EventType:  eventType,
		Actor:      actor,
		Detail:     detail,
		Metadata:   metadata,
	}
	if err := m.db.Create(event).Error; err != nil {
		// A lost audit row must not fail the mutation it describes.
		log.Printf("Failed to append timeline event for incident %d: %v", incidentID, err)
	}
}

func validStatus(status database.IncidentStatus) bool {
	for _, s := range database.ValidIncidentStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
