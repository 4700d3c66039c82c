package incidents

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
	"gorm.io/gorm"
)

func newManager(db *gorm.DB) *Manager {
	partitions := engine.NewPartitions()
	scheduler := escalation.NewScheduler(db, notify.NewRegistry(), partitions)
	return NewManager(db, partitions, scheduler)
}

func createIncident(t *testing.T, m *Manager) *database.ManagedIncident {
	t.Helper()
	incident, err := m.Create(CreateParams{
		OrganizationID: 1,
		Title:          "API checks failing",
		Severity:       database.AlertSeverityCritical,
		Actor:          "alice",
	})
	if err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	return incident
}

func TestCreateIncident(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)

	incident := createIncident(t, m)
	if incident.Status != database.IncidentStatusTriggered {
		t.Errorf("new incident should be triggered, got %s", incident.Status)
	}
	if incident.Priority != database.IncidentPriorityP1 {
		t.Errorf("critical severity should map to P1, got %s", incident.Priority)
	}
	if incident.Source != database.IncidentSourceManual {
		t.Errorf("default source should be manual, got %s", incident.Source)
	}

	loaded, err := m.Get(incident.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(loaded.Timeline) != 1 || loaded.Timeline[0].EventType != database.TimelineEventCreated {
		t.Error("creation should append a timeline event")
	}
}

func TestCreateIncidentValidation(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)

	if _, err := m.Create(CreateParams{OrganizationID: 1}); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("missing title should fail validation, got %v", err)
	}
	if _, err := m.Create(CreateParams{Title: "no org"}); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("missing organization should fail validation, got %v", err)
	}
}

func TestCreateArmsDefaultPolicy(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	testhelpers.NewEscalationPolicyBuilder().WithLevels(5).AsDefault().Create(t, db)

	incident := createIncident(t, m)

	var instance database.EscalationInstance
	if err := db.Where("incident_id = ?", incident.ID).First(&instance).Error; err != nil {
		t.Fatalf("expected an armed escalation for the incident: %v", err)
	}
	if instance.Status != database.EscalationStatusArmed {
		t.Errorf("expected armed, got %s", instance.Status)
	}
}

func TestPromoteGroup(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	now := time.Now()

	group := &database.AlertGroup{
		UUID:           uuid.NewString(),
		OrganizationID: 1,
		RuleID:         1,
		GroupKey:       "r1|check-1",
		Status:         database.GroupStatusActive,
		AlertCount:     2,
		FirstAlertAt:   now,
		LastAlertAt:    now,
		NotifyAfter:    now,
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	alert := testhelpers.NewAlertBuilder().WithSeverity(database.AlertSeverityHigh).OccurredAt(now).Build()
	alert.GroupID = &group.ID
	if err := db.Create(alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	incident, err := m.PromoteGroup(group.ID, "alice")
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if incident.GroupID == nil || *incident.GroupID != group.ID {
		t.Error("incident should reference the promoted group")
	}
	if incident.Source != database.IncidentSourceAlert {
		t.Errorf("promoted incident source should be alert, got %s", incident.Source)
	}
	if !strings.Contains(incident.Title, alert.CheckName) {
		t.Errorf("title should name the failing check, got %q", incident.Title)
	}
	if incident.Severity != database.AlertSeverityHigh {
		t.Errorf("severity should come from the latest alert, got %s", incident.Severity)
	}

	if _, err := m.PromoteGroup(group.ID, "bob"); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("promoting twice should conflict, got %v", err)
	}
	if _, err := m.PromoteGroup(9999, "bob"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("promoting a missing group should be not found, got %v", err)
	}
}

func TestPromoteCorrelation(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	now := time.Now()

	primary := testhelpers.NewAlertBuilder().OccurredAt(now).Build()
	if err := db.Create(primary).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}
	cluster := &database.AlertCorrelation{
		UUID:           uuid.NewString(),
		OrganizationID: 1,
		Reason:         database.CorrelationReasonSameCheck,
		PrimaryAlertID: primary.ID,
		AlertCount:     3,
		Status:         database.CorrelationStatusActive,
		LastAlertAt:    now,
	}
	if err := db.Create(cluster).Error; err != nil {
		t.Fatalf("failed to create cluster: %v", err)
	}

	incident, err := m.PromoteCorrelation(cluster.ID, "alice")
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if incident.CorrelationID == nil || *incident.CorrelationID != cluster.ID {
		t.Error("incident should reference the promoted cluster")
	}

	if _, err := m.PromoteCorrelation(cluster.ID, "bob"); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("promoting twice should conflict, got %v", err)
	}
	if _, err := m.PromoteCorrelation(9999, "bob"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("promoting a missing cluster should be not found, got %v", err)
	}
}

func TestStatusMachine(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	incident := createIncident(t, m)

	if _, err := m.UpdateStatus(incident.ID, "exploded", "alice"); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("unknown status should fail validation, got %v", err)
	}
	if _, err := m.UpdateStatus(incident.ID, database.IncidentStatusResolved, "alice"); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("resolving through UpdateStatus should fail validation, got %v", err)
	}

	acked, err := m.UpdateStatus(incident.ID, database.IncidentStatusAcknowledged, "alice")
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if acked.AcknowledgedAt == nil {
		t.Error("acknowledge should stamp the incident")
	}

	// Same status is a no-op, not an error
	if _, err := m.UpdateStatus(incident.ID, database.IncidentStatusAcknowledged, "alice"); err != nil {
		t.Errorf("repeated status should be accepted: %v", err)
	}

	// Movement among non-terminal states is unrestricted
	for _, status := range []database.IncidentStatus{
		database.IncidentStatusInvestigating,
		database.IncidentStatusIdentified,
		database.IncidentStatusMonitoring,
		database.IncidentStatusTriggered,
	} {
		if _, err := m.UpdateStatus(incident.ID, status, "alice"); err != nil {
			t.Errorf("transition to %s failed: %v", status, err)
		}
	}
}

func TestAcknowledgeSettlesEscalations(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	testhelpers.NewEscalationPolicyBuilder().WithLevels(5).AsDefault().Create(t, db)
	incident := createIncident(t, m)

	if _, err := m.UpdateStatus(incident.ID, database.IncidentStatusAcknowledged, "alice"); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}

	var instance database.EscalationInstance
	if err := db.Where("incident_id = ?", incident.ID).First(&instance).Error; err != nil {
		t.Fatalf("escalation instance missing: %v", err)
	}
	if instance.Status != database.EscalationStatusAcknowledged {
		t.Errorf("acknowledging the incident should settle its escalation, got %s", instance.Status)
	}
}

func TestResolve(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	testhelpers.NewEscalationPolicyBuilder().WithLevels(5).AsDefault().Create(t, db)
	incident := createIncident(t, m)

	if _, err := m.Resolve(incident.ID, "", "alice"); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("empty summary should fail validation, got %v", err)
	}

	resolved, err := m.Resolve(incident.ID, "rolled back the deploy", "alice")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != database.IncidentStatusResolved || resolved.ResolvedAt == nil {
		t.Error("resolve should reach the terminal state")
	}
	if resolved.ResolutionSummary != "rolled back the deploy" {
		t.Errorf("unexpected summary %q", resolved.ResolutionSummary)
	}
	if resolved.AcknowledgedAt == nil {
		t.Error("resolving an unacknowledged incident should stamp acknowledgement too")
	}

	if _, err := m.Resolve(incident.ID, "again", "bob"); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("resolving twice should conflict, got %v", err)
	}
	if _, err := m.UpdateStatus(incident.ID, database.IncidentStatusInvestigating, "bob"); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("resolved is terminal, got %v", err)
	}

	var instance database.EscalationInstance
	if err := db.Where("incident_id = ?", incident.ID).First(&instance).Error; err != nil {
		t.Fatalf("escalation instance missing: %v", err)
	}
	if instance.Status != database.EscalationStatusCancelled {
		t.Errorf("resolving should cancel the escalation, got %s", instance.Status)
	}
}

func TestNotesAndResponders(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	incident := createIncident(t, m)

	if _, err := m.AddNote(incident.ID, "alice", "", ""); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("empty note should fail validation, got %v", err)
	}
	note, err := m.AddNote(incident.ID, "alice", "checked the load balancer", "")
	if err != nil {
		t.Fatalf("add note failed: %v", err)
	}
	if note.Visibility != database.NoteVisibilityInternal {
		t.Errorf("default visibility should be internal, got %s", note.Visibility)
	}

	if _, err := m.AddResponder(incident.ID, "", "bob@example.com", ""); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("responder without a name should fail validation, got %v", err)
	}
	responder, err := m.AddResponder(incident.ID, "Bob", "bob@example.com", database.ResponderRolePrimary)
	if err != nil {
		t.Fatalf("add responder failed: %v", err)
	}

	loaded, _ := m.Get(incident.ID)
	if len(loaded.Notes) != 1 || len(loaded.Responders) != 1 {
		t.Fatalf("expected 1 note and 1 responder, got %d/%d", len(loaded.Notes), len(loaded.Responders))
	}

	if err := m.RemoveResponder(incident.ID, responder.ID, "alice"); err != nil {
		t.Fatalf("remove responder failed: %v", err)
	}
	if err := m.RemoveResponder(incident.ID, responder.ID, "alice"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("removing twice should be not found, got %v", err)
	}
}

func TestTimelineIsAppendOnly(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	incident := createIncident(t, m)

	m.UpdateStatus(incident.ID, database.IncidentStatusAcknowledged, "alice")
	m.AddNote(incident.ID, "alice", "found the culprit", database.NoteVisibilityPublic)
	m.Resolve(incident.ID, "reverted config", "alice")

	loaded, err := m.Get(incident.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	want := []string{
		database.TimelineEventCreated,
		database.TimelineEventStatusChanged,
		database.TimelineEventNoteAdded,
		database.TimelineEventResolved,
	}
	if len(loaded.Timeline) != len(want) {
		t.Fatalf("expected %d timeline events, got %d", len(want), len(loaded.Timeline))
	}
	for i, eventType := range want {
		if loaded.Timeline[i].EventType != eventType {
			t.Errorf("timeline[%d] = %s; want %s", i, loaded.Timeline[i].EventType, eventType)
		}
	}
}

func TestSetPostmortem(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)
	incident := createIncident(t, m)

	updated, err := m.SetPostmortem(incident.ID, "https://wiki.example.com/pm/42", true, "alice")
	if err != nil {
		t.Fatalf("set postmortem failed: %v", err)
	}
	if updated.PostmortemURL != "https://wiki.example.com/pm/42" || !updated.PostmortemCompleted {
		t.Error("postmortem fields should be recorded")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)

	open := createIncident(t, m)
	done := createIncident(t, m)
	if _, err := m.Resolve(done.ID, "noise", "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	all, err := m.List(1, ListFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 incidents, got %d (%v)", len(all), err)
	}
	triggered, err := m.List(1, ListFilter{Status: database.IncidentStatusTriggered})
	if err != nil || len(triggered) != 1 || triggered[0].ID != open.ID {
		t.Fatalf("expected only the open incident, got %d (%v)", len(triggered), err)
	}
}

func TestListFiltersBySeverityAndSource(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	m := newManager(db)

	critical := createIncident(t, m)
	low, err := m.Create(CreateParams{
		OrganizationID: 1,
		Title:          "Minor latency bump",
		Severity:       database.AlertSeverityLow,
		Source:         database.IncidentSourceAlert,
	})
	if err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}

	bySeverity, err := m.List(1, ListFilter{Severity: database.AlertSeverityCritical})
	if err != nil || len(bySeverity) != 1 || bySeverity[0].ID != critical.ID {
		t.Fatalf("expected only the critical incident, got %d (%v)", len(bySeverity), err)
	}

	bySource, err := m.List(1, ListFilter{Source: database.IncidentSourceAlert})
	if err != nil || len(bySource) != 1 || bySource[0].ID != low.ID {
		t.Fatalf("expected only the alert-sourced incident, got %d (%v)", len(bySource), err)
	}

	both, err := m.List(1, ListFilter{Severity: database.AlertSeverityLow, Source: database.IncidentSourceAlert})
	if err != nil || len(both) != 1 {
		t.Fatalf("combined filters should intersect, got %d (%v)", len(both), err)
	}
}
