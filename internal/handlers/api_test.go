package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/incidents"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/routing"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
	"gorm.io/gorm"
)

// newTestAPI wires the full handler stack against an isolated database.
func newTestAPI(t *testing.T) (*gorm.DB, *http.ServeMux) {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	registry := notify.NewRegistry()
	eng := engine.New(db)
	router := routing.New(db, registry)
	scheduler := escalation.NewScheduler(db, registry, eng.Partitions)
	oncall := escalation.NewOnCall(db)
	manager := incidents.NewManager(db, eng.Partitions, scheduler)

	mux := http.NewServeMux()
	NewHTTPHandler(eng, "test").SetupRoutes(mux)
	NewAPIHandler(db, eng, router, scheduler, oncall, manager).SetupRoutes(mux)
	return db, mux
}

func ingestAlert(t *testing.T, mux *http.ServeMux, req api.IngestAlertRequest) api.IngestAlertResponse {
	t.Helper()
	var resp api.IngestAlertResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alerts", nil).
		WithJSONBody(req).
		Execute(mux).
		AssertStatus(http.StatusAccepted).
		DecodeJSON(&resp)
	return resp
}

func groupIDByUUID(t *testing.T, db *gorm.DB, uuid string) uint {
	t.Helper()
	var group database.AlertGroup
	if err := db.Where("uuid = ?", uuid).First(&group).Error; err != nil {
		t.Fatalf("failed to load group %s: %v", uuid, err)
	}
	return group.ID
}

func TestHealthEndpoint(t *testing.T) {
	_, mux := newTestAPI(t)
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/health", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"status":"ok"`).
		AssertBodyContains(`"version":"test"`)
}

func TestIngestWebhookRoundTrip(t *testing.T) {
	_, mux := newTestAPI(t)

	req := api.IngestAlertRequest{
		CheckID:      "check-1",
		CheckName:    "API uptime",
		CheckType:    "uptime",
		Severity:     "high",
		ErrorMessage: "connection refused",
	}
	first := ingestAlert(t, mux, req)
	if first.Status != "accepted" {
		t.Errorf("expected accepted, got %s", first.Status)
	}
	if first.AlertUUID == "" || first.GroupUUID == "" {
		t.Errorf("expected alert and group UUIDs, got %+v", first)
	}

	second := ingestAlert(t, mux, req)
	if second.Status != "deduplicated" {
		t.Errorf("expected deduplicated, got %s", second.Status)
	}
	if second.GroupUUID != first.GroupUUID {
		t.Errorf("duplicate should join the same group: %s vs %s", second.GroupUUID, first.GroupUUID)
	}
}

func TestIngestWebhookValidation(t *testing.T) {
	_, mux := newTestAPI(t)

	// Missing required check_id
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alerts", nil).
		WithJSONBody(api.IngestAlertRequest{CheckName: "no id"}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("check_id")

	// Malformed JSON
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alerts",
		testhelpers.MustJSON(t, "not an object")).
		Execute(mux).
		AssertStatus(http.StatusBadRequest)
}

func TestGroupingRuleCRUD(t *testing.T) {
	db, mux := newTestAPI(t)

	var created database.AlertGroupingRule
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alert-grouping/rules", nil).
		WithJSONBody(api.GroupingRuleRequest{
			Name:              "by check",
			GroupBy:           []string{"check_id", "location"},
			TimeWindowSeconds: 600,
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.ID == 0 || created.MaxAlertsPerGroup != 100 {
		t.Errorf("unexpected created rule %+v", created)
	}
	if !created.DeduplicationEnabled || !created.Enabled {
		t.Error("dedup and enabled should default to true")
	}

	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/alert-grouping/rules/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("by check")

	testhelpers.NewHTTPTestContext(t, http.MethodPatch,
		fmt.Sprintf("/api/alert-grouping/rules/%d", created.ID), nil).
		WithJSONBody(api.GroupingRuleRequest{
			Name:              "renamed",
			GroupBy:           []string{"check_id"},
			TimeWindowSeconds: 300,
		}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("renamed")

	testhelpers.NewHTTPTestContext(t, http.MethodDelete,
		fmt.Sprintf("/api/alert-grouping/rules/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusNoContent)

	testhelpers.AssertCount(t, db, &database.AlertGroupingRule{}, 1, 0)
}

func TestGroupingRuleRejectsUnknownDimension(t *testing.T) {
	_, mux := newTestAPI(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alert-grouping/rules", nil).
		WithJSONBody(api.GroupingRuleRequest{
			Name:              "bad",
			GroupBy:           []string{"hostname"},
			TimeWindowSeconds: 60,
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("group_by")
}

func TestGroupingRuleNotFound(t *testing.T) {
	_, mux := newTestAPI(t)
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/alert-grouping/rules/999", nil).
		Execute(mux).
		AssertStatus(http.StatusNotFound).
		AssertBodyContains("not_found")

	// Non-numeric ids never reach the database
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/alert-grouping/rules/abc", nil).
		Execute(mux).
		AssertStatus(http.StatusBadRequest)
}

func TestGroupActionEndpoints(t *testing.T) {
	db, mux := newTestAPI(t)

	resp := ingestAlert(t, mux, api.IngestAlertRequest{CheckID: "check-1", Severity: "high"})
	id := groupIDByUUID(t, db, resp.GroupUUID)

	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/acknowledge", id), nil).
		WithJSONBody(api.AcknowledgeRequest{By: "alice"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"status":"acknowledged"`)

	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/resolve", id), nil).
		WithJSONBody(api.ResolveGroupRequest{Notes: "fixed"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"status":"resolved"`)

	// Resolved groups are terminal
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/resolve", id), nil).
		WithJSONBody(api.ResolveGroupRequest{}).
		Execute(mux).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("conflict")
}

func TestGroupSnoozeEndpoints(t *testing.T) {
	db, mux := newTestAPI(t)

	resp := ingestAlert(t, mux, api.IngestAlertRequest{CheckID: "check-1"})
	id := groupIDByUUID(t, db, resp.GroupUUID)

	// Snooze needs a positive duration
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/snooze", id), nil).
		WithJSONBody(map[string]interface{}{}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("duration_hours")

	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/snooze", id), nil).
		WithJSONBody(api.SnoozeGroupRequest{DurationHours: 2, By: "bob"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("snoozed_until")

	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/unsnooze", id), nil).
		Execute(mux).
		AssertStatus(http.StatusOK)
}

func TestGroupNotFound(t *testing.T) {
	_, mux := newTestAPI(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		"/api/alert-grouping/groups/999/acknowledge", nil).
		Execute(mux).
		AssertStatus(http.StatusNotFound).
		AssertBodyContains("not_found")
}

func TestPromoteGroupEndpoint(t *testing.T) {
	db, mux := newTestAPI(t)

	resp := ingestAlert(t, mux, api.IngestAlertRequest{
		CheckID: "check-1", CheckName: "API uptime", Severity: "critical",
	})
	id := groupIDByUUID(t, db, resp.GroupUUID)

	var incident database.ManagedIncident
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/promote", id), nil).
		WithJSONBody(api.PromoteRequest{Actor: "alice"}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&incident)
	if incident.Priority != database.IncidentPriorityP1 {
		t.Errorf("critical group should promote to P1, got %s", incident.Priority)
	}

	// A group backs at most one incident
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/alert-grouping/groups/%d/promote", id), nil).
		Execute(mux).
		AssertStatus(http.StatusConflict)
}

func TestListGroupsEnvelope(t *testing.T) {
	_, mux := newTestAPI(t)

	ingestAlert(t, mux, api.IngestAlertRequest{CheckID: "check-a"})
	ingestAlert(t, mux, api.IngestAlertRequest{CheckID: "check-b"})

	var envelope struct {
		Data  []api.GroupListItem `json:"data"`
		Total int64               `json:"total"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/alert-grouping/groups?per_page=1", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&envelope)
	if envelope.Total != 2 || len(envelope.Data) != 1 {
		t.Errorf("expected total 2 with 1 page item, got total %d len %d", envelope.Total, len(envelope.Data))
	}
}

func TestIncidentEndpoints(t *testing.T) {
	_, mux := newTestAPI(t)

	var incident database.ManagedIncident
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents", nil).
		WithJSONBody(api.CreateIncidentRequest{
			Title:    "Checkout down",
			Severity: "high",
			Actor:    "alice",
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&incident)
	if incident.Status != database.IncidentStatusTriggered {
		t.Fatalf("new incident should be triggered, got %s", incident.Status)
	}

	base := fmt.Sprintf("/api/incidents/%d", incident.ID)

	// Resolution has its own endpoint
	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/status", nil).
		WithJSONBody(api.UpdateIncidentStatusRequest{Status: "resolved"}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/status", nil).
		WithJSONBody(api.UpdateIncidentStatusRequest{Status: "acknowledged", Actor: "bob"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("acknowledged_at")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/notes", nil).
		WithJSONBody(api.AddNoteRequest{Author: "bob", Body: "db failover in progress"}).
		Execute(mux).
		AssertStatus(http.StatusCreated)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/resolve", nil).
		WithJSONBody(api.ResolveIncidentRequest{Summary: "failed node replaced", Actor: "bob"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("resolution_summary")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/resolve", nil).
		WithJSONBody(api.ResolveIncidentRequest{Summary: "again"}).
		Execute(mux).
		AssertStatus(http.StatusConflict)

	testhelpers.NewHTTPTestContext(t, http.MethodGet, base, nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("Checkout down")
}

func TestRotateOnCallSerializesConcurrentRequests(t *testing.T) {
	db, mux := newTestAPI(t)
	schedule := testhelpers.NewOnCallScheduleBuilder().Create(t, db)
	path := fmt.Sprintf("/api/on-call/%d/rotate", schedule.ID)

	const rotations = 10
	var wg sync.WaitGroup
	for i := 0; i < rotations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			testhelpers.NewHTTPTestContext(t, http.MethodPost, path, nil).
				Execute(mux).
				AssertStatus(http.StatusOK)
		}()
	}
	wg.Wait()

	var reloaded database.OnCallSchedule
	if err := db.First(&reloaded, schedule.ID).Error; err != nil {
		t.Fatalf("failed to reload schedule: %v", err)
	}
	want := rotations % len(schedule.Members)
	if reloaded.CurrentOnCallIndex != want {
		t.Errorf("expected index %d after %d rotations, got %d (lost rotation)",
			want, rotations, reloaded.CurrentOnCallIndex)
	}
}

func TestIncidentListFilters(t *testing.T) {
	_, mux := newTestAPI(t)

	for _, req := range []api.CreateIncidentRequest{
		{Title: "Checkout down", Severity: "critical"},
		{Title: "Slow search", Severity: "low"},
	} {
		testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents", nil).
			WithJSONBody(req).
			Execute(mux).
			AssertStatus(http.StatusCreated)
	}

	var critical []api.IncidentListItem
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/incidents?severity=critical", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&critical)
	if len(critical) != 1 || critical[0].Title != "Checkout down" {
		t.Errorf("severity filter should return only the critical incident, got %+v", critical)
	}

	var manual []api.IncidentListItem
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/incidents?source=manual", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&manual)
	if len(manual) != 2 {
		t.Errorf("both incidents are manual, got %d", len(manual))
	}

	var none []api.IncidentListItem
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/incidents?source=alert", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&none)
	if len(none) != 0 {
		t.Errorf("no incident came from an alert, got %d", len(none))
	}
}

func TestIncidentResponderEndpoints(t *testing.T) {
	_, mux := newTestAPI(t)

	var incident database.ManagedIncident
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents", nil).
		WithJSONBody(api.CreateIncidentRequest{Title: "Slow queries"}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&incident)

	var responder database.IncidentResponder
	testhelpers.NewHTTPTestContext(t, http.MethodPost,
		fmt.Sprintf("/api/incidents/%d/responders", incident.ID), nil).
		WithJSONBody(api.AddResponderRequest{Name: "carol", Role: "primary"}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&responder)

	path := fmt.Sprintf("/api/incidents/%d/responders/%d", incident.ID, responder.ID)
	testhelpers.NewHTTPTestContext(t, http.MethodDelete, path, nil).
		Execute(mux).
		AssertStatus(http.StatusNoContent)

	testhelpers.NewHTTPTestContext(t, http.MethodDelete, path, nil).
		Execute(mux).
		AssertStatus(http.StatusNotFound)
}
