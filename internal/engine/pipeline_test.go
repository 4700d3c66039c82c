package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
	"gorm.io/gorm"
)

type capturedEvents struct {
	events []Event
}

func (c *capturedEvents) Publish(event Event) {
	c.events = append(c.events, event)
}

func (c *capturedEvents) types() []string {
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type capturedSummaries struct {
	routed []*database.Alert
}

func (c *capturedSummaries) RouteAlert(alert *database.Alert) error {
	c.routed = append(c.routed, alert)
	return nil
}

func createRateLimit(t *testing.T, db *gorm.DB, max int, mode database.SuppressionMode, threshold int) {
	t.Helper()
	cfg := &database.RateLimitConfig{
		OrganizationID:     1,
		Enabled:            true,
		TimeWindowSeconds:  60,
		MaxAlertsPerWindow: max,
		SuppressionMode:    mode,
		AggregateThreshold: threshold,
	}
	if err := db.Create(cfg).Error; err != nil {
		t.Fatalf("failed to create rate limit config: %v", err)
	}
}

func TestIngestAccepted(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)

	result, err := eng.Ingest(testhelpers.NewAlertBuilder().Build())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Status != IngestAccepted {
		t.Fatalf("expected accepted, got %s", result.Status)
	}
	if result.Group == nil {
		t.Error("accepted alert should be grouped")
	}
	if result.Correlation == nil {
		t.Error("accepted alert should be correlated")
	}
	if result.Alert.Fingerprint == "" {
		t.Error("accepted alert should carry a fingerprint")
	}

	var stored database.Alert
	if err := db.First(&stored, result.Alert.ID).Error; err != nil {
		t.Fatalf("alert not persisted: %v", err)
	}
	if stored.GroupID == nil || stored.Fingerprint == "" {
		t.Error("pipeline outcome should be persisted on the alert")
	}
}

func TestIngestRequiresOrganization(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)

	alert := testhelpers.NewAlertBuilder().Build()
	alert.OrganizationID = 0
	if _, err := eng.Ingest(alert); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestIngestDeduplicatedJoinsGroupWithoutCreating(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)

	first, err := eng.Ingest(testhelpers.NewAlertBuilder().Build())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	second, err := eng.Ingest(testhelpers.NewAlertBuilder().Build())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if second.Status != IngestDeduplicated {
		t.Fatalf("expected deduplicated, got %s", second.Status)
	}
	if second.Group == nil || second.Group.ID != first.Group.ID {
		t.Error("duplicate should join the original group")
	}
	if !second.Alert.Deduplicated {
		t.Error("duplicate alert should be marked")
	}
	testhelpers.AssertCount(t, db, &database.AlertGroup{}, 1, 1)
}

func TestIngestSuppressedWithDropConfig(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)
	createRateLimit(t, db, 1, database.SuppressionModeDrop, 10)

	if result, err := eng.Ingest(testhelpers.NewAlertBuilder().WithCheckID("check-a").Build()); err != nil || result.Status != IngestAccepted {
		t.Fatalf("first alert should be accepted, got %v %v", result, err)
	}

	// Distinct check so dedup does not short-circuit the limiter
	result, err := eng.Ingest(testhelpers.NewAlertBuilder().WithCheckID("check-b").Build())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Status != IngestSuppressed {
		t.Fatalf("expected suppressed, got %s", result.Status)
	}
	if !result.Alert.Suppressed {
		t.Error("suppressed alert should be marked")
	}
	if result.Group != nil {
		t.Error("suppressed alert must not be grouped")
	}
}

func TestIngestAggregatedRoutesSummary(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)
	router := &capturedSummaries{}
	eng.SetSummaryRouter(router)
	createRateLimit(t, db, 1, database.SuppressionModeAggregate, 2)

	checks := testhelpers.Sequence("check", 3)
	var statuses []string
	for _, check := range checks {
		result, err := eng.Ingest(testhelpers.NewAlertBuilder().WithCheckID(check).Build())
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		statuses = append(statuses, result.Status)
	}
	if statuses[0] != IngestAccepted || statuses[1] != IngestAggregated || statuses[2] != IngestAggregated {
		t.Fatalf("unexpected statuses %v", statuses)
	}

	if len(router.routed) != 1 {
		t.Fatalf("expected one routed summary, got %d", len(router.routed))
	}
	if !router.routed[0].Synthetic {
		t.Error("routed summary should be synthetic")
	}

	var summaries int64
	db.Model(&database.Alert{}).Where("synthetic = ?", true).Count(&summaries)
	if summaries != 1 {
		t.Errorf("summary alert should be persisted once, got %d", summaries)
	}
}

func TestSweepRateLimitsFlushesQuietBuffers(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)
	router := &capturedSummaries{}
	eng.SetSummaryRouter(router)
	createRateLimit(t, db, 1, database.SuppressionModeAggregate, 10)

	eng.Ingest(testhelpers.NewAlertBuilder().WithCheckID("check-a").Build())
	eng.Ingest(testhelpers.NewAlertBuilder().WithCheckID("check-b").Build()) // buffered

	if flushed := eng.SweepRateLimits(time.Now().Add(30 * time.Second)); flushed != 0 {
		t.Errorf("sweep inside the window should flush nothing, got %d", flushed)
	}
	if flushed := eng.SweepRateLimits(time.Now().Add(61 * time.Second)); flushed != 1 {
		t.Errorf("sweep after the window should flush the buffer, got %d", flushed)
	}
	if len(router.routed) != 1 {
		t.Errorf("expected one routed summary, got %d", len(router.routed))
	}
}

func TestIngestPublishesEvents(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)
	sink := &capturedEvents{}
	eng.SetEventSink(sink)

	eng.Ingest(testhelpers.NewAlertBuilder().Build())
	eng.Ingest(testhelpers.NewAlertBuilder().Build())

	types := sink.types()
	if len(types) != 2 || types[0] != "alert.accepted" || types[1] != "alert.deduplicated" {
		t.Errorf("unexpected event types %v", types)
	}
	if sink.events[0].OrganizationID != 1 {
		t.Error("events should carry the organization")
	}
}

func TestSimulateGroupingPersistsNothing(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	eng := New(db)
	testhelpers.NewGroupingRuleBuilder().Create(t, db)

	batch := []*database.Alert{
		testhelpers.NewAlertBuilder().WithCheckID("check-a").Build(),
		testhelpers.NewAlertBuilder().WithCheckID("check-a").Build(),
		testhelpers.NewAlertBuilder().WithCheckID("check-b").Build(),
	}
	results, err := eng.SimulateGrouping(1, batch)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Duplicate || results[0].JoinsExisting {
		t.Error("first alert should be a fresh group")
	}
	if !results[1].Duplicate || !results[1].JoinsExisting {
		t.Error("repeated alert should be a duplicate joining the open group")
	}
	if results[2].Duplicate || results[2].JoinsExisting {
		t.Error("new check should simulate a fresh group")
	}
	if results[0].GroupKey == results[2].GroupKey {
		t.Error("different checks should have different group keys")
	}

	testhelpers.AssertCount(t, db, &database.Alert{}, 1, 0)
	testhelpers.AssertCount(t, db, &database.AlertGroup{}, 1, 0)
}
