package testhelpers

import (
	"net/http"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func TestNewTestDBMigratesAllModels(t *testing.T) {
	db := NewTestDB(t)

	for _, model := range database.Models() {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Errorf("model %T not migrated: %v", model, err)
		}
	}

	var org database.Organization
	if err := db.First(&org).Error; err != nil {
		t.Fatalf("default organization missing: %v", err)
	}
	if org.ID != 1 {
		t.Errorf("expected default organization ID 1, got %d", org.ID)
	}
}

func TestAlertBuilderProducesDistinctUUIDs(t *testing.T) {
	b := NewAlertBuilder().WithCheckID("check-9").WithSeverity(database.AlertSeverityCritical)

	a1 := b.Build()
	a2 := b.Build()

	if a1.UUID == a2.UUID {
		t.Error("expected distinct UUIDs from repeated Build calls")
	}
	if a1.CheckID != "check-9" || a2.CheckID != "check-9" {
		t.Error("builder settings should apply to every built alert")
	}
	if a1.Severity != database.AlertSeverityCritical {
		t.Errorf("expected critical severity, got %s", a1.Severity)
	}
}

func TestAlertBuilderCopiesTags(t *testing.T) {
	b := NewAlertBuilder().WithTag("team", "payments")

	a1 := b.Build()
	a1.Tags["team"] = "mutated"

	a2 := b.Build()
	if a2.TagValue("team") != "payments" {
		t.Errorf("tag map should be copied per alert, got %q", a2.TagValue("team"))
	}
}

func TestHTTPTestContext(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"ok":true}`))
	})

	var body struct {
		OK bool `json:"ok"`
	}
	NewHTTPTestContext(t, http.MethodGet, "/test", nil).
		Execute(handler).
		AssertStatus(http.StatusTeapot).
		AssertHeader("X-Test", "yes").
		AssertBodyContains("ok").
		DecodeJSON(&body)

	if !body.OK {
		t.Error("expected decoded body ok=true")
	}
}

func TestSequence(t *testing.T) {
	ids := Sequence("check", 3)
	if len(ids) != 3 || ids[0] != "check-1" || ids[2] != "check-3" {
		t.Errorf("unexpected sequence: %v", ids)
	}
}
