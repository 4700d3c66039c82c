package handlers

import (
	"fmt"
	"net/http"
	"reflect"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

// The routing, escalation and on-call configs all persist nested structures
// as JSONB. These tests drive each resource through the API and compare the
// nested payloads field by field, so a codec that drops or renames a field
// shows up as a diff rather than a silently emptier config.

func TestRoutingRuleAPIRoundTrip(t *testing.T) {
	db, mux := newTestAPI(t)

	conditions := database.RoutingConditionList{
		{Field: database.ConditionFieldSeverity, Operator: database.OperatorEquals, Value: "critical"},
		{Field: database.ConditionFieldTag, Key: "env", Operator: database.OperatorEquals, Value: "prod"},
	}
	destinations := database.RoutingDestinationList{
		{Type: database.DestinationSlack, Name: "ops-channel", Config: map[string]interface{}{"webhook_url": "https://hooks.slack.invalid/T123", "channel": "#ops"}},
		{Type: database.DestinationWebhook, Name: "pager-bridge", Config: map[string]interface{}{"url": "https://bridge.example.invalid/hook"}},
	}

	var created database.AlertRoutingRule
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alert-routing/rules", nil).
		WithJSONBody(api.RoutingRuleRequest{
			Name:           "prod criticals",
			Conditions:     conditions,
			ConditionMatch: "any",
			Destinations:   destinations,
			Priority:       10,
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.ID == 0 || created.ConditionMatch != database.ConditionMatchAny {
		t.Fatalf("unexpected created rule %+v", created)
	}

	var fetched database.AlertRoutingRule
	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/alert-routing/rules/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&fetched)
	if !reflect.DeepEqual(fetched.Conditions, conditions) {
		t.Errorf("conditions changed across storage:\n got %+v\nwant %+v", fetched.Conditions, conditions)
	}
	if !reflect.DeepEqual(fetched.Destinations, destinations) {
		t.Errorf("destinations changed across storage:\n got %+v\nwant %+v", fetched.Destinations, destinations)
	}

	// Update replaces the nested lists wholesale
	var updated database.AlertRoutingRule
	testhelpers.NewHTTPTestContext(t, http.MethodPatch,
		fmt.Sprintf("/api/alert-routing/rules/%d", created.ID), nil).
		WithJSONBody(api.RoutingRuleRequest{
			Name:         "prod criticals",
			Destinations: destinations[:1],
			Priority:     10,
		}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&updated)
	if len(updated.Conditions) != 0 || len(updated.Destinations) != 1 {
		t.Errorf("update should replace nested lists, got %+v", updated)
	}

	// Unknown destination types never reach storage
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alert-routing/rules", nil).
		WithJSONBody(api.RoutingRuleRequest{
			Name:         "bad",
			Destinations: database.RoutingDestinationList{{Type: "carrier-pigeon", Name: "x"}},
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("destinations")

	testhelpers.NewHTTPTestContext(t, http.MethodDelete,
		fmt.Sprintf("/api/alert-routing/rules/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusNoContent)
	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/alert-routing/rules/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusNotFound)
	testhelpers.AssertCount(t, db, &database.AlertRoutingRule{}, 1, 0)
}

func TestEscalationPolicyAPIRoundTrip(t *testing.T) {
	db, mux := newTestAPI(t)

	levels := database.EscalationLevelList{
		{EscalateAfterMinutes: 0, Targets: []database.EscalationTarget{
			{Type: database.EscalationTargetEmail, Value: "primary@example.com"},
		}},
		{EscalateAfterMinutes: 15, Targets: []database.EscalationTarget{
			{Type: database.EscalationTargetEmail, Value: "manager@example.com"},
			{Type: database.EscalationTargetWebhook, Value: "https://pager.example.invalid/hook"},
		}},
	}

	var created database.EscalationPolicy
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/escalation-policies", nil).
		WithJSONBody(api.EscalationPolicyRequest{
			Name:                  "business hours",
			Levels:                levels,
			RepeatPolicy:          "repeat_until_acknowledged",
			RepeatIntervalMinutes: 20,
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.RepeatPolicy != database.RepeatPolicyUntilAcknowledged {
		t.Fatalf("unexpected created policy %+v", created)
	}

	var fetched database.EscalationPolicy
	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/escalation-policies/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&fetched)
	if !reflect.DeepEqual(fetched.Levels, levels) {
		t.Errorf("levels changed across storage:\n got %+v\nwant %+v", fetched.Levels, levels)
	}
	if fetched.RepeatIntervalMinutes != 20 {
		t.Errorf("expected repeat interval 20, got %d", fetched.RepeatIntervalMinutes)
	}

	// Offsets must not decrease between levels
	testhelpers.NewHTTPTestContext(t, http.MethodPatch,
		fmt.Sprintf("/api/escalation-policies/%d", created.ID), nil).
		WithJSONBody(api.EscalationPolicyRequest{
			Name: "business hours",
			Levels: database.EscalationLevelList{
				{EscalateAfterMinutes: 10, Targets: levels[0].Targets},
				{EscalateAfterMinutes: 5, Targets: levels[1].Targets},
			},
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)

	var updated database.EscalationPolicy
	testhelpers.NewHTTPTestContext(t, http.MethodPatch,
		fmt.Sprintf("/api/escalation-policies/%d", created.ID), nil).
		WithJSONBody(api.EscalationPolicyRequest{
			Name:   "after hours",
			Levels: levels[:1],
		}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&updated)
	if updated.Name != "after hours" || len(updated.Levels) != 1 {
		t.Errorf("update should replace the level list, got %+v", updated)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodDelete,
		fmt.Sprintf("/api/escalation-policies/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusNoContent)
	testhelpers.AssertCount(t, db, &database.EscalationPolicy{}, 1, 0)
}

func TestOnCallScheduleAPIRoundTrip(t *testing.T) {
	db, mux := newTestAPI(t)

	members := database.OnCallMemberList{
		{Name: "Alice", Email: "alice@example.com", Phone: "+15550100"},
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Carol", Email: "carol@example.com", Phone: "+15550102"},
	}

	var created database.OnCallSchedule
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/on-call", nil).
		WithJSONBody(api.OnCallScheduleRequest{
			Name:                 "platform rotation",
			Members:              members,
			RotationType:         "custom",
			RotationIntervalDays: 3,
			Timezone:             "Europe/Berlin",
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.RotationType != database.RotationCustom || created.RotationIntervalDays != 3 {
		t.Fatalf("unexpected created schedule %+v", created)
	}

	var fetched database.OnCallSchedule
	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/on-call/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&fetched)
	if !reflect.DeepEqual(fetched.Members, members) {
		t.Errorf("members changed across storage:\n got %+v\nwant %+v", fetched.Members, members)
	}

	var current struct {
		Index  int                   `json:"index"`
		Member database.OnCallMember `json:"member"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet,
		fmt.Sprintf("/api/on-call/%d/current", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&current)
	if current.Member.Name != "Alice" {
		t.Errorf("fresh schedule should start with the first member, got %+v", current)
	}

	var updated database.OnCallSchedule
	testhelpers.NewHTTPTestContext(t, http.MethodPatch,
		fmt.Sprintf("/api/on-call/%d", created.ID), nil).
		WithJSONBody(api.OnCallScheduleRequest{
			Name:    "platform rotation",
			Members: members[:2],
		}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&updated)
	if len(updated.Members) != 2 {
		t.Errorf("update should replace the member list, got %+v", updated.Members)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodDelete,
		fmt.Sprintf("/api/on-call/%d", created.ID), nil).
		Execute(mux).
		AssertStatus(http.StatusNoContent)
	testhelpers.AssertCount(t, db, &database.OnCallSchedule{}, 1, 0)
}
