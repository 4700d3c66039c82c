package api

import (
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// ========== Alert Ingest Types ==========

// IngestAlertRequest is the request body for POST /webhook/alerts.
type IngestAlertRequest struct {
	OrganizationID uint              `json:"organization_id"`
	CheckID        string            `json:"check_id" validate:"required,min=1,max=128"`
	CheckName      string            `json:"check_name" validate:"omitempty,max=255"`
	CheckType      string            `json:"check_type" validate:"omitempty,max=64"`
	Location       string            `json:"location" validate:"omitempty,max=128"`
	Severity       string            `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
	ErrorMessage   string            `json:"error_message" validate:"omitempty,max=4096"`
	Tags           map[string]string `json:"tags"`
	OccurredAt     *time.Time        `json:"occurred_at"`
}

// IngestAlertResponse reports what the pipeline did with an ingested alert.
type IngestAlertResponse struct {
	Status        string `json:"status"`
	AlertUUID     string `json:"alert_uuid"`
	GroupUUID     string `json:"group_uuid,omitempty"`
	CorrelationID *uint  `json:"correlation_id,omitempty"`
}

// ========== Grouping Types ==========

// GroupingRuleRequest is the request body for creating or updating a
// grouping rule.
type GroupingRuleRequest struct {
	OrganizationID           uint     `json:"organization_id"`
	Name                     string   `json:"name" validate:"required,min=1,max=255"`
	GroupBy                  []string `json:"group_by" validate:"required,min=1"`
	TimeWindowSeconds        int      `json:"time_window_seconds" validate:"required,gt=0"`
	DeduplicationEnabled     *bool    `json:"deduplication_enabled"`
	MaxAlertsPerGroup        int      `json:"max_alerts_per_group" validate:"omitempty,gt=0"`
	NotificationDelaySeconds int      `json:"notification_delay_seconds" validate:"omitempty,gte=0"`
	Priority                 int      `json:"priority"`
	Enabled                  *bool    `json:"enabled"`
}

// SnoozeGroupRequest is the request body for snoozing a group.
type SnoozeGroupRequest struct {
	DurationHours int    `json:"duration_hours" validate:"required,gt=0"`
	By            string `json:"by" validate:"omitempty,max=128"`
}

// AcknowledgeRequest carries the acknowledging operator's name.
type AcknowledgeRequest struct {
	By string `json:"by" validate:"omitempty,max=128"`
}

// ResolveGroupRequest is the request body for resolving a group.
type ResolveGroupRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=4096"`
}

// SimulateGroupingRequest replays a batch of synthetic alerts through
// grouping without persisting anything.
type SimulateGroupingRequest struct {
	OrganizationID uint                 `json:"organization_id"`
	Alerts         []IngestAlertRequest `json:"alerts" validate:"required,min=1,dive"`
}

// ========== Routing Types ==========

// RoutingRuleRequest is the request body for creating or updating a routing
// rule.
type RoutingRuleRequest struct {
	OrganizationID     uint                            `json:"organization_id"`
	Name               string                          `json:"name" validate:"required,min=1,max=255"`
	Conditions         database.RoutingConditionList   `json:"conditions"`
	ConditionMatch     string                          `json:"condition_match" validate:"omitempty,oneof=all any"`
	Destinations       database.RoutingDestinationList `json:"destinations" validate:"required,min=1"`
	EscalationPolicyID *uint                           `json:"escalation_policy_id"`
	Priority           int                             `json:"priority"`
	Enabled            *bool                           `json:"enabled"`
}

// TestDestinationRequest is the request body for a one-off destination test.
type TestDestinationRequest struct {
	OrganizationID uint                        `json:"organization_id"`
	Destination    database.RoutingDestination `json:"destination"`
}

// SimulateRoutingRequest evaluates routing for a synthetic alert without
// delivering anything.
type SimulateRoutingRequest struct {
	OrganizationID uint              `json:"organization_id"`
	CheckID        string            `json:"check_id" validate:"required"`
	CheckName      string            `json:"check_name"`
	CheckType      string            `json:"check_type"`
	Location       string            `json:"location"`
	Severity       string            `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
	ErrorMessage   string            `json:"error_message"`
	Tags           map[string]string `json:"tags"`
}

// ========== Escalation Types ==========

// EscalationPolicyRequest is the request body for creating or updating an
// escalation policy.
type EscalationPolicyRequest struct {
	OrganizationID        uint                         `json:"organization_id"`
	Name                  string                       `json:"name" validate:"required,min=1,max=255"`
	Levels                database.EscalationLevelList `json:"levels" validate:"required,min=1"`
	RepeatPolicy          string                       `json:"repeat_policy" validate:"omitempty,oneof=once repeat_until_acknowledged"`
	RepeatIntervalMinutes int                          `json:"repeat_interval_minutes" validate:"omitempty,gt=0"`
	IsDefault             *bool                        `json:"is_default"`
	Enabled               *bool                        `json:"enabled"`
}

// ========== On-Call Types ==========

// OnCallScheduleRequest is the request body for creating or updating an
// on-call schedule.
type OnCallScheduleRequest struct {
	OrganizationID       uint                      `json:"organization_id"`
	Name                 string                    `json:"name" validate:"required,min=1,max=255"`
	Members              database.OnCallMemberList `json:"members" validate:"required,min=1"`
	RotationType         string                    `json:"rotation_type" validate:"omitempty,oneof=daily weekly custom"`
	RotationIntervalDays int                       `json:"rotation_interval_days" validate:"omitempty,gt=0"`
	Timezone             string                    `json:"timezone" validate:"omitempty,max=64"`
	Enabled              *bool                     `json:"enabled"`
}

// ========== Runbook Types ==========

// RunbookRequest is the request body for creating or updating a runbook.
type RunbookRequest struct {
	OrganizationID uint   `json:"organization_id"`
	Name           string `json:"name" validate:"required,min=1,max=255"`
	CheckType      string `json:"check_type" validate:"omitempty,max=64"`
	Severity       string `json:"severity" validate:"omitempty,oneof=all critical high medium low info"`
	URL            string `json:"url" validate:"omitempty,url,max=2048"`
	Instructions   string `json:"instructions" validate:"omitempty,max=16384"`
	Enabled        *bool  `json:"enabled"`
}

// ========== Settings Types ==========

// CorrelationSettingsRequest updates an organization's correlation settings.
type CorrelationSettingsRequest struct {
	Enabled             *bool `json:"enabled"`
	SimilarityThreshold *int  `json:"similarity_threshold" validate:"omitempty,gte=0,lte=100"`
	TimeWindowSeconds   *int  `json:"time_window_seconds" validate:"omitempty,gt=0"`
	MethodSameCheck     *bool `json:"method_same_check"`
	MethodSameLocation  *bool `json:"method_same_location"`
	MethodSimilarError  *bool `json:"method_similar_error"`
	MethodTimeProximity *bool `json:"method_time_proximity"`
}

// RateLimitConfigRequest updates an organization's rate-limit config.
type RateLimitConfigRequest struct {
	TimeWindowSeconds  *int    `json:"time_window_seconds" validate:"omitempty,gt=0"`
	MaxAlertsPerWindow *int    `json:"max_alerts_per_window" validate:"omitempty,gt=0"`
	SuppressionMode    *string `json:"suppression_mode" validate:"omitempty,oneof=drop aggregate"`
	AggregateThreshold *int    `json:"aggregate_threshold" validate:"omitempty,gt=0"`
	Enabled            *bool   `json:"enabled"`
}

// ========== Incident Types ==========

// CreateIncidentRequest is the request body for POST /api/incidents.
type CreateIncidentRequest struct {
	OrganizationID uint   `json:"organization_id"`
	Title          string `json:"title" validate:"required,min=1,max=255"`
	Description    string `json:"description" validate:"omitempty,max=16384"`
	Severity       string `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
	Actor          string `json:"actor" validate:"omitempty,max=128"`
}

// UpdateIncidentStatusRequest moves an incident to a new state. Resolution
// goes through ResolveIncidentRequest instead.
type UpdateIncidentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=triggered acknowledged investigating identified monitoring"`
	Actor  string `json:"actor" validate:"omitempty,max=128"`
}

// ResolveIncidentRequest closes an incident.
type ResolveIncidentRequest struct {
	Summary string `json:"summary" validate:"required,min=1,max=16384"`
	Actor   string `json:"actor" validate:"omitempty,max=128"`
}

// PostmortemRequest records the postmortem link and completion state.
type PostmortemRequest struct {
	URL       string `json:"url" validate:"omitempty,url,max=2048"`
	Completed bool   `json:"completed"`
	Actor     string `json:"actor" validate:"omitempty,max=128"`
}

// AddNoteRequest appends a note to an incident.
type AddNoteRequest struct {
	Author     string `json:"author" validate:"omitempty,max=128"`
	Body       string `json:"body" validate:"required,min=1,max=16384"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=internal public"`
}

// AddResponderRequest assigns a responder to an incident.
type AddResponderRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=128"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
	Role  string `json:"role" validate:"omitempty,oneof=primary secondary observer"`
}

// PromoteRequest carries the promoting operator's name.
type PromoteRequest struct {
	Actor string `json:"actor" validate:"omitempty,max=128"`
}

// ========== List Item Types ==========

// GroupListItem is a compact group representation for list endpoints. It
// omits the alert payloads; GET /api/groups/{id} returns the full view.
type GroupListItem struct {
	ID               uint                 `json:"id"`
	UUID             string               `json:"uuid"`
	GroupKey         string               `json:"group_key"`
	Status           database.GroupStatus `json:"status"`
	AlertCount       int                  `json:"alert_count"`
	FirstAlertAt     time.Time            `json:"first_alert_at"`
	LastAlertAt      time.Time            `json:"last_alert_at"`
	NotificationSent bool                 `json:"notification_sent"`
	SnoozedUntil     *time.Time           `json:"snoozed_until,omitempty"`
	AcknowledgedAt   *time.Time           `json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time           `json:"resolved_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// IncidentListItem is a compact incident representation for list endpoints.
type IncidentListItem struct {
	ID             uint                      `json:"id"`
	UUID           string                    `json:"uuid"`
	Title          string                    `json:"title"`
	Status         database.IncidentStatus   `json:"status"`
	Priority       database.IncidentPriority `json:"priority"`
	Severity       database.AlertSeverity    `json:"severity"`
	Source         string                    `json:"source"`
	AcknowledgedAt *time.Time                `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time                `json:"resolved_at,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}
