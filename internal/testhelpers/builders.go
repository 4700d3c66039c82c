package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// ========================================
// Alert Builder
// ========================================

// AlertBuilder builds database.Alert values for tests
type AlertBuilder struct {
	alert database.Alert
}

// NewAlertBuilder creates a builder with sensible defaults
func NewAlertBuilder() *AlertBuilder {
	return &AlertBuilder{
		alert: database.Alert{
			UUID:           uuid.NewString(),
			OrganizationID: 1,
			CheckID:        "check-1",
			CheckName:      "API uptime",
			CheckType:      "uptime",
			Location:       "us-east-1",
			Severity:       database.AlertSeverityHigh,
			ErrorMessage:   "connection timed out after 30s",
			OccurredAt:     time.Now(),
		},
	}
}

// WithOrg sets the organization
func (b *AlertBuilder) WithOrg(orgID uint) *AlertBuilder {
	b.alert.OrganizationID = orgID
	return b
}

// WithCheck sets the check identity
func (b *AlertBuilder) WithCheck(id, name, checkType string) *AlertBuilder {
	b.alert.CheckID = id
	b.alert.CheckName = name
	b.alert.CheckType = checkType
	return b
}

// WithCheckID sets just the check id
func (b *AlertBuilder) WithCheckID(id string) *AlertBuilder {
	b.alert.CheckID = id
	return b
}

// WithLocation sets the probe location
func (b *AlertBuilder) WithLocation(location string) *AlertBuilder {
	b.alert.Location = location
	return b
}

// WithSeverity sets the severity
func (b *AlertBuilder) WithSeverity(severity database.AlertSeverity) *AlertBuilder {
	b.alert.Severity = severity
	return b
}

// WithError sets the error message
func (b *AlertBuilder) WithError(message string) *AlertBuilder {
	b.alert.ErrorMessage = message
	return b
}

// WithTag sets one tag
func (b *AlertBuilder) WithTag(key, value string) *AlertBuilder {
	if b.alert.Tags == nil {
		b.alert.Tags = database.JSONB{}
	}
	b.alert.Tags[key] = value
	return b
}

// OccurredAt sets the occurrence time
func (b *AlertBuilder) OccurredAt(at time.Time) *AlertBuilder {
	b.alert.OccurredAt = at
	return b
}

// Build returns a copy of the alert with a fresh UUID
func (b *AlertBuilder) Build() *database.Alert {
	alert := b.alert
	alert.ID = 0
	alert.UUID = uuid.NewString()
	if alert.Tags != nil {
		tags := database.JSONB{}
		for k, v := range b.alert.Tags {
			tags[k] = v
		}
		alert.Tags = tags
	}
	return &alert
}

// ========================================
// Grouping Rule Builder
// ========================================

// GroupingRuleBuilder builds and persists alert grouping rules
type GroupingRuleBuilder struct {
	rule database.AlertGroupingRule
}

// NewGroupingRuleBuilder creates a builder with sensible defaults
func NewGroupingRuleBuilder() *GroupingRuleBuilder {
	return &GroupingRuleBuilder{
		rule: database.AlertGroupingRule{
			OrganizationID:       1,
			Name:                 "test rule",
			GroupBy:              database.StringList{database.GroupByCheckID},
			TimeWindowSeconds:    300,
			DeduplicationEnabled: true,
			MaxAlertsPerGroup:    100,
			Priority:             100,
			Enabled:              true,
		},
	}
}

// WithOrg sets the organization
func (b *GroupingRuleBuilder) WithOrg(orgID uint) *GroupingRuleBuilder {
	b.rule.OrganizationID = orgID
	return b
}

// WithGroupBy sets the grouping dimensions
func (b *GroupingRuleBuilder) WithGroupBy(dims ...string) *GroupingRuleBuilder {
	b.rule.GroupBy = database.StringList(dims)
	return b
}

// WithWindow sets the time window
func (b *GroupingRuleBuilder) WithWindow(seconds int) *GroupingRuleBuilder {
	b.rule.TimeWindowSeconds = seconds
	return b
}

// WithDedup toggles deduplication
func (b *GroupingRuleBuilder) WithDedup(enabled bool) *GroupingRuleBuilder {
	b.rule.DeduplicationEnabled = enabled
	return b
}

// WithMaxAlerts sets the group volume cap
func (b *GroupingRuleBuilder) WithMaxAlerts(n int) *GroupingRuleBuilder {
	b.rule.MaxAlertsPerGroup = n
	return b
}

// WithNotificationDelay sets the notification delay
func (b *GroupingRuleBuilder) WithNotificationDelay(seconds int) *GroupingRuleBuilder {
	b.rule.NotificationDelaySeconds = seconds
	return b
}

// Create persists the rule
func (b *GroupingRuleBuilder) Create(t *testing.T, db *gorm.DB) *database.AlertGroupingRule {
	t.Helper()
	rule := b.rule
	rule.ID = 0
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("failed to create grouping rule: %v", err)
	}
	return &rule
}

// ========================================
// Routing Rule Builder
// ========================================

// RoutingRuleBuilder builds and persists alert routing rules
type RoutingRuleBuilder struct {
	rule database.AlertRoutingRule
}

// NewRoutingRuleBuilder creates a builder with a single webhook destination
func NewRoutingRuleBuilder() *RoutingRuleBuilder {
	return &RoutingRuleBuilder{
		rule: database.AlertRoutingRule{
			OrganizationID: 1,
			Name:           "test routing rule",
			ConditionMatch: database.ConditionMatchAll,
			Destinations: database.RoutingDestinationList{
				{Type: database.DestinationWebhook, Name: "test-hook", Config: map[string]interface{}{"url": "http://example.invalid/hook"}},
			},
			Priority: 100,
			Enabled:  true,
		},
	}
}

// WithOrg sets the organization
func (b *RoutingRuleBuilder) WithOrg(orgID uint) *RoutingRuleBuilder {
	b.rule.OrganizationID = orgID
	return b
}

// WithCondition appends one condition
func (b *RoutingRuleBuilder) WithCondition(field, key, operator, value string) *RoutingRuleBuilder {
	b.rule.Conditions = append(b.rule.Conditions, database.RoutingCondition{
		Field: field, Key: key, Operator: operator, Value: value,
	})
	return b
}

// MatchAny switches the condition combinator to any
func (b *RoutingRuleBuilder) MatchAny() *RoutingRuleBuilder {
	b.rule.ConditionMatch = database.ConditionMatchAny
	return b
}

// WithDestinations replaces the destination list
func (b *RoutingRuleBuilder) WithDestinations(dests ...database.RoutingDestination) *RoutingRuleBuilder {
	b.rule.Destinations = database.RoutingDestinationList(dests)
	return b
}

// WithEscalationPolicy links an escalation policy
func (b *RoutingRuleBuilder) WithEscalationPolicy(policyID uint) *RoutingRuleBuilder {
	b.rule.EscalationPolicyID = &policyID
	return b
}

// WithPriority sets the evaluation priority
func (b *RoutingRuleBuilder) WithPriority(p int) *RoutingRuleBuilder {
	b.rule.Priority = p
	return b
}

// Create persists the rule
func (b *RoutingRuleBuilder) Create(t *testing.T, db *gorm.DB) *database.AlertRoutingRule {
	t.Helper()
	rule := b.rule
	rule.ID = 0
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("failed to create routing rule: %v", err)
	}
	return &rule
}

// ========================================
// Escalation Policy Builder
// ========================================

// EscalationPolicyBuilder builds and persists escalation policies
type EscalationPolicyBuilder struct {
	policy database.EscalationPolicy
}

// NewEscalationPolicyBuilder creates a builder with one immediate email level
func NewEscalationPolicyBuilder() *EscalationPolicyBuilder {
	return &EscalationPolicyBuilder{
		policy: database.EscalationPolicy{
			OrganizationID: 1,
			Name:           "test policy",
			Levels: database.EscalationLevelList{
				{EscalateAfterMinutes: 0, Targets: []database.EscalationTarget{
					{Type: database.EscalationTargetEmail, Value: "oncall@example.com"},
				}},
			},
			RepeatPolicy:          database.RepeatPolicyOnce,
			RepeatIntervalMinutes: 30,
			Enabled:               true,
		},
	}
}

// WithOrg sets the organization
func (b *EscalationPolicyBuilder) WithOrg(orgID uint) *EscalationPolicyBuilder {
	b.policy.OrganizationID = orgID
	return b
}

// WithLevels replaces the level list. Each offset becomes a level with a
// single email target.
func (b *EscalationPolicyBuilder) WithLevels(offsetsMinutes ...int) *EscalationPolicyBuilder {
	levels := make(database.EscalationLevelList, 0, len(offsetsMinutes))
	for i, offset := range offsetsMinutes {
		levels = append(levels, database.EscalationLevel{
			EscalateAfterMinutes: offset,
			Targets: []database.EscalationTarget{
				{Type: database.EscalationTargetEmail, Value: levelEmail(i)},
			},
		})
	}
	b.policy.Levels = levels
	return b
}

// WithRawLevels replaces the level list verbatim
func (b *EscalationPolicyBuilder) WithRawLevels(levels database.EscalationLevelList) *EscalationPolicyBuilder {
	b.policy.Levels = levels
	return b
}

// Repeating enables repeat-until-acknowledged with the given interval
func (b *EscalationPolicyBuilder) Repeating(intervalMinutes int) *EscalationPolicyBuilder {
	b.policy.RepeatPolicy = database.RepeatPolicyUntilAcknowledged
	b.policy.RepeatIntervalMinutes = intervalMinutes
	return b
}

// AsDefault marks the policy as the organization default
func (b *EscalationPolicyBuilder) AsDefault() *EscalationPolicyBuilder {
	b.policy.IsDefault = true
	return b
}

// Disabled marks the policy disabled
func (b *EscalationPolicyBuilder) Disabled() *EscalationPolicyBuilder {
	b.policy.Enabled = false
	return b
}

// Build returns the policy without persisting it
func (b *EscalationPolicyBuilder) Build() *database.EscalationPolicy {
	policy := b.policy
	policy.ID = 0
	return &policy
}

// Create persists the policy
func (b *EscalationPolicyBuilder) Create(t *testing.T, db *gorm.DB) *database.EscalationPolicy {
	t.Helper()
	policy := b.Build()
	if err := db.Create(policy).Error; err != nil {
		t.Fatalf("failed to create escalation policy: %v", err)
	}
	return policy
}

func levelEmail(level int) string {
	return []string{"primary@example.com", "secondary@example.com", "manager@example.com", "director@example.com"}[level%4]
}

// ========================================
// On-Call Schedule Builder
// ========================================

// OnCallScheduleBuilder builds and persists on-call schedules
type OnCallScheduleBuilder struct {
	schedule database.OnCallSchedule
}

// NewOnCallScheduleBuilder creates a builder with a three-member weekly rotation
func NewOnCallScheduleBuilder() *OnCallScheduleBuilder {
	return &OnCallScheduleBuilder{
		schedule: database.OnCallSchedule{
			OrganizationID: 1,
			Name:           "test schedule",
			Members: database.OnCallMemberList{
				{Name: "Alice", Email: "alice@example.com"},
				{Name: "Bob", Email: "bob@example.com"},
				{Name: "Carol", Email: "carol@example.com"},
			},
			RotationType:   database.RotationWeekly,
			Timezone:       "UTC",
			LastRotationAt: time.Now(),
			Enabled:        true,
		},
	}
}

// WithOrg sets the organization
func (b *OnCallScheduleBuilder) WithOrg(orgID uint) *OnCallScheduleBuilder {
	b.schedule.OrganizationID = orgID
	return b
}

// WithMembers replaces the member list
func (b *OnCallScheduleBuilder) WithMembers(members ...database.OnCallMember) *OnCallScheduleBuilder {
	b.schedule.Members = database.OnCallMemberList(members)
	return b
}

// WithRotation sets the rotation type and custom interval
func (b *OnCallScheduleBuilder) WithRotation(rotationType database.RotationType, intervalDays int) *OnCallScheduleBuilder {
	b.schedule.RotationType = rotationType
	b.schedule.RotationIntervalDays = intervalDays
	return b
}

// LastRotatedAt sets the last rotation timestamp
func (b *OnCallScheduleBuilder) LastRotatedAt(at time.Time) *OnCallScheduleBuilder {
	b.schedule.LastRotationAt = at
	return b
}

// Create persists the schedule
func (b *OnCallScheduleBuilder) Create(t *testing.T, db *gorm.DB) *database.OnCallSchedule {
	t.Helper()
	schedule := b.schedule
	schedule.ID = 0
	if err := db.Create(&schedule).Error; err != nil {
		t.Fatalf("failed to create on-call schedule: %v", err)
	}
	return &schedule
}

// ========================================
// Runbook Builder
// ========================================

// RunbookBuilder builds and persists alert runbooks
type RunbookBuilder struct {
	runbook database.AlertRunbook
}

// NewRunbookBuilder creates a builder with catch-all applicability
func NewRunbookBuilder() *RunbookBuilder {
	return &RunbookBuilder{
		runbook: database.AlertRunbook{
			OrganizationID: 1,
			Name:           "test runbook",
			CheckType:      database.RunbookMatchAll,
			Severity:       database.RunbookMatchAll,
			URL:            "https://wiki.example.com/runbooks/test",
			Enabled:        true,
		},
	}
}

// WithOrg sets the organization
func (b *RunbookBuilder) WithOrg(orgID uint) *RunbookBuilder {
	b.runbook.OrganizationID = orgID
	return b
}

// WithName sets the runbook name
func (b *RunbookBuilder) WithName(name string) *RunbookBuilder {
	b.runbook.Name = name
	return b
}

// Matching sets the applicability filter
func (b *RunbookBuilder) Matching(checkType, severity string) *RunbookBuilder {
	b.runbook.CheckType = checkType
	b.runbook.Severity = severity
	return b
}

// Create persists the runbook
func (b *RunbookBuilder) Create(t *testing.T, db *gorm.DB) *database.AlertRunbook {
	t.Helper()
	runbook := b.runbook
	runbook.ID = 0
	if err := db.Create(&runbook).Error; err != nil {
		t.Fatalf("failed to create runbook: %v", err)
	}
	return &runbook
}
