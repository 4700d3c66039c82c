package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// Grouping owns the AlertGroup lifecycle: merging alerts by group key,
// acknowledge/resolve/snooze operations and the notification bookkeeping.
type Grouping struct {
	db *gorm.DB
}

// NewGrouping creates a new grouping engine
func NewGrouping(db *gorm.DB) *Grouping {
	return &Grouping{db: db}
}

// GroupKey derives the group key as the ordered tuple of the rule's grouping
// dimension values for this alert.
func GroupKey(alert *database.Alert, rule *database.AlertGroupingRule) string {
	parts := make([]string, 0, len(rule.GroupBy)+1)
	parts = append(parts, fmt.Sprintf("r%d", rule.ID))
	for _, dim := range rule.GroupBy {
		parts = append(parts, dimensionValue(alert, dim))
	}
	return strings.Join(parts, "|")
}

// Merge merges the alert into an open, non-expired, non-full group with the
// same key, or creates a new group when allowCreate is set. Deduplicated
// alerts call with allowCreate=false: they may join an existing group but
// never open one. Returns nil when no group accepted the alert.
func (g *Grouping) Merge(alert *database.Alert, rule *database.AlertGroupingRule, now time.Time, allowCreate bool) (*database.AlertGroup, error) {
	key := GroupKey(alert, rule)
	window := time.Duration(rule.TimeWindowSeconds) * time.Second

	var group database.AlertGroup
	err := g.db.Where(
		"organization_id = ? AND rule_id = ? AND group_key = ? AND status IN ? AND last_alert_at >= ?",
		alert.OrganizationID, rule.ID, key,
		[]database.GroupStatus{database.GroupStatusActive, database.GroupStatusAcknowledged},
		now.Add(-window),
	).Order("last_alert_at DESC").First(&group).Error

	switch {
	case err == nil && group.AlertCount < rule.MaxAlertsPerGroup:
		return g.appendToGroup(&group, alert, rule, now)
	case err != nil && err != gorm.ErrRecordNotFound:
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}

	if !allowCreate {
		return nil, nil
	}

	delay := time.Duration(rule.NotificationDelaySeconds) * time.Second
	created := &database.AlertGroup{
		UUID:           uuid.NewString(),
		OrganizationID: alert.OrganizationID,
		RuleID:         rule.ID,
		GroupKey:       key,
		Status:         database.GroupStatusActive,
		AlertCount:     1,
		FirstAlertAt:   alert.OccurredAt,
		LastAlertAt:    alert.OccurredAt,
		NotifyAfter:    now.Add(delay),
	}
	if err := g.db.Create(created).Error; err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	alert.GroupID = &created.ID
	return created, nil
}

func (g *Grouping) appendToGroup(group *database.AlertGroup, alert *database.Alert, rule *database.AlertGroupingRule, now time.Time) (*database.AlertGroup, error) {
	updates := map[string]interface{}{
		"alert_count":   gorm.Expr("alert_count + 1"),
		"last_alert_at": alert.OccurredAt,
	}
	// Once the group fills, dispatch without waiting out the delay
	if group.AlertCount+1 >= rule.MaxAlertsPerGroup && !group.NotificationSent {
		updates["notify_after"] = now
		group.NotifyAfter = now
	}
	if err := g.db.Model(group).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to merge into group %s: %w", group.UUID, err)
	}
	group.AlertCount++
	group.LastAlertAt = alert.OccurredAt
	alert.GroupID = &group.ID
	return group, nil
}

// Get returns one group scoped to an organization
func (g *Grouping) Get(orgID, groupID uint) (*database.AlertGroup, error) {
	var group database.AlertGroup
	if err := g.db.Where("organization_id = ?", orgID).First(&group, groupID).Error; err != nil {
		return nil, ErrNotFound
	}
	return &group, nil
}

// Acknowledge stops escalation for the group and records the actor. The
// caller cancels escalation timers under the same partition lock. Idempotent.
func (g *Grouping) Acknowledge(orgID, groupID uint, actor string, now time.Time) (*database.AlertGroup, error) {
	group, err := g.Get(orgID, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == database.GroupStatusResolved {
		return nil, fmt.Errorf("%w: group %d already resolved", ErrConflict, groupID)
	}
	if group.Status == database.GroupStatusAcknowledged {
		return group, nil
	}
	updates := map[string]interface{}{
		"status":          database.GroupStatusAcknowledged,
		"acknowledged_at": now,
		"acknowledged_by": actor,
	}
	if err := g.db.Model(group).Updates(updates).Error; err != nil {
		return nil, err
	}
	group.Status = database.GroupStatusAcknowledged
	group.AcknowledgedAt = &now
	group.AcknowledgedBy = actor
	return group, nil
}

// Resolve is terminal: it records the resolution timestamp, notes, and the
// resolution latency measured from group creation.
func (g *Grouping) Resolve(orgID, groupID uint, notes string, now time.Time) (*database.AlertGroup, error) {
	group, err := g.Get(orgID, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == database.GroupStatusResolved {
		return nil, fmt.Errorf("%w: group %d already resolved", ErrConflict, groupID)
	}
	latency := int64(now.Sub(group.CreatedAt).Seconds())
	updates := map[string]interface{}{
		"status":             database.GroupStatusResolved,
		"resolved_at":        now,
		"resolution_notes":   notes,
		"resolution_seconds": latency,
	}
	if err := g.db.Model(group).Updates(updates).Error; err != nil {
		return nil, err
	}
	group.Status = database.GroupStatusResolved
	group.ResolvedAt = &now
	group.ResolutionNotes = notes
	group.ResolutionSeconds = latency
	return group, nil
}

// Snooze suppresses notifications for the group without stopping merges
func (g *Grouping) Snooze(orgID, groupID uint, durationHours int, actor string, now time.Time) (*database.AlertGroup, error) {
	if durationHours <= 0 {
		return nil, fmt.Errorf("%w: snooze duration must be positive", ErrValidation)
	}
	group, err := g.Get(orgID, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == database.GroupStatusResolved {
		return nil, fmt.Errorf("%w: group %d already resolved", ErrConflict, groupID)
	}
	until := now.Add(time.Duration(durationHours) * time.Hour)
	updates := map[string]interface{}{
		"snoozed_until":         until,
		"snooze_duration_hours": durationHours,
		"snoozed_by":            actor,
	}
	if err := g.db.Model(group).Updates(updates).Error; err != nil {
		return nil, err
	}
	group.SnoozedUntil = &until
	group.SnoozeDurationHours = durationHours
	group.SnoozedBy = actor
	return group, nil
}

// Unsnooze clears the snooze window
func (g *Grouping) Unsnooze(orgID, groupID uint) (*database.AlertGroup, error) {
	group, err := g.Get(orgID, groupID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"snoozed_until":         nil,
		"snooze_duration_hours": 0,
		"snoozed_by":            "",
	}
	if err := g.db.Model(group).Updates(updates).Error; err != nil {
		return nil, err
	}
	group.SnoozedUntil = nil
	group.SnoozeDurationHours = 0
	group.SnoozedBy = ""
	return group, nil
}

// DueForNotification lists active, unsnoozed groups whose notification delay
// has elapsed and that have not been dispatched yet.
func (g *Grouping) DueForNotification(now time.Time) ([]database.AlertGroup, error) {
	var groups []database.AlertGroup
	err := g.db.Where(
		"notification_sent = ? AND status = ? AND notify_after <= ? AND (snoozed_until IS NULL OR snoozed_until <= ?)",
		false, database.GroupStatusActive, now, now,
	).Order("notify_after ASC").Find(&groups).Error
	return groups, err
}

// MarkNotified flips the notification flag. It is never reset by later
// merges, so a group is dispatched exactly once.
func (g *Grouping) MarkNotified(groupID uint) error {
	return g.db.Model(&database.AlertGroup{}).Where("id = ?", groupID).
		Update("notification_sent", true).Error
}

// Alerts returns the group's alerts ordered by arrival
func (g *Grouping) Alerts(groupID uint) ([]database.Alert, error) {
	var alerts []database.Alert
	err := g.db.Where("group_id = ?", groupID).Order("occurred_at ASC").Find(&alerts).Error
	return alerts, err
}

// MatchRule returns the highest-precedence enabled grouping rule for the
// organization (lowest priority value wins).
func (g *Grouping) MatchRule(orgID uint) (*database.AlertGroupingRule, error) {
	var rule database.AlertGroupingRule
	err := g.db.Where("organization_id = ? AND enabled = ?", orgID, true).
		Order("priority ASC, id ASC").First(&rule).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
