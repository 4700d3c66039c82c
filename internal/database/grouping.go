package database

import (
	"strings"
	"time"
)

// Grouping dimensions supported by AlertGroupingRule.GroupBy. A dimension of
// the form "tag:<key>" groups by the value of that alert tag.
const (
	GroupByCheckID   = "check_id"
	GroupByCheckType = "check_type"
	GroupByLocation  = "location"
	GroupByErrorType = "error_type"
	GroupByTagPrefix = "tag:"
)

// ValidGroupByDimension reports whether dim is a supported grouping dimension
func ValidGroupByDimension(dim string) bool {
	switch dim {
	case GroupByCheckID, GroupByCheckType, GroupByLocation, GroupByErrorType:
		return true
	}
	return strings.HasPrefix(dim, GroupByTagPrefix) && len(dim) > len(GroupByTagPrefix)
}

// AlertGroupingRule configures how raw alerts merge into alert groups
type AlertGroupingRule struct {
	ID                       uint       `gorm:"primaryKey" json:"id"`
	OrganizationID           uint       `gorm:"not null;index" json:"organization_id"`
	Name                     string     `gorm:"size:255;not null" json:"name"`
	GroupBy                  StringList `gorm:"type:jsonb;not null" json:"group_by"` // ordered grouping dimensions
	TimeWindowSeconds        int        `gorm:"default:300" json:"time_window_seconds"`
	DeduplicationEnabled     bool       `gorm:"default:true" json:"deduplication_enabled"`
	MaxAlertsPerGroup        int        `gorm:"default:100" json:"max_alerts_per_group"`
	NotificationDelaySeconds int        `gorm:"default:0" json:"notification_delay_seconds"`
	Priority                 int        `gorm:"default:100;index" json:"priority"` // lower value wins when several rules match
	Enabled                  bool       `gorm:"default:true" json:"enabled"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

func (AlertGroupingRule) TableName() string {
	return "alert_grouping_rules"
}

// GroupStatus represents the lifecycle status of an alert group
type GroupStatus string

const (
	GroupStatusActive       GroupStatus = "active"
	GroupStatusAcknowledged GroupStatus = "acknowledged"
	GroupStatusResolved     GroupStatus = "resolved"
)

// AlertGroup is a rule-keyed aggregate of alerts treated as one notification
// unit. Alerts point at their group via Alert.GroupID; the group only carries
// counters and timestamps.
type AlertGroup struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	UUID           string      `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint        `gorm:"not null;index" json:"organization_id"`
	RuleID         uint        `gorm:"not null;index" json:"rule_id"`
	GroupKey       string      `gorm:"size:512;not null;index" json:"group_key"`
	Status         GroupStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	AlertCount     int         `gorm:"default:0" json:"alert_count"`
	FirstAlertAt   time.Time   `gorm:"not null" json:"first_alert_at"`
	LastAlertAt    time.Time   `gorm:"not null;index" json:"last_alert_at"`

	// Notification bookkeeping: NotificationSent flips true exactly once and
	// is never reset by later merges.
	NotificationSent bool      `gorm:"default:false" json:"notification_sent"`
	NotifyAfter      time.Time `gorm:"index" json:"notify_after"`

	// Snooze window: suppresses notifications, does not stop merging
	SnoozedUntil        *time.Time `json:"snoozed_until,omitempty"`
	SnoozeDurationHours int        `json:"snooze_duration_hours,omitempty"`
	SnoozedBy           string     `gorm:"size:128" json:"snoozed_by,omitempty"`

	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string     `gorm:"size:128" json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes   string     `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolutionSeconds int64      `json:"resolution_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertGroup) TableName() string {
	return "alert_groups"
}

// IsOpen reports whether the group can still accept alerts
func (g *AlertGroup) IsOpen() bool {
	return g.Status == GroupStatusActive || g.Status == GroupStatusAcknowledged
}

// IsSnoozed reports whether the group is inside an active snooze window
func (g *AlertGroup) IsSnoozed(now time.Time) bool {
	return g.SnoozedUntil != nil && now.Before(*g.SnoozedUntil)
}
