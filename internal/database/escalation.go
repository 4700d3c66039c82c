package database

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Escalation target types
const (
	EscalationTargetUser     = "user"
	EscalationTargetOnCall   = "on_call_schedule"
	EscalationTargetEmail    = "email"
	EscalationTargetWebhook  = "webhook"
)

// EscalationTarget is one notification recipient of an escalation level.
// Value is interpreted by Type: an email address, a webhook URL, or an
// on-call schedule id.
type EscalationTarget struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// EscalationLevel is one step of an escalation policy
type EscalationLevel struct {
	EscalateAfterMinutes int                `json:"escalate_after_minutes"`
	Targets              []EscalationTarget `json:"targets"`
}

// EscalationLevelList is a JSONB-backed ordered level list
type EscalationLevelList []EscalationLevel

// Scan implements the sql.Scanner interface
func (l *EscalationLevelList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l EscalationLevelList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// RepeatPolicy controls whether a policy loops after its last level
type RepeatPolicy string

const (
	RepeatPolicyOnce             RepeatPolicy = "once"
	RepeatPolicyUntilAcknowledged RepeatPolicy = "repeat_until_acknowledged"
)

// EscalationPolicy is an ordered sequence of timed notification levels.
// Level offsets must be monotonically non-decreasing; exactly one policy per
// organization may be the default.
type EscalationPolicy struct {
	ID                    uint                `gorm:"primaryKey" json:"id"`
	OrganizationID        uint                `gorm:"not null;index" json:"organization_id"`
	Name                  string              `gorm:"size:255;not null" json:"name"`
	Levels                EscalationLevelList `gorm:"type:jsonb;not null" json:"levels"`
	RepeatPolicy          RepeatPolicy        `gorm:"type:varchar(30);default:'once'" json:"repeat_policy"`
	RepeatIntervalMinutes int                 `gorm:"default:30" json:"repeat_interval_minutes"`
	IsDefault             bool                `gorm:"default:false" json:"is_default"`
	Enabled               bool                `gorm:"default:true" json:"enabled"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func (EscalationPolicy) TableName() string {
	return "escalation_policies"
}

// EscalationStatus is the state of a running escalation instance
type EscalationStatus string

const (
	EscalationStatusArmed        EscalationStatus = "armed"
	EscalationStatusAcknowledged EscalationStatus = "acknowledged"
	EscalationStatusExhausted    EscalationStatus = "exhausted"
	EscalationStatusCancelled    EscalationStatus = "cancelled"
)

// EscalationInstance is one running escalation for a group or incident.
// NextFireAt is always recomputable from CreatedAt plus the policy's level
// offsets, so a process restart neither loses nor duplicates firings.
type EscalationInstance struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	OrganizationID uint             `gorm:"not null;index" json:"organization_id"`
	PolicyID       uint             `gorm:"not null;index" json:"policy_id"`
	GroupID        *uint            `gorm:"index" json:"group_id,omitempty"`
	IncidentID     *uint            `gorm:"index" json:"incident_id,omitempty"`
	Status         EscalationStatus `gorm:"type:varchar(20);not null;default:'armed';index" json:"status"`
	CurrentLevel   int              `gorm:"default:0" json:"current_level"`
	CycleCount     int              `gorm:"default:0" json:"cycle_count"`
	NextFireAt     *time.Time       `gorm:"index" json:"next_fire_at,omitempty"`
	LastFiredAt    *time.Time       `json:"last_fired_at,omitempty"`
	FireCount      int              `gorm:"default:0" json:"fire_count"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (EscalationInstance) TableName() string {
	return "escalation_instances"
}
