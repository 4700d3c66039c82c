package database

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// RotationType controls how often an on-call schedule rotates
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationCustom RotationType = "custom" // interval in days
)

// OnCallMember is one responder in a rotation
type OnCallMember struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OnCallMemberList is a JSONB-backed ordered member list
type OnCallMemberList []OnCallMember

// Scan implements the sql.Scanner interface
func (l *OnCallMemberList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l OnCallMemberList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// OnCallSchedule is a rotating assignment of responders. Invariant:
// CurrentOnCallIndex is always < len(Members) while members exist.
type OnCallSchedule struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	OrganizationID       uint             `gorm:"not null;index" json:"organization_id"`
	Name                 string           `gorm:"size:255;not null" json:"name"`
	Members              OnCallMemberList `gorm:"type:jsonb" json:"members"`
	RotationType         RotationType     `gorm:"type:varchar(20);default:'weekly'" json:"rotation_type"`
	RotationIntervalDays int              `gorm:"default:7" json:"rotation_interval_days"`
	CurrentOnCallIndex   int              `gorm:"default:0" json:"current_on_call_index"`
	LastRotationAt       time.Time        `json:"last_rotation_at"`
	Timezone             string           `gorm:"size:64;default:'UTC'" json:"timezone"`
	Enabled              bool             `gorm:"default:true" json:"enabled"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (OnCallSchedule) TableName() string {
	return "on_call_schedules"
}

// RotationInterval returns the effective rotation period
func (s *OnCallSchedule) RotationInterval() time.Duration {
	switch s.RotationType {
	case RotationDaily:
		return 24 * time.Hour
	case RotationWeekly:
		return 7 * 24 * time.Hour
	default:
		days := s.RotationIntervalDays
		if days <= 0 {
			days = 7
		}
		return time.Duration(days) * 24 * time.Hour
	}
}
