package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSONB-backed ordered list of strings
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Organization is the tenancy boundary: all engine state is partitioned by it
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:128;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityInfo     AlertSeverity = "info"
)

// ValidSeverities returns all known severity values
func ValidSeverities() []AlertSeverity {
	return []AlertSeverity{
		AlertSeverityCritical,
		AlertSeverityHigh,
		AlertSeverityMedium,
		AlertSeverityLow,
		AlertSeverityInfo,
	}
}

// Alert is a single failure signal from one check execution. Alerts are
// immutable after ingestion; groups and correlations reference them by id
// rather than holding live copies.
type Alert struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UUID           string        `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint          `gorm:"not null;index" json:"organization_id"`
	CheckID        string        `gorm:"size:64;not null;index" json:"check_id"`
	CheckName      string        `gorm:"size:255" json:"check_name"`
	CheckType      string        `gorm:"size:64;not null;index" json:"check_type"` // uptime, tcp, dns, transaction, performance, webhook
	Location       string        `gorm:"size:128" json:"location"`
	Severity       AlertSeverity `gorm:"type:varchar(20);not null" json:"severity"`
	ErrorMessage   string        `gorm:"type:text" json:"error_message"`
	Tags           JSONB         `gorm:"type:jsonb" json:"tags"`
	OccurredAt     time.Time     `gorm:"not null;index" json:"occurred_at"`

	// Pipeline outcome fields, written once during ingestion
	Fingerprint   string `gorm:"size:64;index" json:"fingerprint"`
	Deduplicated  bool   `gorm:"default:false" json:"deduplicated"`
	Suppressed    bool   `gorm:"default:false" json:"suppressed"`
	Synthetic     bool   `gorm:"default:false" json:"synthetic"` // rate-limit summary alerts
	GroupID       *uint  `gorm:"index" json:"group_id,omitempty"`
	CorrelationID *uint  `gorm:"index" json:"correlation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// BeforeCreate defaults OccurredAt to ingestion time
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	return nil
}

// TagValue returns a tag value by key, or "" if absent
func (a *Alert) TagValue(key string) string {
	if a.Tags == nil {
		return ""
	}
	if v, ok := a.Tags[key].(string); ok {
		return v
	}
	return ""
}
