package database

import "time"

// SuppressionMode controls what happens to alerts beyond the window limit
type SuppressionMode string

const (
	SuppressionModeDrop      SuppressionMode = "drop"
	SuppressionModeAggregate SuppressionMode = "aggregate"
)

// RateLimitConfig bounds alert volume per organization. The window counters
// themselves are transient in-memory state owned by the engine; only the
// configuration is persisted.
type RateLimitConfig struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	OrganizationID     uint            `gorm:"uniqueIndex;not null" json:"organization_id"`
	Enabled            bool            `gorm:"default:true" json:"enabled"`
	TimeWindowSeconds  int             `gorm:"default:60" json:"time_window_seconds"`
	MaxAlertsPerWindow int             `gorm:"default:30" json:"max_alerts_per_window"`
	SuppressionMode    SuppressionMode `gorm:"type:varchar(20);default:'aggregate'" json:"suppression_mode"`
	AggregateThreshold int             `gorm:"default:10" json:"aggregate_threshold"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (RateLimitConfig) TableName() string {
	return "rate_limit_configs"
}

// NewDefaultRateLimitConfig returns a config with default values
func NewDefaultRateLimitConfig(orgID uint) *RateLimitConfig {
	return &RateLimitConfig{
		OrganizationID:     orgID,
		Enabled:            true,
		TimeWindowSeconds:  60,
		MaxAlertsPerWindow: 30,
		SuppressionMode:    SuppressionModeAggregate,
		AggregateThreshold: 10,
	}
}
