package database

import "time"

// Correlation reasons recorded on a cluster
const (
	CorrelationReasonSameCheck     = "same_check"
	CorrelationReasonSameLocation  = "same_location"
	CorrelationReasonSimilarError  = "similar_error"
	CorrelationReasonTimeProximity = "time_proximity"
)

// CorrelationSettings controls similarity-based clustering per organization
type CorrelationSettings struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	OrganizationID      uint      `gorm:"uniqueIndex;not null" json:"organization_id"`
	Enabled             bool      `gorm:"default:true" json:"enabled"`
	SimilarityThreshold int       `gorm:"default:70" json:"similarity_threshold"` // percentage, 0-100
	TimeWindowSeconds   int       `gorm:"default:900" json:"time_window_seconds"`
	MethodSameCheck     bool      `gorm:"default:true" json:"method_same_check"`
	MethodSameLocation  bool      `gorm:"default:true" json:"method_same_location"`
	MethodSimilarError  bool      `gorm:"default:true" json:"method_similar_error"`
	MethodTimeProximity bool      `gorm:"default:false" json:"method_time_proximity"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (CorrelationSettings) TableName() string {
	return "correlation_settings"
}

// NewDefaultCorrelationSettings returns settings with default values
func NewDefaultCorrelationSettings(orgID uint) *CorrelationSettings {
	return &CorrelationSettings{
		OrganizationID:      orgID,
		Enabled:             true,
		SimilarityThreshold: 70,
		TimeWindowSeconds:   900,
		MethodSameCheck:     true,
		MethodSameLocation:  true,
		MethodSimilarError:  true,
		MethodTimeProximity: false,
	}
}

// CorrelationStatus mirrors group status but is strictly monotonic
type CorrelationStatus string

const (
	CorrelationStatusActive       CorrelationStatus = "active"
	CorrelationStatusAcknowledged CorrelationStatus = "acknowledged"
	CorrelationStatusResolved     CorrelationStatus = "resolved"
)

// AlertCorrelation is a similarity-based cluster of alerts suspected to share
// a root cause. Contributing alerts point at it via Alert.CorrelationID; the
// primary alert is the one that opened the cluster.
type AlertCorrelation struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UUID           string            `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint              `gorm:"not null;index" json:"organization_id"`
	Reason         string            `gorm:"size:64;not null" json:"reason"`
	PrimaryAlertID uint              `gorm:"not null" json:"primary_alert_id"`
	AlertCount     int               `gorm:"default:1" json:"alert_count"`
	Status         CorrelationStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	LastAlertAt    time.Time         `gorm:"not null;index" json:"last_alert_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (AlertCorrelation) TableName() string {
	return "alert_correlations"
}

// IsOpen reports whether new alerts may still join the cluster
func (c *AlertCorrelation) IsOpen() bool {
	return c.Status == CorrelationStatusActive || c.Status == CorrelationStatusAcknowledged
}
