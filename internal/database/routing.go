package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Condition fields and operators supported by routing rules
const (
	ConditionFieldSeverity      = "severity"
	ConditionFieldCheckType     = "check_type"
	ConditionFieldCheckName     = "check_name"
	ConditionFieldLocation      = "location"
	ConditionFieldTag           = "tag"
	ConditionFieldErrorContains = "error_contains"

	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorContains    = "contains"
	OperatorNotContains = "not_contains"
)

// Destination types. The engine treats each as an opaque notification
// capability; channel wire formats live in internal/notify.
const (
	DestinationPagerDuty = "pagerduty"
	DestinationSlack     = "slack"
	DestinationTeams     = "teams"
	DestinationDiscord   = "discord"
	DestinationEmail     = "email"
	DestinationWebhook   = "webhook"
	DestinationOpsgenie  = "opsgenie"
	DestinationOnCall    = "on_call"
	DestinationWorkflow  = "workflow"
	DestinationTelegram  = "telegram"
)

// ValidConditionField reports whether field is a supported condition field
func ValidConditionField(field string) bool {
	switch field {
	case ConditionFieldSeverity, ConditionFieldCheckType, ConditionFieldCheckName,
		ConditionFieldLocation, ConditionFieldTag, ConditionFieldErrorContains:
		return true
	}
	return false
}

// ValidConditionOperator reports whether op is a supported operator
func ValidConditionOperator(op string) bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorNotContains:
		return true
	}
	return false
}

// ValidDestinationType reports whether t is a supported destination type
func ValidDestinationType(t string) bool {
	switch t {
	case DestinationPagerDuty, DestinationSlack, DestinationTeams, DestinationDiscord,
		DestinationEmail, DestinationWebhook, DestinationOpsgenie, DestinationOnCall,
		DestinationWorkflow, DestinationTelegram:
		return true
	}
	return false
}

// RoutingCondition is one field/operator/value predicate. For the "tag" field
// the Key selects which tag to compare.
type RoutingCondition struct {
	Field    string `json:"field"`
	Key      string `json:"key,omitempty"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// RoutingConditionList is a JSONB-backed ordered condition list
type RoutingConditionList []RoutingCondition

// Scan implements the sql.Scanner interface
func (l *RoutingConditionList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l RoutingConditionList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// RoutingDestination is a typed notification target. Config carries
// capability-specific settings (channel, token, URL, schedule id, ...).
type RoutingDestination struct {
	Type   string                 `json:"type"`
	Name   string                 `json:"name"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Identity returns the (type, identity) pair used to deduplicate fan-out
func (d RoutingDestination) Identity() string {
	return d.Type + "/" + d.Name
}

// ConfigString returns a string config value, or "" if absent
func (d RoutingDestination) ConfigString(key string) string {
	if d.Config == nil {
		return ""
	}
	if v, ok := d.Config[key].(string); ok {
		return v
	}
	return ""
}

// RoutingDestinationList is a JSONB-backed destination list
type RoutingDestinationList []RoutingDestination

// Scan implements the sql.Scanner interface
func (l *RoutingDestinationList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l RoutingDestinationList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// ConditionMatch controls how a rule's conditions combine
type ConditionMatch string

const (
	ConditionMatchAll ConditionMatch = "all"
	ConditionMatchAny ConditionMatch = "any"
)

// AlertRoutingRule selects notification destinations for a grouped alert
type AlertRoutingRule struct {
	ID                 uint                   `gorm:"primaryKey" json:"id"`
	OrganizationID     uint                   `gorm:"not null;index" json:"organization_id"`
	Name               string                 `gorm:"size:255;not null" json:"name"`
	Conditions         RoutingConditionList   `gorm:"type:jsonb" json:"conditions"`
	ConditionMatch     ConditionMatch         `gorm:"type:varchar(10);default:'all'" json:"condition_match"`
	Destinations       RoutingDestinationList `gorm:"type:jsonb" json:"destinations"`
	EscalationPolicyID *uint                  `gorm:"index" json:"escalation_policy_id,omitempty"`
	Enabled            bool                   `gorm:"default:true" json:"enabled"`
	Priority           int                    `gorm:"default:100;index" json:"priority"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func (AlertRoutingRule) TableName() string {
	return "alert_routing_rules"
}

// scanJSON unmarshals a JSONB column that drivers may hand back as either
// []byte (postgres) or string (sqlite).
func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("type assertion to []byte failed")
	}
}
