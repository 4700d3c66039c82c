package database

import "time"

// RunbookMatchAll is the wildcard value for runbook applicability filters
const RunbookMatchAll = "all"

// AlertRunbook attaches operator documentation to alerts by check type and
// severity. Either filter may be "all".
type AlertRunbook struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CheckType      string    `gorm:"size:64;default:'all'" json:"check_type"`
	Severity       string    `gorm:"size:20;default:'all'" json:"severity"`
	URL            string    `gorm:"type:text" json:"url"`
	Instructions   string    `gorm:"type:text" json:"instructions"`
	Enabled        bool      `gorm:"default:true" json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AlertRunbook) TableName() string {
	return "alert_runbooks"
}

// Specificity scores how precisely the runbook's filter matches:
// exact type+severity > type only > severity only > catch-all.
func (r *AlertRunbook) Specificity() int {
	score := 0
	if r.CheckType != RunbookMatchAll {
		score += 2
	}
	if r.Severity != RunbookMatchAll {
		score++
	}
	return score
}

// Matches reports whether the runbook applies to the given type and severity
func (r *AlertRunbook) Matches(checkType string, severity AlertSeverity) bool {
	if r.CheckType != RunbookMatchAll && r.CheckType != checkType {
		return false
	}
	if r.Severity != RunbookMatchAll && r.Severity != string(severity) {
		return false
	}
	return true
}
