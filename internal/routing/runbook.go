package routing

import (
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// RunbookMatcher attaches operator documentation to an alert by check type
// and severity. Returning no runbook is a valid outcome, not an error.
type RunbookMatcher struct {
	db *gorm.DB
}

// NewRunbookMatcher creates a new matcher
func NewRunbookMatcher(db *gorm.DB) *RunbookMatcher {
	return &RunbookMatcher{db: db}
}

// Match returns the best-matching enabled runbook for the organization, or
// nil when none applies. Most specific wins: exact check_type+severity, then
// check_type+"all", then "all"+severity, then "all"+"all".
func (m *RunbookMatcher) Match(orgID uint, checkType string, severity database.AlertSeverity) (*database.AlertRunbook, error) {
	var runbooks []database.AlertRunbook
	err := m.db.Where("organization_id = ? AND enabled = ?", orgID, true).Find(&runbooks).Error
	if err != nil {
		return nil, err
	}

	var best *database.AlertRunbook
	for i := range runbooks {
		rb := &runbooks[i]
		if !rb.Matches(checkType, severity) {
			continue
		}
		if best == nil || rb.Specificity() > best.Specificity() {
			best = rb
		}
	}
	return best, nil
}
