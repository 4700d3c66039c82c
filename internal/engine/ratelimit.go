package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/utils"
)

// RateLimiter bounds alert volume per organization with a fixed window.
// Counters are transient process state; callers hold the organization
// partition lock, which makes window resets and aggregate flushes atomic
// with respect to concurrent admission checks.
type RateLimiter struct {
	windows map[uint]*rateWindow
}

// NewRateLimiter creates a limiter with no open windows
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[uint]*rateWindow)}
}

type rateWindow struct {
	start   time.Time
	count   int
	pending []pendingAlert

	// running totals for the stats endpoint
	sentTotal       int64
	suppressedTotal int64
}

type pendingAlert struct {
	checkName string
	severity  database.AlertSeverity
}

// AdmitOutcome is the rate limiter's decision for one alert
type AdmitOutcome struct {
	Admitted   bool
	Suppressed bool
	// Summary is a synthetic "N alerts suppressed" alert to be sent through
	// the normal routing path, set when an aggregate buffer flushes.
	Summary *database.Alert
}

// TryAdmit counts the alert against the organization's current window.
// Within the limit the alert is admitted. Beyond it, drop mode discards the
// alert outright while aggregate mode buffers it; once the buffer reaches the
// aggregate threshold a single synthetic summary alert is emitted and the
// buffer clears.
func (l *RateLimiter) TryAdmit(alert *database.Alert, cfg *database.RateLimitConfig, now time.Time) AdmitOutcome {
	if !cfg.Enabled {
		return AdmitOutcome{Admitted: true}
	}

	w := l.window(alert.OrganizationID)
	windowSize := time.Duration(cfg.TimeWindowSeconds) * time.Second

	var rolloverSummary *database.Alert
	if w.start.IsZero() || !now.Before(w.start.Add(windowSize)) {
		// Window boundary: flush whatever aggregated during the old window
		rolloverSummary = w.flush(alert.OrganizationID)
		w.start = now
		w.count = 0
	}

	if w.count < cfg.MaxAlertsPerWindow {
		w.count++
		w.sentTotal++
		return AdmitOutcome{Admitted: true, Summary: rolloverSummary}
	}

	w.suppressedTotal++
	alert.Suppressed = true

	if cfg.SuppressionMode == database.SuppressionModeDrop {
		return AdmitOutcome{Suppressed: true, Summary: rolloverSummary}
	}

	w.pending = append(w.pending, pendingAlert{checkName: alert.CheckName, severity: alert.Severity})
	if len(w.pending) >= cfg.AggregateThreshold {
		return AdmitOutcome{Suppressed: true, Summary: w.flush(alert.OrganizationID)}
	}
	return AdmitOutcome{Suppressed: true, Summary: rolloverSummary}
}

// FlushDue flushes the organization's pending aggregate buffer if its window
// has expired. Used by the sweep job so a quiet organization still gets its
// summary notification.
func (l *RateLimiter) FlushDue(orgID uint, cfg *database.RateLimitConfig, now time.Time) *database.Alert {
	w, ok := l.windows[orgID]
	if !ok || len(w.pending) == 0 {
		return nil
	}
	windowSize := time.Duration(cfg.TimeWindowSeconds) * time.Second
	if now.Before(w.start.Add(windowSize)) {
		return nil
	}
	return w.flush(orgID)
}

// Stats returns the organization's cumulative sent/suppressed counts
func (l *RateLimiter) Stats(orgID uint) (sent, suppressed int64) {
	w, ok := l.windows[orgID]
	if !ok {
		return 0, 0
	}
	return w.sentTotal, w.suppressedTotal
}

func (l *RateLimiter) window(orgID uint) *rateWindow {
	w, ok := l.windows[orgID]
	if !ok {
		w = &rateWindow{}
		l.windows[orgID] = w
	}
	return w
}

// flush builds the synthetic summary alert for the buffered suppressions and
// clears the buffer. Returns nil when nothing is pending.
func (w *rateWindow) flush(orgID uint) *database.Alert {
	if len(w.pending) == 0 {
		return nil
	}
	n := len(w.pending)
	severity := database.AlertSeverityInfo
	for _, p := range w.pending {
		if severityRank(p.severity) > severityRank(severity) {
			severity = p.severity
		}
	}
	w.pending = nil

	return &database.Alert{
		UUID:           uuid.NewString(),
		OrganizationID: orgID,
		CheckID:        "rate-limiter",
		CheckName:      "Alert rate limiter",
		CheckType:      "rate_limit",
		Severity:       severity,
		ErrorMessage:   fmt.Sprintf("%s alerts suppressed by rate limiting", utils.FormatNumber(n)),
		Synthetic:      true,
		OccurredAt:     time.Now(),
	}
}

func severityRank(s database.AlertSeverity) int {
	switch s {
	case database.AlertSeverityCritical:
		return 4
	case database.AlertSeverityHigh:
		return 3
	case database.AlertSeverityMedium:
		return 2
	case database.AlertSeverityLow:
		return 1
	default:
		return 0
	}
}
