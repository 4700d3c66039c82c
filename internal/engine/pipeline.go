package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// Ingest outcomes
const (
	IngestAccepted     = "accepted"
	IngestDeduplicated = "deduplicated"
	IngestSuppressed   = "suppressed"
	IngestAggregated   = "aggregated"
)

// Event is a pipeline lifecycle notification for the live feed
type Event struct {
	Type           string      `json:"type"`
	OrganizationID uint        `json:"organization_id"`
	Payload        interface{} `json:"payload,omitempty"`
}

// EventSink receives pipeline events (the websocket hub implements this)
type EventSink interface {
	Publish(event Event)
}

// SummaryRouter routes a synthetic rate-limit summary alert through the
// normal routing path. Implemented by the routing engine; kept as an
// interface here so the engine does not depend on routing.
type SummaryRouter interface {
	RouteAlert(alert *database.Alert) error
}

// IngestResult describes what the pipeline did with one alert
type IngestResult struct {
	Status      string                     `json:"status"`
	Alert       *database.Alert            `json:"alert"`
	Group       *database.AlertGroup       `json:"group,omitempty"`
	Correlation *database.AlertCorrelation `json:"correlation,omitempty"`
}

// Engine runs the per-alert pipeline: dedup, correlation, rate limiting and
// grouping, serialized per organization partition.
type Engine struct {
	db         *gorm.DB
	Partitions *Partitions
	Dedup      *DedupFilter
	Limiter    *RateLimiter
	Correlator *Correlator
	Groups     *Grouping

	router SummaryRouter
	events EventSink
}

// New creates an engine bound to a database
func New(db *gorm.DB) *Engine {
	return &Engine{
		db:         db,
		Partitions: NewPartitions(),
		Dedup:      NewDedupFilter(),
		Limiter:    NewRateLimiter(),
		Correlator: NewCorrelator(db),
		Groups:     NewGrouping(db),
	}
}

// SetSummaryRouter wires the routing engine used for rate-limit summaries
func (e *Engine) SetSummaryRouter(r SummaryRouter) {
	e.router = r
}

// SetEventSink wires the live event feed
func (e *Engine) SetEventSink(s EventSink) {
	e.events = s
}

// DB exposes the engine's database handle
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Ingest runs one alert through the full pipeline. Ordering between alerts
// of the same organization is preserved by the partition lock; later alerts
// always see earlier alerts' group and cluster state.
func (e *Engine) Ingest(alert *database.Alert) (*IngestResult, error) {
	if alert.OrganizationID == 0 {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	if alert.UUID == "" {
		alert.UUID = uuid.NewString()
	}

	unlock := e.Partitions.Lock(alert.OrganizationID)
	defer unlock()

	now := time.Now()

	rule, err := e.Groups.MatchRule(alert.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grouping rule: %w", err)
	}
	if rule == nil {
		rule = defaultGroupingRule(alert.OrganizationID)
	}

	if err := e.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	// Deduplication: a duplicate may still merge into its existing group but
	// never spawns a new one and triggers no further processing.
	if !e.Dedup.Admit(alert, rule, now) {
		group, err := e.Groups.Merge(alert, rule, now, false)
		if err != nil {
			return nil, err
		}
		if err := e.saveOutcome(alert); err != nil {
			return nil, err
		}
		e.publish(Event{Type: "alert.deduplicated", OrganizationID: alert.OrganizationID, Payload: alert})
		return &IngestResult{Status: IngestDeduplicated, Alert: alert, Group: group}, nil
	}

	corrSettings, err := database.GetOrCreateCorrelationSettings(e.db, alert.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlation settings: %w", err)
	}
	correlation, err := e.Correlator.Correlate(alert, corrSettings, now)
	if err != nil {
		return nil, err
	}

	rlConfig, err := database.GetOrCreateRateLimitConfig(e.db, alert.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate limit config: %w", err)
	}
	outcome := e.Limiter.TryAdmit(alert, rlConfig, now)
	if outcome.Summary != nil {
		e.routeSummary(outcome.Summary)
	}
	if !outcome.Admitted {
		if err := e.saveOutcome(alert); err != nil {
			return nil, err
		}
		status := IngestSuppressed
		if rlConfig.SuppressionMode == database.SuppressionModeAggregate {
			status = IngestAggregated
		}
		e.publish(Event{Type: "alert.suppressed", OrganizationID: alert.OrganizationID, Payload: alert})
		return &IngestResult{Status: status, Alert: alert, Correlation: correlation}, nil
	}

	group, err := e.Groups.Merge(alert, rule, now, true)
	if err != nil {
		return nil, err
	}
	if err := e.saveOutcome(alert); err != nil {
		return nil, err
	}

	e.publish(Event{Type: "alert.accepted", OrganizationID: alert.OrganizationID, Payload: alert})
	return &IngestResult{Status: IngestAccepted, Alert: alert, Group: group, Correlation: correlation}, nil
}

// saveOutcome persists the pipeline outcome fields written during ingestion
func (e *Engine) saveOutcome(alert *database.Alert) error {
	updates := map[string]interface{}{
		"fingerprint":    alert.Fingerprint,
		"deduplicated":   alert.Deduplicated,
		"suppressed":     alert.Suppressed,
		"group_id":       alert.GroupID,
		"correlation_id": alert.CorrelationID,
	}
	if err := e.db.Model(alert).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to save alert outcome: %w", err)
	}
	return nil
}

// routeSummary persists a synthetic rate-limit summary alert and sends it
// through the normal routing path.
func (e *Engine) routeSummary(summary *database.Alert) {
	if err := e.db.Create(summary).Error; err != nil {
		log.Printf("Failed to store rate-limit summary alert: %v", err)
		return
	}
	if e.router == nil {
		return
	}
	if err := e.router.RouteAlert(summary); err != nil {
		log.Printf("Failed to route rate-limit summary: %v", err)
	}
	e.publish(Event{Type: "ratelimit.summary", OrganizationID: summary.OrganizationID, Payload: summary})
}

// SweepRateLimits flushes pending aggregate buffers whose window has passed
// for every organization with a rate-limit config, and expires stale dedup
// history. Covers organizations that went quiet before their buffer filled.
func (e *Engine) SweepRateLimits(now time.Time) int {
	var configs []database.RateLimitConfig
	if err := e.db.Find(&configs).Error; err != nil {
		log.Printf("Rate limit sweep failed to load configs: %v", err)
		return 0
	}

	flushed := 0
	for i := range configs {
		cfg := &configs[i]
		unlock := e.Partitions.Lock(cfg.OrganizationID)
		summary := e.Limiter.FlushDue(cfg.OrganizationID, cfg, now)
		e.Dedup.Expire(cfg.OrganizationID, now.Add(-24*time.Hour))
		unlock()

		if summary != nil {
			e.routeSummary(summary)
			flushed++
		}
	}
	return flushed
}

// Publish forwards an event to the sink if one is wired. Exported so jobs
// and lifecycle services can share the feed.
func (e *Engine) Publish(event Event) {
	e.publish(event)
}

func (e *Engine) publish(event Event) {
	if e.events != nil {
		e.events.Publish(event)
	}
}

// SimulatedAlert is the per-alert outcome of a grouping simulation
type SimulatedAlert struct {
	CheckID       string `json:"check_id"`
	Fingerprint   string `json:"fingerprint"`
	GroupKey      string `json:"group_key"`
	Duplicate     bool   `json:"duplicate"`
	JoinsExisting bool   `json:"joins_existing_group"`
}

// SimulateGrouping reports how a batch of alerts would group under the
// organization's current rules without persisting anything.
func (e *Engine) SimulateGrouping(orgID uint, alerts []*database.Alert) ([]SimulatedAlert, error) {
	rule, err := e.Groups.MatchRule(orgID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		rule = defaultGroupingRule(orgID)
	}

	seen := make(map[string]bool)
	openKeys := make(map[string]bool)
	results := make([]SimulatedAlert, 0, len(alerts))
	window := time.Duration(rule.TimeWindowSeconds) * time.Second

	for _, alert := range alerts {
		alert.OrganizationID = orgID
		fp := Fingerprint(alert, rule)
		key := GroupKey(alert, rule)

		joins := openKeys[key]
		if !joins {
			var count int64
			e.db.Model(&database.AlertGroup{}).Where(
				"organization_id = ? AND group_key = ? AND status IN ? AND last_alert_at >= ?",
				orgID, key,
				[]database.GroupStatus{database.GroupStatusActive, database.GroupStatusAcknowledged},
				time.Now().Add(-window),
			).Count(&count)
			joins = count > 0
		}

		results = append(results, SimulatedAlert{
			CheckID:       alert.CheckID,
			Fingerprint:   fp,
			GroupKey:      key,
			Duplicate:     rule.DeduplicationEnabled && seen[fp],
			JoinsExisting: joins,
		})
		seen[fp] = true
		openKeys[key] = true
	}
	return results, nil
}

// defaultGroupingRule is the implicit rule used when an organization has no
// grouping configuration: group by check identity inside a 5 minute window.
func defaultGroupingRule(orgID uint) *database.AlertGroupingRule {
	return &database.AlertGroupingRule{
		OrganizationID:       orgID,
		Name:                 "default",
		GroupBy:              database.StringList{database.GroupByCheckID},
		TimeWindowSeconds:    300,
		DeduplicationEnabled: true,
		MaxAlertsPerGroup:    100,
	}
}
