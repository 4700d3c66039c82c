package routing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/utils"
	"gorm.io/gorm"
)

// DispatchResult records one delivery attempt to one destination. A failed
// destination never blocks the others; the error is carried here instead.
type DispatchResult struct {
	DestinationType string `json:"destination_type"`
	DestinationName string `json:"destination_name"`
	Success         bool   `json:"success"`
	Attempts        int    `json:"attempts"`
	Error           string `json:"error,omitempty"`
}

// Engine evaluates routing rules and fans a grouped alert out to every
// matching rule's destinations.
type Engine struct {
	db        *gorm.DB
	notifiers *notify.Registry
	runbooks  *RunbookMatcher

	maxAttempts int
	backoff     time.Duration
}

// New creates a routing engine with default retry policy (3 attempts,
// 500ms initial backoff, doubling).
func New(db *gorm.DB, notifiers *notify.Registry) *Engine {
	return &Engine{
		db:          db,
		notifiers:   notifiers,
		runbooks:    NewRunbookMatcher(db),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
}

// SetRetry overrides the delivery retry policy
func (e *Engine) SetRetry(maxAttempts int, backoff time.Duration) {
	e.maxAttempts = maxAttempts
	e.backoff = backoff
}

// Notifiers exposes the destination registry
func (e *Engine) Notifiers() *notify.Registry {
	return e.notifiers
}

// Runbooks exposes the runbook matcher
func (e *Engine) Runbooks() *RunbookMatcher {
	return e.runbooks
}

// MatchRules returns the enabled rules matching the alert, in ascending
// priority order.
func (e *Engine) MatchRules(alert *database.Alert) ([]database.AlertRoutingRule, error) {
	var rules []database.AlertRoutingRule
	err := e.db.Where("organization_id = ? AND enabled = ?", alert.OrganizationID, true).
		Order("priority ASC, id ASC").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}

	matched := make([]database.AlertRoutingRule, 0, len(rules))
	for _, rule := range rules {
		if RuleMatches(&rule, alert) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// RuleMatches evaluates a rule's conditions against an alert per the rule's
// all/any combinator. A rule with no conditions matches everything.
func RuleMatches(rule *database.AlertRoutingRule, alert *database.Alert) bool {
	if len(rule.Conditions) == 0 {
		return true
	}
	for _, cond := range rule.Conditions {
		ok := EvaluateCondition(cond, alert)
		if rule.ConditionMatch == database.ConditionMatchAny {
			if ok {
				return true
			}
		} else if !ok {
			return false
		}
	}
	return rule.ConditionMatch != database.ConditionMatchAny
}

// EvaluateCondition evaluates one field/operator/value predicate
func EvaluateCondition(cond database.RoutingCondition, alert *database.Alert) bool {
	var actual string
	switch cond.Field {
	case database.ConditionFieldSeverity:
		actual = string(alert.Severity)
	case database.ConditionFieldCheckType:
		actual = alert.CheckType
	case database.ConditionFieldCheckName:
		actual = alert.CheckName
	case database.ConditionFieldLocation:
		actual = alert.Location
	case database.ConditionFieldTag:
		actual = alert.TagValue(cond.Key)
	case database.ConditionFieldErrorContains:
		return strings.Contains(strings.ToLower(alert.ErrorMessage), strings.ToLower(cond.Value))
	default:
		return false
	}

	switch cond.Operator {
	case database.OperatorEquals:
		return strings.EqualFold(actual, cond.Value)
	case database.OperatorNotEquals:
		return !strings.EqualFold(actual, cond.Value)
	case database.OperatorContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	case database.OperatorNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	default:
		return false
	}
}

// DispatchGroup routes a group using its most recent alert as the
// representative and returns the delivery results plus the matched rules
// (the caller arms escalation from them).
func (e *Engine) DispatchGroup(group *database.AlertGroup, alerts []database.Alert) ([]DispatchResult, []database.AlertRoutingRule, error) {
	if len(alerts) == 0 {
		return nil, nil, fmt.Errorf("group %s has no alerts", group.UUID)
	}
	representative := &alerts[len(alerts)-1]

	rules, err := e.MatchRules(representative)
	if err != nil {
		return nil, nil, err
	}

	payload := e.buildPayload(representative, group)
	results := e.dispatch(collectDestinations(rules), payload)
	return results, rules, nil
}

// RouteAlert routes a single alert (rate-limit summaries and destination
// tests take this path).
func (e *Engine) RouteAlert(alert *database.Alert) error {
	rules, err := e.MatchRules(alert)
	if err != nil {
		return err
	}
	payload := e.buildPayload(alert, nil)
	results := e.dispatch(collectDestinations(rules), payload)
	for _, r := range results {
		if !r.Success {
			// Notifier errors can carry multi-line response bodies
			log.Printf("Dispatch to %s/%s failed: %s", r.DestinationType, r.DestinationName, utils.EscapeForLogging(r.Error, 200))
		}
	}
	return nil
}

// SimulateAlert evaluates routing for a synthetic alert without delivering
// anything: matched rules plus the deduplicated destination fan-out.
func (e *Engine) SimulateAlert(alert *database.Alert) ([]database.AlertRoutingRule, []database.RoutingDestination, error) {
	rules, err := e.MatchRules(alert)
	if err != nil {
		return nil, nil, err
	}
	return rules, collectDestinations(rules), nil
}

// TestDestination performs one immediate delivery attempt to a destination
func (e *Engine) TestDestination(dest database.RoutingDestination, alert *database.Alert) DispatchResult {
	payload := e.buildPayload(alert, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result := DispatchResult{DestinationType: dest.Type, DestinationName: dest.Name, Attempts: 1}
	if err := e.notifiers.Notify(ctx, dest, payload); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// buildPayload assembles the channel-independent payload, attaching the
// priority label and best-matching runbook as advisory metadata.
func (e *Engine) buildPayload(alert *database.Alert, group *database.AlertGroup) notify.Payload {
	payload := notify.Payload{
		Title:         fmt.Sprintf("%s: %s", strings.ToUpper(string(alert.Severity)), alert.CheckName),
		Body:          utils.TruncateText(alert.ErrorMessage, 500),
		Severity:      alert.Severity,
		PriorityLabel: string(MapSeverity(alert.Severity)),
	}
	if alert.Location != "" {
		payload.Body = fmt.Sprintf("%s (from %s)", payload.Body, alert.Location)
	}
	if group != nil {
		payload.GroupUUID = group.UUID
		payload.AlertCount = group.AlertCount
		if group.AlertCount > 1 {
			payload.Title = fmt.Sprintf("%s (+%d related)", payload.Title, group.AlertCount-1)
			payload.Body = fmt.Sprintf("%s\nFiring for %s", payload.Body,
				utils.FormatDuration(group.LastAlertAt.Sub(group.FirstAlertAt)))
		}
	}

	runbook, err := e.runbooks.Match(alert.OrganizationID, alert.CheckType, alert.Severity)
	if err != nil {
		log.Printf("Runbook lookup failed for org %d: %v", alert.OrganizationID, err)
	} else if runbook != nil {
		payload.RunbookName = runbook.Name
		payload.RunbookURL = runbook.URL
	}
	return payload
}

// dispatch fans out to every destination with bounded retry. Destinations
// are independent failure domains: one failing never stops the rest.
func (e *Engine) dispatch(destinations []database.RoutingDestination, payload notify.Payload) []DispatchResult {
	results := make([]DispatchResult, 0, len(destinations))
	for _, dest := range destinations {
		results = append(results, e.deliver(dest, payload))
	}
	return results
}

func (e *Engine) deliver(dest database.RoutingDestination, payload notify.Payload) DispatchResult {
	result := DispatchResult{DestinationType: dest.Type, DestinationName: dest.Name}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result.Attempts = attempt

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := e.notifiers.Notify(ctx, dest, payload)
		cancel()

		if err == nil {
			result.Success = true
			return result
		}
		lastErr = err
		if attempt < e.maxAttempts {
			time.Sleep(e.backoff * time.Duration(1<<(attempt-1)))
		}
	}

	result.Error = lastErr.Error()
	return result
}

// collectDestinations gathers all matched rules' destinations deduplicated
// by (type, identity), preserving rule priority order.
func collectDestinations(rules []database.AlertRoutingRule) []database.RoutingDestination {
	seen := make(map[string]bool)
	var destinations []database.RoutingDestination
	for _, rule := range rules {
		for _, dest := range rule.Destinations {
			if seen[dest.Identity()] {
				continue
			}
			seen[dest.Identity()] = true
			destinations = append(destinations, dest)
		}
	}
	return destinations
}
