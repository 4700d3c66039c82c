// Package jobs holds the periodic background loops: group notification,
// escalation firing, on-call rotation and the rate-limit sweep. Each job
// exposes Run for one iteration (tests drive this directly) and Start for
// the ticker loop.
package jobs

import (
	"log"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/routing"
	"gorm.io/gorm"
)

// NotifierJob dispatches groups whose notification delay has elapsed and
// arms their escalation. A group is handed to routing exactly once.
type NotifierJob struct {
	db        *gorm.DB
	engine    *engine.Engine
	router    *routing.Engine
	scheduler *escalation.Scheduler
}

// NewNotifierJob creates a notifier job
func NewNotifierJob(db *gorm.DB, eng *engine.Engine, router *routing.Engine, scheduler *escalation.Scheduler) *NotifierJob {
	return &NotifierJob{db: db, engine: eng, router: router, scheduler: scheduler}
}

// Run executes one iteration and returns the number of groups dispatched
func (j *NotifierJob) Run(now time.Time) (int, error) {
	due, err := j.engine.Groups.DueForNotification(now)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range due {
		if j.dispatchGroup(&due[i], now) {
			dispatched++
		}
	}
	return dispatched, nil
}

// dispatchGroup routes one due group under its partition lock
func (j *NotifierJob) dispatchGroup(stale *database.AlertGroup, now time.Time) bool {
	unlock := j.engine.Partitions.Lock(stale.OrganizationID)
	defer unlock()

	// Reload under the lock: the group may have been resolved, snoozed or
	// already notified since the scan.
	group, err := j.engine.Groups.Get(stale.OrganizationID, stale.ID)
	if err != nil {
		return false
	}
	if group.NotificationSent || group.Status != database.GroupStatusActive || group.IsSnoozed(now) {
		return false
	}

	alerts, err := j.engine.Groups.Alerts(group.ID)
	if err != nil {
		log.Printf("Notifier: failed to load alerts for group %s: %v", group.UUID, err)
		return false
	}

	results, rules, err := j.router.DispatchGroup(group, alerts)
	if err != nil {
		log.Printf("Notifier: failed to dispatch group %s: %v", group.UUID, err)
		return false
	}

	// Mark before arming: a broken escalation policy must not cause the
	// group to be re-notified on the next tick.
	if err := j.engine.Groups.MarkNotified(group.ID); err != nil {
		log.Printf("Notifier: failed to mark group %s notified: %v", group.UUID, err)
		return false
	}

	for _, result := range results {
		if result.Success {
			log.Printf("Notifier: group %s delivered to %s/%s in %d attempt(s)",
				group.UUID, result.DestinationType, result.DestinationName, result.Attempts)
		} else {
			log.Printf("Notifier: group %s delivery to %s/%s failed after %d attempt(s): %s",
				group.UUID, result.DestinationType, result.DestinationName, result.Attempts, result.Error)
		}
	}

	if policy := j.escalationPolicy(group.OrganizationID, rules); policy != nil {
		if _, err := j.scheduler.ArmForGroup(group, policy, now); err != nil {
			log.Printf("Notifier: failed to arm escalation for group %s: %v", group.UUID, err)
		}
	}

	j.engine.Publish(engine.Event{Type: "group.notified", OrganizationID: group.OrganizationID, Payload: group})
	return true
}

// escalationPolicy picks the policy for a dispatched group: the first
// matched rule carrying one wins, then the organization default. A rule
// referencing a missing policy is fail-open, the dispatch already happened.
func (j *NotifierJob) escalationPolicy(orgID uint, rules []database.AlertRoutingRule) *database.EscalationPolicy {
	for _, rule := range rules {
		if rule.EscalationPolicyID == nil {
			continue
		}
		var policy database.EscalationPolicy
		if err := j.db.First(&policy, *rule.EscalationPolicyID).Error; err != nil {
			log.Printf("Notifier: routing rule %q references missing escalation policy %d", rule.Name, *rule.EscalationPolicyID)
			continue
		}
		return &policy
	}

	policy, err := database.GetDefaultEscalationPolicy(j.db, orgID)
	if err != nil {
		log.Printf("Notifier: failed to load default escalation policy for org %d: %v", orgID, err)
		return nil
	}
	return policy
}

// Start begins the periodic notification dispatch
func (j *NotifierJob) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dispatched, err := j.Run(time.Now())
			if err != nil {
				log.Printf("Notifier job error: %v", err)
			} else if dispatched > 0 {
				log.Printf("Notifier job: dispatched %d groups", dispatched)
			}
		case <-stop:
			log.Println("Notifier job stopped")
			return
		}
	}
}
