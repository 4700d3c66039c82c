package escalation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"gorm.io/gorm"
)

// Scheduler drives escalation instances through their policy levels. All
// timing state is persisted on the instance row, so a restarted process picks
// up exactly where the previous one left off.
type Scheduler struct {
	db         *gorm.DB
	notifiers  *notify.Registry
	partitions *engine.Partitions
	oncall     *OnCall

	emailConfig map[string]interface{}
}

// NewScheduler creates an escalation scheduler
func NewScheduler(db *gorm.DB, notifiers *notify.Registry, partitions *engine.Partitions) *Scheduler {
	return &Scheduler{
		db:         db,
		notifiers:  notifiers,
		partitions: partitions,
		oncall:     NewOnCall(db),
	}
}

// SetEmailConfig sets the SMTP settings merged into email deliveries for
// user, email and on-call escalation targets.
func (s *Scheduler) SetEmailConfig(cfg map[string]interface{}) {
	s.emailConfig = cfg
}

// ValidatePolicy checks a policy before it is saved or armed: at least one
// level, monotonically non-decreasing offsets, non-empty targets, and any
// referenced on-call schedule must exist and have members.
func (s *Scheduler) ValidatePolicy(policy *database.EscalationPolicy) error {
	if len(policy.Levels) == 0 {
		return fmt.Errorf("%w: escalation policy needs at least one level", engine.ErrValidation)
	}
	prev := -1
	for i, level := range policy.Levels {
		if level.EscalateAfterMinutes < 0 {
			return fmt.Errorf("%w: level %d has negative escalate_after_minutes", engine.ErrValidation, i)
		}
		if level.EscalateAfterMinutes < prev {
			return fmt.Errorf("%w: level %d fires before level %d", engine.ErrValidation, i, i-1)
		}
		prev = level.EscalateAfterMinutes
		if len(level.Targets) == 0 {
			return fmt.Errorf("%w: level %d has no targets", engine.ErrValidation, i)
		}
		for _, target := range level.Targets {
			if err := s.validateTarget(policy.OrganizationID, target); err != nil {
				return err
			}
		}
	}
	if policy.RepeatPolicy == database.RepeatPolicyUntilAcknowledged && policy.RepeatIntervalMinutes <= 0 {
		return fmt.Errorf("%w: repeat_until_acknowledged requires a positive repeat interval", engine.ErrValidation)
	}
	return nil
}

func (s *Scheduler) validateTarget(orgID uint, target database.EscalationTarget) error {
	switch target.Type {
	case database.EscalationTargetUser, database.EscalationTargetEmail:
		if target.Value == "" {
			return fmt.Errorf("%w: %s target needs an address", engine.ErrValidation, target.Type)
		}
	case database.EscalationTargetWebhook:
		if target.Value == "" {
			return fmt.Errorf("%w: webhook target needs a URL", engine.ErrValidation)
		}
	case database.EscalationTargetOnCall:
		scheduleID, err := strconv.Atoi(target.Value)
		if err != nil || scheduleID <= 0 {
			return fmt.Errorf("%w: on_call_schedule target needs a schedule id", engine.ErrValidation)
		}
		var schedule database.OnCallSchedule
		if err := s.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).First(&schedule).Error; err != nil {
			return fmt.Errorf("%w: on-call schedule %d not found", engine.ErrValidation, scheduleID)
		}
		if len(schedule.Members) == 0 {
			return fmt.Errorf("%w: on-call schedule %q has no members", engine.ErrValidation, schedule.Name)
		}
	default:
		return fmt.Errorf("%w: unknown escalation target type %q", engine.ErrValidation, target.Type)
	}
	return nil
}

// ComputeFireTime returns when the given level of the given cycle fires,
// counting from the instance's creation. Cycle N starts repeat_interval
// minutes after cycle N-1's last level.
func ComputeFireTime(policy *database.EscalationPolicy, createdAt time.Time, level, cycle int) time.Time {
	lastOffset := policy.Levels[len(policy.Levels)-1].EscalateAfterMinutes
	cycleLength := lastOffset + policy.RepeatIntervalMinutes
	minutes := cycle*cycleLength + policy.Levels[level].EscalateAfterMinutes
	return createdAt.Add(time.Duration(minutes) * time.Minute)
}

// ArmForGroup starts an escalation for a notified group. A nil, disabled or
// malformed policy arms nothing: routing already happened and must not be
// rolled back over an escalation problem.
func (s *Scheduler) ArmForGroup(group *database.AlertGroup, policy *database.EscalationPolicy, now time.Time) (*database.EscalationInstance, error) {
	return s.arm(group.OrganizationID, &group.ID, nil, policy, now)
}

// ArmForIncident starts an escalation for a managed incident
func (s *Scheduler) ArmForIncident(incident *database.ManagedIncident, policy *database.EscalationPolicy, now time.Time) (*database.EscalationInstance, error) {
	return s.arm(incident.OrganizationID, nil, &incident.ID, policy, now)
}

func (s *Scheduler) arm(orgID uint, groupID, incidentID *uint, policy *database.EscalationPolicy, now time.Time) (*database.EscalationInstance, error) {
	if policy == nil || !policy.Enabled {
		return nil, nil
	}
	if err := s.ValidatePolicy(policy); err != nil {
		log.Printf("Not arming escalation policy %q: %v", policy.Name, err)
		return nil, nil
	}

	firstFire := ComputeFireTime(policy, now, 0, 0)
	instance := &database.EscalationInstance{
		OrganizationID: orgID,
		PolicyID:       policy.ID,
		GroupID:        groupID,
		IncidentID:     incidentID,
		Status:         database.EscalationStatusArmed,
		NextFireAt:     &firstFire,
		CreatedAt:      now,
	}
	if err := s.db.Create(instance).Error; err != nil {
		return nil, fmt.Errorf("failed to arm escalation: %w", err)
	}
	return instance, nil
}

// RunDue fires every armed instance whose next_fire_at has passed and
// returns the number of levels fired. Each instance is handled under its
// organization's partition lock so an acknowledge never races a firing.
func (s *Scheduler) RunDue(now time.Time) (int, error) {
	var due []database.EscalationInstance
	err := s.db.Where("status = ? AND next_fire_at IS NOT NULL AND next_fire_at <= ?",
		database.EscalationStatusArmed, now).Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load due escalations: %w", err)
	}

	fired := 0
	for i := range due {
		if s.fireInstance(&due[i], now) {
			fired++
		}
	}
	return fired, nil
}

// fireInstance fires one due instance, possibly catching up multiple levels
// when the process was down past several fire times.
func (s *Scheduler) fireInstance(stale *database.EscalationInstance, now time.Time) bool {
	unlock := s.partitions.Lock(stale.OrganizationID)
	defer unlock()

	// Reload under the lock: the instance may have been acknowledged or
	// cancelled since the scan.
	var instance database.EscalationInstance
	if err := s.db.First(&instance, stale.ID).Error; err != nil {
		return false
	}
	if instance.Status != database.EscalationStatusArmed || instance.NextFireAt == nil || instance.NextFireAt.After(now) {
		return false
	}

	var policy database.EscalationPolicy
	if err := s.db.First(&policy, instance.PolicyID).Error; err != nil || len(policy.Levels) == 0 {
		log.Printf("Cancelling escalation %d: policy %d unusable", instance.ID, instance.PolicyID)
		s.finish(&instance, database.EscalationStatusCancelled)
		return false
	}

	if !s.ownerOpen(&instance) {
		s.finish(&instance, database.EscalationStatusCancelled)
		return false
	}

	level := policy.Levels[instance.CurrentLevel]
	s.fireTargets(&instance, level)

	instance.FireCount++
	instance.LastFiredAt = &now
	s.advance(&instance, &policy)

	updates := map[string]interface{}{
		"status":        instance.Status,
		"current_level": instance.CurrentLevel,
		"cycle_count":   instance.CycleCount,
		"next_fire_at":  instance.NextFireAt,
		"last_fired_at": instance.LastFiredAt,
		"fire_count":    instance.FireCount,
	}
	if err := s.db.Model(&database.EscalationInstance{}).Where("id = ?", instance.ID).Updates(updates).Error; err != nil {
		log.Printf("Failed to persist escalation %d after firing: %v", instance.ID, err)
	}
	return true
}

// advance moves the instance to its next level, loops back to level 0 under
// repeat_until_acknowledged, or exhausts it.
func (s *Scheduler) advance(instance *database.EscalationInstance, policy *database.EscalationPolicy) {
	if instance.CurrentLevel+1 < len(policy.Levels) {
		instance.CurrentLevel++
		next := ComputeFireTime(policy, instance.CreatedAt, instance.CurrentLevel, instance.CycleCount)
		instance.NextFireAt = &next
		return
	}
	if policy.RepeatPolicy == database.RepeatPolicyUntilAcknowledged {
		instance.CurrentLevel = 0
		instance.CycleCount++
		next := ComputeFireTime(policy, instance.CreatedAt, 0, instance.CycleCount)
		instance.NextFireAt = &next
		return
	}
	instance.Status = database.EscalationStatusExhausted
	instance.NextFireAt = nil
}

// ownerOpen reports whether the group or incident this instance escalates is
// still unhandled.
func (s *Scheduler) ownerOpen(instance *database.EscalationInstance) bool {
	if instance.GroupID != nil {
		var group database.AlertGroup
		if err := s.db.First(&group, *instance.GroupID).Error; err != nil {
			return false
		}
		return group.Status == database.GroupStatusActive
	}
	if instance.IncidentID != nil {
		var incident database.ManagedIncident
		if err := s.db.First(&incident, *instance.IncidentID).Error; err != nil {
			return false
		}
		return incident.Status == database.IncidentStatusTriggered
	}
	return false
}

// fireTargets resolves and notifies every target of a level. On-call targets
// resolve to the member on rotation at fire time, not at arm time. One
// failing target never blocks the rest.
func (s *Scheduler) fireTargets(instance *database.EscalationInstance, level database.EscalationLevel) {
	payload := s.buildPayload(instance)

	for _, target := range level.Targets {
		if err := s.fireTarget(target, payload); err != nil {
			log.Printf("Escalation %d level %d target %s/%s failed: %v",
				instance.ID, instance.CurrentLevel, target.Type, target.Value, err)
		}
	}
}

func (s *Scheduler) fireTarget(target database.EscalationTarget, payload notify.Payload) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch target.Type {
	case database.EscalationTargetUser, database.EscalationTargetEmail:
		return s.notifiers.Notify(ctx, s.emailDestination(target.Value), payload)

	case database.EscalationTargetWebhook:
		dest := database.RoutingDestination{
			Type:   database.DestinationWebhook,
			Name:   "escalation-webhook",
			Config: map[string]interface{}{"url": target.Value},
		}
		return s.notifiers.Notify(ctx, dest, payload)

	case database.EscalationTargetOnCall:
		scheduleID, err := strconv.Atoi(target.Value)
		if err != nil {
			return fmt.Errorf("bad on-call schedule id %q", target.Value)
		}
		var schedule database.OnCallSchedule
		if err := s.db.First(&schedule, scheduleID).Error; err != nil {
			return fmt.Errorf("on-call schedule %d not found: %w", scheduleID, err)
		}
		member, err := s.oncall.CurrentMember(&schedule)
		if err != nil {
			return err
		}
		if member.Email == "" {
			return fmt.Errorf("on-call member %q has no email address", member.Name)
		}
		return s.notifiers.Notify(ctx, s.emailDestination(member.Email), payload)

	default:
		return fmt.Errorf("unknown escalation target type %q", target.Type)
	}
}

func (s *Scheduler) emailDestination(to string) database.RoutingDestination {
	config := map[string]interface{}{"to": to}
	for k, v := range s.emailConfig {
		config[k] = v
	}
	return database.RoutingDestination{
		Type:   database.DestinationEmail,
		Name:   "escalation-email",
		Config: config,
	}
}

func (s *Scheduler) buildPayload(instance *database.EscalationInstance) notify.Payload {
	payload := notify.Payload{
		Title:    fmt.Sprintf("Escalation level %d", instance.CurrentLevel+1),
		Severity: database.AlertSeverityHigh,
	}

	if instance.GroupID != nil {
		var group database.AlertGroup
		if err := s.db.First(&group, *instance.GroupID).Error; err == nil {
			payload.GroupUUID = group.UUID
			payload.AlertCount = group.AlertCount
			payload.Body = fmt.Sprintf("Alert group %s is still unacknowledged (%d alerts)", group.UUID, group.AlertCount)

			var last database.Alert
			if err := s.db.Where("group_id = ?", group.ID).Order("occurred_at DESC").First(&last).Error; err == nil {
				payload.Title = fmt.Sprintf("Escalation level %d: %s", instance.CurrentLevel+1, last.CheckName)
				payload.Severity = last.Severity
			}
		}
	} else if instance.IncidentID != nil {
		var incident database.ManagedIncident
		if err := s.db.First(&incident, *instance.IncidentID).Error; err == nil {
			payload.Title = fmt.Sprintf("Escalation level %d: %s", instance.CurrentLevel+1, incident.Title)
			payload.Body = fmt.Sprintf("Incident %s is still unacknowledged", incident.UUID)
			payload.Severity = incident.Severity
			payload.PriorityLabel = string(incident.Priority)
		}
	}
	return payload
}

// Acknowledge stops every armed escalation for a group. Called with the
// partition lock held by the group acknowledge path.
func (s *Scheduler) Acknowledge(groupID uint) error {
	return s.settle("group_id = ?", groupID, database.EscalationStatusAcknowledged)
}

// CancelForGroup stops every armed escalation for a group
func (s *Scheduler) CancelForGroup(groupID uint) error {
	return s.settle("group_id = ?", groupID, database.EscalationStatusCancelled)
}

// AcknowledgeIncident stops every armed escalation for an incident
func (s *Scheduler) AcknowledgeIncident(incidentID uint) error {
	return s.settle("incident_id = ?", incidentID, database.EscalationStatusAcknowledged)
}

// CancelForIncident stops every armed escalation for an incident
func (s *Scheduler) CancelForIncident(incidentID uint) error {
	return s.settle("incident_id = ?", incidentID, database.EscalationStatusCancelled)
}

// finish settles a single loaded instance and clears its timer
func (s *Scheduler) finish(instance *database.EscalationInstance, status database.EscalationStatus) {
	updates := map[string]interface{}{"status": status, "next_fire_at": nil}
	if err := s.db.Model(instance).Updates(updates).Error; err != nil {
		log.Printf("Failed to settle escalation %d: %v", instance.ID, err)
		return
	}
	instance.Status = status
	instance.NextFireAt = nil
}

func (s *Scheduler) settle(query string, id uint, status database.EscalationStatus) error {
	err := s.db.Model(&database.EscalationInstance{}).
		Where(query, id).
		Where("status = ?", database.EscalationStatusArmed).
		Updates(map[string]interface{}{"status": status, "next_fire_at": nil}).Error
	if err != nil {
		return fmt.Errorf("failed to settle escalations: %w", err)
	}
	return nil
}

// PlannedFiring is one step of a policy preview
type PlannedFiring struct {
	Level     int                         `json:"level"`
	Cycle     int                         `json:"cycle"`
	AtMinutes int                         `json:"at_minutes"`
	Targets   []database.EscalationTarget `json:"targets"`
}

// TestPolicy previews a policy's firing timeline without arming anything.
// Repeating policies are previewed for two full cycles.
func (s *Scheduler) TestPolicy(policy *database.EscalationPolicy) ([]PlannedFiring, error) {
	if err := s.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	cycles := 1
	if policy.RepeatPolicy == database.RepeatPolicyUntilAcknowledged {
		cycles = 2
	}

	origin := time.Unix(0, 0).UTC()
	var plan []PlannedFiring
	for cycle := 0; cycle < cycles; cycle++ {
		for i, level := range policy.Levels {
			at := ComputeFireTime(policy, origin, i, cycle)
			plan = append(plan, PlannedFiring{
				Level:     i,
				Cycle:     cycle,
				AtMinutes: int(at.Sub(origin) / time.Minute),
				Targets:   level.Targets,
			})
		}
	}
	return plan, nil
}
