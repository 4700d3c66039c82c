// Package bootstrap seeds organizations and their alerting configuration
// from a YAML file on startup. Seeding is idempotent: records are matched
// by name within their organization and never overwritten, so the file can
// stay in place across restarts.
package bootstrap

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// File is the top-level bootstrap document
type File struct {
	Organizations []OrganizationSeed `yaml:"organizations"`
}

// OrganizationSeed declares one organization and its configuration
type OrganizationSeed struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`

	GroupingRules      []GroupingRuleSeed     `yaml:"grouping_rules"`
	RoutingRules       []RoutingRuleSeed      `yaml:"routing_rules"`
	EscalationPolicies []EscalationPolicySeed `yaml:"escalation_policies"`
	OnCallSchedules    []OnCallScheduleSeed   `yaml:"on_call_schedules"`
	Runbooks           []RunbookSeed          `yaml:"runbooks"`
}

// GroupingRuleSeed declares one alert grouping rule
type GroupingRuleSeed struct {
	Name                     string   `yaml:"name"`
	GroupBy                  []string `yaml:"group_by"`
	TimeWindowSeconds        int      `yaml:"time_window_seconds"`
	DeduplicationEnabled     *bool    `yaml:"deduplication_enabled"`
	MaxAlertsPerGroup        int      `yaml:"max_alerts_per_group"`
	NotificationDelaySeconds int      `yaml:"notification_delay_seconds"`
	Priority                 int      `yaml:"priority"`
}

// RoutingRuleSeed declares one alert routing rule
type RoutingRuleSeed struct {
	Name             string            `yaml:"name"`
	ConditionMatch   string            `yaml:"condition_match"`
	Conditions       []ConditionSeed   `yaml:"conditions"`
	Destinations     []DestinationSeed `yaml:"destinations"`
	EscalationPolicy string            `yaml:"escalation_policy"` // policy name within the same org
	Priority         int               `yaml:"priority"`
}

// ConditionSeed declares one routing condition
type ConditionSeed struct {
	Field    string `yaml:"field"`
	Key      string `yaml:"key"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}

// DestinationSeed declares one routing destination
type DestinationSeed struct {
	Type   string                 `yaml:"type"`
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// EscalationPolicySeed declares one escalation policy
type EscalationPolicySeed struct {
	Name                  string      `yaml:"name"`
	RepeatPolicy          string      `yaml:"repeat_policy"`
	RepeatIntervalMinutes int         `yaml:"repeat_interval_minutes"`
	IsDefault             bool        `yaml:"is_default"`
	Levels                []LevelSeed `yaml:"levels"`
}

// LevelSeed declares one escalation level
type LevelSeed struct {
	EscalateAfterMinutes int          `yaml:"escalate_after_minutes"`
	Targets              []TargetSeed `yaml:"targets"`
}

// TargetSeed declares one escalation target
type TargetSeed struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// OnCallScheduleSeed declares one on-call rotation
type OnCallScheduleSeed struct {
	Name                 string       `yaml:"name"`
	RotationType         string       `yaml:"rotation_type"`
	RotationIntervalDays int          `yaml:"rotation_interval_days"`
	Timezone             string       `yaml:"timezone"`
	Members              []MemberSeed `yaml:"members"`
}

// MemberSeed declares one rotation member
type MemberSeed struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// RunbookSeed declares one alert runbook
type RunbookSeed struct {
	Name         string `yaml:"name"`
	CheckType    string `yaml:"check_type"`
	Severity     string `yaml:"severity"`
	URL          string `yaml:"url"`
	Instructions string `yaml:"instructions"`
}

// Run loads the bootstrap file and applies it. A missing path is not an
// error so deployments without a seed file start clean.
func Run(db *gorm.DB, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Bootstrap file %s not found, skipping", path)
			return nil
		}
		return fmt.Errorf("failed to read bootstrap file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse bootstrap file: %w", err)
	}

	return Apply(db, &file)
}

// Apply seeds every organization in the document
func Apply(db *gorm.DB, file *File) error {
	for i := range file.Organizations {
		if err := applyOrganization(db, &file.Organizations[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyOrganization(db *gorm.DB, seed *OrganizationSeed) error {
	if seed.Slug == "" {
		return fmt.Errorf("bootstrap organization %q is missing a slug", seed.Name)
	}

	var org database.Organization
	err := db.Where("slug = ?", seed.Slug).First(&org).Error
	if err == gorm.ErrRecordNotFound {
		name := seed.Name
		if name == "" {
			name = seed.Slug
		}
		org = database.Organization{Name: name, Slug: seed.Slug}
		if err := db.Create(&org).Error; err != nil {
			return fmt.Errorf("failed to create organization %q: %w", seed.Slug, err)
		}
		log.Printf("Bootstrap: created organization %q (ID: %d)", seed.Slug, org.ID)
	} else if err != nil {
		return fmt.Errorf("failed to look up organization %q: %w", seed.Slug, err)
	}

	// Escalation policies first: routing rules reference them by name.
	policyIDs := make(map[string]uint)
	for _, p := range seed.EscalationPolicies {
		id, err := seedEscalationPolicy(db, org.ID, &p)
		if err != nil {
			return err
		}
		policyIDs[p.Name] = id
	}

	for _, r := range seed.GroupingRules {
		if err := seedGroupingRule(db, org.ID, &r); err != nil {
			return err
		}
	}
	for _, r := range seed.RoutingRules {
		if err := seedRoutingRule(db, org.ID, &r, policyIDs); err != nil {
			return err
		}
	}
	for _, s := range seed.OnCallSchedules {
		if err := seedOnCallSchedule(db, org.ID, &s); err != nil {
			return err
		}
	}
	for _, r := range seed.Runbooks {
		if err := seedRunbook(db, org.ID, &r); err != nil {
			return err
		}
	}
	return nil
}

// exists reports whether a named record already exists for the organization
func exists(db *gorm.DB, model interface{}, orgID uint, name string) (bool, error) {
	var count int64
	err := db.Model(model).Where("organization_id = ? AND name = ?", orgID, name).Count(&count).Error
	return count > 0, err
}

func seedEscalationPolicy(db *gorm.DB, orgID uint, seed *EscalationPolicySeed) (uint, error) {
	var existing database.EscalationPolicy
	err := db.Where("organization_id = ? AND name = ?", orgID, seed.Name).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	levels := make(database.EscalationLevelList, 0, len(seed.Levels))
	for _, l := range seed.Levels {
		targets := make([]database.EscalationTarget, 0, len(l.Targets))
		for _, t := range l.Targets {
			targets = append(targets, database.EscalationTarget{Type: t.Type, Value: t.Value})
		}
		levels = append(levels, database.EscalationLevel{
			EscalateAfterMinutes: l.EscalateAfterMinutes,
			Targets:              targets,
		})
	}

	policy := database.EscalationPolicy{
		OrganizationID:        orgID,
		Name:                  seed.Name,
		Levels:                levels,
		RepeatPolicy:          database.RepeatPolicyOnce,
		RepeatIntervalMinutes: seed.RepeatIntervalMinutes,
		IsDefault:             seed.IsDefault,
		Enabled:               true,
	}
	if seed.RepeatPolicy == string(database.RepeatPolicyUntilAcknowledged) {
		policy.RepeatPolicy = database.RepeatPolicyUntilAcknowledged
	}
	if policy.RepeatIntervalMinutes <= 0 {
		policy.RepeatIntervalMinutes = 30
	}
	if err := db.Create(&policy).Error; err != nil {
		return 0, fmt.Errorf("failed to seed escalation policy %q: %w", seed.Name, err)
	}
	log.Printf("Bootstrap: created escalation policy %q", seed.Name)
	return policy.ID, nil
}

func seedGroupingRule(db *gorm.DB, orgID uint, seed *GroupingRuleSeed) error {
	found, err := exists(db, &database.AlertGroupingRule{}, orgID, seed.Name)
	if err != nil || found {
		return err
	}

	for _, dim := range seed.GroupBy {
		if !database.ValidGroupByDimension(dim) {
			return fmt.Errorf("grouping rule %q has invalid dimension %q", seed.Name, dim)
		}
	}

	rule := database.AlertGroupingRule{
		OrganizationID:           orgID,
		Name:                     seed.Name,
		GroupBy:                  database.StringList(seed.GroupBy),
		TimeWindowSeconds:        seed.TimeWindowSeconds,
		DeduplicationEnabled:     true,
		MaxAlertsPerGroup:        seed.MaxAlertsPerGroup,
		NotificationDelaySeconds: seed.NotificationDelaySeconds,
		Priority:                 seed.Priority,
		Enabled:                  true,
	}
	if seed.DeduplicationEnabled != nil {
		rule.DeduplicationEnabled = *seed.DeduplicationEnabled
	}
	if rule.TimeWindowSeconds <= 0 {
		rule.TimeWindowSeconds = 300
	}
	if rule.MaxAlertsPerGroup <= 0 {
		rule.MaxAlertsPerGroup = 100
	}
	if rule.Priority == 0 {
		rule.Priority = 100
	}
	if err := db.Create(&rule).Error; err != nil {
		return fmt.Errorf("failed to seed grouping rule %q: %w", seed.Name, err)
	}
	log.Printf("Bootstrap: created grouping rule %q", seed.Name)
	return nil
}

func seedRoutingRule(db *gorm.DB, orgID uint, seed *RoutingRuleSeed, policyIDs map[string]uint) error {
	found, err := exists(db, &database.AlertRoutingRule{}, orgID, seed.Name)
	if err != nil || found {
		return err
	}

	conditions := make(database.RoutingConditionList, 0, len(seed.Conditions))
	for _, c := range seed.Conditions {
		if !database.ValidConditionField(c.Field) {
			return fmt.Errorf("routing rule %q has invalid condition field %q", seed.Name, c.Field)
		}
		if !database.ValidConditionOperator(c.Operator) {
			return fmt.Errorf("routing rule %q has invalid operator %q", seed.Name, c.Operator)
		}
		conditions = append(conditions, database.RoutingCondition{
			Field: c.Field, Key: c.Key, Operator: c.Operator, Value: c.Value,
		})
	}

	destinations := make(database.RoutingDestinationList, 0, len(seed.Destinations))
	for _, d := range seed.Destinations {
		if !database.ValidDestinationType(d.Type) {
			return fmt.Errorf("routing rule %q has invalid destination type %q", seed.Name, d.Type)
		}
		destinations = append(destinations, database.RoutingDestination{
			Type: d.Type, Name: d.Name, Config: d.Config,
		})
	}
	if len(destinations) == 0 {
		return fmt.Errorf("routing rule %q has no destinations", seed.Name)
	}

	rule := database.AlertRoutingRule{
		OrganizationID: orgID,
		Name:           seed.Name,
		Conditions:     conditions,
		ConditionMatch: database.ConditionMatchAll,
		Destinations:   destinations,
		Priority:       seed.Priority,
		Enabled:        true,
	}
	if seed.ConditionMatch == string(database.ConditionMatchAny) {
		rule.ConditionMatch = database.ConditionMatchAny
	}
	if rule.Priority == 0 {
		rule.Priority = 100
	}
	if seed.EscalationPolicy != "" {
		id, ok := policyIDs[seed.EscalationPolicy]
		if !ok {
			var policy database.EscalationPolicy
			if err := db.Where("organization_id = ? AND name = ?", orgID, seed.EscalationPolicy).First(&policy).Error; err != nil {
				return fmt.Errorf("routing rule %q references unknown escalation policy %q", seed.Name, seed.EscalationPolicy)
			}
			id = policy.ID
		}
		rule.EscalationPolicyID = &id
	}
	if err := db.Create(&rule).Error; err != nil {
		return fmt.Errorf("failed to seed routing rule %q: %w", seed.Name, err)
	}
	log.Printf("Bootstrap: created routing rule %q", seed.Name)
	return nil
}

func seedOnCallSchedule(db *gorm.DB, orgID uint, seed *OnCallScheduleSeed) error {
	found, err := exists(db, &database.OnCallSchedule{}, orgID, seed.Name)
	if err != nil || found {
		return err
	}
	if len(seed.Members) == 0 {
		return fmt.Errorf("on-call schedule %q has no members", seed.Name)
	}

	members := make(database.OnCallMemberList, 0, len(seed.Members))
	for _, m := range seed.Members {
		members = append(members, database.OnCallMember{Name: m.Name, Email: m.Email, Phone: m.Phone})
	}

	schedule := database.OnCallSchedule{
		OrganizationID:       orgID,
		Name:                 seed.Name,
		Members:              members,
		RotationType:         database.RotationWeekly,
		RotationIntervalDays: seed.RotationIntervalDays,
		Timezone:             seed.Timezone,
		LastRotationAt:       time.Now(),
		Enabled:              true,
	}
	switch database.RotationType(seed.RotationType) {
	case database.RotationDaily:
		schedule.RotationType = database.RotationDaily
	case database.RotationCustom:
		schedule.RotationType = database.RotationCustom
	}
	if schedule.Timezone == "" {
		schedule.Timezone = "UTC"
	}
	if err := db.Create(&schedule).Error; err != nil {
		return fmt.Errorf("failed to seed on-call schedule %q: %w", seed.Name, err)
	}
	log.Printf("Bootstrap: created on-call schedule %q", seed.Name)
	return nil
}

func seedRunbook(db *gorm.DB, orgID uint, seed *RunbookSeed) error {
	found, err := exists(db, &database.AlertRunbook{}, orgID, seed.Name)
	if err != nil || found {
		return err
	}

	runbook := database.AlertRunbook{
		OrganizationID: orgID,
		Name:           seed.Name,
		CheckType:      seed.CheckType,
		Severity:       seed.Severity,
		URL:            seed.URL,
		Instructions:   seed.Instructions,
		Enabled:        true,
	}
	if runbook.CheckType == "" {
		runbook.CheckType = database.RunbookMatchAll
	}
	if runbook.Severity == "" {
		runbook.Severity = database.RunbookMatchAll
	}
	if err := db.Create(&runbook).Error; err != nil {
		return fmt.Errorf("failed to seed runbook %q: %w", seed.Name, err)
	}
	log.Printf("Bootstrap: created runbook %q", seed.Name)
	return nil
}
