package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"gorm.io/gorm"
)

// handleListGroupingRules handles GET /api/alert-grouping/rules
func (h *APIHandler) handleListGroupingRules(w http.ResponseWriter, r *http.Request) {
	var rules []database.AlertGroupingRule
	err := h.db.Where("organization_id = ?", api.OrgID(r)).
		Order("priority ASC, id ASC").Find(&rules).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rules)
}

// handleCreateGroupingRule handles POST /api/alert-grouping/rules
func (h *APIHandler) handleCreateGroupingRule(w http.ResponseWriter, r *http.Request) {
	var req api.GroupingRuleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if !validGroupingDimensions(req.GroupBy) {
		api.RespondValidationError(w, map[string]string{"group_by": "contains an unknown grouping dimension"})
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	rule := &database.AlertGroupingRule{
		OrganizationID:           orgID,
		Name:                     req.Name,
		GroupBy:                  database.StringList(req.GroupBy),
		TimeWindowSeconds:        req.TimeWindowSeconds,
		DeduplicationEnabled:     true,
		MaxAlertsPerGroup:        req.MaxAlertsPerGroup,
		NotificationDelaySeconds: req.NotificationDelaySeconds,
		Priority:                 req.Priority,
		Enabled:                  true,
	}
	if req.DeduplicationEnabled != nil {
		rule.DeduplicationEnabled = *req.DeduplicationEnabled
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if rule.MaxAlertsPerGroup == 0 {
		rule.MaxAlertsPerGroup = 100
	}

	if err := h.db.Create(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, rule)
}

// handleGetGroupingRule handles GET /api/alert-grouping/rules/{id}
func (h *APIHandler) handleGetGroupingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadGroupingRule(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

// handleUpdateGroupingRule handles PATCH /api/alert-grouping/rules/{id}
func (h *APIHandler) handleUpdateGroupingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadGroupingRule(w, r)
	if !ok {
		return
	}

	var req api.GroupingRuleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if !validGroupingDimensions(req.GroupBy) {
		api.RespondValidationError(w, map[string]string{"group_by": "contains an unknown grouping dimension"})
		return
	}

	rule.Name = req.Name
	rule.GroupBy = database.StringList(req.GroupBy)
	rule.TimeWindowSeconds = req.TimeWindowSeconds
	if req.DeduplicationEnabled != nil {
		rule.DeduplicationEnabled = *req.DeduplicationEnabled
	}
	if req.MaxAlertsPerGroup > 0 {
		rule.MaxAlertsPerGroup = req.MaxAlertsPerGroup
	}
	rule.NotificationDelaySeconds = req.NotificationDelaySeconds
	rule.Priority = req.Priority
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.db.Save(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

// handleDeleteGroupingRule handles DELETE /api/alert-grouping/rules/{id}
func (h *APIHandler) handleDeleteGroupingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadGroupingRule(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleListGroups handles GET /api/alert-grouping/groups
func (h *APIHandler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	orgID := api.OrgID(r)
	query := h.db.Model(&database.AlertGroup{}).Where("organization_id = ?", orgID)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	params := api.ParsePagination(r)
	var total int64
	query.Count(&total)

	var groups []database.AlertGroup
	err := query.Order("last_alert_at DESC").
		Offset(params.Offset()).Limit(params.PerPage).Find(&groups).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondList(w, api.GroupsToListItems(groups), params, total)
}

// handleGetGroup handles GET /api/alert-grouping/groups/{id}
func (h *APIHandler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.engine.Groups.Get(api.OrgID(r), id)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	alerts, err := h.engine.Groups.Alerts(group.ID)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"group":  group,
		"alerts": alerts,
	})
}

// handleAcknowledgeGroup handles POST /api/alert-grouping/groups/{id}/acknowledge.
// Acknowledging also settles any armed escalation for the group.
func (h *APIHandler) handleAcknowledgeGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.AcknowledgeRequest
	if r.ContentLength > 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	group, err := h.engine.Groups.Acknowledge(orgID, id, req.By, time.Now())
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	if err := h.scheduler.Acknowledge(group.ID); err != nil {
		api.RespondEngineError(w, err)
		return
	}

	h.engine.Publish(engine.Event{Type: "group.acknowledged", OrganizationID: orgID, Payload: group})
	api.RespondJSON(w, http.StatusOK, group)
}

// handleResolveGroup handles POST /api/alert-grouping/groups/{id}/resolve
func (h *APIHandler) handleResolveGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.ResolveGroupRequest
	if r.ContentLength > 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	group, err := h.engine.Groups.Resolve(orgID, id, req.Notes, time.Now())
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	if err := h.scheduler.CancelForGroup(group.ID); err != nil {
		api.RespondEngineError(w, err)
		return
	}

	h.engine.Publish(engine.Event{Type: "group.resolved", OrganizationID: orgID, Payload: group})
	api.RespondJSON(w, http.StatusOK, group)
}

// handleSnoozeGroup handles POST /api/alert-grouping/groups/{id}/snooze
func (h *APIHandler) handleSnoozeGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.SnoozeGroupRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	group, err := h.engine.Groups.Snooze(orgID, id, req.DurationHours, req.By, time.Now())
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, group)
}

// handleUnsnoozeGroup handles POST /api/alert-grouping/groups/{id}/unsnooze
func (h *APIHandler) handleUnsnoozeGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	group, err := h.engine.Groups.Unsnooze(orgID, id)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, group)
}

// handlePromoteGroup handles POST /api/alert-grouping/groups/{id}/promote
func (h *APIHandler) handlePromoteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.PromoteRequest
	if r.ContentLength > 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.incidents.PromoteGroup(id, req.Actor)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, incident)
}

// handleSimulateGrouping handles POST /api/alert-grouping/simulate
func (h *APIHandler) handleSimulateGrouping(w http.ResponseWriter, r *http.Request) {
	var req api.SimulateGroupingRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	alerts := make([]*database.Alert, len(req.Alerts))
	for i, a := range req.Alerts {
		alerts[i] = api.AlertFromIngest(a, orgID)
	}

	results, err := h.engine.SimulateGrouping(orgID, alerts)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"alerts": results})
}

// loadGroupingRule loads the org-scoped rule addressed by the path id
func (h *APIHandler) loadGroupingRule(w http.ResponseWriter, r *http.Request) (*database.AlertGroupingRule, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var rule database.AlertGroupingRule
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Grouping rule not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &rule, true
}

func validGroupingDimensions(dims []string) bool {
	for _, dim := range dims {
		if !database.ValidGroupByDimension(dim) {
			return false
		}
	}
	return true
}
