package handlers

import (
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// handleListRoutingRules handles GET /api/alert-routing/rules
func (h *APIHandler) handleListRoutingRules(w http.ResponseWriter, r *http.Request) {
	var rules []database.AlertRoutingRule
	err := h.db.Where("organization_id = ?", api.OrgID(r)).
		Order("priority ASC, id ASC").Find(&rules).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rules)
}

// handleCreateRoutingRule handles POST /api/alert-routing/rules
func (h *APIHandler) handleCreateRoutingRule(w http.ResponseWriter, r *http.Request) {
	var req api.RoutingRuleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if fieldErrors := validateRoutingRule(&req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	rule := &database.AlertRoutingRule{
		OrganizationID:     orgID,
		Name:               req.Name,
		Conditions:         req.Conditions,
		ConditionMatch:     database.ConditionMatch(req.ConditionMatch),
		Destinations:       req.Destinations,
		EscalationPolicyID: req.EscalationPolicyID,
		Priority:           req.Priority,
		Enabled:            true,
	}
	if rule.ConditionMatch == "" {
		rule.ConditionMatch = database.ConditionMatchAll
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.db.Create(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, rule)
}

// handleGetRoutingRule handles GET /api/alert-routing/rules/{id}
func (h *APIHandler) handleGetRoutingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRoutingRule(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

// handleUpdateRoutingRule handles PATCH /api/alert-routing/rules/{id}
func (h *APIHandler) handleUpdateRoutingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRoutingRule(w, r)
	if !ok {
		return
	}

	var req api.RoutingRuleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if fieldErrors := validateRoutingRule(&req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	rule.Name = req.Name
	rule.Conditions = req.Conditions
	rule.Destinations = req.Destinations
	rule.EscalationPolicyID = req.EscalationPolicyID
	rule.Priority = req.Priority
	if req.ConditionMatch != "" {
		rule.ConditionMatch = database.ConditionMatch(req.ConditionMatch)
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.db.Save(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

// handleDeleteRoutingRule handles DELETE /api/alert-routing/rules/{id}
func (h *APIHandler) handleDeleteRoutingRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRoutingRule(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(rule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleTestDestination handles POST /api/alert-routing/test-destination.
// Sends one real notification to the destination so operators can verify
// credentials before wiring it into a rule.
func (h *APIHandler) handleTestDestination(w http.ResponseWriter, r *http.Request) {
	var req api.TestDestinationRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Destination.Type == "" {
		api.RespondValidationError(w, map[string]string{"destination": "destination type is required"})
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	testAlert := &database.Alert{
		OrganizationID: orgID,
		CheckID:        "destination-test",
		CheckName:      "Destination test",
		CheckType:      "test",
		Severity:       database.AlertSeverityInfo,
		ErrorMessage:   "This is a test notification",
	}
	result := h.router.TestDestination(req.Destination, testAlert)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	api.RespondJSON(w, status, result)
}

// handleSimulateRouting handles POST /api/alert-routing/simulate
func (h *APIHandler) handleSimulateRouting(w http.ResponseWriter, r *http.Request) {
	var req api.SimulateRoutingRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	severity := database.AlertSeverity(req.Severity)
	if severity == "" {
		severity = database.AlertSeverityMedium
	}
	alert := &database.Alert{
		OrganizationID: orgID,
		CheckID:        req.CheckID,
		CheckName:      req.CheckName,
		CheckType:      req.CheckType,
		Location:       req.Location,
		Severity:       severity,
		ErrorMessage:   req.ErrorMessage,
	}
	if len(req.Tags) > 0 {
		alert.Tags = make(database.JSONB, len(req.Tags))
		for k, v := range req.Tags {
			alert.Tags[k] = v
		}
	}

	rules, destinations, err := h.router.SimulateAlert(alert)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"matched_rules": rules,
		"destinations":  destinations,
	})
}

// loadRoutingRule loads the org-scoped rule addressed by the path id
func (h *APIHandler) loadRoutingRule(w http.ResponseWriter, r *http.Request) (*database.AlertRoutingRule, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var rule database.AlertRoutingRule
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Routing rule not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &rule, true
}

// validateRoutingRule checks condition fields and destination types beyond
// what struct tags can express.
func validateRoutingRule(req *api.RoutingRuleRequest) map[string]string {
	for _, cond := range req.Conditions {
		if !database.ValidConditionField(cond.Field) {
			return map[string]string{"conditions": "unknown condition field " + cond.Field}
		}
		if !database.ValidConditionOperator(cond.Operator) {
			return map[string]string{"conditions": "unknown operator " + cond.Operator}
		}
	}
	for _, dest := range req.Destinations {
		if !database.ValidDestinationType(dest.Type) {
			return map[string]string{"destinations": "unknown destination type " + dest.Type}
		}
	}
	return nil
}
