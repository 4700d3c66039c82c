package handlers

import (
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// handleListEscalationPolicies handles GET /api/escalation-policies
func (h *APIHandler) handleListEscalationPolicies(w http.ResponseWriter, r *http.Request) {
	var policies []database.EscalationPolicy
	err := h.db.Where("organization_id = ?", api.OrgID(r)).
		Order("id ASC").Find(&policies).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, policies)
}

// handleCreateEscalationPolicy handles POST /api/escalation-policies
func (h *APIHandler) handleCreateEscalationPolicy(w http.ResponseWriter, r *http.Request) {
	var req api.EscalationPolicyRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	policy := &database.EscalationPolicy{
		OrganizationID:        orgID,
		Name:                  req.Name,
		Levels:                req.Levels,
		RepeatPolicy:          database.RepeatPolicy(req.RepeatPolicy),
		RepeatIntervalMinutes: req.RepeatIntervalMinutes,
		Enabled:               true,
	}
	if policy.RepeatPolicy == "" {
		policy.RepeatPolicy = database.RepeatPolicyOnce
	}
	if policy.RepeatIntervalMinutes == 0 {
		policy.RepeatIntervalMinutes = 30
	}
	if req.IsDefault != nil {
		policy.IsDefault = *req.IsDefault
	}
	if req.Enabled != nil {
		policy.Enabled = *req.Enabled
	}

	if err := h.scheduler.ValidatePolicy(policy); err != nil {
		api.RespondEngineError(w, err)
		return
	}

	if err := h.savePolicy(policy); err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, policy)
}

// handleGetEscalationPolicy handles GET /api/escalation-policies/{id}
func (h *APIHandler) handleGetEscalationPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadEscalationPolicy(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, policy)
}

// handleUpdateEscalationPolicy handles PATCH /api/escalation-policies/{id}
func (h *APIHandler) handleUpdateEscalationPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadEscalationPolicy(w, r)
	if !ok {
		return
	}

	var req api.EscalationPolicyRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	policy.Name = req.Name
	policy.Levels = req.Levels
	if req.RepeatPolicy != "" {
		policy.RepeatPolicy = database.RepeatPolicy(req.RepeatPolicy)
	}
	if req.RepeatIntervalMinutes > 0 {
		policy.RepeatIntervalMinutes = req.RepeatIntervalMinutes
	}
	if req.IsDefault != nil {
		policy.IsDefault = *req.IsDefault
	}
	if req.Enabled != nil {
		policy.Enabled = *req.Enabled
	}

	if err := h.scheduler.ValidatePolicy(policy); err != nil {
		api.RespondEngineError(w, err)
		return
	}

	if err := h.savePolicy(policy); err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, policy)
}

// handleDeleteEscalationPolicy handles DELETE /api/escalation-policies/{id}
func (h *APIHandler) handleDeleteEscalationPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadEscalationPolicy(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(policy).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleTestEscalationPolicy handles POST /api/escalation-policies/{id}/test.
// Returns the planned firing timeline without arming or notifying anything.
func (h *APIHandler) handleTestEscalationPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadEscalationPolicy(w, r)
	if !ok {
		return
	}

	plan, err := h.scheduler.TestPolicy(policy)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"policy_id": policy.ID,
		"firings":   plan,
	})
}

// handleListEscalationInstances handles GET /api/escalation-instances
func (h *APIHandler) handleListEscalationInstances(w http.ResponseWriter, r *http.Request) {
	query := h.db.Where("organization_id = ?", api.OrgID(r))
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var instances []database.EscalationInstance
	if err := query.Order("created_at DESC").Limit(500).Find(&instances).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, instances)
}

// savePolicy persists a policy, demoting any previous default so at most one
// policy per organization is the default.
func (h *APIHandler) savePolicy(policy *database.EscalationPolicy) error {
	return h.db.Transaction(func(tx *gorm.DB) error {
		if policy.IsDefault {
			err := tx.Model(&database.EscalationPolicy{}).
				Where("organization_id = ? AND id != ?", policy.OrganizationID, policy.ID).
				Update("is_default", false).Error
			if err != nil {
				return err
			}
		}
		return tx.Save(policy).Error
	})
}

// loadEscalationPolicy loads the org-scoped policy addressed by the path id
func (h *APIHandler) loadEscalationPolicy(w http.ResponseWriter, r *http.Request) (*database.EscalationPolicy, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var policy database.EscalationPolicy
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Escalation policy not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &policy, true
}
