package handlers

import (
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// handleListRunbooks handles GET /api/alert-runbooks
func (h *APIHandler) handleListRunbooks(w http.ResponseWriter, r *http.Request) {
	var runbooks []database.AlertRunbook
	err := h.db.Where("organization_id = ?", api.OrgID(r)).
		Order("id ASC").Find(&runbooks).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, runbooks)
}

// handleCreateRunbook handles POST /api/alert-runbooks
func (h *APIHandler) handleCreateRunbook(w http.ResponseWriter, r *http.Request) {
	var req api.RunbookRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	runbook := &database.AlertRunbook{
		OrganizationID: orgID,
		Name:           req.Name,
		CheckType:      req.CheckType,
		Severity:       req.Severity,
		URL:            req.URL,
		Instructions:   req.Instructions,
		Enabled:        true,
	}
	if runbook.CheckType == "" {
		runbook.CheckType = database.RunbookMatchAll
	}
	if runbook.Severity == "" {
		runbook.Severity = database.RunbookMatchAll
	}
	if req.Enabled != nil {
		runbook.Enabled = *req.Enabled
	}

	if err := h.db.Create(runbook).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, runbook)
}

// handleGetRunbook handles GET /api/alert-runbooks/{id}
func (h *APIHandler) handleGetRunbook(w http.ResponseWriter, r *http.Request) {
	runbook, ok := h.loadRunbook(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, runbook)
}

// handleUpdateRunbook handles PATCH /api/alert-runbooks/{id}
func (h *APIHandler) handleUpdateRunbook(w http.ResponseWriter, r *http.Request) {
	runbook, ok := h.loadRunbook(w, r)
	if !ok {
		return
	}

	var req api.RunbookRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	runbook.Name = req.Name
	runbook.URL = req.URL
	runbook.Instructions = req.Instructions
	if req.CheckType != "" {
		runbook.CheckType = req.CheckType
	}
	if req.Severity != "" {
		runbook.Severity = req.Severity
	}
	if req.Enabled != nil {
		runbook.Enabled = *req.Enabled
	}

	if err := h.db.Save(runbook).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, runbook)
}

// handleDeleteRunbook handles DELETE /api/alert-runbooks/{id}
func (h *APIHandler) handleDeleteRunbook(w http.ResponseWriter, r *http.Request) {
	runbook, ok := h.loadRunbook(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(runbook).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleTestRunbookMatch handles POST /api/alert-runbooks/test. No match is
// a valid outcome, reported as matched=false rather than an error.
func (h *APIHandler) handleTestRunbookMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CheckType string `json:"check_type"`
		Severity  string `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
	}
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	severity := database.AlertSeverity(req.Severity)
	if severity == "" {
		severity = database.AlertSeverityMedium
	}

	runbook, err := h.router.Runbooks().Match(api.OrgID(r), req.CheckType, severity)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	if runbook == nil {
		api.RespondJSON(w, http.StatusOK, map[string]interface{}{"matched": false})
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"matched": true,
		"runbook": runbook,
	})
}

// loadRunbook loads the org-scoped runbook addressed by the path id
func (h *APIHandler) loadRunbook(w http.ResponseWriter, r *http.Request) (*database.AlertRunbook, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var runbook database.AlertRunbook
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&runbook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Runbook not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &runbook, true
}
