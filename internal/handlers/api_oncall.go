package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// handleListOnCallSchedules handles GET /api/on-call
func (h *APIHandler) handleListOnCallSchedules(w http.ResponseWriter, r *http.Request) {
	var schedules []database.OnCallSchedule
	err := h.db.Where("organization_id = ?", api.OrgID(r)).
		Order("id ASC").Find(&schedules).Error
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, schedules)
}

// handleCreateOnCallSchedule handles POST /api/on-call
func (h *APIHandler) handleCreateOnCallSchedule(w http.ResponseWriter, r *http.Request) {
	var req api.OnCallScheduleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	schedule := &database.OnCallSchedule{
		OrganizationID:       orgID,
		Name:                 req.Name,
		Members:              req.Members,
		RotationType:         database.RotationType(req.RotationType),
		RotationIntervalDays: req.RotationIntervalDays,
		Timezone:             req.Timezone,
		LastRotationAt:       time.Now(),
		Enabled:              true,
	}
	if schedule.RotationType == "" {
		schedule.RotationType = database.RotationWeekly
	}
	if schedule.Timezone == "" {
		schedule.Timezone = "UTC"
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	if err := h.db.Create(schedule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, schedule)
}

// handleGetOnCallSchedule handles GET /api/on-call/{id}
func (h *APIHandler) handleGetOnCallSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadOnCallSchedule(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, schedule)
}

// handleUpdateOnCallSchedule handles PATCH /api/on-call/{id}. Shrinking the
// member list clamps the rotation index so it stays in range.
func (h *APIHandler) handleUpdateOnCallSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadOnCallSchedule(w, r)
	if !ok {
		return
	}

	var req api.OnCallScheduleRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	schedule.Name = req.Name
	schedule.Members = req.Members
	if req.RotationType != "" {
		schedule.RotationType = database.RotationType(req.RotationType)
	}
	if req.RotationIntervalDays > 0 {
		schedule.RotationIntervalDays = req.RotationIntervalDays
	}
	if req.Timezone != "" {
		schedule.Timezone = req.Timezone
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}
	if len(schedule.Members) > 0 && schedule.CurrentOnCallIndex >= len(schedule.Members) {
		schedule.CurrentOnCallIndex = schedule.CurrentOnCallIndex % len(schedule.Members)
	}

	if err := h.db.Save(schedule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, schedule)
}

// handleDeleteOnCallSchedule handles DELETE /api/on-call/{id}
func (h *APIHandler) handleDeleteOnCallSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadOnCallSchedule(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(schedule).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleCurrentOnCall handles GET /api/on-call/{id}/current
func (h *APIHandler) handleCurrentOnCall(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadOnCallSchedule(w, r)
	if !ok {
		return
	}

	member, err := h.oncall.CurrentMember(schedule)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"schedule_id": schedule.ID,
		"index":       schedule.CurrentOnCallIndex,
		"member":      member,
	})
}

// handleRotateOnCall handles POST /api/on-call/{id}/rotate. The rotation
// index is partition-owned state, so the schedule is loaded and advanced
// under the organization partition lock; a concurrent rotation job or a
// second manual rotate serializes behind it instead of losing a step.
func (h *APIHandler) handleRotateOnCall(w http.ResponseWriter, r *http.Request) {
	unlock := h.engine.Partitions.Lock(api.OrgID(r))
	defer unlock()

	schedule, ok := h.loadOnCallSchedule(w, r)
	if !ok {
		return
	}

	if err := h.oncall.Rotate(schedule, time.Now()); err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, schedule)
}

// loadOnCallSchedule loads the org-scoped schedule addressed by the path id
func (h *APIHandler) loadOnCallSchedule(w http.ResponseWriter, r *http.Request) (*database.OnCallSchedule, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var schedule database.OnCallSchedule
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "On-call schedule not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &schedule, true
}
