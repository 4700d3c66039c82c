package handlers

import (
	"net/http"
	"strconv"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/incidents"
)

// handleListIncidents handles GET /api/incidents
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := incidents.ListFilter{
		Status:   database.IncidentStatus(r.URL.Query().Get("status")),
		Severity: database.AlertSeverity(r.URL.Query().Get("severity")),
		Source:   r.URL.Query().Get("source"),
	}
	list, err := h.incidents.List(api.OrgID(r), filter)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentsToListItems(list))
}

// handleCreateIncident handles POST /api/incidents
func (h *APIHandler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req api.CreateIncidentRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	incident, err := h.incidents.Create(incidents.CreateParams{
		OrganizationID: orgID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       database.AlertSeverity(req.Severity),
		Source:         database.IncidentSourceManual,
		Actor:          req.Actor,
	})
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, incident)
}

// handleGetIncident handles GET /api/incidents/{id}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	incident, err := h.incidents.Get(id)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleIncidentStatus handles POST /api/incidents/{id}/status
func (h *APIHandler) handleIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.UpdateIncidentStatusRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.incidents.UpdateStatus(id, database.IncidentStatus(req.Status), req.Actor)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleResolveIncident handles POST /api/incidents/{id}/resolve
func (h *APIHandler) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.ResolveIncidentRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.incidents.Resolve(id, req.Summary, req.Actor)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleIncidentPostmortem handles POST /api/incidents/{id}/postmortem
func (h *APIHandler) handleIncidentPostmortem(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.PostmortemRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.incidents.SetPostmortem(id, req.URL, req.Completed, req.Actor)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleAddIncidentNote handles POST /api/incidents/{id}/notes
func (h *APIHandler) handleAddIncidentNote(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.AddNoteRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	note, err := h.incidents.AddNote(id, req.Author, req.Body, database.NoteVisibility(req.Visibility))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, note)
}

// handleAddIncidentResponder handles POST /api/incidents/{id}/responders
func (h *APIHandler) handleAddIncidentResponder(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.AddResponderRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	responder, err := h.incidents.AddResponder(id, req.Name, req.Email, database.ResponderRole(req.Role))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, responder)
}

// handleRemoveIncidentResponder handles DELETE /api/incidents/{id}/responders/{responderId}
func (h *APIHandler) handleRemoveIncidentResponder(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	responderID, err := strconv.ParseUint(r.PathValue("responderId"), 10, 32)
	if err != nil || responderID == 0 {
		api.RespondError(w, http.StatusBadRequest, "invalid responder id")
		return
	}

	actor := r.URL.Query().Get("actor")
	if err := h.incidents.RemoveResponder(id, uint(responderID), actor); err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondNoContent(w)
}
