package handlers

import (
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"gorm.io/gorm"
)

// handleListCorrelations handles GET /api/alert-correlation/correlations
func (h *APIHandler) handleListCorrelations(w http.ResponseWriter, r *http.Request) {
	query := h.db.Where("organization_id = ?", api.OrgID(r))
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var clusters []database.AlertCorrelation
	if err := query.Order("last_alert_at DESC").Limit(500).Find(&clusters).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, clusters)
}

// handleGetCorrelation handles GET /api/alert-correlation/correlations/{id}
func (h *APIHandler) handleGetCorrelation(w http.ResponseWriter, r *http.Request) {
	cluster, ok := h.loadCorrelation(w, r)
	if !ok {
		return
	}

	var alerts []database.Alert
	if err := h.db.Where("correlation_id = ?", cluster.ID).Order("occurred_at ASC").Find(&alerts).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"correlation": cluster,
		"alerts":      alerts,
	})
}

// handleAcknowledgeCorrelation handles POST .../correlations/{id}/acknowledge
func (h *APIHandler) handleAcknowledgeCorrelation(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	cluster, err := h.engine.Correlator.Acknowledge(orgID, id)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, cluster)
}

// handleResolveCorrelation handles POST .../correlations/{id}/resolve
func (h *APIHandler) handleResolveCorrelation(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orgID := api.OrgID(r)
	unlock := h.engine.Partitions.Lock(orgID)
	defer unlock()

	cluster, err := h.engine.Correlator.Resolve(orgID, id)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, cluster)
}

// handlePromoteCorrelation handles POST .../correlations/{id}/promote
func (h *APIHandler) handlePromoteCorrelation(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.PromoteRequest
	if r.ContentLength > 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	incident, err := h.incidents.PromoteCorrelation(id, req.Actor)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, incident)
}

// handleTestCorrelation handles POST /api/alert-correlation/test: scores two
// error messages with the live similarity metric.
func (h *APIHandler) handleTestCorrelation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ErrorA string `json:"error_a" validate:"required"`
		ErrorB string `json:"error_b" validate:"required"`
	}
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	settings, err := database.GetOrCreateCorrelationSettings(h.db, api.OrgID(r))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}

	score := engine.TokenSimilarity(req.ErrorA, req.ErrorB)
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"similarity":  score,
		"threshold":   settings.SimilarityThreshold,
		"would_match": score >= settings.SimilarityThreshold,
	})
}

// loadCorrelation loads the org-scoped cluster addressed by the path id
func (h *APIHandler) loadCorrelation(w http.ResponseWriter, r *http.Request) (*database.AlertCorrelation, bool) {
	id, err := api.PathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	var cluster database.AlertCorrelation
	err = h.db.Where("id = ? AND organization_id = ?", id, api.OrgID(r)).First(&cluster).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Correlation not found")
		} else {
			api.RespondEngineError(w, err)
		}
		return nil, false
	}
	return &cluster, true
}
