package handlers

import (
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
)

// handleGetRateLimitConfig handles GET /api/alert-rate-limit/config
func (h *APIHandler) handleGetRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := database.GetOrCreateRateLimitConfig(h.db, api.OrgID(r))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, cfg)
}

// handleUpdateRateLimitConfig handles PUT /api/alert-rate-limit/config
func (h *APIHandler) handleUpdateRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	var req api.RateLimitConfigRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := database.GetOrCreateRateLimitConfig(h.db, api.OrgID(r))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}

	if req.TimeWindowSeconds != nil {
		cfg.TimeWindowSeconds = *req.TimeWindowSeconds
	}
	if req.MaxAlertsPerWindow != nil {
		cfg.MaxAlertsPerWindow = *req.MaxAlertsPerWindow
	}
	if req.SuppressionMode != nil {
		cfg.SuppressionMode = database.SuppressionMode(*req.SuppressionMode)
	}
	if req.AggregateThreshold != nil {
		cfg.AggregateThreshold = *req.AggregateThreshold
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}

	if err := h.db.Save(cfg).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, cfg)
}

// handleRateLimitStats handles GET /api/alert-rate-limit/stats
func (h *APIHandler) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	orgID := api.OrgID(r)
	sent, suppressed := h.engine.Limiter.Stats(orgID)
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id": orgID,
		"sent":            sent,
		"suppressed":      suppressed,
	})
}

// handleTestRateLimit handles POST /api/alert-rate-limit/test: replays a
// synthetic burst against the current config without touching live counters.
func (h *APIHandler) handleTestRateLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AlertCount int `json:"alert_count" validate:"required,gt=0,lte=10000"`
	}
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := api.OrgID(r)
	cfg, err := database.GetOrCreateRateLimitConfig(h.db, orgID)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}

	// A throwaway limiter keyed by the same config: live window state for
	// the organization is not disturbed.
	scratch := engine.NewRateLimiter()
	now := time.Now()
	sent, suppressed := 0, 0
	for i := 0; i < req.AlertCount; i++ {
		alert := &database.Alert{OrganizationID: orgID, CheckID: "rate-limit-test", Severity: database.AlertSeverityMedium}
		outcome := scratch.TryAdmit(alert, cfg, now)
		if outcome.Admitted {
			sent++
		} else {
			suppressed++
		}
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alert_count": req.AlertCount,
		"sent":        sent,
		"suppressed":  suppressed,
		"config":      cfg,
	})
}

// handleGetCorrelationSettings handles GET /api/alert-correlation/config
func (h *APIHandler) handleGetCorrelationSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetOrCreateCorrelationSettings(h.db, api.OrgID(r))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

// handleUpdateCorrelationSettings handles PUT /api/alert-correlation/config
func (h *APIHandler) handleUpdateCorrelationSettings(w http.ResponseWriter, r *http.Request) {
	var req api.CorrelationSettingsRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	settings, err := database.GetOrCreateCorrelationSettings(h.db, api.OrgID(r))
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}

	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.SimilarityThreshold != nil {
		settings.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.TimeWindowSeconds != nil {
		settings.TimeWindowSeconds = *req.TimeWindowSeconds
	}
	if req.MethodSameCheck != nil {
		settings.MethodSameCheck = *req.MethodSameCheck
	}
	if req.MethodSameLocation != nil {
		settings.MethodSameLocation = *req.MethodSameLocation
	}
	if req.MethodSimilarError != nil {
		settings.MethodSimilarError = *req.MethodSimilarError
	}
	if req.MethodTimeProximity != nil {
		settings.MethodTimeProximity = *req.MethodTimeProximity
	}

	if err := h.db.Save(settings).Error; err != nil {
		api.RespondEngineError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}
