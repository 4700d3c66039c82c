package handlers

import (
	"log"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/engine"
)

// HTTPHandler handles the unauthenticated surface: health checks and the
// alert ingestion webhook monitoring probes post to.
type HTTPHandler struct {
	engine  *engine.Engine
	version string
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(eng *engine.Engine, version string) *HTTPHandler {
	return &HTTPHandler{engine: eng, version: version}
}

// SetupRoutes configures the ingestion and health routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /webhook/alerts", h.handleIngestAlert)
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// handleIngestAlert handles POST /webhook/alerts, the pipeline entry point
func (h *HTTPHandler) handleIngestAlert(w http.ResponseWriter, r *http.Request) {
	var req api.IngestAlertRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = api.OrgID(r)
	}

	alert := api.AlertFromIngest(req, orgID)
	result, err := h.engine.Ingest(alert)
	if err != nil {
		api.RespondEngineError(w, err)
		return
	}

	resp := api.IngestAlertResponse{
		Status:    result.Status,
		AlertUUID: result.Alert.UUID,
	}
	if result.Group != nil {
		resp.GroupUUID = result.Group.UUID
	}
	if result.Correlation != nil {
		resp.CorrelationID = &result.Correlation.ID
	}

	log.Printf("Ingested alert %s for org %d: %s", result.Alert.UUID, orgID, result.Status)
	api.RespondJSON(w, http.StatusAccepted, resp)
}
