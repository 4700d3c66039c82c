package handlers

import (
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/incidents"
	"github.com/pulsewatch/pulsewatch/internal/routing"
	"gorm.io/gorm"
)

// APIHandler handles the engine's JSON control surface
type APIHandler struct {
	db        *gorm.DB
	engine    *engine.Engine
	router    *routing.Engine
	scheduler *escalation.Scheduler
	oncall    *escalation.OnCall
	incidents *incidents.Manager
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(db *gorm.DB, eng *engine.Engine, router *routing.Engine, scheduler *escalation.Scheduler, oncall *escalation.OnCall, manager *incidents.Manager) *APIHandler {
	return &APIHandler{
		db:        db,
		engine:    eng,
		router:    router,
		scheduler: scheduler,
		oncall:    oncall,
		incidents: manager,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Grouping rules and groups
	mux.HandleFunc("GET /api/alert-grouping/rules", h.handleListGroupingRules)
	mux.HandleFunc("POST /api/alert-grouping/rules", h.handleCreateGroupingRule)
	mux.HandleFunc("GET /api/alert-grouping/rules/{id}", h.handleGetGroupingRule)
	mux.HandleFunc("PATCH /api/alert-grouping/rules/{id}", h.handleUpdateGroupingRule)
	mux.HandleFunc("DELETE /api/alert-grouping/rules/{id}", h.handleDeleteGroupingRule)
	mux.HandleFunc("GET /api/alert-grouping/groups", h.handleListGroups)
	mux.HandleFunc("GET /api/alert-grouping/groups/{id}", h.handleGetGroup)
	mux.HandleFunc("POST /api/alert-grouping/groups/{id}/acknowledge", h.handleAcknowledgeGroup)
	mux.HandleFunc("POST /api/alert-grouping/groups/{id}/resolve", h.handleResolveGroup)
	mux.HandleFunc("POST /api/alert-grouping/groups/{id}/snooze", h.handleSnoozeGroup)
	mux.HandleFunc("POST /api/alert-grouping/groups/{id}/unsnooze", h.handleUnsnoozeGroup)
	mux.HandleFunc("POST /api/alert-grouping/groups/{id}/promote", h.handlePromoteGroup)
	mux.HandleFunc("POST /api/alert-grouping/simulate", h.handleSimulateGrouping)

	// Routing rules
	mux.HandleFunc("GET /api/alert-routing/rules", h.handleListRoutingRules)
	mux.HandleFunc("POST /api/alert-routing/rules", h.handleCreateRoutingRule)
	mux.HandleFunc("GET /api/alert-routing/rules/{id}", h.handleGetRoutingRule)
	mux.HandleFunc("PATCH /api/alert-routing/rules/{id}", h.handleUpdateRoutingRule)
	mux.HandleFunc("DELETE /api/alert-routing/rules/{id}", h.handleDeleteRoutingRule)
	mux.HandleFunc("POST /api/alert-routing/test-destination", h.handleTestDestination)
	mux.HandleFunc("POST /api/alert-routing/simulate", h.handleSimulateRouting)

	// Escalation policies
	mux.HandleFunc("GET /api/escalation-policies", h.handleListEscalationPolicies)
	mux.HandleFunc("POST /api/escalation-policies", h.handleCreateEscalationPolicy)
	mux.HandleFunc("GET /api/escalation-policies/{id}", h.handleGetEscalationPolicy)
	mux.HandleFunc("PATCH /api/escalation-policies/{id}", h.handleUpdateEscalationPolicy)
	mux.HandleFunc("DELETE /api/escalation-policies/{id}", h.handleDeleteEscalationPolicy)
	mux.HandleFunc("POST /api/escalation-policies/{id}/test", h.handleTestEscalationPolicy)
	mux.HandleFunc("GET /api/escalation-instances", h.handleListEscalationInstances)

	// On-call schedules
	mux.HandleFunc("GET /api/on-call", h.handleListOnCallSchedules)
	mux.HandleFunc("POST /api/on-call", h.handleCreateOnCallSchedule)
	mux.HandleFunc("GET /api/on-call/{id}", h.handleGetOnCallSchedule)
	mux.HandleFunc("PATCH /api/on-call/{id}", h.handleUpdateOnCallSchedule)
	mux.HandleFunc("DELETE /api/on-call/{id}", h.handleDeleteOnCallSchedule)
	mux.HandleFunc("GET /api/on-call/{id}/current", h.handleCurrentOnCall)
	mux.HandleFunc("POST /api/on-call/{id}/rotate", h.handleRotateOnCall)

	// Rate limiting
	mux.HandleFunc("GET /api/alert-rate-limit/config", h.handleGetRateLimitConfig)
	mux.HandleFunc("PUT /api/alert-rate-limit/config", h.handleUpdateRateLimitConfig)
	mux.HandleFunc("GET /api/alert-rate-limit/stats", h.handleRateLimitStats)
	mux.HandleFunc("POST /api/alert-rate-limit/test", h.handleTestRateLimit)

	// Correlation
	mux.HandleFunc("GET /api/alert-correlation/config", h.handleGetCorrelationSettings)
	mux.HandleFunc("PUT /api/alert-correlation/config", h.handleUpdateCorrelationSettings)
	mux.HandleFunc("GET /api/alert-correlation/correlations", h.handleListCorrelations)
	mux.HandleFunc("GET /api/alert-correlation/correlations/{id}", h.handleGetCorrelation)
	mux.HandleFunc("POST /api/alert-correlation/correlations/{id}/acknowledge", h.handleAcknowledgeCorrelation)
	mux.HandleFunc("POST /api/alert-correlation/correlations/{id}/resolve", h.handleResolveCorrelation)
	mux.HandleFunc("POST /api/alert-correlation/correlations/{id}/promote", h.handlePromoteCorrelation)
	mux.HandleFunc("POST /api/alert-correlation/test", h.handleTestCorrelation)

	// Runbooks
	mux.HandleFunc("GET /api/alert-runbooks", h.handleListRunbooks)
	mux.HandleFunc("POST /api/alert-runbooks", h.handleCreateRunbook)
	mux.HandleFunc("GET /api/alert-runbooks/{id}", h.handleGetRunbook)
	mux.HandleFunc("PATCH /api/alert-runbooks/{id}", h.handleUpdateRunbook)
	mux.HandleFunc("DELETE /api/alert-runbooks/{id}", h.handleDeleteRunbook)
	mux.HandleFunc("POST /api/alert-runbooks/test", h.handleTestRunbookMatch)

	// Managed incidents
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("POST /api/incidents", h.handleCreateIncident)
	mux.HandleFunc("GET /api/incidents/{id}", h.handleGetIncident)
	mux.HandleFunc("POST /api/incidents/{id}/status", h.handleIncidentStatus)
	mux.HandleFunc("POST /api/incidents/{id}/resolve", h.handleResolveIncident)
	mux.HandleFunc("POST /api/incidents/{id}/postmortem", h.handleIncidentPostmortem)
	mux.HandleFunc("POST /api/incidents/{id}/notes", h.handleAddIncidentNote)
	mux.HandleFunc("POST /api/incidents/{id}/responders", h.handleAddIncidentResponder)
	mux.HandleFunc("DELETE /api/incidents/{id}/responders/{responderId}", h.handleRemoveIncidentResponder)
}
