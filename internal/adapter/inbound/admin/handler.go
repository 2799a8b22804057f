// Package admin provides the JSON API for managing AppLocker rules,
// importing and exporting policy XML, and running policy simulations.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AppLock-Forge/applockforge/internal/config"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
)

// AdminHandler provides JSON API endpoints for rule management.
type AdminHandler struct {
	rules       *service.RuleService
	policyIO    *service.PolicyIOService
	simulation  *service.SimulationService
	apiKeys     []config.APIKeyConfig
	defaultMode rule.EnforcementMode
	metrics     *Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	version     string
}

// AdminOption configures an AdminHandler dependency.
type AdminOption func(*AdminHandler)

// WithRuleService sets the rule CRUD service.
func WithRuleService(s *service.RuleService) AdminOption {
	return func(h *AdminHandler) { h.rules = s }
}

// WithPolicyIOService sets the XML import/export service.
func WithPolicyIOService(s *service.PolicyIOService) AdminOption {
	return func(h *AdminHandler) { h.policyIO = s }
}

// WithSimulationService sets the simulation and validation service.
func WithSimulationService(s *service.SimulationService) AdminOption {
	return func(h *AdminHandler) { h.simulation = s }
}

// WithAPIKeys sets the accepted API keys for non-localhost access.
func WithAPIKeys(keys []config.APIKeyConfig) AdminOption {
	return func(h *AdminHandler) { h.apiKeys = keys }
}

// WithDefaultEnforcementMode sets the mode used when exporting collections
// that have no explicit mode configured.
func WithDefaultEnforcementMode(mode rule.EnforcementMode) AdminOption {
	return func(h *AdminHandler) { h.defaultMode = mode }
}

// WithMetrics sets the Prometheus metrics and the gatherer backing the
// /metrics endpoint.
func WithMetrics(m *Metrics, g prometheus.Gatherer) AdminOption {
	return func(h *AdminHandler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AdminOption {
	return func(h *AdminHandler) { h.logger = l }
}

// WithVersion sets the version string reported by the system endpoint.
func WithVersion(v string) AdminOption {
	return func(h *AdminHandler) { h.version = v }
}

// NewAdminHandler creates a new AdminHandler with the given options.
func NewAdminHandler(opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		defaultMode: rule.ModeAuditOnly,
		logger:      slog.Default(),
		version:     "dev",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Health and metrics endpoints are accessible without auth; everything else
// requires localhost access or a valid API key.
func (h *AdminHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	protected := http.NewServeMux()

	// Rule CRUD.
	protected.HandleFunc("GET /api/rules", h.handleListRules)
	protected.HandleFunc("POST /api/rules", h.handleCreateRule)
	protected.HandleFunc("DELETE /api/rules", h.handleDeleteAllRules)
	protected.HandleFunc("GET /api/rules/{id}", h.handleGetRule)
	protected.HandleFunc("PUT /api/rules/{id}", h.handleUpdateRule)
	protected.HandleFunc("DELETE /api/rules/{id}", h.handleDeleteRule)
	protected.HandleFunc("GET /api/collections", h.handleListCollections)
	protected.HandleFunc("GET /api/changes", h.handleRecentChanges)

	// Policy XML import and export.
	protected.HandleFunc("GET /api/export/xml", h.handleExport)
	protected.HandleFunc("GET /api/export/collection/{type}", h.handleExportCollection)
	protected.HandleFunc("POST /api/import/xml", h.handleImport)
	protected.HandleFunc("GET /api/default-rules", h.handleDefaultRules)
	protected.HandleFunc("POST /api/import/default-rules", h.handleImportDefaultRules)
	protected.HandleFunc("GET /api/enforcement-modes", h.handleGetEnforcementModes)
	protected.HandleFunc("PUT /api/enforcement-modes", h.handleSetEnforcementMode)

	// Validation and simulation.
	protected.HandleFunc("GET /api/validate", h.handleValidate)
	protected.HandleFunc("POST /api/simulate", h.handleSimulate)
	protected.HandleFunc("GET /api/system", h.handleSystemInfo)

	mux.Handle("/api/", h.authMiddleware(protected))

	return h.metricsMiddleware(mux)
}

// handleHealth reports liveness.
// GET /healthz
func (h *AdminHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSystemInfo returns build information.
// GET /api/system
func (h *AdminHandler) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// respondXML writes an XML document response.
func (h *AdminHandler) respondXML(w http.ResponseWriter, status int, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(doc)); err != nil {
		h.logger.Error("failed to write XML response", "error", err)
	}
}

// readJSON decodes the request body into the given value.
func (h *AdminHandler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
