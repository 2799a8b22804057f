package admin

import (
	"errors"
	"io"
	"net/http"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
	"github.com/AppLock-Forge/applockforge/pkg/axml"
)

// maxImportSize caps the accepted policy XML body at 10 MiB.
const maxImportSize = 10 << 20

// handleExport generates the full AppLocker policy XML.
// GET /api/export/xml
func (h *AdminHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := h.policyIO.Export(r.Context(), h.defaultMode)
	if err != nil {
		h.logger.Error("failed to export policy", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export policy")
		return
	}

	h.respondXML(w, http.StatusOK, doc)
}

// handleExportCollection generates a bare RuleCollection fragment for one
// collection type.
// GET /api/export/collection/{type}
func (h *AdminHandler) handleExportCollection(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("type")
	col, ok := rule.ParseCollection(raw)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown collection type: "+raw)
		return
	}

	doc, err := h.policyIO.ExportCollection(r.Context(), col, h.defaultMode)
	if err != nil {
		if errors.Is(err, service.ErrEmptyCollection) {
			h.respondError(w, http.StatusNotFound, "no rules found for collection type: "+raw)
			return
		}
		h.logger.Error("failed to export collection", "collection", col, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export collection")
		return
	}

	h.respondXML(w, http.StatusOK, doc)
}

// handleImport parses policy XML from the request body and imports its rules.
// Invalid rules are reported but do not abort the import; equivalent rules
// already in the store are skipped.
// POST /api/import/xml
func (h *AdminHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.policyIO.Import(r.Context(), string(body), actorFrom(r))
	if err != nil {
		switch {
		case errors.Is(err, axml.ErrMalformed), errors.Is(err, axml.ErrUnexpectedRoot):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNoImportableRules):
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("failed to import policy", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to import policy")
		}
		return
	}

	h.countMutation("imported")
	h.respondJSON(w, http.StatusOK, result)
}

// handleDefaultRules returns the built-in default rule set without storing it.
// GET /api/default-rules
func (h *AdminHandler) handleDefaultRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.policyIO.DefaultRules()
	if err != nil {
		h.logger.Error("failed to load default rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load default rules")
		return
	}

	h.respondJSON(w, http.StatusOK, rules)
}

// handleImportDefaultRules imports the built-in default rule set, optionally
// restricted to one collection.
// POST /api/import/default-rules?collection=Exe
func (h *AdminHandler) handleImportDefaultRules(w http.ResponseWriter, r *http.Request) {
	col, ok := h.collectionFilter(w, r)
	if !ok {
		return
	}

	result, err := h.policyIO.ImportDefaultRules(r.Context(), col, actorFrom(r))
	if err != nil {
		if errors.Is(err, service.ErrNoImportableRules) {
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("failed to import default rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to import default rules")
		return
	}

	h.countMutation("imported")
	h.respondJSON(w, http.StatusOK, result)
}

// handleGetEnforcementModes returns the per-collection enforcement modes.
// GET /api/enforcement-modes
func (h *AdminHandler) handleGetEnforcementModes(w http.ResponseWriter, r *http.Request) {
	modes, err := h.policyIO.EnforcementModes(r.Context())
	if err != nil {
		h.logger.Error("failed to load enforcement modes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load enforcement modes")
		return
	}

	// Report an explicit mode for every collection so clients do not have
	// to know the export default.
	full := make(map[rule.Collection]rule.EnforcementMode, len(rule.Collections))
	for _, col := range rule.Collections {
		mode, ok := modes[col]
		if !ok {
			mode = h.defaultMode
		}
		full[col] = mode
	}

	h.respondJSON(w, http.StatusOK, full)
}

// setModeRequest is the JSON body for the enforcement mode endpoint.
type setModeRequest struct {
	Collection string `json:"collection"`
	Mode       string `json:"mode"`
}

// handleSetEnforcementMode sets the enforcement mode for one collection.
// PUT /api/enforcement-modes
func (h *AdminHandler) handleSetEnforcementMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	col, ok := rule.ParseCollection(req.Collection)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown collection type: "+req.Collection)
		return
	}

	mode := rule.EnforcementMode(req.Mode)
	switch mode {
	case rule.ModeNotConfigured, rule.ModeAuditOnly, rule.ModeEnabled:
	default:
		h.respondError(w, http.StatusBadRequest, "mode must be NotConfigured, AuditOnly, or Enabled")
		return
	}

	if err := h.policyIO.SetEnforcementMode(r.Context(), col, mode, actorFrom(r)); err != nil {
		h.logger.Error("failed to set enforcement mode", "collection", col, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to set enforcement mode")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"collection": string(col),
		"mode":       string(mode),
	})
}
