package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
)

// handleListRules returns all rules, optionally filtered by collection.
// GET /api/rules?collection=Exe
func (h *AdminHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	col, ok := h.collectionFilter(w, r)
	if !ok {
		return
	}

	rules, err := h.rules.List(r.Context(), col)
	if err != nil {
		h.logger.Error("failed to list rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []rule.Rule{}
	}

	h.respondJSON(w, http.StatusOK, rules)
}

// handleGetRule returns a single rule by ID.
// GET /api/rules/{id}
func (h *AdminHandler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	got, err := h.rules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			h.respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.Error("failed to get rule", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	h.respondJSON(w, http.StatusOK, got)
}

// handleCreateRule creates a new rule. Submitting a rule equivalent to an
// existing one is not an error; the existing rule is returned with 200
// instead of 201 so clients can tell the two cases apart.
// POST /api/rules
func (h *AdminHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req rule.Rule
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.rules.Create(r.Context(), &req, actorFrom(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRule) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create rule", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		h.countMutation("created")
	}
	h.respondJSON(w, status, result.Rule)
}

// handleUpdateRule merges the provided fields into an existing rule.
// PUT /api/rules/{id}
func (h *AdminHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRuleInput
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.rules.Update(r.Context(), r.PathValue("id"), req, actorFrom(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRule):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrRuleNotFound):
			h.respondError(w, http.StatusNotFound, "rule not found")
		default:
			h.logger.Error("failed to update rule", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to update rule")
		}
		return
	}

	h.countMutation("updated")
	h.respondJSON(w, http.StatusOK, updated)
}

// handleDeleteRule removes a rule by ID.
// DELETE /api/rules/{id}
func (h *AdminHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := h.rules.Delete(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			h.respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.Error("failed to delete rule", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	h.countMutation("deleted")
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDeleteAllRules removes every rule, or every rule in one collection.
// DELETE /api/rules?collection=Script
func (h *AdminHandler) handleDeleteAllRules(w http.ResponseWriter, r *http.Request) {
	col, ok := h.collectionFilter(w, r)
	if !ok {
		return
	}

	if err := h.rules.DeleteAll(r.Context(), col, actorFrom(r)); err != nil {
		h.logger.Error("failed to delete rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete rules")
		return
	}

	h.countMutation("deleted")
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// collectionInfo describes one rule collection for UI consumption.
type collectionInfo struct {
	Type      rule.Collection `json:"type"`
	Label     string          `json:"label"`
	FileTypes []string        `json:"file_types"`
}

// collectionCatalog lists the AppLocker collections with the file types each
// one governs, in canonical order.
var collectionCatalog = []collectionInfo{
	{rule.CollectionExe, "Executable Rules", []string{".exe", ".com"}},
	{rule.CollectionScript, "Script Rules", []string{".ps1", ".bat", ".cmd", ".vbs", ".js"}},
	{rule.CollectionDll, "DLL Rules", []string{".dll", ".ocx"}},
	{rule.CollectionMsi, "Windows Installer Rules", []string{".msi", ".msp", ".mst"}},
	{rule.CollectionAppx, "Packaged App Rules", []string{".appx"}},
}

// handleListCollections returns the known rule collection types.
// GET /api/collections
func (h *AdminHandler) handleListCollections(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, collectionCatalog)
}

// handleRecentChanges returns the most recent journal entries, newest first.
// GET /api/changes?limit=50
func (h *AdminHandler) handleRecentChanges(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	changes := h.rules.RecentChanges(limit)
	if changes == nil {
		changes = []audit.ChangeRecord{}
	}
	h.respondJSON(w, http.StatusOK, changes)
}

// collectionFilter parses the optional ?collection= query parameter.
// Writes a 400 response and returns ok=false for unknown collection types.
func (h *AdminHandler) collectionFilter(w http.ResponseWriter, r *http.Request) (rule.Collection, bool) {
	raw := r.URL.Query().Get("collection")
	if raw == "" {
		return "", true
	}
	col, ok := rule.ParseCollection(raw)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown collection type: "+raw)
		return "", false
	}
	return col, true
}
