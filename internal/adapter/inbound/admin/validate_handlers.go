package admin

import (
	"net/http"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// handleValidate validates every stored rule and reports cross-rule
// allow/deny conflicts.
// GET /api/validate
func (h *AdminHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.simulation.Validate(r.Context())
	if err != nil {
		h.logger.Error("failed to validate rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to validate rules")
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

// simulateRequest is the JSON body for the simulation endpoint.
type simulateRequest struct {
	Cases []rule.TestInput `json:"cases"`
}

// handleSimulate evaluates a batch of candidate file accesses against the
// stored rules and returns one verdict per case, in input order.
// POST /api/simulate
func (h *AdminHandler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Cases) == 0 {
		h.respondError(w, http.StatusBadRequest, "cases must not be empty")
		return
	}

	results, err := h.simulation.Simulate(r.Context(), req.Cases)
	if err != nil {
		h.logger.Error("failed to run simulation", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to run simulation")
		return
	}

	outcomes := make([]string, 0, len(results))
	for i := range results {
		outcomes = append(outcomes, string(results[i].Outcome))
	}
	h.countSimulations(outcomes...)

	h.respondJSON(w, http.StatusOK, results)
}
