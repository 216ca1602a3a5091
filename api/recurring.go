package api

import (
	"net/http"

	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/logging"
	"github.com/warp/finance-tracker/store/sqlite"
)

const (
	defaultPreviewMonths = 3
	maxPreviewMonths     = 12
)

// =============================================================================
// RECURRING RULE CRUD
// =============================================================================

// ListRules returns all rules, or only active ones with active_only=true.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active_only")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	rules, err := h.Store.ListRules(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, r, "Failed to list recurring transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, err := h.Store.GetRule(r.Context(), finance.RuleID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to get recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RecurringRuleRequest
	if !decode(w, r, &req) {
		return
	}
	rule, err := h.Store.CreateRule(r.Context(), req.toRule())
	if err != nil {
		writeDomainError(w, r, "Failed to create recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RecurringRuleRequest
	if !decode(w, r, &req) {
		return
	}
	rule := req.toRule()
	rule.ID = finance.RuleID(id)
	if req.IsActive == nil {
		current, err := h.Store.GetRule(r.Context(), rule.ID)
		if err != nil {
			writeDomainError(w, r, "Failed to get recurring transaction", err)
			return
		}
		rule.IsActive = current.IsActive
	}

	updated, err := h.Store.UpdateRule(r.Context(), rule)
	if err != nil {
		writeDomainError(w, r, "Failed to update recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRule deletes a rule, or deactivates it once it has generated
// transactions.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deactivated, err := h.Store.DeleteRule(r.Context(), finance.RuleID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to delete recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse(deactivated))
}

// ToggleRule sets is_active from ?active=.
// PUT /api/recurring-transactions/{id}/toggle?active=true
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("active") == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter", &finance.ValidationError{Field: "active", Message: "is required"})
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	rule, err := h.Store.SetRuleActive(r.Context(), finance.RuleID(id), active)
	if err != nil {
		writeDomainError(w, r, "Failed to toggle recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

// ProcessRule materializes every pending occurrence of one rule as of today.
// POST /api/recurring-transactions/{id}/process
func (h *Handler) ProcessRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Materialize(r.Context(), finance.RuleID(id), h.Today(), h.SafetyCap)
	if err != nil {
		writeDomainError(w, r, "Failed to process recurring transaction", err)
		return
	}
	logData := logging.FromContext(r.Context())
	logData.AddData("created", res.Created)
	logData.AddData("truncated", res.Truncated)
	writeJSON(w, http.StatusOK, res)
}

// ProcessAll materializes every active rule and records the pass as a run.
// POST /api/recurring-transactions/process-all
func (h *Handler) ProcessAll(w http.ResponseWriter, r *http.Request) {
	asOf := h.Today()
	run, batch, err := h.Runner.Run(r.Context(), TriggerAPI, asOf)
	if err != nil {
		writeDomainError(w, r, "Failed to process recurring transactions", err)
		return
	}
	logging.FromContext(r.Context()).AddData("run_id", run.ID)
	writeJSON(w, http.StatusOK, toBatchDTO(run.ID, asOf, batch))
}

// PreviewRule projects the rule's next occurrences without writing them.
// GET /api/recurring-transactions/{id}/preview?months_ahead=3
func (h *Handler) PreviewRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	months, err := queryInt(r, "months_ahead", defaultPreviewMonths)
	if err != nil || months < 1 || months > maxPreviewMonths {
		writeError(w, http.StatusBadRequest, "Invalid query", &finance.ValidationError{
			Field: "months_ahead", Message: "must be an integer between 1 and 12",
		})
		return
	}

	today := h.Today()
	through := today.AddMonths(months, today.Day())
	preview, err := h.Engine.Preview(r.Context(), finance.RuleID(id), through, finance.DefaultPreviewLimit)
	if err != nil {
		writeDomainError(w, r, "Failed to preview recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ListRuns returns materialization run history, newest first.
// GET /api/recurring-transactions/runs?status=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	runs, err := h.Store.ListRuns(r.Context(), sqlite.RunStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		writeDomainError(w, r, "Failed to list materialization runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
