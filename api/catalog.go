package api

import (
	"net/http"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories supports ?type= and ?include_inactive=.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	typ := finance.TransactionType(r.URL.Query().Get("type"))
	if typ != "" {
		if err := typ.Validate(); err != nil {
			writeDomainError(w, r, "Invalid query", err)
			return
		}
	}
	categories, err := h.Store.ListCategories(r.Context(), typ, includeInactive)
	if err != nil {
		writeDomainError(w, r, "Failed to list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	category, err := h.Store.CreateCategory(r.Context(), req.toCategory())
	if err != nil {
		writeDomainError(w, r, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	category := req.toCategory()
	category.ID = finance.CategoryID(id)

	updated, err := h.Store.UpdateCategory(r.Context(), category)
	if err != nil {
		writeDomainError(w, r, "Failed to update category", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteCategory(r.Context(), finance.CategoryID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TAG HANDLERS
// =============================================================================

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Store.ListTags(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	tag, err := h.Store.CreateTag(r.Context(), finance.Tag{Name: req.Name, Color: req.Color})
	if err != nil {
		writeDomainError(w, r, "Failed to create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	tag, err := h.Store.UpdateTag(r.Context(), finance.Tag{ID: finance.TagID(id), Name: req.Name, Color: req.Color})
	if err != nil {
		writeDomainError(w, r, "Failed to update tag", err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteTag(r.Context(), finance.TagID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	budgets, err := h.Store.ListBudgets(r.Context(), !includeInactive)
	if err != nil {
		writeDomainError(w, r, "Failed to list budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	if !decode(w, r, &req) {
		return
	}
	budget, err := h.Store.CreateBudget(r.Context(), req.toBudget())
	if err != nil {
		writeDomainError(w, r, "Failed to create budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, budget)
}

func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req BudgetRequest
	if !decode(w, r, &req) {
		return
	}
	budget := req.toBudget()
	budget.ID = finance.BudgetID(id)

	updated, err := h.Store.UpdateBudget(r.Context(), budget)
	if err != nil {
		writeDomainError(w, r, "Failed to update budget", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteBudget(r.Context(), finance.BudgetID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BudgetStatus reports spending for the period containing ?date= (default
// today).
// GET /api/budgets/{id}/status
func (h *Handler) BudgetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	asOf, err := queryDate(r, "date")
	if err != nil {
		writeDomainError(w, r, "Invalid query", err)
		return
	}
	on := h.Today()
	if asOf != nil {
		on = *asOf
	}
	status, err := h.Store.BudgetStatus(r.Context(), finance.BudgetID(id), on)
	if err != nil {
		writeDomainError(w, r, "Failed to get budget status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// SAVINGS GOAL HANDLERS
// =============================================================================

func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Store.ListGoals(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list savings goals", err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if !decode(w, r, &req) {
		return
	}
	goal, err := h.Store.CreateGoal(r.Context(), req.toGoal())
	if err != nil {
		writeDomainError(w, r, "Failed to create savings goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req GoalRequest
	if !decode(w, r, &req) {
		return
	}
	goal := req.toGoal()
	goal.ID = finance.GoalID(id)

	updated, err := h.Store.UpdateGoal(r.Context(), goal)
	if err != nil {
		writeDomainError(w, r, "Failed to update savings goal", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteGoal(r.Context(), finance.GoalID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete savings goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DepositToGoal adds money to a goal.
// POST /api/savings-goals/{id}/deposit
func (h *Handler) DepositToGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if !decode(w, r, &req) {
		return
	}
	on := h.Today()
	if req.Date != nil {
		on = *req.Date
	}
	res, err := h.Store.Deposit(r.Context(), finance.GoalID(id), req.Amount, on, req.TransactionID)
	if err != nil {
		writeDomainError(w, r, "Failed to deposit to savings goal", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
