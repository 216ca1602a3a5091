package api

import (
	"net/http"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns active accounts, or all with include_inactive=true.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	accounts, err := h.Store.ListAccounts(r.Context(), includeInactive)
	if err != nil {
		writeDomainError(w, r, "Failed to list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := h.Store.GetAccount(r.Context(), finance.AccountID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := h.Store.CreateAccount(r.Context(), req.toAccount())
	if err != nil {
		writeDomainError(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// UpdateAccount changes descriptive fields. initial_balance is ignored:
// balances move only through transactions.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	current, err := h.Store.GetAccount(r.Context(), finance.AccountID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to get account", err)
		return
	}

	account := req.toAccount()
	account.ID = current.ID
	if account.Currency == "" {
		account.Currency = current.Currency
	}
	if req.IsActive == nil {
		account.IsActive = current.IsActive
	}

	updated, err := h.Store.UpdateAccount(r.Context(), account)
	if err != nil {
		writeDomainError(w, r, "Failed to update account", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteAccount removes the account, or deactivates it when transactions
// still reference it.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deactivated, err := h.Store.DeleteAccount(r.Context(), finance.AccountID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to delete account", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse(deactivated))
}

// AdjustBalance writes a correction transaction so the account ends at
// new_balance.
// POST /api/accounts/{id}/adjust-balance
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AdjustBalanceRequest
	if !decode(w, r, &req) {
		return
	}
	on := h.Today()
	if req.Date != nil {
		on = *req.Date
	}

	tx, err := h.Ledger.AdjustBalance(r.Context(), finance.AccountID(id), req.NewBalance, on, req.Notes)
	if err != nil {
		writeDomainError(w, r, "Failed to adjust balance", err)
		return
	}
	account, err := h.Store.GetAccount(r.Context(), finance.AccountID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustBalanceResponse{Account: account, Transaction: tx})
}
