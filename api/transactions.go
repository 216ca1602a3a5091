package api

import (
	"net/http"

	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/store/sqlite"
)

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns transactions newest first.
// GET /api/transactions?limit=&offset=&account_id=&category_id=&recurring_id=&type=&start_date=&end_date=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilter(r)
	if err != nil {
		writeDomainError(w, r, "Invalid query", err)
		return
	}
	txs, err := h.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func transactionFilter(r *http.Request) (sqlite.TransactionFilter, error) {
	var (
		f   sqlite.TransactionFilter
		err error
	)
	if f.Limit, err = queryInt(r, "limit", 100); err != nil {
		return f, &finance.ValidationError{Field: "limit", Message: err.Error()}
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, &finance.ValidationError{Field: "offset", Message: err.Error()}
	}
	if f.Limit <= 0 || f.Limit > 1000 || f.Offset < 0 {
		return f, &finance.ValidationError{Field: "limit", Message: "limit must be 1..1000 and offset non-negative"}
	}

	ids := map[string]*int64{}
	for _, key := range []string{"account_id", "category_id", "recurring_id"} {
		v, err := optionalInt64(r, key)
		if err != nil {
			return f, &finance.ValidationError{Field: key, Message: err.Error()}
		}
		ids[key] = v
	}
	if v := ids["account_id"]; v != nil {
		id := finance.AccountID(*v)
		f.AccountID = &id
	}
	if v := ids["category_id"]; v != nil {
		id := finance.CategoryID(*v)
		f.CategoryID = &id
	}
	if v := ids["recurring_id"]; v != nil {
		id := finance.RuleID(*v)
		f.RecurringID = &id
	}

	if t := r.URL.Query().Get("type"); t != "" {
		f.Type = finance.TransactionType(t)
		if err := f.Type.Validate(); err != nil {
			return f, err
		}
	}
	if f.From, err = queryDate(r, "start_date"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.Store.GetTransaction(r.Context(), finance.TransactionID(id))
	if err != nil {
		writeDomainError(w, r, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// CreateTransaction records a manual transaction and applies its balance
// effect.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.Ledger.Record(r.Context(), req.toTransaction())
	if err != nil {
		writeDomainError(w, r, "Failed to create transaction", err)
		return
	}
	created, err := h.Store.GetTransaction(r.Context(), tx.ID)
	if err != nil {
		writeDomainError(w, r, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateTransaction amends a transaction: the old effect is reversed and the
// new one applied.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	tx := req.toTransaction()
	tx.ID = finance.TransactionID(id)

	if _, err := h.Ledger.Amend(r.Context(), tx); err != nil {
		writeDomainError(w, r, "Failed to update transaction", err)
		return
	}
	updated, err := h.Store.GetTransaction(r.Context(), tx.ID)
	if err != nil {
		writeDomainError(w, r, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.Remove(r.Context(), finance.TransactionID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
