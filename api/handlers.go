/*
handlers.go - HTTP API handlers for the finance tracker

PURPOSE:
  Exposes the ledger, catalog and recurring-transaction engine via REST.
  Handlers parse the request, delegate to the store or the finance package
  and serialize the result. No business rule lives here.

ENDPOINTS:
  accounts.go:     /api/accounts (+ adjust-balance)
  transactions.go: /api/transactions
  catalog.go:      /api/categories, /api/tags, /api/budgets, /api/savings-goals
  recurring.go:    /api/recurring-transactions (+ process, preview, runs)
  analytics.go:    /api/analytics/dashboard

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store:  SQLite catalog and read queries
  - Ledger: Manual transaction writes (balance-consistent)
  - Engine: Recurring rule materialization
  - Runner: Recorded MaterializeAll passes

ERROR HANDLING:
  Domain errors are mapped by statusFor (errors.go):
  - 400: Validation errors, malformed input
  - 404: Resource not found
  - 409: Inactive rule, conflict
  - 422: Unknown recurrence frequency
  - 500: Storage failures

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/logging"
	"github.com/warp/finance-tracker/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Ledger    *finance.Ledger
	Engine    *finance.Materializer
	Runner    *BatchRunner
	SafetyCap int

	// Today is the as-of date for materialization and default ranges.
	Today func() finance.Date
}

// NewHandler wires a handler around store. A non-positive safetyCap uses
// finance.DefaultSafetyCap.
func NewHandler(store *sqlite.Store, logger logrus.FieldLogger, safetyCap int) *Handler {
	if safetyCap <= 0 {
		safetyCap = finance.DefaultSafetyCap
	}
	engine := finance.NewMaterializer(store, logger)
	engine.SafetyCap = safetyCap
	return &Handler{
		Store:     store,
		Ledger:    finance.NewLedger(store),
		Engine:    engine,
		Runner:    NewBatchRunner(store, engine, safetyCap, logger),
		SafetyCap: safetyCap,
		Today:     finance.Today,
	}
}

// Status is the liveness endpoint.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	version, _, err := h.Store.SchemaVersion()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", SchemaVersion: version})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", fmt.Errorf("id must be a positive integer, got %q", raw))
		return 0, false
	}
	logging.FromContext(r.Context()).AddData("id", id)
	return id, true
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// queryDate returns nil when the parameter is absent.
func queryDate(r *http.Request, key string) (*finance.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := finance.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalInt64(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return &n, nil
}

func deleteResponse(deactivated bool) DeleteResponse {
	return DeleteResponse{Deleted: !deactivated, Deactivated: deactivated}
}
