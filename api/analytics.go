package api

import (
	"net/http"

	"github.com/warp/finance-tracker/finance"
)

// Dashboard summarizes [start_date, end_date]. Defaults to the first of the
// current month through today.
// GET /api/analytics/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	start, err := queryDate(r, "start_date")
	if err != nil {
		writeDomainError(w, r, "Invalid query", err)
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		writeDomainError(w, r, "Invalid query", err)
		return
	}

	today := h.Today()
	period := finance.Period{Start: finance.StartOfMonth(today.Year(), today.Month()), End: today}
	if start != nil {
		period.Start = *start
	}
	if end != nil {
		period.End = *end
	}
	if period.End.Before(period.Start) {
		writeError(w, http.StatusBadRequest, "Invalid query", &finance.ValidationError{
			Field: "end_date", Message: "must not be before start_date",
		})
		return
	}

	dash, err := h.Store.Dashboard(r.Context(), period)
	if err != nil {
		writeDomainError(w, r, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
