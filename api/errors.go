package api

import (
	"errors"
	"net/http"

	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/logging"
)

// statusFor maps domain errors onto HTTP status codes.
//
//	validation        400
//	not found         404
//	inactive rule     409
//	conflict          409
//	unknown frequency 422
//	anything else     500
func statusFor(err error) int {
	switch {
	case errors.Is(err, finance.ErrUnknownFrequency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, finance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, finance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, finance.ErrInactiveRule), errors.Is(err, finance.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status its kind maps to. Storage
// failures keep their details out of the response body; the request log
// carries them instead.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logging.FromContext(r.Context()).AddData("error", err.Error())
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
