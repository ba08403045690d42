package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	log "github.com/sirupsen/logrus"
)

const (
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidDate          = "invalid_date"
	codeInvalidOrdering      = "invalid_ordering"
	codeNotFound             = "not_found"
	codeMethodNotAllowed     = "method_not_allowed"
	codeUnavailable          = "unavailable"
)

type errorResponse struct {
	Error    string                   `json:"error"`
	Code     string                   `json:"code"`
	Conflict *reservation.ConflictRef `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// statusFor maps a rejection kind to its HTTP status.
func statusFor(kind reservation.Kind) int {
	switch kind {
	case reservation.KindInvalidRange, reservation.KindPastDate:
		return http.StatusBadRequest
	case reservation.KindCarNotFound, reservation.KindReservationNotFound:
		return http.StatusNotFound
	case reservation.KindCarUnavailable, reservation.KindReservationConflict, reservation.KindAlreadyCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders an engine or store error. Internal failures are
// logged and answered without their details.
func writeDomainError(w http.ResponseWriter, logger log.FieldLogger, err error) {
	kind := reservation.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
		writeError(w, status, string(kind), "internal error")
		return
	}

	resp := errorResponse{Error: err.Error(), Code: string(kind)}
	var conflict *reservation.ConflictError
	if errors.As(err, &conflict) {
		resp.Conflict = &reservation.ConflictRef{ID: conflict.ConflictID, StartAt: conflict.StartAt, EndAt: conflict.EndAt}
	}
	writeJSON(w, status, resp)
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "Not found")
}

// MethodNotAllowed answers known routes hit with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed")
}
