package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hlabsdev/car-reservation-system/internal/db"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	log "github.com/sirupsen/logrus"
)

// CarHandler serves the fleet catalog and availability checks
type CarHandler struct {
	cars         db.CarCollection
	reservations ReservationService
	logger       log.FieldLogger
}

// NewCarHandler creates a new car handler
func NewCarHandler(cars db.CarCollection, reservations ReservationService, logger log.FieldLogger) *CarHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CarHandler{cars: cars, reservations: reservations, logger: logger}
}

// List handles GET /api/cars?available=true&search=clio&ordering=-year
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CarFilter{
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if v := q.Get("available"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "available must be a boolean")
			return
		}
		filter.AvailableOnly = parsed
	}
	if _, _, err := filter.SortKey(); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidOrdering, err.Error())
		return
	}

	cars, err := h.cars.ListCars(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

// Get handles GET /api/cars/{id}
func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	car, err := h.cars.GetCar(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

// Availability handles GET /api/cars/{id}/availability?start_date=...&end_date=...
func (h *CarHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start_date"), q.Get("end_date")
	if rawStart == "" || rawEnd == "" {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "start_date and end_date are required")
		return
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDate, "start_date must be RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDate, "end_date must be RFC 3339")
		return
	}

	availability, err := h.reservations.CheckAvailability(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}
