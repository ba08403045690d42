package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hlabsdev/car-reservation-system/internal/db"
	"github.com/hlabsdev/car-reservation-system/internal/middleware"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// ReservationService is the admission engine surface the HTTP layer needs.
type ReservationService interface {
	CreateReservation(ctx context.Context, in reservation.CreateInput) (models.Reservation, error)
	UpdateReservation(ctx context.Context, id string, in reservation.UpdateInput) (models.Reservation, error)
	CancelReservation(ctx context.Context, id string) (models.Reservation, error)
	CheckAvailability(ctx context.Context, carID string, start, end time.Time) (reservation.Availability, error)
	GetReservation(ctx context.Context, id string) (models.Reservation, error)
	ListReservations(ctx context.Context, filter reservation.ListFilter) ([]models.Reservation, error)
}

type createReservationRequest struct {
	CarID     string    `json:"car_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Purpose   string    `json:"purpose"`
}

type updateReservationRequest struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Purpose   *string    `json:"purpose"`
}

// carSummary is the car embedded in reservation responses.
type carSummary struct {
	ID                 string           `json:"id"`
	RegistrationNumber string           `json:"registration_number"`
	Brand              string           `json:"brand"`
	Model              string           `json:"model"`
	Year               int              `json:"year"`
	Status             models.CarStatus `json:"status"`
}

type reservationResponse struct {
	models.Reservation
	CarDetail *carSummary `json:"car_detail,omitempty"`
}

// ReservationHandler handles reservation requests on behalf of the authenticated user
type ReservationHandler struct {
	service ReservationService
	cars    db.CarCollection
	logger  log.FieldLogger
}

// NewReservationHandler creates a new reservation handler. cars supplies the
// car summary embedded in each response.
func NewReservationHandler(service ReservationService, cars db.CarCollection, logger log.FieldLogger) *ReservationHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ReservationHandler{service: service, cars: cars, logger: logger}
}

// withCars attaches car summaries, looking each car up once. A car that no
// longer exists leaves car_detail out.
func (h *ReservationHandler) withCars(ctx context.Context, reservations ...models.Reservation) ([]reservationResponse, error) {
	summaries := make(map[string]*carSummary)
	out := make([]reservationResponse, 0, len(reservations))
	for _, r := range reservations {
		summary, seen := summaries[r.CarID]
		if !seen {
			car, err := h.cars.GetCar(ctx, r.CarID)
			switch {
			case err == nil:
				summary = &carSummary{
					ID:                 car.ID,
					RegistrationNumber: car.RegistrationNumber,
					Brand:              car.Brand,
					Model:              car.Model,
					Year:               car.Year,
					Status:             car.Status,
				}
			case errors.Is(err, reservation.ErrCarNotFound):
			default:
				return nil, err
			}
			summaries[r.CarID] = summary
		}
		out = append(out, reservationResponse{Reservation: r, CarDetail: summary})
	}
	return out, nil
}

// writeReservation renders one reservation with its car.
func (h *ReservationHandler) writeReservation(w http.ResponseWriter, r *http.Request, status int, res models.Reservation) {
	resp, err := h.withCars(r.Context(), res)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, status, resp[0])
}

// List handles GET /api/reservations. Users see their own reservations;
// roles that manage all reservations may filter by user_id, car_id and status.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := reservation.ListFilter{
		CarID:  q.Get("car_id"),
		Status: models.ReservationStatus(strings.ToUpper(q.Get("status"))),
	}
	if claims.Role.CanManageAllReservations() {
		filter.UserID = q.Get("user_id")
	} else {
		filter.UserID = claims.UserID
	}

	reservations, err := h.service.ListReservations(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	resp, err := h.withCars(r.Context(), reservations...)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/reservations
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CarID == "" || req.StartDate.IsZero() || req.EndDate.IsZero() {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "car_id, start_date and end_date are required")
		return
	}

	created, err := h.service.CreateReservation(r.Context(), reservation.CreateInput{
		UserID:  claims.UserID,
		CarID:   req.CarID,
		StartAt: req.StartDate,
		EndAt:   req.EndDate,
		Purpose: req.Purpose,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeReservation(w, r, http.StatusCreated, created)
}

// Get handles GET /api/reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, ok := h.loadOwned(w, r, claims)
	if !ok {
		return
	}
	h.writeReservation(w, r, http.StatusOK, res)
}

// Update handles PATCH /api/reservations/{id}
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StartDate == nil && req.EndDate == nil && req.Purpose == nil {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "at least one of start_date, end_date, purpose is required")
		return
	}

	existing, ok := h.loadOwned(w, r, claims)
	if !ok {
		return
	}

	updated, err := h.service.UpdateReservation(r.Context(), existing.ID, reservation.UpdateInput{
		StartAt: req.StartDate,
		EndAt:   req.EndDate,
		Purpose: req.Purpose,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeReservation(w, r, http.StatusOK, updated)
}

// Cancel handles POST /api/reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	existing, ok := h.loadOwned(w, r, claims)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelReservation(r.Context(), existing.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeReservation(w, r, http.StatusOK, cancelled)
}

// loadOwned fetches the reservation in the URL. Reservations of other users
// are reported as not found unless the caller manages all reservations.
func (h *ReservationHandler) loadOwned(w http.ResponseWriter, r *http.Request, claims *models.Claims) (models.Reservation, bool) {
	res, err := h.service.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return models.Reservation{}, false
	}
	if res.UserID != claims.UserID && !claims.Role.CanManageAllReservations() {
		writeDomainError(w, h.logger, reservation.ErrReservationNotFound)
		return models.Reservation{}, false
	}
	return res, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "User context not found")
		return nil, false
	}
	return claims, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "Invalid JSON")
		return false
	}
	return true
}
