package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hlabsdev/car-reservation-system/internal/clock"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	log "github.com/sirupsen/logrus"
)

// Engine admits, updates and cancels reservations. Every mutation runs as a
// single unit of work on the Store, holding the per-car lock across the
// overlap check and the write.
type Engine struct {
	store   Store
	cars    CarDirectory
	clock   clock.Clock
	overlap *OverlapChecker
	logger  log.FieldLogger
	newID   func() string
}

type EngineOption func(*Engine)

// WithLogger overrides the default logrus standard logger.
func WithLogger(l log.FieldLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator overrides how reservation ids are assigned.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func NewEngine(store Store, cars CarDirectory, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		cars:    cars,
		clock:   clk,
		overlap: NewOverlapChecker(store),
		logger:  log.StandardLogger(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateInput struct {
	UserID  string
	CarID   string
	StartAt time.Time
	EndAt   time.Time
	Purpose string
}

// UpdateInput carries a partial update. Nil fields keep their stored value.
type UpdateInput struct {
	StartAt *time.Time
	EndAt   *time.Time
	Purpose *string
}

// Availability is the answer to CheckAvailability.
type Availability struct {
	Available bool         `json:"available"`
	Conflict  *ConflictRef `json:"conflict,omitempty"`
}

// ConflictRef identifies the reservation occupying a requested window.
type ConflictRef struct {
	ID      string    `json:"id"`
	StartAt time.Time `json:"start_date"`
	EndAt   time.Time `json:"end_date"`
}

// CreateReservation admits a new CONFIRMED reservation.
func (e *Engine) CreateReservation(ctx context.Context, in CreateInput) (models.Reservation, error) {
	now := e.clock.Now()
	start, end, err := admitWindow(in.StartAt, in.EndAt, now)
	if err != nil {
		e.reject("create", in.CarID, "", err)
		return models.Reservation{}, err
	}
	now = normalize(now)

	var created models.Reservation
	err = e.store.WithTx(ctx, func(txCtx context.Context) error {
		car, err := e.cars.GetCar(txCtx, in.CarID)
		if err != nil {
			return err
		}
		if !car.IsAvailable() {
			return &CarUnavailableError{CarID: car.ID, RegistrationNumber: car.RegistrationNumber, Status: car.Status}
		}

		if err := e.store.LockCar(txCtx, car.ID); err != nil {
			return err
		}

		conflict, err := e.overlap.FirstConflict(txCtx, car.ID, start, end, "")
		if err != nil {
			return err
		}
		if conflict != nil {
			return newConflictError(conflict)
		}

		r := models.Reservation{
			ID:        e.newID(),
			UserID:    in.UserID,
			CarID:     car.ID,
			StartAt:   start,
			EndAt:     end,
			Status:    models.ReservationStatusConfirmed,
			Purpose:   in.Purpose,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.InsertReservation(txCtx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		e.reject("create", in.CarID, "", err)
		return models.Reservation{}, err
	}

	e.logger.WithFields(log.Fields{
		"reservation_id": created.ID,
		"car_id":         created.CarID,
		"user_id":        created.UserID,
		"start":          created.StartAt,
		"end":            created.EndAt,
	}).Info("Reservation created")
	return created, nil
}

// UpdateReservation moves the window and/or changes the purpose of a
// reservation that is not cancelled. The reservation never conflicts with
// its own previous window.
func (e *Engine) UpdateReservation(ctx context.Context, id string, in UpdateInput) (models.Reservation, error) {
	now := e.clock.Now()

	var updated models.Reservation
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		r, err := e.store.GetReservationForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if r.IsCancelled() {
			return ErrAlreadyCancelled
		}

		start, end := r.StartAt, r.EndAt
		if in.StartAt != nil {
			start = *in.StartAt
		}
		if in.EndAt != nil {
			end = *in.EndAt
		}
		start, end, err = admitWindow(start, end, now)
		if err != nil {
			return err
		}

		if err := e.store.LockCar(txCtx, r.CarID); err != nil {
			return err
		}
		conflict, err := e.overlap.FirstConflict(txCtx, r.CarID, start, end, r.ID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return newConflictError(conflict)
		}

		r.StartAt, r.EndAt = start, end
		if in.Purpose != nil {
			r.Purpose = *in.Purpose
		}
		r.UpdatedAt = normalize(now)
		if err := e.store.UpdateReservation(txCtx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		e.reject("update", "", id, err)
		return models.Reservation{}, err
	}

	e.logger.WithFields(log.Fields{
		"reservation_id": updated.ID,
		"car_id":         updated.CarID,
		"start":          updated.StartAt,
		"end":            updated.EndAt,
	}).Info("Reservation updated")
	return updated, nil
}

// CancelReservation moves a reservation to its terminal CANCELLED state.
func (e *Engine) CancelReservation(ctx context.Context, id string) (models.Reservation, error) {
	now := normalize(e.clock.Now())

	var cancelled models.Reservation
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		r, err := e.store.GetReservationForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if r.IsCancelled() {
			return ErrAlreadyCancelled
		}
		r.Status = models.ReservationStatusCancelled
		r.UpdatedAt = now
		if err := e.store.UpdateReservation(txCtx, r); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		e.reject("cancel", "", id, err)
		return models.Reservation{}, err
	}

	e.logger.WithFields(log.Fields{
		"reservation_id": cancelled.ID,
		"car_id":         cancelled.CarID,
	}).Info("Reservation cancelled")
	return cancelled, nil
}

// CheckAvailability reports whether [start, end) is free on carID.
// It is read-only and does not apply the past-date rule.
func (e *Engine) CheckAvailability(ctx context.Context, carID string, start, end time.Time) (Availability, error) {
	if !start.Before(end) {
		return Availability{}, ErrInvalidRange
	}
	start, end = normalize(start), normalize(end)
	if !start.Before(end) {
		return Availability{}, fmt.Errorf("%w: window must span at least one millisecond", ErrInvalidRange)
	}
	car, err := e.cars.GetCar(ctx, carID)
	if err != nil {
		return Availability{}, err
	}
	conflict, err := e.overlap.FirstConflict(ctx, car.ID, start, end, "")
	if err != nil {
		return Availability{}, err
	}
	if conflict == nil {
		return Availability{Available: true}, nil
	}
	return Availability{
		Available: false,
		Conflict:  &ConflictRef{ID: conflict.ID, StartAt: conflict.StartAt, EndAt: conflict.EndAt},
	}, nil
}

func (e *Engine) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	return e.store.GetReservation(ctx, id)
}

func (e *Engine) ListReservations(ctx context.Context, filter ListFilter) ([]models.Reservation, error) {
	return e.store.ListReservations(ctx, filter)
}

func (e *Engine) reject(op, carID, reservationID string, err error) {
	entry := e.logger.WithFields(log.Fields{
		"op":   op,
		"kind": KindOf(err),
	})
	if carID != "" {
		entry = entry.WithField("car_id", carID)
	}
	if reservationID != "" {
		entry = entry.WithField("reservation_id", reservationID)
	}
	if KindOf(err) == KindInternal {
		entry.WithError(err).Error("Reservation operation failed")
		return
	}
	entry.WithError(err).Info("Reservation rejected")
}

func validateWindow(start, end, now time.Time) error {
	if !start.Before(end) {
		return ErrInvalidRange
	}
	if start.Before(now) {
		return ErrPastDate
	}
	return nil
}

// admitWindow validates the requested instants as given, then returns them
// normalized for storage. A window that only exists below millisecond
// precision is rejected rather than stored empty.
func admitWindow(start, end, now time.Time) (time.Time, time.Time, error) {
	if err := validateWindow(start, end, now); err != nil {
		return time.Time{}, time.Time{}, err
	}
	nStart, nEnd := normalize(start), normalize(end)
	if !nStart.Before(nEnd) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window must span at least one millisecond", ErrInvalidRange)
	}
	return nStart, nEnd, nil
}

// normalize drops sub-millisecond precision so every store round-trips the
// same instant.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
