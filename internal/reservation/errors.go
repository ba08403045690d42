package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
)

var (
	ErrInvalidRange        = errors.New("start date must be before end date")
	ErrPastDate            = errors.New("cannot book a reservation in the past")
	ErrCarNotFound         = errors.New("car not found")
	ErrCarUnavailable      = errors.New("car is not available")
	ErrReservationConflict = errors.New("reservation conflicts with an existing reservation")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAlreadyCancelled    = errors.New("reservation already cancelled")
)

// Kind is the stable, transport-independent name of a rejection.
type Kind string

const (
	KindInvalidRange        Kind = "invalid_range"
	KindPastDate            Kind = "past_date"
	KindCarNotFound         Kind = "car_not_found"
	KindCarUnavailable      Kind = "car_unavailable"
	KindReservationConflict Kind = "reservation_conflict"
	KindReservationNotFound Kind = "reservation_not_found"
	KindAlreadyCancelled    Kind = "already_cancelled"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidRange, KindInvalidRange},
	{ErrPastDate, KindPastDate},
	{ErrCarNotFound, KindCarNotFound},
	{ErrCarUnavailable, KindCarUnavailable},
	{ErrReservationConflict, KindReservationConflict},
	{ErrReservationNotFound, KindReservationNotFound},
	{ErrAlreadyCancelled, KindAlreadyCancelled},
}

// KindOf classifies err. Anything outside the rejection taxonomy is KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// CarUnavailableError rejects a booking on a car whose status is not AVAILABLE.
type CarUnavailableError struct {
	CarID              string
	RegistrationNumber string
	Status             models.CarStatus
}

func (e *CarUnavailableError) Error() string {
	return fmt.Sprintf("car %s is not available (status: %s)", e.RegistrationNumber, e.Status)
}

func (e *CarUnavailableError) Is(target error) bool {
	return target == ErrCarUnavailable
}

// ConflictError rejects a window that overlaps an active reservation of the same car.
type ConflictError struct {
	ConflictID string
	StartAt    time.Time
	EndAt      time.Time
}

func newConflictError(r *models.Reservation) *ConflictError {
	return &ConflictError{ConflictID: r.ID, StartAt: r.StartAt, EndAt: r.EndAt}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with reservation %s from %s to %s",
		e.ConflictID,
		e.StartAt.Format("02/01/2006 15:04"),
		e.EndAt.Format("02/01/2006 15:04"))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrReservationConflict
}
