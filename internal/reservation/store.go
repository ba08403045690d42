package reservation

import (
	"context"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
)

// CarDirectory is the read-only view of the fleet the engine consumes.
// GetCar returns ErrCarNotFound when the id does not reference a car.
type CarDirectory interface {
	GetCar(ctx context.Context, carID string) (models.Car, error)
}

// Store persists reservations. Methods called with a context produced by
// WithTx participate in that unit of work.
//
// Lock order within a unit of work is reservation row first, then car.
type Store interface {
	// WithTx runs fn atomically. Locks taken inside fn are released when
	// it returns; writes are discarded if fn returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// LockCar takes the exclusive per-car lock for the rest of the unit of work.
	LockCar(ctx context.Context, carID string) error

	// GetReservationForUpdate loads and locks one reservation row.
	GetReservationForUpdate(ctx context.Context, id string) (models.Reservation, error)

	GetReservation(ctx context.Context, id string) (models.Reservation, error)

	// FindOverlapping returns the earliest-starting reservation of carID with
	// an occupying status whose window overlaps [start, end), skipping
	// excludeID when non-empty. It returns nil when there is none.
	FindOverlapping(ctx context.Context, carID string, start, end time.Time, excludeID string) (*models.Reservation, error)

	InsertReservation(ctx context.Context, r models.Reservation) error
	UpdateReservation(ctx context.Context, r models.Reservation) error
	ListReservations(ctx context.Context, filter ListFilter) ([]models.Reservation, error)
}

// ListFilter narrows ListReservations. Empty fields match everything.
type ListFilter struct {
	UserID string
	CarID  string
	Status models.ReservationStatus
}
