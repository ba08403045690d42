package db

import (
	"context"

	"github.com/hlabsdev/car-reservation-system/internal/models"
)

// CarCollection defines the interface for car directory operations.
// GetCar returns reservation.ErrCarNotFound for unknown ids. ListCars
// returns models.ErrInvalidOrdering for an ordering outside the allow-list.
type CarCollection interface {
	GetCar(ctx context.Context, id string) (models.Car, error)
	ListCars(ctx context.Context, filter models.CarFilter) ([]models.Car, error)
	InsertCar(ctx context.Context, car models.Car) error
	UpdateCarStatus(ctx context.Context, id string, status models.CarStatus) error
}
