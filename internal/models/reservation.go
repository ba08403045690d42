package models

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
)

// OccupyingStatuses are the statuses that block a car for their window.
var OccupyingStatuses = []ReservationStatus{
	ReservationStatusConfirmed,
	ReservationStatusPending,
}

// Reservation represents one booking of one car by one user over [StartAt, EndAt).
type Reservation struct {
	ID        string            `json:"id" bson:"_id"`
	UserID    string            `json:"user_id" bson:"user_id"`
	CarID     string            `json:"car_id" bson:"car_id"`
	StartAt   time.Time         `json:"start_date" bson:"start_at"`
	EndAt     time.Time         `json:"end_date" bson:"end_at"`
	Status    ReservationStatus `json:"status" bson:"status"`
	Purpose   string            `json:"purpose" bson:"purpose"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
}

// Occupies reports whether the reservation blocks its car for its window.
func (r *Reservation) Occupies() bool {
	return r.Status == ReservationStatusConfirmed || r.Status == ReservationStatusPending
}

// IsCancelled reports whether the reservation reached its terminal state.
func (r *Reservation) IsCancelled() bool {
	return r.Status == ReservationStatusCancelled
}
