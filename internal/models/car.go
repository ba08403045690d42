package models

import (
	"time"
)

// CarStatus is the operational state of a fleet car.
type CarStatus string

const (
	CarStatusAvailable   CarStatus = "AVAILABLE"
	CarStatusInUse       CarStatus = "IN_USE"
	CarStatusMaintenance CarStatus = "MAINTENANCE"
	CarStatusUnavailable CarStatus = "UNAVAILABLE"
)

// IsValidCarStatus checks if a status is one of the known car states
func IsValidCarStatus(status CarStatus) bool {
	switch status {
	case CarStatusAvailable, CarStatusInUse, CarStatusMaintenance, CarStatusUnavailable:
		return true
	default:
		return false
	}
}

// Car represents a shared fleet car.
type Car struct {
	ID                 string    `bson:"_id" json:"id"`
	RegistrationNumber string    `bson:"registration_number" json:"registration_number"`
	Brand              string    `bson:"brand" json:"brand"`
	Model              string    `bson:"model" json:"model"`
	Year               int       `bson:"year" json:"year"`
	Status             CarStatus `bson:"status" json:"status"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAvailable reports whether the car may receive new reservations.
func (c *Car) IsAvailable() bool {
	return c.Status == CarStatusAvailable
}
