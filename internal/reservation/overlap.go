package reservation

import (
	"context"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share an instant.
// Windows that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapChecker answers whether a window on a car collides with an active reservation.
type OverlapChecker struct {
	store Store
}

func NewOverlapChecker(store Store) *OverlapChecker {
	return &OverlapChecker{store: store}
}

// FirstConflict returns the conflicting reservation, or nil when the window is free.
// start < end is the caller's responsibility.
func (c *OverlapChecker) FirstConflict(ctx context.Context, carID string, start, end time.Time, excludeID string) (*models.Reservation, error) {
	return c.store.FindOverlapping(ctx, carID, start, end, excludeID)
}

// HasOverlap is FirstConflict reduced to a predicate.
func (c *OverlapChecker) HasOverlap(ctx context.Context, carID string, start, end time.Time, excludeID string) (bool, error) {
	conflict, err := c.FirstConflict(ctx, carID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}
