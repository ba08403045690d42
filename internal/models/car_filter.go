package models

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultCarOrdering lists the newest cars first.
const DefaultCarOrdering = "-created_at"

// ErrInvalidOrdering is returned for an ordering outside the allowed fields.
var ErrInvalidOrdering = errors.New("invalid ordering")

// CarOrderingFields are the fields a car listing may be ordered by.
var CarOrderingFields = []string{"brand", "model", "year", "created_at"}

// CarFilter narrows and orders a car listing.
type CarFilter struct {
	AvailableOnly bool
	// Search matches registration number, brand or model, case-insensitively.
	Search string
	// Ordering is one of CarOrderingFields, "-" prefixed for descending.
	// Empty means DefaultCarOrdering.
	Ordering string
}

// SortKey validates Ordering and splits it into field and direction.
func (f CarFilter) SortKey() (field string, desc bool, err error) {
	ordering := strings.TrimSpace(f.Ordering)
	if ordering == "" {
		ordering = DefaultCarOrdering
	}
	field = strings.TrimPrefix(ordering, "-")
	desc = field != ordering
	for _, allowed := range CarOrderingFields {
		if field == allowed {
			return field, desc, nil
		}
	}
	return "", false, fmt.Errorf("%w %q: must be one of %s", ErrInvalidOrdering, f.Ordering, strings.Join(CarOrderingFields, ", "))
}

// Matches reports whether car passes the availability and search criteria.
func (f CarFilter) Matches(car Car) bool {
	if f.AvailableOnly && !car.IsAvailable() {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, v := range []string{car.RegistrationNumber, car.Brand, car.Model} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}
