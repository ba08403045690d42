package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
)

// CarDirectory implements db.CarCollection.
type CarDirectory struct {
	mu   sync.RWMutex
	cars map[string]models.Car
}

func NewCarDirectory(cars ...models.Car) *CarDirectory {
	d := &CarDirectory{cars: make(map[string]models.Car, len(cars))}
	for _, c := range cars {
		d.cars[c.ID] = c
	}
	return d
}

func (d *CarDirectory) GetCar(ctx context.Context, id string) (models.Car, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	car, ok := d.cars[id]
	if !ok {
		return models.Car{}, reservation.ErrCarNotFound
	}
	return car, nil
}

// ListCars returns the cars matching filter, ties broken by id.
func (d *CarDirectory) ListCars(ctx context.Context, filter models.CarFilter) ([]models.Car, error) {
	field, desc, err := filter.SortKey()
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	out := make([]models.Car, 0, len(d.cars))
	for _, c := range d.cars {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		c := compareCars(out[i], out[j], field)
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func compareCars(a, b models.Car, field string) int {
	switch field {
	case "brand":
		return strings.Compare(a.Brand, b.Brand)
	case "model":
		return strings.Compare(a.Model, b.Model)
	case "year":
		return a.Year - b.Year
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (d *CarDirectory) InsertCar(ctx context.Context, car models.Car) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.cars[car.ID]; exists {
		return fmt.Errorf("car %s already exists", car.ID)
	}
	now := time.Now().UTC()
	if car.CreatedAt.IsZero() {
		car.CreatedAt = now
	}
	car.UpdatedAt = now
	d.cars[car.ID] = car
	return nil
}

func (d *CarDirectory) UpdateCarStatus(ctx context.Context, id string, status models.CarStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	car, ok := d.cars[id]
	if !ok {
		return reservation.ErrCarNotFound
	}
	car.Status = status
	car.UpdatedAt = time.Now().UTC()
	d.cars[id] = car
	return nil
}
