// Package memory keeps reservations and cars in process memory. Its unit of
// work holds per-car and per-reservation locks until it ends and applies
// staged writes only when it succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
)

var errNoTx = errors.New("memory: lock requested outside a unit of work")

type txKey struct{}

type tx struct {
	held   []chan struct{}
	keys   map[string]bool
	staged map[string]models.Reservation
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.held[i]
	}
}

func txFromContext(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// Store implements reservation.Store.
type Store struct {
	mu           sync.RWMutex
	reservations map[string]models.Reservation
	locks        sync.Map // lock key -> chan struct{}
}

func NewStore() *Store {
	return &Store{reservations: make(map[string]models.Reservation)}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{keys: make(map[string]bool), staged: make(map[string]models.Reservation)}
	defer t.release()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	s.mu.Lock()
	for id, r := range t.staged {
		s.reservations[id] = r
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) lock(ctx context.Context, key string) error {
	t := txFromContext(ctx)
	if t == nil {
		return errNoTx
	}
	if t.keys[key] {
		return nil
	}
	v, _ := s.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := v.(chan struct{})
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.keys[key] = true
	t.held = append(t.held, ch)
	return nil
}

func (s *Store) LockCar(ctx context.Context, carID string) error {
	return s.lock(ctx, "car:"+carID)
}

func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (models.Reservation, error) {
	if txFromContext(ctx) != nil {
		if err := s.lock(ctx, "reservation:"+id); err != nil {
			return models.Reservation{}, err
		}
	}
	return s.GetReservation(ctx, id)
}

func (s *Store) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	if t := txFromContext(ctx); t != nil {
		if r, ok := t.staged[id]; ok {
			return r, nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return models.Reservation{}, reservation.ErrReservationNotFound
	}
	return r, nil
}

func (s *Store) FindOverlapping(ctx context.Context, carID string, start, end time.Time, excludeID string) (*models.Reservation, error) {
	var candidates []models.Reservation
	for _, r := range s.snapshot(ctx) {
		if r.CarID != carID || r.ID == excludeID || !r.Occupies() {
			continue
		}
		if reservation.Overlaps(r.StartAt, r.EndAt, start, end) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].StartAt.Equal(candidates[j].StartAt) {
			return candidates[i].StartAt.Before(candidates[j].StartAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	first := candidates[0]
	return &first, nil
}

func (s *Store) InsertReservation(ctx context.Context, r models.Reservation) error {
	if _, err := s.GetReservation(ctx, r.ID); err == nil {
		return fmt.Errorf("insert reservation: duplicate id %s", r.ID)
	}
	return s.write(ctx, r)
}

func (s *Store) UpdateReservation(ctx context.Context, r models.Reservation) error {
	if _, err := s.GetReservation(ctx, r.ID); err != nil {
		return err
	}
	return s.write(ctx, r)
}

func (s *Store) ListReservations(ctx context.Context, filter reservation.ListFilter) ([]models.Reservation, error) {
	out := []models.Reservation{}
	for _, r := range s.snapshot(ctx) {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.CarID != "" && r.CarID != filter.CarID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) write(ctx context.Context, r models.Reservation) error {
	if t := txFromContext(ctx); t != nil {
		t.staged[r.ID] = r
		return nil
	}
	s.mu.Lock()
	s.reservations[r.ID] = r
	s.mu.Unlock()
	return nil
}

// snapshot returns committed reservations overlaid with the unit of work's staged writes.
func (s *Store) snapshot(ctx context.Context) map[string]models.Reservation {
	s.mu.RLock()
	out := make(map[string]models.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		out[id] = r
	}
	s.mu.RUnlock()
	if t := txFromContext(ctx); t != nil {
		for id, r := range t.staged {
			out[id] = r
		}
	}
	return out
}
