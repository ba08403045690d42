// Package postgres stores cars and reservations in PostgreSQL.
//
// Units of work are READ COMMITTED transactions. The per-car lock is a
// transaction-scoped advisory lock; reservation rows are locked with
// SELECT ... FOR UPDATE. Statements issued after a lock is granted see every
// transaction committed before it.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reservationColumns = `id, user_id, car_id, start_at, end_at, status, purpose, created_at, updated_at`

// Store implements reservation.Store.
type Store struct {
	conn
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{conn: conn{pool: pool}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

func (s *Store) LockCar(ctx context.Context, carID string) error {
	if txFromContext(ctx) == nil {
		return errNoTx
	}
	if _, err := s.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "car:"+carID); err != nil {
		return fmt.Errorf("lock car: %w", err)
	}
	return nil
}

func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if txFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	r, err := scanReservation(s.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, reservation.ErrReservationNotFound
		}
		return models.Reservation{}, fmt.Errorf("get reservation for update: %w", err)
	}
	return r, nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	r, err := scanReservation(s.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, reservation.ErrReservationNotFound
		}
		return models.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *Store) FindOverlapping(ctx context.Context, carID string, start, end time.Time, excludeID string) (*models.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE car_id = $1
  AND status = ANY($2)
  AND start_at < $3
  AND end_at > $4
  AND ($5 = '' OR id <> $5)
ORDER BY start_at, id
LIMIT 1`

	r, err := scanReservation(s.queryRow(ctx, query, carID, occupyingStatuses(), end, start, excludeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find overlapping reservations: %w", err)
	}
	return &r, nil
}

func (s *Store) InsertReservation(ctx context.Context, r models.Reservation) error {
	const stmt = `
INSERT INTO reservations (` + reservationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.exec(ctx, stmt,
		r.ID,
		r.UserID,
		r.CarID,
		r.StartAt,
		r.EndAt,
		string(r.Status),
		r.Purpose,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return reservation.ErrCarNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("insert reservation: duplicate id %s", r.ID)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *Store) UpdateReservation(ctx context.Context, r models.Reservation) error {
	const stmt = `
UPDATE reservations
SET start_at = $2, end_at = $3, status = $4, purpose = $5, updated_at = $6
WHERE id = $1`

	tag, err := s.exec(ctx, stmt, r.ID, r.StartAt, r.EndAt, string(r.Status), r.Purpose, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (s *Store) ListReservations(ctx context.Context, filter reservation.ListFilter) ([]models.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE ($1 = '' OR user_id = $1)
  AND ($2 = '' OR car_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at DESC, id`

	rows, err := s.query(ctx, query, filter.UserID, filter.CarID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	out := []models.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

func scanReservation(row pgx.Row) (models.Reservation, error) {
	var (
		r      models.Reservation
		status string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.CarID, &r.StartAt, &r.EndAt, &status, &r.Purpose, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Reservation{}, err
	}
	r.Status = models.ReservationStatus(status)
	r.StartAt = r.StartAt.UTC()
	r.EndAt = r.EndAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func occupyingStatuses() []string {
	out := make([]string, len(models.OccupyingStatuses))
	for i, s := range models.OccupyingStatuses {
		out[i] = string(s)
	}
	return out
}
