package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const carColumns = `id, registration_number, brand, model, year, status, created_at, updated_at`

// CarDirectory implements db.CarCollection. Reads join the context's
// transaction, so a car looked up during admission is read after the
// transaction began.
type CarDirectory struct {
	conn
}

func NewCarDirectory(pool *pgxpool.Pool) *CarDirectory {
	return &CarDirectory{conn: conn{pool: pool}}
}

func (d *CarDirectory) GetCar(ctx context.Context, id string) (models.Car, error) {
	const query = `SELECT ` + carColumns + ` FROM cars WHERE id = $1`
	car, err := scanCar(d.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Car{}, reservation.ErrCarNotFound
		}
		return models.Car{}, fmt.Errorf("get car: %w", err)
	}
	return car, nil
}

func (d *CarDirectory) ListCars(ctx context.Context, filter models.CarFilter) ([]models.Car, error) {
	query, args, err := carListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	cars := []models.Car{}
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	return cars, nil
}

// carListQuery builds the listing SQL. Only SortKey-validated column names
// reach the ORDER BY clause; everything else is a bind parameter.
func carListQuery(filter models.CarFilter) (string, []any, error) {
	field, desc, err := filter.SortKey()
	if err != nil {
		return "", nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.AvailableOnly {
		args = append(args, string(models.CarStatusAvailable))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(registration_number ILIKE $%[1]d ESCAPE '\\' OR brand ILIKE $%[1]d ESCAPE '\\' OR model ILIKE $%[1]d ESCAPE '\\')", n))
	}

	query := `SELECT ` + carColumns + ` FROM cars`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id`, field, direction)
	return query, args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (d *CarDirectory) InsertCar(ctx context.Context, car models.Car) error {
	const stmt = `
INSERT INTO cars (` + carColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now().UTC()
	if car.CreatedAt.IsZero() {
		car.CreatedAt = now
	}
	car.UpdatedAt = now
	if car.Status == "" {
		car.Status = models.CarStatusAvailable
	}

	_, err := d.exec(ctx, stmt,
		car.ID,
		car.RegistrationNumber,
		car.Brand,
		car.Model,
		car.Year,
		string(car.Status),
		car.CreatedAt,
		car.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("car %s already exists", car.RegistrationNumber)
		}
		return fmt.Errorf("insert car: %w", err)
	}
	return nil
}

func (d *CarDirectory) UpdateCarStatus(ctx context.Context, id string, status models.CarStatus) error {
	tag, err := d.exec(ctx,
		`UPDATE cars SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update car status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reservation.ErrCarNotFound
	}
	return nil
}

func scanCar(row pgx.Row) (models.Car, error) {
	var (
		car    models.Car
		status string
	)
	err := row.Scan(&car.ID, &car.RegistrationNumber, &car.Brand, &car.Model, &car.Year, &status, &car.CreatedAt, &car.UpdatedAt)
	if err != nil {
		return models.Car{}, err
	}
	car.Status = models.CarStatus(status)
	car.CreatedAt = car.CreatedAt.UTC()
	car.UpdatedAt = car.UpdatedAt.UTC()
	return car, nil
}
