package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const flightColumns = `id, code, origin_city, origin_code, origin_name, destination_city, destination_code, destination_name,
	departure_at, arrival_at, duration, price_cents, capacity, available_seats, state, route_type, created_at, updated_at`

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func scanFlight(row pgx.Row) (*domain.Flight, error) {
	var f domain.Flight
	err := row.Scan(
		&f.ID, &f.Code, &f.Origin.City, &f.Origin.Code, &f.Origin.Name,
		&f.Destination.City, &f.Destination.Code, &f.Destination.Name,
		&f.DepartureAt, &f.ArrivalAt, &f.Duration, &f.PriceCents, &f.Capacity, &f.AvailableSeats,
		&f.State, &f.RouteType, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PGFlightRepository) Create(ctx context.Context, f *domain.Flight) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO flights (id, code, origin_city, origin_code, origin_name,
		destination_city, destination_code, destination_name, departure_at, arrival_at, duration,
		price_cents, capacity, available_seats, state, route_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		f.ID, f.Code, f.Origin.City, f.Origin.Code, f.Origin.Name,
		f.Destination.City, f.Destination.Code, f.Destination.Name, f.DepartureAt, f.ArrivalAt, f.Duration,
		f.PriceCents, f.Capacity, f.AvailableSeats, f.State, f.RouteType,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if _, dup := uniqueConstraint(err); dup {
		return domain.Conflictf("flight %s already exists", f.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to create flight: %w", err)
	}
	return nil
}

func (r *PGFlightRepository) List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Origin != "" {
		add("origin_code = $%d", strings.ToUpper(filter.Origin))
	}
	if filter.Destination != "" {
		add("destination_code = $%d", strings.ToUpper(filter.Destination))
	}
	if filter.Date != nil {
		day := filter.Date.Truncate(24 * time.Hour)
		add("departure_at >= $%d", day)
		add("departure_at < $%d", day.Add(24*time.Hour))
	}
	if filter.RouteType != "" {
		add("route_type = $%d", filter.RouteType)
	}
	if filter.State != "" {
		add("state = $%d", filter.State)
	}

	query := `SELECT ` + flightColumns + ` FROM flights`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY departure_at`

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	f, err := scanFlight(conn(ctx, r.db).QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "flight %s not found", id)
	}
	return f, nil
}

func (r *PGFlightRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.FlightState) (*domain.Flight, error) {
	f, err := scanFlight(conn(ctx, r.db).QueryRow(ctx, `UPDATE flights SET state=$3, updated_at=now()
		WHERE id=$1 AND state=$2 RETURNING `+flightColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Conflictf("flight %s is no longer %s", id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update flight state: %w", err)
	}
	return f, nil
}

func (r *PGFlightRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM flights WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete flight: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NotFoundf("flight %s not found", id)
	}
	return nil
}

func (r *PGFlightRepository) ReserveSeat(ctx context.Context, flightID uuid.UUID) error {
	res, err := conn(ctx, r.db).Exec(ctx, `UPDATE flights SET available_seats = GREATEST(available_seats - 1, 0), updated_at = now() WHERE id=$1`, flightID)
	if err != nil {
		return fmt.Errorf("failed to reserve seat: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NotFoundf("flight %s not found", flightID)
	}
	return nil
}

func (r *PGFlightRepository) ReleaseSeat(ctx context.Context, flightID uuid.UUID) error {
	res, err := conn(ctx, r.db).Exec(ctx, `UPDATE flights SET available_seats = LEAST(available_seats + 1, capacity), updated_at = now() WHERE id=$1`, flightID)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NotFoundf("flight %s not found", flightID)
	}
	return nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
