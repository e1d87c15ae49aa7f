package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const seatColumns = `id, flight_id, seat_number, row_number, column_letter, fare_class, state,
	hold_expires_at, held_by, booking_id, created_at, updated_at`

const releaseSet = `state='available', hold_expires_at=NULL, held_by=NULL, booking_id=NULL, updated_at=now()`

type PGSeatRepository struct {
	db *pgxpool.Pool
}

func NewSeatRepository(db *pgxpool.Pool) SeatRepository {
	return &PGSeatRepository{db: db}
}

func scanSeat(row pgx.Row) (*domain.Seat, error) {
	var s domain.Seat
	err := row.Scan(
		&s.ID, &s.FlightID, &s.Number, &s.Row, &s.Column, &s.Class, &s.State,
		&s.HoldExpiresAt, &s.HeldBy, &s.BookingID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()
	seats := make([]domain.Seat, 0)
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, *s)
	}
	return seats, rows.Err()
}

func (r *PGSeatRepository) CountByFlight(ctx context.Context, flightID uuid.UUID) (int, error) {
	var n int
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT count(*) FROM seats WHERE flight_id=$1`, flightID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count seats: %w", err)
	}
	return n, nil
}

func (r *PGSeatRepository) InsertMany(ctx context.Context, seats []domain.Seat) (int, error) {
	if len(seats) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(`INSERT INTO seats (id, flight_id, seat_number, row_number, column_letter, fare_class, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (flight_id, seat_number) DO NOTHING`,
			s.ID, s.FlightID, s.Number, s.Row, s.Column, s.Class, s.State)
	}

	results := conn(ctx, r.db).SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range seats {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert seat: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PGSeatRepository) ListByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Seat, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+seatColumns+` FROM seats WHERE flight_id=$1 ORDER BY row_number, column_letter`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	return collectSeats(rows)
}

func (r *PGSeatRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Seat, error) {
	s, err := scanSeat(conn(ctx, r.db).QueryRow(ctx, `SELECT `+seatColumns+` FROM seats WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "seat %s not found", id)
	}
	return s, nil
}

func (r *PGSeatRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]domain.Seat, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	return collectSeats(rows)
}

func (r *PGSeatRepository) Claim(ctx context.Context, c SeatClaim) (bool, *uuid.UUID, error) {
	var displaced *uuid.UUID
	err := conn(ctx, r.db).QueryRow(ctx, `WITH prev AS (
			SELECT id, booking_id FROM seats WHERE id=$1 FOR UPDATE
		)
		UPDATE seats s
		SET state='held', hold_expires_at=$4, held_by=$3, booking_id=$5, updated_at=now()
		FROM prev
		WHERE s.id = prev.id AND s.flight_id=$2 AND (
			s.state='available'
			OR (s.state='held' AND s.hold_expires_at <= $6)
			OR (s.state='held' AND s.held_by=$3 AND s.booking_id IS NULL)
		)
		RETURNING prev.booking_id`, c.SeatID, c.FlightID, c.Holder, c.Until, c.BookingID, c.Now).Scan(&displaced)
	if errors.Is(err, pgx.ErrNoRows) || lockContention(err) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim seat: %w", err)
	}
	return true, displaced, nil
}

func (r *PGSeatRepository) Occupy(ctx context.Context, seatID, bookingID uuid.UUID, now time.Time) (bool, error) {
	res, err := conn(ctx, r.db).Exec(ctx, `UPDATE seats SET state='occupied', hold_expires_at=NULL, updated_at=now()
		WHERE id=$1 AND booking_id=$2 AND state='held' AND hold_expires_at > $3`, seatID, bookingID, now)
	if err != nil {
		return false, fmt.Errorf("failed to occupy seat: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

func (r *PGSeatRepository) ReleaseForBooking(ctx context.Context, seatID, bookingID uuid.UUID) (bool, error) {
	res, err := conn(ctx, r.db).Exec(ctx, `UPDATE seats SET `+releaseSet+` WHERE id=$1 AND booking_id=$2`, seatID, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to release seat: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

func (r *PGSeatRepository) ReleaseHold(ctx context.Context, seatID uuid.UUID, holder *uuid.UUID) (bool, *uuid.UUID, error) {
	var bookingID *uuid.UUID
	err := conn(ctx, r.db).QueryRow(ctx, `WITH prev AS (
			SELECT id, booking_id FROM seats WHERE id=$1 FOR UPDATE
		)
		UPDATE seats s SET `+releaseSet+`
		FROM prev
		WHERE s.id = prev.id AND s.state='held' AND ($2::uuid IS NULL OR s.held_by=$2)
		RETURNING prev.booking_id`, seatID, holder).Scan(&bookingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to release hold: %w", err)
	}
	return true, bookingID, nil
}

func (r *PGSeatRepository) ReleaseExpired(ctx context.Context, flightID *uuid.UUID, now time.Time) ([]ReleasedSeat, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `WITH expired AS (
			SELECT id, booking_id FROM seats
			WHERE state='held' AND hold_expires_at <= $1 AND ($2::uuid IS NULL OR flight_id=$2)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE seats s SET `+releaseSet+`
		FROM expired
		WHERE s.id = expired.id
		RETURNING s.id, s.flight_id, s.seat_number, expired.booking_id`, now, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to release expired holds: %w", err)
	}
	defer rows.Close()

	var released []ReleasedSeat
	for rows.Next() {
		var rs ReleasedSeat
		if err := rows.Scan(&rs.SeatID, &rs.FlightID, &rs.Number, &rs.BookingID); err != nil {
			return nil, fmt.Errorf("failed to scan released seat: %w", err)
		}
		released = append(released, rs)
	}
	return released, rows.Err()
}

var _ SeatRepository = (*PGSeatRepository)(nil)
