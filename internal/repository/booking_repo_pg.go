package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, code, user_id, flight_id, seat_id, seat_number, passenger, baggage, total_price_cents,
	status, payment_method, hold_expires_at, confirmed_at, cancelled_at, created_at, updated_at`

const activeSeatIndex = "bookings_active_seat_idx"

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                  domain.Booking
		passenger, baggage []byte
	)
	err := row.Scan(
		&b.ID, &b.Code, &b.UserID, &b.FlightID, &b.SeatID, &b.SeatNumber, &passenger, &baggage, &b.TotalPriceCents,
		&b.Status, &b.PaymentMethod, &b.HoldExpiresAt, &b.ConfirmedAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(passenger, &b.Passenger); err != nil {
		return nil, fmt.Errorf("decode passenger: %w", err)
	}
	if err := json.Unmarshal(baggage, &b.Baggage); err != nil {
		return nil, fmt.Errorf("decode baggage: %w", err)
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	passenger, err := json.Marshal(b.Passenger)
	if err != nil {
		return fmt.Errorf("encode passenger: %w", err)
	}
	baggage, err := json.Marshal(b.Baggage)
	if err != nil {
		return fmt.Errorf("encode baggage: %w", err)
	}

	err = conn(ctx, r.db).QueryRow(ctx, `INSERT INTO bookings (id, code, user_id, flight_id, seat_id, seat_number,
		passenger, baggage, total_price_cents, status, payment_method, hold_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		b.ID, b.Code, b.UserID, b.FlightID, b.SeatID, b.SeatNumber,
		passenger, baggage, b.TotalPriceCents, b.Status, b.PaymentMethod, b.HoldExpiresAt,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if constraint, dup := uniqueConstraint(err); dup {
		if constraint == activeSeatIndex {
			return domain.Conflictf("seat %s is not available", b.SeatNumber)
		}
		return domain.Conflictf("booking code %s already in use", b.Code)
	}
	if lockContention(err) {
		return domain.Conflictf("seat %s is not available", b.SeatNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "booking %s not found", id)
	}
	return b, nil
}

func (r *PGBookingRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE code=$1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check booking code: %w", err)
	}
	return exists, nil
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) List(ctx context.Context, status domain.BookingStatus) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, at time.Time, paymentMethod string) (*domain.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRow(ctx, `UPDATE bookings SET
			status = $3::text,
			payment_method = COALESCE(NULLIF($4::text, ''), payment_method),
			hold_expires_at = NULL,
			confirmed_at = CASE WHEN $3::text = 'confirmed' THEN $5 ELSE confirmed_at END,
			cancelled_at = CASE WHEN $3::text = 'cancelled' THEN $5 ELSE cancelled_at END,
			updated_at = $5
		WHERE id=$1 AND status=$2::text
		RETURNING `+bookingColumns, id, string(from), string(to), paymentMethod, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Conflictf("booking %s is no longer %s", id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return b, nil
}

func (r *PGBookingRepository) CancelPending(ctx context.Context, ids []uuid.UUID, at time.Time) ([]domain.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.db).Query(ctx, `UPDATE bookings
		SET status='cancelled', cancelled_at=$2, hold_expires_at=NULL, updated_at=$2
		WHERE id = ANY($1) AND status='pending'
		RETURNING `+bookingColumns, ids, at)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) CancelPendingBySeats(ctx context.Context, seatIDs []uuid.UUID, at time.Time) ([]domain.Booking, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.db).Query(ctx, `WITH stale AS (
			SELECT id AS stale_id FROM bookings
			WHERE seat_id = ANY($1) AND status='pending'
			ORDER BY seat_id
			FOR UPDATE
		)
		UPDATE bookings
		SET status='cancelled', cancelled_at=$2, hold_expires_at=NULL, updated_at=$2
		FROM stale
		WHERE bookings.id = stale.stale_id
		RETURNING `+bookingColumns, seatIDs, at)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) CountActiveByFlight(ctx context.Context, flightID uuid.UUID) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT count(*) FROM bookings WHERE flight_id=$1 AND status IN ('pending', 'confirmed')`, flightID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
