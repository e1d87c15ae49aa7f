package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
)

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together. Nested calls join the outer unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type FlightRepository interface {
	Create(ctx context.Context, flight *domain.Flight) error
	List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to domain.FlightState) (*domain.Flight, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ReserveSeat decrements the available counter, never below zero.
	ReserveSeat(ctx context.Context, flightID uuid.UUID) error
	// ReleaseSeat increments the available counter, never above capacity.
	ReleaseSeat(ctx context.Context, flightID uuid.UUID) error
}

// SeatClaim describes a conditional available->held transition.
type SeatClaim struct {
	SeatID    uuid.UUID
	FlightID  uuid.UUID
	Holder    uuid.UUID
	BookingID *uuid.UUID
	Until     time.Time
	Now       time.Time
}

// ReleasedSeat is a seat freed by a sweep, with the booking it was linked to.
type ReleasedSeat struct {
	SeatID    uuid.UUID
	FlightID  uuid.UUID
	Number    string
	BookingID *uuid.UUID
}

type SeatRepository interface {
	CountByFlight(ctx context.Context, flightID uuid.UUID) (int, error)
	// InsertMany skips seats whose (flight, number) already exists and
	// returns how many rows were written.
	InsertMany(ctx context.Context, seats []domain.Seat) (int, error)
	ListByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Seat, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Seat, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]domain.Seat, error)
	// Claim holds the seat only if it is available, its hold lapsed, or the
	// holder owns a bare hold on it. It reports whether the row changed and
	// the booking linked to the hold it replaced, if any.
	Claim(ctx context.Context, claim SeatClaim) (bool, *uuid.UUID, error)
	// Occupy turns the booking's unexpired hold into an occupied seat.
	Occupy(ctx context.Context, seatID, bookingID uuid.UUID, now time.Time) (bool, error)
	// ReleaseForBooking frees the seat if it is still linked to bookingID.
	ReleaseForBooking(ctx context.Context, seatID, bookingID uuid.UUID) (bool, error)
	// ReleaseHold frees a held seat, restricted to holder unless nil, and
	// returns the booking the hold belonged to.
	ReleaseHold(ctx context.Context, seatID uuid.UUID, holder *uuid.UUID) (bool, *uuid.UUID, error)
	// ReleaseExpired frees every lapsed hold, for one flight or all when nil.
	ReleaseExpired(ctx context.Context, flightID *uuid.UUID, now time.Time) ([]ReleasedSeat, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error)
	List(ctx context.Context, status domain.BookingStatus) ([]domain.Booking, error)
	// UpdateStatus moves a booking from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, at time.Time, paymentMethod string) (*domain.Booking, error)
	// CancelPending cancels those of ids that are still pending.
	CancelPending(ctx context.Context, ids []uuid.UUID, at time.Time) ([]domain.Booking, error)
	// CancelPendingBySeats cancels every pending booking that references one
	// of seatIDs.
	CancelPendingBySeats(ctx context.Context, seatIDs []uuid.UUID, at time.Time) ([]domain.Booking, error)
	CountActiveByFlight(ctx context.Context, flightID uuid.UUID) (int, error)
}
