package seats

import (
	"context"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultHoldTTL = 10 * time.Minute

type SeatUseCase interface {
	SeatMap(ctx context.Context, flightID uuid.UUID) (*SeatMap, error)
	Generate(ctx context.Context, flightID uuid.UUID) (int, error)
	Sweep(ctx context.Context, flightID *uuid.UUID) (int, error)
	Hold(ctx context.Context, requester domain.Requester, seatID uuid.UUID) (*domain.Seat, error)
	Release(ctx context.Context, requester domain.Requester, seatID uuid.UUID) (*domain.Seat, error)
}

// OrphanHandler settles pending bookings whose seat was freed underneath them.
type OrphanHandler interface {
	CancelOrphaned(ctx context.Context, bookingIDs []uuid.UUID) error
}

type SeatSummary struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Held      int `json:"held"`
	Occupied  int `json:"occupied"`
}

type SeatMap struct {
	FlightID   uuid.UUID     `json:"flight_id"`
	FlightCode string        `json:"flight_code"`
	Seats      []domain.Seat `json:"seats"`
	Summary    SeatSummary   `json:"summary"`
}

type SeatService struct {
	seats         repository.SeatRepository
	flights       repository.FlightRepository
	orphans       OrphanHandler
	cancelOrphans bool
	holdTTL       time.Duration
	now           func() time.Time
	log           logrus.FieldLogger
}

type SeatServiceOption func(*SeatService)

func WithLogger(log logrus.FieldLogger) SeatServiceOption {
	return func(s *SeatService) {
		s.log = log
	}
}

func WithClock(now func() time.Time) SeatServiceOption {
	return func(s *SeatService) {
		s.now = now
	}
}

// WithHoldTTL overrides the lifetime of standalone holds.
func WithHoldTTL(d time.Duration) SeatServiceOption {
	return func(s *SeatService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithOrphanHandler makes sweeps and releases cancel the pending bookings
// linked to the seats they free.
func WithOrphanHandler(h OrphanHandler, enabled bool) SeatServiceOption {
	return func(s *SeatService) {
		s.orphans = h
		s.cancelOrphans = enabled
	}
}

func NewSeatService(seats repository.SeatRepository, flights repository.FlightRepository, opts ...SeatServiceOption) *SeatService {
	s := &SeatService{
		seats:   seats,
		flights: flights,
		holdTTL: defaultHoldTTL,
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeatMap lazily generates the flight's seats, releases lapsed holds and
// returns the grid ordered by row and column.
func (s *SeatService) SeatMap(ctx context.Context, flightID uuid.UUID) (*SeatMap, error) {
	flight, err := s.flights.GetByID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if _, err := s.generate(ctx, flight); err != nil {
		return nil, err
	}
	if _, err := s.Sweep(ctx, &flightID); err != nil {
		return nil, err
	}

	seats, err := s.seats.ListByFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}

	m := &SeatMap{FlightID: flight.ID, FlightCode: flight.Code, Seats: seats}
	for _, seat := range seats {
		m.Summary.Total++
		switch seat.State {
		case domain.SeatStateAvailable:
			m.Summary.Available++
		case domain.SeatStateHeld:
			m.Summary.Held++
		case domain.SeatStateOccupied:
			m.Summary.Occupied++
		}
	}
	return m, nil
}

// Generate creates the seat grid for a flight that has none. It is a no-op
// when seats already exist.
func (s *SeatService) Generate(ctx context.Context, flightID uuid.UUID) (int, error) {
	flight, err := s.flights.GetByID(ctx, flightID)
	if err != nil {
		return 0, err
	}
	return s.generate(ctx, flight)
}

func (s *SeatService) generate(ctx context.Context, flight *domain.Flight) (int, error) {
	existing, err := s.seats.CountByFlight(ctx, flight.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	inserted, err := s.seats.InsertMany(ctx, domain.SeatLayout(flight.ID, flight.Capacity))
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"flight_id": flight.ID, "seats": inserted}).Info("seat map generated")
	return inserted, nil
}

// Sweep frees every lapsed hold, for one flight or all flights when flightID
// is nil, and reports how many seats it released.
func (s *SeatService) Sweep(ctx context.Context, flightID *uuid.UUID) (int, error) {
	released, err := s.seats.ReleaseExpired(ctx, flightID, s.now())
	if err != nil {
		return 0, err
	}
	if len(released) == 0 {
		return 0, nil
	}

	var orphaned []uuid.UUID
	for _, r := range released {
		s.log.WithFields(logrus.Fields{"flight_id": r.FlightID, "seat_number": r.Number}).Info("expired hold released")
		if r.BookingID != nil {
			orphaned = append(orphaned, *r.BookingID)
		}
	}
	s.settleOrphans(ctx, orphaned)
	return len(released), nil
}

func (s *SeatService) Hold(ctx context.Context, requester domain.Requester, seatID uuid.UUID) (*domain.Seat, error) {
	seat, err := s.seats.GetByID(ctx, seatID)
	if err != nil {
		return nil, err
	}
	flight, err := s.flights.GetByID(ctx, seat.FlightID)
	if err != nil {
		return nil, err
	}
	if flight.State != domain.FlightStateScheduled {
		return nil, domain.Conflictf("flight %s is %s and cannot be booked", flight.Code, flight.State)
	}

	now := s.now()
	ok, displaced, err := s.seats.Claim(ctx, repository.SeatClaim{
		SeatID:   seat.ID,
		FlightID: seat.FlightID,
		Holder:   requester.UserID,
		Until:    now.Add(s.holdTTL),
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Conflictf("seat %s is not available", seat.Number)
	}
	// The hold replaced a lapsed booking hold; that booking can no longer
	// be confirmed.
	if displaced != nil {
		s.cancelLinked(ctx, *displaced)
	}

	s.log.WithFields(logrus.Fields{"flight_id": seat.FlightID, "seat_number": seat.Number, "user_id": requester.UserID}).Info("seat held")
	return s.seats.GetByID(ctx, seatID)
}

// Release frees a held seat. Users may only release their own holds; admins
// may release any. A pending booking linked to the hold is cancelled.
func (s *SeatService) Release(ctx context.Context, requester domain.Requester, seatID uuid.UUID) (*domain.Seat, error) {
	seat, err := s.seats.GetByID(ctx, seatID)
	if err != nil {
		return nil, err
	}
	if seat.State != domain.SeatStateHeld {
		return nil, domain.Conflictf("seat %s is not held", seat.Number)
	}

	var holder *uuid.UUID
	if !requester.IsAdmin() {
		if seat.HeldBy == nil || *seat.HeldBy != requester.UserID {
			return nil, domain.Forbiddenf("seat %s is held by another user", seat.Number)
		}
		holder = &requester.UserID
	}

	ok, bookingID, err := s.seats.ReleaseHold(ctx, seatID, holder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Conflictf("seat %s is no longer held", seat.Number)
	}
	if bookingID != nil {
		s.cancelLinked(ctx, *bookingID)
	}

	s.log.WithFields(logrus.Fields{"flight_id": seat.FlightID, "seat_number": seat.Number}).Info("seat released")
	return s.seats.GetByID(ctx, seatID)
}

// cancelLinked cancels the pending booking whose hold was released or taken
// over. Unlike sweeps it does not depend on cancelOrphans.
func (s *SeatService) cancelLinked(ctx context.Context, bookingID uuid.UUID) {
	if s.orphans == nil {
		return
	}
	if err := s.orphans.CancelOrphaned(ctx, []uuid.UUID{bookingID}); err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Error("failed to cancel booking for displaced hold")
	}
}

func (s *SeatService) settleOrphans(ctx context.Context, bookingIDs []uuid.UUID) {
	if len(bookingIDs) == 0 || !s.cancelOrphans || s.orphans == nil {
		return
	}
	if err := s.orphans.CancelOrphaned(ctx, bookingIDs); err != nil {
		s.log.WithError(err).Error("failed to cancel orphaned pending bookings")
	}
}

var _ SeatUseCase = (*SeatService)(nil)
