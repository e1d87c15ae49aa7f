package repository

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps flights, seats and bookings in process memory. Every
// conditional update mirrors the SQL implementation so services behave the
// same against either backend.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	flights  map[uuid.UUID]domain.Flight
	seats    map[uuid.UUID]domain.Seat
	bookings map[uuid.UUID]domain.Booking

	now func() time.Time
}

type memTxKey struct{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flights:  make(map[uuid.UUID]domain.Flight),
		seats:    make(map[uuid.UUID]domain.Seat),
		bookings: make(map[uuid.UUID]domain.Booking),
		now:      time.Now,
	}
}

func (s *MemoryStore) Flights() FlightRepository   { return &memFlights{s} }
func (s *MemoryStore) Seats() SeatRepository       { return &memSeats{s} }
func (s *MemoryStore) Bookings() BookingRepository { return &memBookings{s} }

// WithTx serialises fn against every other store access and restores the
// previous contents if fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	flights, seats, bookings := maps.Clone(s.flights), maps.Clone(s.seats), maps.Clone(s.bookings)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.mu.Lock()
		s.flights, s.seats, s.bookings = flights, seats, bookings
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(memTxKey{}).(*MemoryStore)
	return ok && owner == s
}

// lock grants exclusive access for one call. Calls outside a transaction
// also wait for any running transaction to finish.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSeat(st domain.Seat) domain.Seat {
	st.HoldExpiresAt = clonePtr(st.HoldExpiresAt)
	st.HeldBy = clonePtr(st.HeldBy)
	st.BookingID = clonePtr(st.BookingID)
	return st
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.HoldExpiresAt = clonePtr(b.HoldExpiresAt)
	b.ConfirmedAt = clonePtr(b.ConfirmedAt)
	b.CancelledAt = clonePtr(b.CancelledAt)
	return b
}

func releaseSeat(st *domain.Seat, at time.Time) {
	st.State = domain.SeatStateAvailable
	st.HoldExpiresAt = nil
	st.HeldBy = nil
	st.BookingID = nil
	st.UpdatedAt = at
}

type memFlights struct{ s *MemoryStore }

func (r *memFlights) Create(ctx context.Context, f *domain.Flight) error {
	defer r.s.lock(ctx)()

	for _, existing := range r.s.flights {
		if existing.Code == f.Code {
			return domain.Conflictf("flight %s already exists", f.Code)
		}
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := r.s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	r.s.flights[f.ID] = *f
	return nil
}

func (r *memFlights) List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error) {
	defer r.s.lock(ctx)()

	out := make([]domain.Flight, 0)
	for _, f := range r.s.flights {
		if filter.Origin != "" && f.Origin.Code != strings.ToUpper(filter.Origin) {
			continue
		}
		if filter.Destination != "" && f.Destination.Code != strings.ToUpper(filter.Destination) {
			continue
		}
		if filter.Date != nil {
			day := filter.Date.Truncate(24 * time.Hour)
			if f.DepartureAt.Before(day) || !f.DepartureAt.Before(day.Add(24*time.Hour)) {
				continue
			}
		}
		if filter.RouteType != "" && f.RouteType != filter.RouteType {
			continue
		}
		if filter.State != "" && f.State != filter.State {
			continue
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b domain.Flight) int { return a.DepartureAt.Compare(b.DepartureAt) })
	return out, nil
}

func (r *memFlights) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	defer r.s.lock(ctx)()

	f, ok := r.s.flights[id]
	if !ok {
		return nil, domain.NotFoundf("flight %s not found", id)
	}
	return &f, nil
}

func (r *memFlights) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.FlightState) (*domain.Flight, error) {
	defer r.s.lock(ctx)()

	f, ok := r.s.flights[id]
	if !ok || f.State != from {
		return nil, domain.Conflictf("flight %s is no longer %s", id, from)
	}
	f.State = to
	f.UpdatedAt = r.s.now()
	r.s.flights[id] = f
	return &f, nil
}

func (r *memFlights) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.flights[id]; !ok {
		return domain.NotFoundf("flight %s not found", id)
	}
	delete(r.s.flights, id)
	maps.DeleteFunc(r.s.seats, func(_ uuid.UUID, st domain.Seat) bool { return st.FlightID == id })
	maps.DeleteFunc(r.s.bookings, func(_ uuid.UUID, b domain.Booking) bool { return b.FlightID == id })
	return nil
}

func (r *memFlights) ReserveSeat(ctx context.Context, flightID uuid.UUID) error {
	return r.adjust(ctx, flightID, -1)
}

func (r *memFlights) ReleaseSeat(ctx context.Context, flightID uuid.UUID) error {
	return r.adjust(ctx, flightID, 1)
}

func (r *memFlights) adjust(ctx context.Context, flightID uuid.UUID, delta int) error {
	defer r.s.lock(ctx)()

	f, ok := r.s.flights[flightID]
	if !ok {
		return domain.NotFoundf("flight %s not found", flightID)
	}
	f.AvailableSeats = min(max(f.AvailableSeats+delta, 0), f.Capacity)
	f.UpdatedAt = r.s.now()
	r.s.flights[flightID] = f
	return nil
}

type memSeats struct{ s *MemoryStore }

func (r *memSeats) CountByFlight(ctx context.Context, flightID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	n := 0
	for _, st := range r.s.seats {
		if st.FlightID == flightID {
			n++
		}
	}
	return n, nil
}

func (r *memSeats) InsertMany(ctx context.Context, seats []domain.Seat) (int, error) {
	defer r.s.lock(ctx)()

	taken := make(map[string]bool)
	for _, st := range r.s.seats {
		taken[st.FlightID.String()+"/"+st.Number] = true
	}

	now := r.s.now()
	inserted := 0
	for _, st := range seats {
		key := st.FlightID.String() + "/" + st.Number
		if taken[key] {
			continue
		}
		taken[key] = true
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		st.CreatedAt, st.UpdatedAt = now, now
		r.s.seats[st.ID] = cloneSeat(st)
		inserted++
	}
	return inserted, nil
}

func (r *memSeats) ListByFlight(ctx context.Context, flightID uuid.UUID) ([]domain.Seat, error) {
	defer r.s.lock(ctx)()

	out := make([]domain.Seat, 0)
	for _, st := range r.s.seats {
		if st.FlightID == flightID {
			out = append(out, cloneSeat(st))
		}
	}
	slices.SortFunc(out, func(a, b domain.Seat) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return strings.Compare(a.Column, b.Column)
	})
	return out, nil
}

func (r *memSeats) GetByID(ctx context.Context, id uuid.UUID) (*domain.Seat, error) {
	defer r.s.lock(ctx)()

	st, ok := r.s.seats[id]
	if !ok {
		return nil, domain.NotFoundf("seat %s not found", id)
	}
	st = cloneSeat(st)
	return &st, nil
}

func (r *memSeats) GetMany(ctx context.Context, ids []uuid.UUID) ([]domain.Seat, error) {
	defer r.s.lock(ctx)()

	out := make([]domain.Seat, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.s.seats[id]; ok {
			out = append(out, cloneSeat(st))
		}
	}
	return out, nil
}

func (r *memSeats) Claim(ctx context.Context, c SeatClaim) (bool, *uuid.UUID, error) {
	defer r.s.lock(ctx)()

	st, ok := r.s.seats[c.SeatID]
	if !ok || st.FlightID != c.FlightID || !st.ClaimableBy(c.Holder, c.Now) {
		return false, nil, nil
	}
	displaced := clonePtr(st.BookingID)
	until := c.Until
	holder := c.Holder
	st.State = domain.SeatStateHeld
	st.HoldExpiresAt = &until
	st.HeldBy = &holder
	st.BookingID = clonePtr(c.BookingID)
	st.UpdatedAt = r.s.now()
	r.s.seats[st.ID] = st
	return true, displaced, nil
}

func (r *memSeats) Occupy(ctx context.Context, seatID, bookingID uuid.UUID, now time.Time) (bool, error) {
	defer r.s.lock(ctx)()

	st, ok := r.s.seats[seatID]
	if !ok || st.State != domain.SeatStateHeld || st.BookingID == nil || *st.BookingID != bookingID || st.HoldExpired(now) {
		return false, nil
	}
	st.State = domain.SeatStateOccupied
	st.HoldExpiresAt = nil
	st.UpdatedAt = r.s.now()
	r.s.seats[seatID] = st
	return true, nil
}

func (r *memSeats) ReleaseForBooking(ctx context.Context, seatID, bookingID uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()

	st, ok := r.s.seats[seatID]
	if !ok || st.BookingID == nil || *st.BookingID != bookingID {
		return false, nil
	}
	releaseSeat(&st, r.s.now())
	r.s.seats[seatID] = st
	return true, nil
}

func (r *memSeats) ReleaseHold(ctx context.Context, seatID uuid.UUID, holder *uuid.UUID) (bool, *uuid.UUID, error) {
	defer r.s.lock(ctx)()

	st, ok := r.s.seats[seatID]
	if !ok || st.State != domain.SeatStateHeld {
		return false, nil, nil
	}
	if holder != nil && (st.HeldBy == nil || *st.HeldBy != *holder) {
		return false, nil, nil
	}
	bookingID := st.BookingID
	releaseSeat(&st, r.s.now())
	r.s.seats[seatID] = st
	return true, bookingID, nil
}

func (r *memSeats) ReleaseExpired(ctx context.Context, flightID *uuid.UUID, now time.Time) ([]ReleasedSeat, error) {
	defer r.s.lock(ctx)()

	var released []ReleasedSeat
	for id, st := range r.s.seats {
		if flightID != nil && st.FlightID != *flightID {
			continue
		}
		if !st.HoldExpired(now) {
			continue
		}
		released = append(released, ReleasedSeat{SeatID: id, FlightID: st.FlightID, Number: st.Number, BookingID: st.BookingID})
		releaseSeat(&st, r.s.now())
		r.s.seats[id] = st
	}
	return released, nil
}

type memBookings struct{ s *MemoryStore }

func (r *memBookings) Create(ctx context.Context, b *domain.Booking) error {
	defer r.s.lock(ctx)()

	for _, existing := range r.s.bookings {
		if existing.Code == b.Code {
			return domain.Conflictf("booking code %s already in use", b.Code)
		}
		if existing.SeatID == b.SeatID && existing.Status.Active() && b.Status.Active() {
			return domain.Conflictf("seat %s is not available", b.SeatNumber)
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := r.s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	r.s.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (r *memBookings) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.NotFoundf("booking %s not found", id)
	}
	b = cloneBooking(b)
	return &b, nil
}

func (r *memBookings) ExistsByCode(ctx context.Context, code string) (bool, error) {
	defer r.s.lock(ctx)()

	for _, b := range r.s.bookings {
		if b.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBookings) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	return r.list(ctx, func(b domain.Booking) bool { return b.UserID == userID })
}

func (r *memBookings) List(ctx context.Context, status domain.BookingStatus) ([]domain.Booking, error) {
	return r.list(ctx, func(b domain.Booking) bool { return status == "" || b.Status == status })
}

func (r *memBookings) list(ctx context.Context, keep func(domain.Booking) bool) ([]domain.Booking, error) {
	defer r.s.lock(ctx)()

	out := make([]domain.Booking, 0)
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	slices.SortFunc(out, func(a, b domain.Booking) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *memBookings) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, at time.Time, paymentMethod string) (*domain.Booking, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok || b.Status != from {
		return nil, domain.Conflictf("booking %s is no longer %s", id, from)
	}
	if err := b.Transition(to, at); err != nil {
		return nil, err
	}
	if paymentMethod != "" {
		b.PaymentMethod = paymentMethod
	}
	r.s.bookings[id] = b
	b = cloneBooking(b)
	return &b, nil
}

func (r *memBookings) CancelPending(ctx context.Context, ids []uuid.UUID, at time.Time) ([]domain.Booking, error) {
	defer r.s.lock(ctx)()

	var cancelled []domain.Booking
	for _, id := range ids {
		b, ok := r.s.bookings[id]
		if !ok || b.Status != domain.BookingStatusPending {
			continue
		}
		if err := b.Transition(domain.BookingStatusCancelled, at); err != nil {
			return nil, err
		}
		r.s.bookings[id] = b
		cancelled = append(cancelled, cloneBooking(b))
	}
	return cancelled, nil
}

func (r *memBookings) CancelPendingBySeats(ctx context.Context, seatIDs []uuid.UUID, at time.Time) ([]domain.Booking, error) {
	defer r.s.lock(ctx)()

	var cancelled []domain.Booking
	for id, b := range r.s.bookings {
		if b.Status != domain.BookingStatusPending || !slices.Contains(seatIDs, b.SeatID) {
			continue
		}
		if err := b.Transition(domain.BookingStatusCancelled, at); err != nil {
			return nil, err
		}
		r.s.bookings[id] = b
		cancelled = append(cancelled, cloneBooking(b))
	}
	return cancelled, nil
}

func (r *memBookings) CountActiveByFlight(ctx context.Context, flightID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	n := 0
	for _, b := range r.s.bookings {
		if b.FlightID == flightID && b.Status.Active() {
			n++
		}
	}
	return n, nil
}

var (
	_ Transactor        = (*MemoryStore)(nil)
	_ FlightRepository  = (*memFlights)(nil)
	_ SeatRepository    = (*memSeats)(nil)
	_ BookingRepository = (*memBookings)(nil)
)
