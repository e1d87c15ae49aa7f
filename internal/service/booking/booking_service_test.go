package booking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) InvalidateFlights(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *repository.MemoryStore
	clock   *fakeClock
	service *BookingService
	flight  *domain.Flight
	seats   []domain.Seat
}

func newFixture(t *testing.T, capacity int, departsIn time.Duration, opts ...BookingServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore()

	dep := clock.Now().Add(departsIn)
	flight := &domain.Flight{
		Code:           "AV-1234",
		Origin:         domain.Airport{City: "Bogota", Code: "BOG"},
		Destination:    domain.Airport{City: "Cartagena", Code: "CTG"},
		DepartureAt:    dep,
		ArrivalAt:      dep.Add(90 * time.Minute),
		PriceCents:     1000,
		Capacity:       capacity,
		AvailableSeats: capacity,
		State:          domain.FlightStateScheduled,
		RouteType:      domain.RouteDirect,
	}
	require.NoError(t, store.Flights().Create(ctx, flight))
	_, err := store.Seats().InsertMany(ctx, domain.SeatLayout(flight.ID, capacity))
	require.NoError(t, err)
	seats, err := store.Seats().ListByFlight(ctx, flight.ID)
	require.NoError(t, err)

	opts = append([]BookingServiceOption{WithClock(clock.Now)}, opts...)
	service := NewBookingService(store, store.Bookings(), store.Flights(), store.Seats(), opts...)

	return &fixture{store: store, clock: clock, service: service, flight: flight, seats: seats}
}

func (f *fixture) availableSeats(t *testing.T) int {
	t.Helper()
	flight, err := f.store.Flights().GetByID(context.Background(), f.flight.ID)
	require.NoError(t, err)
	return flight.AvailableSeats
}

func (f *fixture) seat(t *testing.T, id uuid.UUID) *domain.Seat {
	t.Helper()
	seat, err := f.store.Seats().GetByID(context.Background(), id)
	require.NoError(t, err)
	return seat
}

func passenger(name string) domain.Passenger {
	return domain.Passenger{
		FullName:       name,
		Email:          "traveller@example.com",
		DocumentType:   domain.DocumentPassport,
		DocumentNumber: "P1234567",
	}
}

func user() domain.Requester {
	return domain.Requester{UserID: uuid.New(), Role: domain.RoleUser}
}

func (f *fixture) book(t *testing.T, who domain.Requester, seats ...domain.Seat) *CreateBookingResult {
	t.Helper()
	input := CreateBookingInput{FlightID: f.flight.ID}
	for _, s := range seats {
		input.SeatIDs = append(input.SeatIDs, s.ID)
		input.Passengers = append(input.Passengers, passenger("Ana Gomez"))
	}
	res, err := f.service.CreateBookings(context.Background(), who, input)
	require.NoError(t, err)
	return res
}

func TestBookingService_CreateBookings_BusinessBatchTotal(t *testing.T) {
	f := newFixture(t, 2, 72*time.Hour)
	who := user()

	res := f.book(t, who, f.seats[0], f.seats[1])

	assert.Equal(t, int64(4000), res.TotalCents)
	require.Len(t, res.Bookings, 2)
	for i, b := range res.Bookings {
		assert.Equal(t, int64(2000), b.TotalPriceCents)
		assert.Equal(t, domain.BookingStatusPending, b.Status)
		assert.Equal(t, 2, b.Baggage.Checked)
		assert.Regexp(t, `^BK-2030-[A-Z0-9]{6}$`, b.Code)
		require.NotNil(t, b.HoldExpiresAt)
		assert.Equal(t, f.clock.Now().Add(15*time.Minute), *b.HoldExpiresAt)

		seat := f.seat(t, f.seats[i].ID)
		assert.Equal(t, domain.SeatStateHeld, seat.State)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, b.ID, *seat.BookingID)
	}
	assert.NotEqual(t, res.Bookings[0].Code, res.Bookings[1].Code)
	assert.Equal(t, 2, f.availableSeats(t), "holding must not touch the counter")
}

func TestBookingService_CreateBookings_Validation(t *testing.T) {
	f := newFixture(t, 6, 72*time.Hour)
	bad := passenger("Ana")
	bad.Email = "not-an-email"

	tests := []struct {
		name  string
		input CreateBookingInput
		field string
	}{
		{name: "empty batch", input: CreateBookingInput{FlightID: f.flight.ID}, field: "seats"},
		{name: "count mismatch", input: CreateBookingInput{FlightID: f.flight.ID, SeatIDs: []uuid.UUID{f.seats[0].ID}, Passengers: nil}, field: "passengers"},
		{name: "duplicate seat", input: CreateBookingInput{
			FlightID:   f.flight.ID,
			SeatIDs:    []uuid.UUID{f.seats[0].ID, f.seats[0].ID},
			Passengers: []domain.Passenger{passenger("A"), passenger("B")},
		}, field: "seats[1]"},
		{name: "bad passenger", input: CreateBookingInput{
			FlightID:   f.flight.ID,
			SeatIDs:    []uuid.UUID{f.seats[0].ID},
			Passengers: []domain.Passenger{bad},
		}, field: "passengers[0].email"},
		{name: "missing flight", input: CreateBookingInput{SeatIDs: []uuid.UUID{f.seats[0].ID}, Passengers: []domain.Passenger{passenger("A")}}, field: "flight_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateBookings(context.Background(), user(), tt.input)
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0)
			for _, fe := range verr.Fields {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	all, _ := f.store.Bookings().List(context.Background(), "")
	assert.Empty(t, all)
}

func TestBookingService_CreateBookings_NotFound(t *testing.T) {
	f := newFixture(t, 6, 72*time.Hour)
	other := newFixture(t, 6, 72*time.Hour)

	_, err := f.service.CreateBookings(context.Background(), user(), CreateBookingInput{
		FlightID:   uuid.New(),
		SeatIDs:    []uuid.UUID{f.seats[0].ID},
		Passengers: []domain.Passenger{passenger("A")},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.CreateBookings(context.Background(), user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{other.seats[0].ID},
		Passengers: []domain.Passenger{passenger("A")},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_CreateBookings_AllOrNothing(t *testing.T) {
	f := newFixture(t, 12, 72*time.Hour)
	f.book(t, user(), f.seats[1])

	_, err := f.service.CreateBookings(context.Background(), user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{f.seats[0].ID, f.seats[1].ID},
		Passengers: []domain.Passenger{passenger("A"), passenger("B")},
	})

	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), f.seats[1].Number)
	assert.Equal(t, domain.SeatStateAvailable, f.seat(t, f.seats[0].ID).State)

	all, _ := f.store.Bookings().List(context.Background(), "")
	assert.Len(t, all, 1)
}

func TestBookingService_CreateBookings_FlightNotBookable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, 72*time.Hour)
	require.NoError(t, f.store.Flights().ReserveSeat(ctx, f.flight.ID))
	for i := 0; i < 4; i++ {
		require.NoError(t, f.store.Flights().ReserveSeat(ctx, f.flight.ID))
	}

	_, err := f.service.CreateBookings(ctx, user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{f.seats[0].ID, f.seats[1].ID},
		Passengers: []domain.Passenger{passenger("A"), passenger("B")},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.store.Flights().UpdateState(ctx, f.flight.ID, domain.FlightStateScheduled, domain.FlightStateCancelled)
	require.NoError(t, err)
	_, err = f.service.CreateBookings(ctx, user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{f.seats[0].ID},
		Passengers: []domain.Passenger{passenger("A")},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestBookingService_CreateBookings_ConcurrentSameSeat(t *testing.T) {
	f := newFixture(t, 6, 72*time.Hour)
	target := f.seats[0]

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CreateBookings(context.Background(), user(), CreateBookingInput{
				FlightID:   f.flight.ID,
				SeatIDs:    []uuid.UUID{target.ID},
				Passengers: []domain.Passenger{passenger("Racer")},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			conflicts = append(conflicts, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, conflicts, callers-1)
	for _, err := range conflicts {
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Contains(t, err.Error(), target.Number)
	}

	active, _ := f.store.Bookings().CountActiveByFlight(context.Background(), f.flight.ID)
	assert.Equal(t, 1, active)
}

type recordingSeats struct {
	repository.SeatRepository
	mu      sync.Mutex
	claimed []uuid.UUID
}

func (r *recordingSeats) Claim(ctx context.Context, c repository.SeatClaim) (bool, *uuid.UUID, error) {
	r.mu.Lock()
	r.claimed = append(r.claimed, c.SeatID)
	r.mu.Unlock()
	return r.SeatRepository.Claim(ctx, c)
}

func TestBookingService_CreateBookings_ClaimsInSeatOrder(t *testing.T) {
	f := newFixture(t, 12, 72*time.Hour)
	seats := &recordingSeats{SeatRepository: f.store.Seats()}
	service := NewBookingService(f.store, f.store.Bookings(), f.store.Flights(), seats, WithClock(f.clock.Now))

	picked := []domain.Seat{f.seats[9], f.seats[2], f.seats[7], f.seats[4]}
	input := CreateBookingInput{FlightID: f.flight.ID}
	for i, seat := range picked {
		input.SeatIDs = append(input.SeatIDs, seat.ID)
		input.Passengers = append(input.Passengers, passenger(fmt.Sprintf("Traveller %d", i)))
	}

	res, err := service.CreateBookings(context.Background(), user(), input)
	require.NoError(t, err)

	require.Len(t, seats.claimed, len(picked))
	assert.True(t, slices.IsSortedFunc(seats.claimed, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	}))

	require.Len(t, res.Bookings, len(picked))
	for i, b := range res.Bookings {
		assert.Equal(t, picked[i].ID, b.SeatID)
		assert.Equal(t, fmt.Sprintf("Traveller %d", i), b.Passenger.FullName)
	}
}

func TestBookingService_CreateBookings_OverlappingBatchesOppositeOrder(t *testing.T) {
	f := newFixture(t, 12, 72*time.Hour)
	a, b := f.seats[6], f.seats[7]

	orders := [][]domain.Seat{{a, b}, {b, a}}
	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, order := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := CreateBookingInput{FlightID: f.flight.ID}
			for _, seat := range order {
				input.SeatIDs = append(input.SeatIDs, seat.ID)
				input.Passengers = append(input.Passengers, passenger("Racer"))
			}
			_, errs[i] = f.service.CreateBookings(context.Background(), user(), input)
		}()
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], domain.ErrConflict)
	msg := failed[0].Error()
	assert.True(t, strings.Contains(msg, a.Number) || strings.Contains(msg, b.Number), msg)

	active, _ := f.store.Bookings().CountActiveByFlight(context.Background(), f.flight.ID)
	assert.Equal(t, 2, active)
}

func TestBookingService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := &MockCache{}
	cache.On("InvalidateFlights", mock.Anything).Return(nil)
	f := newFixture(t, 30, 72*time.Hour, WithCache(cache))
	who := user()
	before := f.availableSeats(t)

	res := f.book(t, who, f.seats[20])
	booking := res.Bookings[0]
	assert.Equal(t, int64(1000), res.TotalCents, "economy seat at base fare")

	confirmed, err := f.service.ConfirmPayment(ctx, who, booking.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, "card", confirmed.PaymentMethod)
	assert.Nil(t, confirmed.HoldExpiresAt)
	assert.Equal(t, before-1, f.availableSeats(t))

	seat := f.seat(t, f.seats[20].ID)
	assert.Equal(t, domain.SeatStateOccupied, seat.State)
	assert.Nil(t, seat.HoldExpiresAt)

	_, err = f.service.ConfirmPayment(ctx, who, booking.ID, "card")
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "confirmed")

	cancelled, err := f.service.CancelBooking(ctx, who, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, before, f.availableSeats(t))

	seat = f.seat(t, f.seats[20].ID)
	assert.Equal(t, domain.SeatStateAvailable, seat.State)
	assert.Nil(t, seat.BookingID)

	_, err = f.service.CancelBooking(ctx, who, booking.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	cache.AssertNumberOfCalls(t, "InvalidateFlights", 2)
}

func TestBookingService_CancelBooking_CutoffBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		departsIn time.Duration
		wantErr   bool
	}{
		{name: "one second inside cutoff", departsIn: 24*time.Hour - time.Second, wantErr: true},
		{name: "exactly at cutoff", departsIn: 24 * time.Hour},
		{name: "well before cutoff", departsIn: 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 6, tt.departsIn)
			who := user()
			b := f.book(t, who, f.seats[0]).Bookings[0]
			_, err := f.service.ConfirmPayment(ctx, who, b.ID, "")
			require.NoError(t, err)

			_, err = f.service.CancelBooking(ctx, who, b.ID)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrConflict)
				assert.Contains(t, err.Error(), "less than 24h")
				assert.Equal(t, 5, f.availableSeats(t))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 6, f.availableSeats(t))
		})
	}
}

func TestBookingService_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, 72*time.Hour)
	owner, stranger := user(), user()
	admin := domain.Requester{UserID: uuid.New(), Role: domain.RoleAdmin}
	b := f.book(t, owner, f.seats[0]).Bookings[0]

	_, err := f.service.ConfirmPayment(ctx, stranger, b.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.GetBooking(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.service.GetBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Code, got.Code)

	_, err = f.service.ListAll(ctx, owner, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := f.service.ListAll(ctx, admin, domain.BookingStatusPending)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.service.ListAll(ctx, admin, "archived")
	assert.ErrorIs(t, err, domain.ErrValidation)

	mine, err := f.service.ListMine(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.service.ConfirmPayment(ctx, owner, b.ID, "")
	require.NoError(t, err)
	_, err = f.service.CancelBooking(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.service.CancelBooking(ctx, admin, b.ID)
	assert.NoError(t, err)

	_, err = f.service.GetBooking(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_ConfirmAfterHoldLapsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, 72*time.Hour)
	who := user()
	b := f.book(t, who, f.seats[0]).Bookings[0]

	f.clock.Advance(15 * time.Minute)

	_, err := f.service.ConfirmPayment(ctx, who, b.ID, "card")
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "expired")

	stored, err := f.store.Bookings().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Equal(t, domain.SeatStateAvailable, f.seat(t, f.seats[0].ID).State)
	assert.Equal(t, 6, f.availableSeats(t))
}

func TestBookingService_RebookAfterHoldExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, 72*time.Hour)
	first, second := user(), user()

	original := f.book(t, first, f.seats[0]).Bookings[0]

	f.clock.Advance(16 * time.Minute)

	fresh := f.book(t, second, f.seats[0]).Bookings[0]
	seat := f.seat(t, f.seats[0].ID)
	require.NotNil(t, seat.BookingID)
	assert.Equal(t, fresh.ID, *seat.BookingID)

	stale, err := f.store.Bookings().GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stale.Status)

	_, err = f.service.ConfirmPayment(ctx, first, original.ID, "card")
	assert.ErrorIs(t, err, domain.ErrConflict)

	confirmed, err := f.service.ConfirmPayment(ctx, second, fresh.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
}

func TestBookingService_ClaimsOwnStandaloneHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, 72*time.Hour)
	who := user()
	now := f.clock.Now()

	ok, _, err := f.store.Seats().Claim(ctx, repository.SeatClaim{SeatID: f.seats[0].ID, FlightID: f.flight.ID, Holder: who.UserID, Until: now.Add(10 * time.Minute), Now: now})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.service.CreateBookings(ctx, user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{f.seats[0].ID},
		Passengers: []domain.Passenger{passenger("Other")},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	res := f.book(t, who, f.seats[0])
	assert.Len(t, res.Bookings, 1)
}

func TestBookingService_CancelOrphaned(t *testing.T) {
	ctx := context.Background()
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, "booking-events", mock.Anything, mock.Anything).Return(nil)
	f := newFixture(t, 6, 72*time.Hour, WithProducer(producer, "booking-events"))
	b := f.book(t, user(), f.seats[0]).Bookings[0]

	require.NoError(t, f.service.CancelOrphaned(ctx, []uuid.UUID{b.ID, uuid.New()}))

	stored, _ := f.store.Bookings().GetByID(ctx, b.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	producer.AssertCalled(t, "Publish", mock.Anything, "booking-events", b.Code, mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingExpired && e.Code == b.Code
	}))
}

func TestBookingService_PublishFailureDoesNotFailRequest(t *testing.T) {
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f := newFixture(t, 6, 72*time.Hour, WithProducer(producer, "booking-events"), WithNotificationsTopic("notifications"))

	res := f.book(t, user(), f.seats[0])

	assert.Len(t, res.Bookings, 1)
	producer.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBookingService_PublishesToBothTopics(t *testing.T) {
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, "booking-events", mock.Anything, mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()
	producer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()
	f := newFixture(t, 6, 72*time.Hour, WithProducer(producer, "booking-events"), WithNotificationsTopic("notifications"))

	f.book(t, user(), f.seats[3])

	producer.AssertExpectations(t)
}

func TestBookingService_ExtraBaggageDoesNotChangePrice(t *testing.T) {
	f := newFixture(t, 30, 72*time.Hour, WithExtraPieceFee(2500))
	p := passenger("Ana")
	p.ExtraBags = 2

	res, err := f.service.CreateBookings(context.Background(), user(), CreateBookingInput{
		FlightID:   f.flight.ID,
		SeatIDs:    []uuid.UUID{f.seats[20].ID},
		Passengers: []domain.Passenger{p},
	})
	require.NoError(t, err)

	b := res.Bookings[0]
	assert.Equal(t, int64(1000), b.TotalPriceCents)
	assert.Equal(t, domain.Baggage{CarryOn: 1, Checked: 1, ExtraPieces: 2, ExtraFeeCents: 5000}, b.Baggage)
}
