package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFlight(t *testing.T, store *MemoryStore, capacity int) *domain.Flight {
	t.Helper()
	dep := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &domain.Flight{
		Code:           "AV-" + uuid.NewString()[:4],
		Origin:         domain.Airport{City: "Bogota", Code: "BOG"},
		Destination:    domain.Airport{City: "Medellin", Code: "MDE"},
		DepartureAt:    dep,
		ArrivalAt:      dep.Add(time.Hour),
		PriceCents:     1000,
		Capacity:       capacity,
		AvailableSeats: capacity,
		State:          domain.FlightStateScheduled,
		RouteType:      domain.RouteDirect,
	}
	require.NoError(t, store.Flights().Create(context.Background(), f))
	return f
}

func TestMemoryFlights(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 2)

	dup := *f
	dup.ID = uuid.Nil
	assert.ErrorIs(t, store.Flights().Create(ctx, &dup), domain.ErrConflict)

	require.NoError(t, store.Flights().ReleaseSeat(ctx, f.ID))
	got, err := store.Flights().GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSeats)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Flights().ReserveSeat(ctx, f.ID))
	}
	got, _ = store.Flights().GetByID(ctx, f.ID)
	assert.Equal(t, 0, got.AvailableSeats)

	_, err = store.Flights().UpdateState(ctx, f.ID, domain.FlightStateInFlight, domain.FlightStateCompleted)
	assert.ErrorIs(t, err, domain.ErrConflict)

	list, err := store.Flights().List(ctx, domain.FlightFilter{Origin: "bog"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = store.Flights().List(ctx, domain.FlightFilter{Destination: "CTG"})
	require.NoError(t, err)
	assert.Empty(t, list)

	day := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	list, _ = store.Flights().List(ctx, domain.FlightFilter{Date: &day})
	assert.Len(t, list, 1)

	_, err = store.Flights().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemorySeatsInsertManyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 8)

	n, err := store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))
	require.NoError(t, err)
	assert.Zero(t, n)

	count, _ := store.Seats().CountByFlight(ctx, f.ID)
	assert.Equal(t, 8, count)

	seats, err := store.Seats().ListByFlight(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "1A", seats[0].Number)
	assert.Equal(t, "2B", seats[7].Number)
}

func TestMemorySeatClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 6)
	_, err := store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))
	require.NoError(t, err)
	seats, _ := store.Seats().ListByFlight(ctx, f.ID)
	seat := seats[0]

	now := time.Now()
	alice, bob := uuid.New(), uuid.New()
	booking := uuid.New()

	ok, _, err := store.Seats().Claim(ctx, SeatClaim{SeatID: seat.ID, FlightID: f.ID, Holder: alice, BookingID: &booking, Until: now.Add(time.Minute), Now: now})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, _ = store.Seats().Claim(ctx, SeatClaim{SeatID: seat.ID, FlightID: f.ID, Holder: bob, Until: now.Add(time.Minute), Now: now})
	assert.False(t, ok, "live hold must not be claimable by another holder")

	ok, _ = store.Seats().Occupy(ctx, seat.ID, uuid.New(), now)
	assert.False(t, ok, "only the linked booking may occupy")

	ok, _ = store.Seats().Occupy(ctx, seat.ID, booking, now.Add(2*time.Minute))
	assert.False(t, ok, "lapsed hold must not be occupied")

	ok, err = store.Seats().Occupy(ctx, seat.ID, booking, now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := store.Seats().GetByID(ctx, seat.ID)
	assert.Equal(t, domain.SeatStateOccupied, got.State)
	assert.Nil(t, got.HoldExpiresAt)

	ok, _ = store.Seats().ReleaseForBooking(ctx, seat.ID, booking)
	assert.True(t, ok)
	got, _ = store.Seats().GetByID(ctx, seat.ID)
	assert.Equal(t, domain.SeatStateAvailable, got.State)
	assert.Nil(t, got.BookingID)
}

func TestMemoryClaimReportsDisplacedBooking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 6)
	_, err := store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))
	require.NoError(t, err)
	seats, _ := store.Seats().ListByFlight(ctx, f.ID)

	now := time.Now()
	owner, other := uuid.New(), uuid.New()
	booking := uuid.New()

	ok, displaced, err := store.Seats().Claim(ctx, SeatClaim{SeatID: seats[0].ID, FlightID: f.ID, Holder: owner, BookingID: &booking, Until: now.Add(15 * time.Minute), Now: now})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, displaced)

	later := now.Add(16 * time.Minute)
	ok, displaced, err = store.Seats().Claim(ctx, SeatClaim{SeatID: seats[0].ID, FlightID: f.ID, Holder: other, Until: later.Add(10 * time.Minute), Now: later})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, displaced)
	assert.Equal(t, booking, *displaced)

	got, _ := store.Seats().GetByID(ctx, seats[0].ID)
	assert.Nil(t, got.BookingID)
	assert.Equal(t, other, *got.HeldBy)
}

func TestMemoryReleaseExpiredAndHold(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 6)
	_, _ = store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))
	seats, _ := store.Seats().ListByFlight(ctx, f.ID)

	now := time.Now()
	holder := uuid.New()
	booking := uuid.New()
	_, _, _ = store.Seats().Claim(ctx, SeatClaim{SeatID: seats[0].ID, FlightID: f.ID, Holder: holder, BookingID: &booking, Until: now.Add(-time.Second), Now: now.Add(-time.Minute)})
	_, _, _ = store.Seats().Claim(ctx, SeatClaim{SeatID: seats[1].ID, FlightID: f.ID, Holder: holder, Until: now.Add(time.Minute), Now: now})

	released, err := store.Seats().ReleaseExpired(ctx, &f.ID, now)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, seats[0].ID, released[0].SeatID)
	require.NotNil(t, released[0].BookingID)
	assert.Equal(t, booking, *released[0].BookingID)

	stranger := uuid.New()
	ok, _, err := store.Seats().ReleaseHold(ctx, seats[1].ID, &stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, linked, err := store.Seats().ReleaseHold(ctx, seats[1].ID, &holder)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, linked)
}

func TestMemoryBookings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := uuid.New()
	seatID := uuid.New()
	flightID := uuid.New()

	b := &domain.Booking{Code: "BK-2030-AAAAAA", UserID: user, FlightID: flightID, SeatID: seatID, SeatNumber: "1A", Status: domain.BookingStatusPending}
	require.NoError(t, store.Bookings().Create(ctx, b))

	again := &domain.Booking{Code: "BK-2030-BBBBBB", UserID: user, FlightID: flightID, SeatID: seatID, SeatNumber: "1A", Status: domain.BookingStatusPending}
	assert.ErrorIs(t, store.Bookings().Create(ctx, again), domain.ErrConflict)

	exists, _ := store.Bookings().ExistsByCode(ctx, "BK-2030-AAAAAA")
	assert.True(t, exists)

	n, _ := store.Bookings().CountActiveByFlight(ctx, flightID)
	assert.Equal(t, 1, n)

	at := time.Now()
	updated, err := store.Bookings().UpdateStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusConfirmed, at, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, updated.Status)
	assert.Equal(t, "card", updated.PaymentMethod)
	require.NotNil(t, updated.ConfirmedAt)

	_, err = store.Bookings().UpdateStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusCancelled, at, "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	cancelled, err := store.Bookings().CancelPending(ctx, []uuid.UUID{b.ID}, at)
	require.NoError(t, err)
	assert.Empty(t, cancelled)

	mine, _ := store.Bookings().ListByUser(ctx, user)
	assert.Len(t, mine, 1)
	confirmed, _ := store.Bookings().List(ctx, domain.BookingStatusConfirmed)
	assert.Len(t, confirmed, 1)
	pending, _ := store.Bookings().List(ctx, domain.BookingStatusPending)
	assert.Empty(t, pending)
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 2)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Flights().ReserveSeat(ctx, f.ID))
		return store.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, store.Flights().ReserveSeat(ctx, f.ID))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	got, _ := store.Flights().GetByID(ctx, f.ID)
	assert.Equal(t, 2, got.AvailableSeats)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context) error {
		return store.Flights().ReserveSeat(ctx, f.ID)
	}))
	got, _ = store.Flights().GetByID(ctx, f.ID)
	assert.Equal(t, 1, got.AvailableSeats)
}

func TestMemoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := seedFlight(t, store, 6)
	_, _ = store.Seats().InsertMany(ctx, domain.SeatLayout(f.ID, f.Capacity))

	require.NoError(t, store.Flights().Delete(ctx, f.ID))
	n, _ := store.Seats().CountByFlight(ctx, f.ID)
	assert.Zero(t, n)
	assert.ErrorIs(t, store.Flights().Delete(ctx, f.ID), domain.ErrNotFound)
}
