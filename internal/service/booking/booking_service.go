package booking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultHoldTTL            = 15 * time.Minute
	defaultCancellationCutoff = 24 * time.Hour
	defaultCodePrefix         = "BK"
	defaultCodeAttempts       = 10
)

var errHoldLapsed = errors.New("hold lapsed")

type BookingUseCase interface {
	CreateBookings(ctx context.Context, requester domain.Requester, input CreateBookingInput) (*CreateBookingResult, error)
	ConfirmPayment(ctx context.Context, requester domain.Requester, bookingID uuid.UUID, paymentMethod string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, requester domain.Requester, bookingID uuid.UUID) (*domain.Booking, error)
	GetBooking(ctx context.Context, requester domain.Requester, bookingID uuid.UUID) (*domain.Booking, error)
	ListMine(ctx context.Context, requester domain.Requester) ([]domain.Booking, error)
	ListAll(ctx context.Context, requester domain.Requester, status domain.BookingStatus) ([]domain.Booking, error)
}

// Cache is the part of the flight cache that booking changes make stale.
type Cache interface {
	InvalidateFlights(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// CreateBookingInput pairs SeatIDs[i] with Passengers[i].
type CreateBookingInput struct {
	FlightID   uuid.UUID
	SeatIDs    []uuid.UUID
	Passengers []domain.Passenger
}

type CreateBookingResult struct {
	Bookings      []domain.Booking `json:"bookings"`
	TotalCents    int64            `json:"total"`
	HoldExpiresAt time.Time        `json:"hold_expires_at"`
}

type BookingService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	flights  repository.FlightRepository
	seats    repository.SeatRepository

	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string

	codes              *CodeGenerator
	codePrefix         string
	codeAttempts       int
	holdTTL            time.Duration
	cancellationCutoff time.Duration
	extraPieceFee      int64
	now                func() time.Time
	log                logrus.FieldLogger
}

type BookingServiceOption func(*BookingService)

func WithCache(cache Cache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

// WithProducer publishes lifecycle events to bookingTopic.
func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithHoldTTL(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithCancellationCutoff(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d >= 0 {
			s.cancellationCutoff = d
		}
	}
}

func WithCodes(prefix string, attempts int) BookingServiceOption {
	return func(s *BookingService) {
		if prefix != "" {
			s.codePrefix = prefix
		}
		if attempts > 0 {
			s.codeAttempts = attempts
		}
	}
}

func WithExtraPieceFee(cents int64) BookingServiceOption {
	return func(s *BookingService) {
		s.extraPieceFee = cents
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLogger(log logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func NewBookingService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	flights repository.FlightRepository,
	seats repository.SeatRepository,
	opts ...BookingServiceOption,
) *BookingService {
	s := &BookingService{
		tx:                 tx,
		bookings:           bookings,
		flights:            flights,
		seats:              seats,
		codePrefix:         defaultCodePrefix,
		codeAttempts:       defaultCodeAttempts,
		holdTTL:            defaultHoldTTL,
		cancellationCutoff: defaultCancellationCutoff,
		now:                time.Now,
		log:                logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codes = NewCodeGenerator(s.codePrefix, s.codeAttempts, bookings.ExistsByCode)
	return s
}

// CreateBookings holds every requested seat for the requester and records one
// pending booking per seat. Either all seats are claimed or none are.
func (s *BookingService) CreateBookings(ctx context.Context, requester domain.Requester, input CreateBookingInput) (*CreateBookingResult, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	flight, err := s.flights.GetByID(ctx, input.FlightID)
	if err != nil {
		return nil, err
	}
	if err := flight.Bookable(len(input.SeatIDs)); err != nil {
		return nil, err
	}

	found, err := s.seats.GetMany(ctx, input.SeatIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Seat, len(found))
	for _, seat := range found {
		byID[seat.ID] = seat
	}

	now := s.now()
	seats := make([]domain.Seat, 0, len(input.SeatIDs))
	for _, id := range input.SeatIDs {
		seat, ok := byID[id]
		if !ok || seat.FlightID != flight.ID {
			return nil, domain.NotFoundf("seat %s not found on flight %s", id, flight.Code)
		}
		if !seat.ClaimableBy(requester.UserID, now) {
			return nil, domain.Conflictf("seat %s is not available", seat.Number)
		}
		seats = append(seats, seat)
	}

	until := now.Add(s.holdTTL)
	reserved := make(map[string]bool, len(seats))
	bookings := make([]domain.Booking, 0, len(seats))
	var total int64
	for i, seat := range seats {
		code, err := s.codes.Next(ctx, now, reserved)
		if err != nil {
			return nil, err
		}
		reserved[code] = true

		price := flight.SeatPrice(seat.Class)
		total += price
		passenger := input.Passengers[i]
		expires := until
		bookings = append(bookings, domain.Booking{
			ID:              uuid.New(),
			Code:            code,
			UserID:          requester.UserID,
			FlightID:        flight.ID,
			SeatID:          seat.ID,
			SeatNumber:      seat.Number,
			Passenger:       passenger,
			Baggage:         domain.BaggageAllowance(seat.Class, passenger.ExtraBags, s.extraPieceFee),
			TotalPriceCents: price,
			Status:          domain.BookingStatusPending,
			HoldExpiresAt:   &expires,
		})
	}

	var stale []domain.Booking
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		// Every seat passed the claim check, so pending bookings still
		// pointing at them belong to lapsed holds.
		cancelled, err := s.bookings.CancelPendingBySeats(ctx, input.SeatIDs, now)
		if err != nil {
			return err
		}
		stale = cancelled

		for _, i := range lockOrder(bookings) {
			b := &bookings[i]
			if err := s.bookings.Create(ctx, b); err != nil {
				return err
			}
			ok, _, err := s.seats.Claim(ctx, repository.SeatClaim{
				SeatID:    b.SeatID,
				FlightID:  flight.ID,
				Holder:    requester.UserID,
				BookingID: &b.ID,
				Until:     until,
				Now:       now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return domain.Conflictf("seat %s is not available", b.SeatNumber)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range stale {
		s.publish(ctx, kafka.EventBookingExpired, b)
	}
	for _, b := range bookings {
		s.publish(ctx, kafka.EventBookingCreated, b)
		s.log.WithFields(logrus.Fields{
			"booking_code": b.Code,
			"flight_id":    b.FlightID,
			"seat_number":  b.SeatNumber,
		}).Info("booking created")
	}

	return &CreateBookingResult{Bookings: bookings, TotalCents: total, HoldExpiresAt: until}, nil
}

// ConfirmPayment promotes the requester's pending booking to confirmed while
// its hold is still live. A lapsed hold cancels the booking instead.
func (s *BookingService) ConfirmPayment(ctx context.Context, requester domain.Requester, bookingID uuid.UUID, paymentMethod string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(requester) {
		return nil, domain.Forbiddenf("booking %s belongs to another user", current.Code)
	}
	if current.Status != domain.BookingStatusPending {
		return nil, domain.Conflictf("booking %s is %s, only pending bookings can be confirmed", current.Code, current.Status)
	}

	now := s.now()
	var confirmed *domain.Booking
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.seats.Occupy(ctx, current.SeatID, current.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errHoldLapsed
		}
		confirmed, err = s.bookings.UpdateStatus(ctx, current.ID, domain.BookingStatusPending, domain.BookingStatusConfirmed, now, paymentMethod)
		if err != nil {
			return err
		}
		return s.flights.ReserveSeat(ctx, current.FlightID)
	})
	if errors.Is(err, errHoldLapsed) {
		s.expire(ctx, current, now)
		return nil, domain.Conflictf("hold for booking %s expired before payment", current.Code)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.publish(ctx, kafka.EventBookingConfirmed, *confirmed)
	s.log.WithFields(logrus.Fields{"booking_code": confirmed.Code, "seat_number": confirmed.SeatNumber}).Info("booking confirmed")
	return confirmed, nil
}

// CancelBooking cancels a confirmed booking at least the cutoff ahead of the
// flight's stored departure time.
func (s *BookingService) CancelBooking(ctx context.Context, requester domain.Requester, bookingID uuid.UUID) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(requester) && !requester.IsAdmin() {
		return nil, domain.Forbiddenf("booking %s belongs to another user", current.Code)
	}
	if current.Status != domain.BookingStatusConfirmed {
		return nil, domain.Conflictf("booking %s is %s, only confirmed bookings can be cancelled", current.Code, current.Status)
	}

	flight, err := s.flights.GetByID(ctx, current.FlightID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if flight.DepartureAt.Sub(now) < s.cancellationCutoff {
		return nil, domain.Conflictf("booking %s can no longer be cancelled: flight %s departs in less than %s",
			current.Code, flight.Code, formatCutoff(s.cancellationCutoff))
	}

	var cancelled *domain.Booking
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cancelled, err = s.bookings.UpdateStatus(ctx, current.ID, domain.BookingStatusConfirmed, domain.BookingStatusCancelled, now, "")
		if err != nil {
			return err
		}
		if _, err := s.seats.ReleaseForBooking(ctx, current.SeatID, current.ID); err != nil {
			return err
		}
		return s.flights.ReleaseSeat(ctx, current.FlightID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.publish(ctx, kafka.EventBookingCancelled, *cancelled)
	s.log.WithFields(logrus.Fields{"booking_code": cancelled.Code, "seat_number": cancelled.SeatNumber}).Info("booking cancelled")
	return cancelled, nil
}

func (s *BookingService) GetBooking(ctx context.Context, requester domain.Requester, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(requester) && !requester.IsAdmin() {
		return nil, domain.Forbiddenf("booking %s belongs to another user", b.Code)
	}
	return b, nil
}

func (s *BookingService) ListMine(ctx context.Context, requester domain.Requester) ([]domain.Booking, error) {
	return s.bookings.ListByUser(ctx, requester.UserID)
}

func (s *BookingService) ListAll(ctx context.Context, requester domain.Requester, status domain.BookingStatus) ([]domain.Booking, error) {
	if !requester.IsAdmin() {
		return nil, domain.Forbiddenf("listing all bookings requires the admin role")
	}
	if status != "" && !status.Valid() {
		verr := &domain.ValidationError{}
		verr.Add("status", "must be one of pending, confirmed, cancelled, completed")
		return nil, verr
	}
	return s.bookings.List(ctx, status)
}

// CancelOrphaned cancels the still-pending bookings among ids. The sweeper
// calls it after freeing their seats.
func (s *BookingService) CancelOrphaned(ctx context.Context, bookingIDs []uuid.UUID) error {
	cancelled, err := s.bookings.CancelPending(ctx, bookingIDs, s.now())
	if err != nil {
		return err
	}
	for _, b := range cancelled {
		s.publish(ctx, kafka.EventBookingExpired, b)
		s.log.WithFields(logrus.Fields{"booking_code": b.Code, "seat_number": b.SeatNumber}).Info("pending booking expired")
	}
	return nil
}

// expire cancels a pending booking whose hold lapsed and frees its seat if the
// seat is still linked to it.
func (s *BookingService) expire(ctx context.Context, b *domain.Booking, now time.Time) {
	var cancelled []domain.Booking
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		cancelled, err = s.bookings.CancelPending(ctx, []uuid.UUID{b.ID}, now)
		if err != nil {
			return err
		}
		_, err = s.seats.ReleaseForBooking(ctx, b.SeatID, b.ID)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("booking_code", b.Code).Error("failed to expire booking")
		return
	}
	for _, c := range cancelled {
		s.publish(ctx, kafka.EventBookingExpired, c)
	}
}

func (s *BookingService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log.WithError(err).Warn("flight cache invalidation failed")
	}
}

// publish never fails the caller; delivery problems are only logged.
func (s *BookingService) publish(ctx context.Context, eventType string, b domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, b, s.now())
	if err := s.producer.Publish(ctx, s.bookingTopic, b.Code, event); err != nil {
		s.log.WithError(err).WithField("booking_code", b.Code).Warnf("failed to publish %s", eventType)
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, b.Code, event); err != nil {
			s.log.WithError(err).WithField("booking_code", b.Code).Warnf("failed to publish %s notification", eventType)
		}
	}
}

// lockOrder returns the indexes of bookings sorted by seat id. Writing in
// this order keeps overlapping batches from deadlocking on each other's rows.
func lockOrder(bookings []domain.Booking) []int {
	order := make([]int, len(bookings))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return bytes.Compare(bookings[a].SeatID[:], bookings[b].SeatID[:])
	})
	return order
}

func validateCreate(input CreateBookingInput) error {
	verr := &domain.ValidationError{}
	if input.FlightID == uuid.Nil {
		verr.Add("flight_id", "is required")
	}
	if len(input.SeatIDs) == 0 {
		verr.Add("seats", "at least one seat is required")
	}
	if len(input.SeatIDs) != len(input.Passengers) {
		verr.Add("passengers", fmt.Sprintf("expected %d passengers for %d seats, got %d", len(input.SeatIDs), len(input.SeatIDs), len(input.Passengers)))
		return verr
	}

	seen := make(map[uuid.UUID]bool, len(input.SeatIDs))
	for i, id := range input.SeatIDs {
		field := fmt.Sprintf("seats[%d]", i)
		switch {
		case id == uuid.Nil:
			verr.Add(field, "is required")
		case seen[id]:
			verr.Add(field, "duplicate seat")
		}
		seen[id] = true
		input.Passengers[i].Validate(fmt.Sprintf("passengers[%d]", i), verr)
	}
	return verr.OrNil()
}

func formatCutoff(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}

var (
	_ BookingUseCase = (*BookingService)(nil)
	_ Producer       = (*kafka.Producer)(nil)
)
