package flights

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type FlightUseCase interface {
	List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error)
	UpdateState(ctx context.Context, id uuid.UUID, next domain.FlightState) (*domain.Flight, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FlightCache stores the unfiltered flight listing.
type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
	InvalidateFlights(ctx context.Context) error
}

type CreateFlightInput struct {
	Code        string
	Origin      domain.Airport
	Destination domain.Airport
	DepartureAt time.Time
	ArrivalAt   time.Time
	PriceCents  int64
	Capacity    int
	RouteType   domain.RouteType
}

type FlightService struct {
	repo     repository.FlightRepository
	bookings repository.BookingRepository
	cache    FlightCache
	log      logrus.FieldLogger
}

type FlightServiceOption func(*FlightService)

func WithLogger(log logrus.FieldLogger) FlightServiceOption {
	return func(s *FlightService) {
		s.log = log
	}
}

// NewFlightService builds the service. cache may be nil to disable caching.
func NewFlightService(repo repository.FlightRepository, bookings repository.BookingRepository, cache FlightCache, opts ...FlightServiceOption) *FlightService {
	s := &FlightService{repo: repo, bookings: bookings, cache: cache, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FlightService) List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error) {
	cacheable := s.cache != nil && filter.IsEmpty()
	if cacheable {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.WithError(err).Warn("flight cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.WithError(err).Warn("flight cache write failed")
		}
	}
	return flights, nil
}

func (s *FlightService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *FlightService) Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error) {
	routeType := input.RouteType
	if routeType == "" {
		routeType = domain.RouteDirect
	}
	origin, destination := input.Origin, input.Destination
	origin.Code = strings.ToUpper(origin.Code)
	destination.Code = strings.ToUpper(destination.Code)

	flight := &domain.Flight{
		Code:           strings.ToUpper(strings.TrimSpace(input.Code)),
		Origin:         origin,
		Destination:    destination,
		DepartureAt:    input.DepartureAt,
		ArrivalAt:      input.ArrivalAt,
		Duration:       domain.FormatDuration(input.DepartureAt, input.ArrivalAt),
		PriceCents:     input.PriceCents,
		Capacity:       input.Capacity,
		AvailableSeats: input.Capacity,
		State:          domain.FlightStateScheduled,
		RouteType:      routeType,
	}
	if err := flight.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, flight); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"flight_id": flight.ID, "code": flight.Code}).Info("flight created")
	return flight, nil
}

func (s *FlightService) UpdateState(ctx context.Context, id uuid.UUID, next domain.FlightState) (*domain.Flight, error) {
	if !next.Valid() {
		verr := &domain.ValidationError{}
		verr.Add("state", "must be one of scheduled, in_flight, completed, cancelled")
		return nil, verr
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.State.CanTransitionTo(next) {
		return nil, domain.Conflictf("flight %s is %s and cannot become %s", current.Code, current.State, next)
	}

	updated, err := s.repo.UpdateState(ctx, id, current.State, next)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"flight_id": id, "from": current.State, "to": next}).Info("flight state changed")
	return updated, nil
}

// Delete removes a flight and its seats. Flights still referenced by a
// pending or confirmed booking are kept.
func (s *FlightService) Delete(ctx context.Context, id uuid.UUID) error {
	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	active, err := s.bookings.CountActiveByFlight(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.Conflictf("flight %s has %d active bookings and cannot be deleted", flight.Code, active)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"flight_id": id, "code": flight.Code}).Info("flight deleted")
	return nil
}

func (s *FlightService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log.WithError(err).Warn("flight cache invalidation failed")
	}
}

var _ FlightUseCase = (*FlightService)(nil)
