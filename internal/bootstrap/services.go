package bootstrap

import (
	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/cache"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/Domenick1991/skybooking/internal/service/flights"
	"github.com/Domenick1991/skybooking/internal/service/seats"
	"github.com/sirupsen/logrus"
)

type Services struct {
	Flights  *flights.FlightService
	Bookings *booking.BookingService
	Seats    *seats.SeatService
}

// NewServices wires the use cases over store. redisCache and producer are
// optional.
func NewServices(cfg *config.Config, store *Store, redisCache *cache.RedisCache, producer *kafka.Producer, log logrus.FieldLogger) *Services {
	var flightCache flights.FlightCache
	bookingOpts := []booking.BookingServiceOption{
		booking.WithHoldTTL(cfg.Booking.HoldTTL()),
		booking.WithCancellationCutoff(cfg.Booking.CancellationCutoff()),
		booking.WithCodes(cfg.Booking.CodePrefix, cfg.Booking.CodeMaxAttempts),
		booking.WithExtraPieceFee(cfg.Booking.ExtraPieceFeeCents),
		booking.WithLogger(log.WithField("service", "booking")),
	}
	if redisCache != nil {
		flightCache = redisCache
		bookingOpts = append(bookingOpts, booking.WithCache(redisCache))
	}
	if producer != nil {
		bookingOpts = append(bookingOpts,
			booking.WithProducer(producer, cfg.Kafka.BookingTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
	}

	flightSvc := flights.NewFlightService(store.Flights, store.Bookings, flightCache,
		flights.WithLogger(log.WithField("service", "flights")))
	bookingSvc := booking.NewBookingService(store.Tx, store.Bookings, store.Flights, store.Seats, bookingOpts...)
	seatSvc := seats.NewSeatService(store.Seats, store.Flights,
		seats.WithHoldTTL(cfg.Booking.StandaloneHoldTTL()),
		seats.WithOrphanHandler(bookingSvc, cfg.Booking.CancelsOrphans()),
		seats.WithLogger(log.WithField("service", "seats")),
	)

	return &Services{Flights: flightSvc, Bookings: bookingSvc, Seats: seatSvc}
}
