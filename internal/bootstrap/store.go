package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Store bundles the repositories of one backing database.
type Store struct {
	Tx       repository.Transactor
	Flights  repository.FlightRepository
	Seats    repository.SeatRepository
	Bookings repository.BookingRepository

	ping  func(ctx context.Context) error
	close func()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) Close() {
	s.close()
}

// OpenStore connects to PostgreSQL, or builds a process-local store when the
// driver is "memory".
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*Store, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		mem := repository.NewMemoryStore()
		return &Store{
			Tx:       mem,
			Flights:  mem.Flights(),
			Seats:    mem.Seats(),
			Bookings: mem.Bookings(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.WithFields(logrus.Fields{"host": cfg.Host, "database": cfg.Name}).Info("connected to postgres")

	return &Store{
		Tx:       repository.NewTransactor(pool),
		Flights:  repository.NewFlightRepository(pool),
		Seats:    repository.NewSeatRepository(pool),
		Bookings: repository.NewBookingRepository(pool),
		ping:     pool.Ping,
		close:    pool.Close,
	}, nil
}
