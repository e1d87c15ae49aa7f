package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	flightsKey = "skybooking:flights:list"

	// listingVersion is bumped whenever domain.Flight changes shape so old
	// entries read as misses.
	listingVersion = 2
)

type flightListing struct {
	Version  int             `json:"v"`
	CachedAt time.Time       `json:"cached_at"`
	Flights  []domain.Flight `json:"flights"`
}

// RedisCache keeps the public flight listing. Any booking or admin change
// that moves a counter or state drops the entry.
type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL,
	)
}

func NewRedisCacheWithClient(client *redis.Client, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

// Client exposes the underlying connection for other redis consumers such as
// the rate limiter store.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetFlights returns the cached unfiltered listing, or nil on a miss.
// Entries that fail to decode or carry another version are dropped.
func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get flight listing: %w", err)
	}

	var listing flightListing
	if err := json.Unmarshal(data, &listing); err != nil || listing.Version != listingVersion {
		if delErr := c.client.Del(ctx, flightsKey).Err(); delErr != nil {
			return nil, fmt.Errorf("drop stale flight listing: %w", delErr)
		}
		return nil, nil
	}
	if listing.Flights == nil {
		listing.Flights = []domain.Flight{}
	}
	return listing.Flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flightListing{
		Version:  listingVersion,
		CachedAt: time.Now().UTC(),
		Flights:  flights,
	})
	if err != nil {
		return fmt.Errorf("encode flight listing: %w", err)
	}
	if err := c.client.Set(ctx, flightsKey, payload, c.flightsTTL).Err(); err != nil {
		return fmt.Errorf("set flight listing: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateFlights(ctx context.Context) error {
	if err := c.client.Del(ctx, flightsKey).Err(); err != nil {
		return fmt.Errorf("invalidate flight listing: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
