package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/skybooking/api"
	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/bootstrap"
	"github.com/Domenick1991/skybooking/internal/cache"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if !logg.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logg)
	if err != nil {
		logg.WithError(err).Fatal("open store")
	}
	defer store.Close()

	health := map[string]api.HealthCheck{"database": store.Ping}

	var (
		redisCache  *cache.RedisCache
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisCache = cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheTTLDuration())
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logg.WithError(err).Warn("redis unreachable, flight listing cache will miss")
		}
		redisClient = redisCache.Client()
		health["redis"] = redisCache.Ping
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, logg.WithField("component", "kafka"))
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			logg.WithError(err).Warn("kafka unreachable, booking events will be dropped")
		}
	}

	services := bootstrap.NewServices(cfg, store, redisCache, producer, logg)

	router, err := api.NewRouter(api.RouterConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.Issuer,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateLimit:   cfg.HTTP.RateLimit,
		SwaggerFile: cfg.HTTP.SwaggerFile,
		Redis:       redisClient,
		Log:         logg,
		Health:      health,
	}, services.Flights, services.Bookings, services.Seats)
	if err != nil {
		logg.WithError(err).Fatal("build router")
	}

	if err := bootstrap.Run(ctx, cfg.HTTP, router, logg); err != nil {
		logg.WithError(err).Fatal("server error")
	}
}
