package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/bootstrap"
	"github.com/Domenick1991/skybooking/internal/cache"
	"github.com/Domenick1991/skybooking/internal/email"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/Domenick1991/skybooking/internal/logger"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logg)
	if err != nil {
		logg.WithError(err).Fatal("open store")
	}
	defer store.Close()

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled() {
		redisCache = cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheTTLDuration())
		defer redisCache.Close()
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, logg.WithField("component", "kafka"))
		defer producer.Close()
	}

	services := bootstrap.NewServices(cfg, store, redisCache, producer, logg)

	scheduler, err := bootstrap.StartSweeper(ctx, services.Seats, time.Duration(cfg.Worker.ExpirationSweepMinutes)*time.Minute, logg)
	if err != nil {
		logg.WithError(err).Fatal("start expiry sweeper")
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logg.WithError(err).Warn("scheduler shutdown")
		}
	}()

	if cfg.Kafka.Enabled() {
		sender, err := email.NewSender(cfg.SMTP, logg.WithField("component", "email"))
		if err != nil {
			logg.WithError(err).Fatal("init email sender")
		}

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.NotificationsTopic, logg.WithField("component", "kafka"))
		defer consumer.Close()

		go func() {
			if err := bootstrap.Consume(ctx, consumer.Consume, sender.HandleMessage, logg); err != nil {
				logg.WithError(err).Error("notification consumer stopped")
				stop()
			}
		}()
		logg.WithField("topic", cfg.Kafka.NotificationsTopic).Info("notification consumer started")
	} else {
		logg.Warn("kafka disabled, booking notifications will not be sent")
	}

	<-ctx.Done()
	logg.Info("worker shutting down")
}
