package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Sweeper releases lapsed seat holds across all flights when given nil.
type Sweeper interface {
	Sweep(ctx context.Context, flightID *uuid.UUID) (int, error)
}

// StartSweeper schedules a global expiry sweep every interval, starting
// immediately. Runs never overlap. The caller shuts the scheduler down.
func StartSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration, log logrus.FieldLogger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			released, err := sweeper.Sweep(ctx, nil)
			if err != nil {
				log.WithError(err).Error("expiry sweep failed")
				return
			}
			if released > 0 {
				log.WithField("released", released).Info("expiry sweep released seats")
			}
		}),
		gocron.WithName("expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}

	s.Start()
	log.WithField("interval", interval.String()).Info("expiry sweeper started")
	return s, nil
}

// MessageHandler processes one raw message value.
type MessageHandler func(ctx context.Context, value []byte) error

// Consume feeds every message to handle until ctx is cancelled. Handler
// failures are logged and the message is skipped.
func Consume(ctx context.Context, consume func(context.Context, func(context.Context, kafka.Message) error) error, handle MessageHandler, log logrus.FieldLogger) error {
	return consume(ctx, func(ctx context.Context, msg kafka.Message) error {
		if err := handle(ctx, msg.Value); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"topic":  msg.Topic,
				"offset": msg.Offset,
				"key":    string(msg.Key),
			}).Error("failed to handle message")
		}
		return nil
	})
}
