package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Consumer reads one booking topic as a member of the configured group.
// Offsets are committed only after the handler returns.
type Consumer struct {
	reader *kafka.Reader
	log    logrus.FieldLogger
}

func NewConsumer(cfg config.KafkaConfig, topic string, log logrus.FieldLogger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           cfg.Brokers,
			GroupID:           cfg.GroupID,
			Topic:             topic,
			MinBytes:          1,
			MaxBytes:          1 << 20,
			MaxWait:           500 * time.Millisecond,
			StartOffset:       kafka.FirstOffset,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		log: log.WithField("topic", topic),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume fetches until ctx is cancelled or handler fails. Handlers that want
// to skip a bad message return nil; its offset is still committed.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
		c.log.WithFields(logrus.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Debug("message committed")
	}
}
