package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingExpired   = "booking_expired"
)

type BookingEvent struct {
	Type            string     `json:"type"`
	BookingID       uuid.UUID  `json:"booking_id"`
	Code            string     `json:"code"`
	FlightID        uuid.UUID  `json:"flight_id"`
	SeatNumber      string     `json:"seat_number"`
	PassengerName   string     `json:"passenger_name"`
	Email           string     `json:"email"`
	Status          string     `json:"status"`
	TotalPriceCents int64      `json:"total_price_cents"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// NewBookingEvent snapshots b as an event of the given type.
func NewBookingEvent(eventType string, b domain.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:            eventType,
		BookingID:       b.ID,
		Code:            b.Code,
		FlightID:        b.FlightID,
		SeatNumber:      b.SeatNumber,
		PassengerName:   b.Passenger.FullName,
		Email:           b.Passenger.Email,
		Status:          string(b.Status),
		TotalPriceCents: b.TotalPriceCents,
		ExpiresAt:       b.HoldExpiresAt,
		OccurredAt:      at,
	}
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	log     logrus.FieldLogger
}

func NewProducer(brokers []string, log logrus.FieldLogger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteBackoffMax:        250 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		log:     log,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.log.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("published to kafka")
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and lists its partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	p.log.Infof("connected to kafka, %d partitions visible", len(partitions))
	return nil
}
