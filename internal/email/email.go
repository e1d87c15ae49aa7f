package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/kafka"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/wneessen/go-mail"
)

type mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Sender turns booking events into passenger emails. Without an SMTP host it
// only logs what it would have sent.
type Sender struct {
	client mailer
	from   string
	log    logrus.FieldLogger
}

func NewSender(cfg config.SMTPConfig, log logrus.FieldLogger) (*Sender, error) {
	s := &Sender{from: cfg.From, log: log}
	if cfg.Host == "" {
		return s, nil
	}

	opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize smtp client: %w", err)
	}
	s.client = c
	return s, nil
}

// HandleMessage decodes a raw notifications payload and mails it. Payloads
// that are not booking events, or carry no address, are skipped.
func (s *Sender) HandleMessage(ctx context.Context, value []byte) error {
	if !gjson.ValidBytes(value) {
		s.log.Warn("received invalid json notification, skipping")
		return nil
	}
	eventType := gjson.GetBytes(value, "type").String()
	if subject(eventType, "") == "" {
		s.log.WithField("type", eventType).Debug("ignoring notification")
		return nil
	}
	if gjson.GetBytes(value, "email").String() == "" {
		return nil
	}

	var event kafka.BookingEvent
	if err := json.Unmarshal(value, &event); err != nil {
		s.log.WithError(err).Warn("could not decode booking event")
		return nil
	}
	return s.Send(ctx, event)
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	log := s.log.WithFields(logrus.Fields{"type": event.Type, "booking_code": event.Code, "email": event.Email})
	if s.client == nil {
		log.Info("smtp disabled, notification not sent")
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(event.Email); err != nil {
		log.WithError(err).Warn("invalid recipient, skipping")
		return nil
	}
	msg.Subject(subject(event.Type, event.Code))
	msg.SetBodyString(mail.TypeTextPlain, body(event))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	log.Info("notification sent")
	return nil
}

func subject(eventType, code string) string {
	switch eventType {
	case kafka.EventBookingCreated:
		return "Your booking " + code + " is on hold"
	case kafka.EventBookingConfirmed:
		return "Booking " + code + " confirmed"
	case kafka.EventBookingCancelled:
		return "Booking " + code + " cancelled"
	case kafka.EventBookingExpired:
		return "Booking " + code + " expired"
	}
	return ""
}

func body(e kafka.BookingEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", e.PassengerName)
	switch e.Type {
	case kafka.EventBookingCreated:
		fmt.Fprintf(&b, "Seat %s is held for you under booking %s.", e.SeatNumber, e.Code)
		if e.ExpiresAt != nil {
			fmt.Fprintf(&b, " Complete payment before %s.", e.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
		}
	case kafka.EventBookingConfirmed:
		fmt.Fprintf(&b, "Booking %s for seat %s is confirmed. Total paid: %s.", e.Code, e.SeatNumber, formatCents(e.TotalPriceCents))
	case kafka.EventBookingCancelled:
		fmt.Fprintf(&b, "Booking %s for seat %s was cancelled.", e.Code, e.SeatNumber)
	case kafka.EventBookingExpired:
		fmt.Fprintf(&b, "The hold on seat %s for booking %s expired before payment.", e.SeatNumber, e.Code)
	}
	b.WriteString("\n")
	return b.String()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
