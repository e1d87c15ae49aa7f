package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type FareClass string

const (
	FareClassEconomy  FareClass = "economy"
	FareClassBusiness FareClass = "business"
)

type SeatState string

const (
	SeatStateAvailable SeatState = "available"
	SeatStateHeld      SeatState = "held"
	SeatStateOccupied  SeatState = "occupied"
)

const (
	SeatsPerRow  = 6
	BusinessRows = 3
	MaxRows      = 50
)

var SeatColumns = [SeatsPerRow]string{"A", "B", "C", "D", "E", "F"}

type Seat struct {
	ID            uuid.UUID  `json:"id"`
	FlightID      uuid.UUID  `json:"flight_id"`
	Number        string     `json:"seat_number"`
	Row           int        `json:"row"`
	Column        string     `json:"column"`
	Class         FareClass  `json:"class"`
	State         SeatState  `json:"state"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	HeldBy        *uuid.UUID `json:"-"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CanTransitionTo encodes available -> held -> occupied, with held and
// occupied both able to fall back to available.
func (s SeatState) CanTransitionTo(next SeatState) bool {
	switch s {
	case SeatStateAvailable:
		return next == SeatStateHeld
	case SeatStateHeld:
		return next == SeatStateOccupied || next == SeatStateAvailable
	case SeatStateOccupied:
		return next == SeatStateAvailable
	}
	return false
}

// HoldExpired reports whether a held seat's hold is at or past its expiry.
func (s *Seat) HoldExpired(now time.Time) bool {
	return s.State == SeatStateHeld && (s.HoldExpiresAt == nil || !s.HoldExpiresAt.After(now))
}

// ClaimableBy reports whether holder may place a booking hold on the seat:
// it is available, its hold lapsed, or holder owns a bare standalone hold.
func (s *Seat) ClaimableBy(holder uuid.UUID, now time.Time) bool {
	switch s.State {
	case SeatStateAvailable:
		return true
	case SeatStateHeld:
		if s.HoldExpired(now) {
			return true
		}
		return s.BookingID == nil && s.HeldBy != nil && *s.HeldBy == holder
	}
	return false
}

func SeatNumber(row int, column string) string {
	return strconv.Itoa(row) + column
}

func ClassForRow(row int) FareClass {
	if row <= BusinessRows {
		return FareClassBusiness
	}
	return FareClassEconomy
}

// SeatLayout builds the full seat grid for a flight: six seats per row,
// rows from 1, the first three rows business, the last row possibly partial.
func SeatLayout(flightID uuid.UUID, capacity int) []Seat {
	if capacity <= 0 {
		return nil
	}
	seats := make([]Seat, 0, capacity)
	for i := 0; i < capacity; i++ {
		row := i/SeatsPerRow + 1
		col := SeatColumns[i%SeatsPerRow]
		seats = append(seats, Seat{
			ID:       uuid.New(),
			FlightID: flightID,
			Number:   SeatNumber(row, col),
			Row:      row,
			Column:   col,
			Class:    ClassForRow(row),
			State:    SeatStateAvailable,
		})
	}
	return seats
}
