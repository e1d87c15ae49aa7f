package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo allows pending -> confirmed|cancelled and confirmed -> cancelled.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCancelled
	}
	return false
}

// Active bookings still hold a claim on their seat.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type DocumentType string

const (
	DocumentNationalID DocumentType = "national_id"
	DocumentPassport   DocumentType = "passport"
)

type Passenger struct {
	FullName       string       `json:"full_name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone,omitempty"`
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	ExtraBags      int          `json:"extra_bags,omitempty"`
}

// Validate reports problems under the given field prefix, e.g. "passengers[1]".
func (p Passenger) Validate(prefix string, verr *ValidationError) {
	if strings.TrimSpace(p.FullName) == "" {
		verr.Add(prefix+".full_name", "is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		verr.Add(prefix+".email", "must be a valid email address")
	}
	if p.DocumentType != DocumentNationalID && p.DocumentType != DocumentPassport {
		verr.Add(prefix+".document_type", "must be national_id or passport")
	}
	if strings.TrimSpace(p.DocumentNumber) == "" {
		verr.Add(prefix+".document_number", "is required")
	}
	if p.ExtraBags < 0 {
		verr.Add(prefix+".extra_bags", "must not be negative")
	}
}

type Baggage struct {
	CarryOn       int   `json:"carry_on"`
	Checked       int   `json:"checked"`
	ExtraPieces   int   `json:"extra_pieces"`
	ExtraFeeCents int64 `json:"extra_fee_cents"`
}

// BaggageAllowance snapshots the allowance for a fare class at booking time.
func BaggageAllowance(class FareClass, extraPieces int, feePerPieceCents int64) Baggage {
	b := Baggage{CarryOn: 1, Checked: 1}
	if class == FareClassBusiness {
		b.Checked = 2
	}
	if extraPieces > 0 {
		b.ExtraPieces = extraPieces
		b.ExtraFeeCents = int64(extraPieces) * feePerPieceCents
	}
	return b
}

type Booking struct {
	ID              uuid.UUID     `json:"id"`
	Code            string        `json:"code"`
	UserID          uuid.UUID     `json:"user_id"`
	FlightID        uuid.UUID     `json:"flight_id"`
	SeatID          uuid.UUID     `json:"seat_id"`
	SeatNumber      string        `json:"seat_number"`
	Passenger       Passenger     `json:"passenger"`
	Baggage         Baggage       `json:"baggage"`
	TotalPriceCents int64         `json:"total_price_cents"`
	Status          BookingStatus `json:"status"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	HoldExpiresAt   *time.Time    `json:"hold_expires_at,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Transition moves the booking to next, stamping the matching timestamp.
// Invalid moves are rejected with a conflict naming the current state.
func (b *Booking) Transition(next BookingStatus, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return Conflictf("booking %s is %s and cannot become %s", b.Code, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = at
	switch next {
	case BookingStatusConfirmed:
		b.ConfirmedAt = &at
		b.HoldExpiresAt = nil
	case BookingStatusCancelled:
		b.CancelledAt = &at
		b.HoldExpiresAt = nil
	}
	return nil
}

// OwnedBy reports whether the requester may act on the booking as its owner.
func (b *Booking) OwnedBy(r Requester) bool {
	return b.UserID == r.UserID
}
