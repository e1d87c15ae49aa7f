package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type FlightState string

const (
	FlightStateScheduled FlightState = "scheduled"
	FlightStateInFlight  FlightState = "in_flight"
	FlightStateCompleted FlightState = "completed"
	FlightStateCancelled FlightState = "cancelled"
)

type RouteType string

const (
	RouteDirect       RouteType = "direct"
	RouteOneStop      RouteType = "one_stop"
	RouteTwoPlusStops RouteType = "two_plus_stops"
)

const (
	MinCapacity = 1
	MaxCapacity = 300
)

var (
	flightCodePattern  = regexp.MustCompile(`^[A-Z0-9]{2}-?[0-9]{1,4}$`)
	airportCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

type Airport struct {
	City string `json:"city"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Flight struct {
	ID             uuid.UUID   `json:"id"`
	Code           string      `json:"code"`
	Origin         Airport     `json:"origin"`
	Destination    Airport     `json:"destination"`
	DepartureAt    time.Time   `json:"departure_at"`
	ArrivalAt      time.Time   `json:"arrival_at"`
	Duration       string      `json:"duration"`
	PriceCents     int64       `json:"price_cents"`
	Capacity       int         `json:"capacity"`
	AvailableSeats int         `json:"available_seats"`
	State          FlightState `json:"state"`
	RouteType      RouteType   `json:"route_type"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// FlightFilter narrows flight listings. Zero values match everything.
type FlightFilter struct {
	Origin      string
	Destination string
	Date        *time.Time
	RouteType   RouteType
	State       FlightState
}

func (f FlightFilter) IsEmpty() bool {
	return f.Origin == "" && f.Destination == "" && f.Date == nil && f.RouteType == "" && f.State == ""
}

func ValidFlightCode(code string) bool {
	return flightCodePattern.MatchString(code)
}

func ValidAirportCode(code string) bool {
	return airportCodePattern.MatchString(code)
}

func (s FlightState) Valid() bool {
	switch s {
	case FlightStateScheduled, FlightStateInFlight, FlightStateCompleted, FlightStateCancelled:
		return true
	}
	return false
}

func (r RouteType) Valid() bool {
	switch r {
	case RouteDirect, RouteOneStop, RouteTwoPlusStops:
		return true
	}
	return false
}

// CanTransitionTo reports whether an administrative state change is allowed.
func (s FlightState) CanTransitionTo(next FlightState) bool {
	switch s {
	case FlightStateScheduled:
		return next == FlightStateInFlight || next == FlightStateCancelled
	case FlightStateInFlight:
		return next == FlightStateCompleted
	}
	return false
}

// Validate checks the invariants a flight must hold before it is stored.
func (f *Flight) Validate() error {
	verr := &ValidationError{}
	if !ValidFlightCode(f.Code) {
		verr.Add("code", "must be an airline code followed by a flight number, e.g. AV-1234")
	}
	if !ValidAirportCode(f.Origin.Code) {
		verr.Add("origin.code", "must be a 3-letter airport code")
	}
	if !ValidAirportCode(f.Destination.Code) {
		verr.Add("destination.code", "must be a 3-letter airport code")
	}
	if f.Origin.Code != "" && f.Origin.Code == f.Destination.Code {
		verr.Add("destination.code", "must differ from origin")
	}
	if !f.ArrivalAt.After(f.DepartureAt) {
		verr.Add("arrival_at", "must be after departure")
	}
	if f.PriceCents < 0 {
		verr.Add("price_cents", "must not be negative")
	}
	if f.Capacity < MinCapacity || f.Capacity > MaxCapacity {
		verr.Add("capacity", fmt.Sprintf("must be between %d and %d", MinCapacity, MaxCapacity))
	}
	if f.AvailableSeats < 0 || f.AvailableSeats > f.Capacity {
		verr.Add("available_seats", "must be between 0 and capacity")
	}
	if !f.RouteType.Valid() {
		verr.Add("route_type", "must be one of direct, one_stop, two_plus_stops")
	}
	return verr.OrNil()
}

// Bookable returns a conflict when the flight cannot take n more seats.
func (f *Flight) Bookable(n int) error {
	if f.State != FlightStateScheduled {
		return Conflictf("flight %s is %s and cannot be booked", f.Code, f.State)
	}
	if f.AvailableSeats < n {
		return Conflictf("flight %s has %d seats available, %d requested", f.Code, f.AvailableSeats, n)
	}
	return nil
}

// SeatPrice applies the fare-class multiplier to the base fare.
func (f *Flight) SeatPrice(class FareClass) int64 {
	if class == FareClassBusiness {
		return f.PriceCents * 2
	}
	return f.PriceCents
}

// FormatDuration renders the block time as "2h 35m".
func FormatDuration(departure, arrival time.Time) string {
	d := arrival.Sub(departure).Round(time.Minute)
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %02dm", h, m)
}
