package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/flights"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

type airportRequest struct {
	City string `json:"city" binding:"required"`
	Code string `json:"code" binding:"required,iata"`
	Name string `json:"name"`
}

type createFlightRequest struct {
	Code        string           `json:"code" binding:"required,flightcode"`
	Origin      airportRequest   `json:"origin" binding:"required"`
	Destination airportRequest   `json:"destination" binding:"required"`
	DepartureAt time.Time        `json:"departure_at" binding:"required"`
	ArrivalAt   time.Time        `json:"arrival_at" binding:"required,gtfield=DepartureAt"`
	PriceCents  int64            `json:"price_cents" binding:"gte=0"`
	Capacity    int              `json:"capacity" binding:"required,min=1,max=300"`
	RouteType   domain.RouteType `json:"route_type" binding:"omitempty,oneof=direct one_stop two_plus_stops"`
}

type updateFlightStateRequest struct {
	State domain.FlightState `json:"state" binding:"required,oneof=scheduled in_flight completed cancelled"`
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

// Register mounts the public reads and, behind admin, the write routes.
func (h *FlightHandler) Register(router *gin.RouterGroup, admin ...gin.HandlerFunc) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.POST("", chain(admin, h.create)...)
	router.PATCH("/:id/status", chain(admin, h.updateState)...)
	router.DELETE("/:id", chain(admin, h.delete)...)
}

func (h *FlightHandler) list(c *gin.Context) {
	filter := domain.FlightFilter{
		Origin:      strings.ToUpper(c.Query("origin")),
		Destination: strings.ToUpper(c.Query("destination")),
		RouteType:   domain.RouteType(c.Query("route_type")),
		State:       domain.FlightState(c.Query("state")),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			invalidParam(c, "date", "must be formatted as YYYY-MM-DD")
			return
		}
		filter.Date = &date
	}
	if filter.RouteType != "" && !filter.RouteType.Valid() {
		invalidParam(c, "route_type", "must be one of direct, one_stop, two_plus_stops")
		return
	}
	if filter.State != "" && !filter.State.Valid() {
		invalidParam(c, "state", "must be one of scheduled, in_flight, completed, cancelled")
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, flight)
}

func (h *FlightHandler) create(c *gin.Context) {
	var req createFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	flight, err := h.service.Create(c.Request.Context(), flights.CreateFlightInput{
		Code:        req.Code,
		Origin:      domain.Airport(req.Origin),
		Destination: domain.Airport(req.Destination),
		DepartureAt: req.DepartureAt,
		ArrivalAt:   req.ArrivalAt,
		PriceCents:  req.PriceCents,
		Capacity:    req.Capacity,
		RouteType:   req.RouteType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusCreated, "flight created", flight)
}

func (h *FlightHandler) updateState(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateFlightStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	flight, err := h.service.UpdateState(c.Request.Context(), id, req.State)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, flight)
}

func (h *FlightHandler) delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "flight deleted", nil)
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		invalidParam(c, name, "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
