package api

import (
	"net/http"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type passengerRequest struct {
	FullName       string              `json:"full_name" binding:"required"`
	Email          string              `json:"email" binding:"required,email"`
	Phone          string              `json:"phone"`
	DocumentType   domain.DocumentType `json:"document_type" binding:"required,oneof=national_id passport"`
	DocumentNumber string              `json:"document_number" binding:"required"`
	ExtraBags      int                 `json:"extra_bags" binding:"min=0,max=5"`
}

func (p passengerRequest) toDomain() domain.Passenger {
	return domain.Passenger(p)
}

// createBookingRequest accepts either a single seat_id with passenger or the
// batch form seats[] with passengers[] matched by index.
type createBookingRequest struct {
	FlightID   uuid.UUID          `json:"flight_id" binding:"required"`
	SeatID     *uuid.UUID         `json:"seat_id"`
	Passenger  *passengerRequest  `json:"passenger"`
	Seats      []uuid.UUID        `json:"seats"`
	Passengers []passengerRequest `json:"passengers" binding:"omitempty,dive"`
}

type confirmPaymentRequest struct {
	BookingID     uuid.UUID `json:"booking_id" binding:"required"`
	PaymentMethod string    `json:"payment_method" binding:"max=64"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

// Register expects router to already carry authentication.
func (h *BookingHandler) Register(router *gin.RouterGroup, admin ...gin.HandlerFunc) {
	router.POST("", h.create)
	router.POST("/confirm-payment", h.confirm)
	router.GET("/mine", h.mine)
	router.GET("", chain(admin, h.listAll)...)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	requester, ok := authenticated(c)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	input := booking.CreateBookingInput{FlightID: req.FlightID}
	switch {
	case req.SeatID != nil && len(req.Seats) > 0:
		invalidParam(c, "seat_id", "use either seat_id with passenger or seats with passengers")
		return
	case req.SeatID != nil:
		if req.Passenger == nil {
			invalidParam(c, "passenger", "is required")
			return
		}
		input.SeatIDs = []uuid.UUID{*req.SeatID}
		input.Passengers = []domain.Passenger{req.Passenger.toDomain()}
	default:
		input.SeatIDs = req.Seats
		for _, p := range req.Passengers {
			input.Passengers = append(input.Passengers, p.toDomain())
		}
	}

	result, err := h.service.CreateBookings(c.Request.Context(), requester, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, envelope{
		Success: true,
		Message: "booking created, complete payment before the hold expires",
		Data:    result,
		Total:   &result.TotalCents,
	})
}

func (h *BookingHandler) confirm(c *gin.Context) {
	requester, ok := authenticated(c)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.service.ConfirmPayment(c.Request.Context(), requester, req.BookingID, req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "payment confirmed", b)
}

func (h *BookingHandler) mine(c *gin.Context) {
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	result, err := h.service.ListMine(c.Request.Context(), requester)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *BookingHandler) listAll(c *gin.Context) {
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	result, err := h.service.ListAll(c.Request.Context(), requester, domain.BookingStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *BookingHandler) get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), requester, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, b)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	b, err := h.service.CancelBooking(c.Request.Context(), requester, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "booking cancelled", b)
}
