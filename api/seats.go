package api

import (
	"net/http"

	"github.com/Domenick1991/skybooking/internal/service/seats"
	"github.com/gin-gonic/gin"
)

type SeatHandler struct {
	service seats.SeatUseCase
}

func NewSeatHandler(service seats.SeatUseCase) *SeatHandler {
	return &SeatHandler{service: service}
}

// Register mounts the public seat map and the authenticated hold routes.
func (h *SeatHandler) Register(router *gin.RouterGroup, auth ...gin.HandlerFunc) {
	router.GET("/flight/:flightId", h.seatMap)
	router.POST("/:seatId/hold", chain(auth, h.hold)...)
	router.POST("/:seatId/release", chain(auth, h.release)...)
}

func (h *SeatHandler) seatMap(c *gin.Context) {
	flightID, ok := uuidParam(c, "flightId")
	if !ok {
		return
	}
	m, err := h.service.SeatMap(c.Request.Context(), flightID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func (h *SeatHandler) hold(c *gin.Context) {
	seatID, ok := uuidParam(c, "seatId")
	if !ok {
		return
	}
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	seat, err := h.service.Hold(c.Request.Context(), requester, seatID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "seat held", seat)
}

func (h *SeatHandler) release(c *gin.Context) {
	seatID, ok := uuidParam(c, "seatId")
	if !ok {
		return
	}
	requester, ok := authenticated(c)
	if !ok {
		return
	}
	seat, err := h.service.Release(c.Request.Context(), requester, seatID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "seat released", seat)
}
