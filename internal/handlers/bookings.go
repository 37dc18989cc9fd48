package handlers

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/middleware"
	"bookticket/internal/models"

	"github.com/gin-gonic/gin"
)

// CreateBooking - POST /api/v1/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", apperrors.ErrUnauthorized.Error())
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	response, err := h.bookings.Create(c.Request.Context(), userID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// VerifyBooking - POST /api/v1/bookings/:id/verify?sessionId=
// Blocks while the payment status is polled.
func (h *Handlers) VerifyBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		badRequest(c, errors.New("sessionId query parameter is required"))
		return
	}

	if !h.authorizeBooking(c, bookingID) {
		return
	}

	response, err := h.bookings.VerifyAndComplete(c.Request.Context(), bookingID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetBooking - GET /api/v1/bookings/:id
func (h *Handlers) GetBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	response, err := h.bookings.Get(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ownsOrAdmin(c, response.UserID) {
		writeError(c, apperrors.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetBookingSeats - GET /api/v1/bookings/:id/seats
func (h *Handlers) GetBookingSeats(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if !h.authorizeBooking(c, bookingID) {
		return
	}

	seats, err := h.bookings.SeatDetails(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, seats)
}

// authorizeBooking writes the response and returns false when the caller may not act on the booking
func (h *Handlers) authorizeBooking(c *gin.Context, bookingID int64) bool {
	booking, err := h.bookings.Get(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !ownsOrAdmin(c, booking.UserID) {
		writeError(c, apperrors.ErrForbidden)
		return false
	}
	return true
}

func ownsOrAdmin(c *gin.Context, ownerID int64) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	userID, ok := middleware.UserID(c)
	return ok && userID == ownerID
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, errors.New("invalid "+name))
		return 0, false
	}
	return id, true
}
