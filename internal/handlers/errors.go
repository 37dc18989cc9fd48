package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/logger"
	"bookticket/internal/models"
	"bookticket/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	codeSeatLockConflict = "SEAT_LOCK_CONFLICT"
	codePaymentFailed    = "PAYMENT_FAILED"
	codeNotFound         = "NOT_FOUND"
	codeBadRequest       = "BAD_REQUEST"
	codeNoValidSeats     = "NO_VALID_SEATS"
	codeForbidden        = "FORBIDDEN"
	codeUnavailable      = "SERVICE_UNAVAILABLE"
	codeInternal         = "INTERNAL_ERROR"

	genericErrorMessage = "An unexpected error occurred. Please try again later."
)

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error:     message,
		ErrorCode: code,
		Timestamp: time.Now().UTC(),
	})
}

// writeError maps the error taxonomy to an HTTP response. Only domain errors
// carry their message to the caller.
func writeError(c *gin.Context, err error) {
	var conflict *apperrors.SeatLockConflictError
	var payment *apperrors.PaymentFailureError

	switch {
	case errors.As(err, &conflict):
		respondError(c, http.StatusConflict, codeSeatLockConflict, conflict.Error())

	case errors.As(err, &payment):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, models.ErrorResponse{
			Error:         payment.Error(),
			ErrorCode:     codePaymentFailed,
			Timestamp:     time.Now().UTC(),
			PaymentStatus: payment.Status,
			TransactionID: payment.TransactionID,
		})

	case errors.Is(err, apperrors.ErrBookingNotFound), errors.Is(err, apperrors.ErrFailedEventNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, err.Error())

	case errors.Is(err, apperrors.ErrNoValidSeats):
		respondError(c, http.StatusBadRequest, codeNoValidSeats, apperrors.ErrNoValidSeats.Error())

	case errors.Is(err, apperrors.ErrForbidden):
		respondError(c, http.StatusForbidden, codeForbidden, err.Error())

	case errors.Is(err, service.ErrSearchDisabled):
		respondError(c, http.StatusServiceUnavailable, codeUnavailable, err.Error())

	default:
		_ = c.Error(err)
		logger.WithContext(c.Request.Context()).Error("Request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, codeInternal, genericErrorMessage)
	}
}

func badRequest(c *gin.Context, err error) {
	slog.Debug("Rejected invalid request", "path", c.FullPath(), "error", err)
	respondError(c, http.StatusBadRequest, codeBadRequest, err.Error())
}
