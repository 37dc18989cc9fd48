package handlers

import (
	"context"

	"bookticket/internal/middleware"
	"bookticket/internal/models"
	"bookticket/internal/search"

	"github.com/gin-gonic/gin"
)

type BookingSaga interface {
	Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error)
	VerifyAndComplete(ctx context.Context, bookingID int64, sessionID string) (*models.BookingStatusResponse, error)
	Get(ctx context.Context, bookingID int64) (*models.BookingStatusResponse, error)
	SeatDetails(ctx context.Context, bookingID int64) ([]models.SeatDetailsResponse, error)
}

type DeadLetterAdmin interface {
	PendingRetryable(ctx context.Context, limit int) ([]models.FailedEvent, error)
	Failed(ctx context.Context) ([]models.FailedEvent, error)
	ByBooking(ctx context.Context, bookingID int64) (*models.BookingDLQStats, error)
	Stats(ctx context.Context) (*models.DLQStats, error)
	ForceProcessed(ctx context.Context, id int64) (*models.FailedEvent, error)
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

type Handlers struct {
	bookings    BookingSaga
	deadLetters DeadLetterAdmin
}

func NewHandlers(bookings BookingSaga, deadLetters DeadLetterAdmin) *Handlers {
	return &Handlers{
		bookings:    bookings,
		deadLetters: deadLetters,
	}
}

// RegisterRoutes mounts the booking and admin routes. The group must already
// run middleware.Identity.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	bookings := api.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/seats", h.GetBookingSeats)
		bookings.POST("/:id/verify", h.VerifyBooking)
	}

	dlq := api.Group("/admin/booking-dlq", middleware.RequireRole(middleware.RoleAdmin))
	{
		dlq.GET("/pending", h.ListPendingEvents)
		dlq.GET("/failed", h.ListFailedEvents)
		dlq.GET("/stats", h.DLQStats)
		dlq.GET("/search", h.SearchEvents)
		dlq.GET("/booking/:bookingId", h.BookingDLQStats)
		dlq.POST("/:eventId/mark-processed", h.MarkEventProcessed)
	}
}
