package handlers

import (
	"net/http"
	"strconv"

	"bookticket/internal/models"
	"bookticket/internal/search"

	"github.com/gin-gonic/gin"
)

const pendingListLimit = 500

// ListPendingEvents - GET /api/v1/admin/booking-dlq/pending
func (h *Handlers) ListPendingEvents(c *gin.Context) {
	events, err := h.deadLetters.PendingRetryable(c.Request.Context(), pendingListLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

// ListFailedEvents - GET /api/v1/admin/booking-dlq/failed
func (h *Handlers) ListFailedEvents(c *gin.Context) {
	events, err := h.deadLetters.Failed(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

// BookingDLQStats - GET /api/v1/admin/booking-dlq/booking/:bookingId
func (h *Handlers) BookingDLQStats(c *gin.Context) {
	bookingID, ok := pathID(c, "bookingId")
	if !ok {
		return
	}

	stats, err := h.deadLetters.ByBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MarkEventProcessed - POST /api/v1/admin/booking-dlq/:eventId/mark-processed
func (h *Handlers) MarkEventProcessed(c *gin.Context) {
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return
	}

	event, err := h.deadLetters.ForceProcessed(c.Request.Context(), eventID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DLQStats - GET /api/v1/admin/booking-dlq/stats
func (h *Handlers) DLQStats(c *gin.Context) {
	stats, err := h.deadLetters.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SearchEvents - GET /api/v1/admin/booking-dlq/search?q=&status=&eventType=&bookingId=&from=&size=
func (h *Handlers) SearchEvents(c *gin.Context) {
	q := search.Query{
		Text:      c.Query("q"),
		Status:    models.FailedEventStatus(c.Query("status")),
		EventType: models.EventType(c.Query("eventType")),
	}

	if raw := c.Query("bookingId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.BookingID = id
	}

	from, _ := strconv.Atoi(c.DefaultQuery("from", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if from < 0 || size < 1 || size > 100 {
		respondError(c, http.StatusBadRequest, codeBadRequest, "from must be >= 0 and size between 1 and 100")
		return
	}
	q.From, q.Size = from, size

	result, err := h.deadLetters.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func nonNil(events []models.FailedEvent) []models.FailedEvent {
	if events == nil {
		return []models.FailedEvent{}
	}
	return events
}
