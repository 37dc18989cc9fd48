package models

// Message bus topics
const (
	TopicBookingSuccess = "booking_success"
	TopicBookingFailed  = "booking_failed"
)

// BookingSuccessEvent is published when a booking is confirmed
type BookingSuccessEvent struct {
	BookingID   int64   `json:"bookingId"`
	UserID      int64   `json:"userId"`
	ShowID      int64   `json:"showId"`
	TotalAmount float64 `json:"totalAmount"`
}

// BookingFailedEvent is published when a booking ends in FAILED
type BookingFailedEvent struct {
	BookingID   int64   `json:"bookingId"`
	UserID      int64   `json:"userId"`
	ShowID      int64   `json:"showId"`
	TotalAmount float64 `json:"totalAmount"`
	Reason      string  `json:"reason"`
}

// BookingEvent is the dispatcher's envelope for either outcome
type BookingEvent struct {
	Type        EventType
	BookingID   int64
	UserID      int64
	ShowID      int64
	TotalAmount float64
	Reason      string
}

func NewSuccessEvent(b *Booking) BookingEvent {
	return BookingEvent{
		Type:        EventTypeBookingSuccess,
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		TotalAmount: b.TotalAmount,
	}
}

func NewFailedEvent(b *Booking, reason string) BookingEvent {
	return BookingEvent{
		Type:        EventTypeBookingFailed,
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		TotalAmount: b.TotalAmount,
		Reason:      reason,
	}
}

func (e BookingEvent) Topic() string {
	if e.Type == EventTypeBookingSuccess {
		return TopicBookingSuccess
	}
	return TopicBookingFailed
}

// Payload returns the wire body shared by the bus and the notification service
func (e BookingEvent) Payload() any {
	if e.Type == EventTypeBookingSuccess {
		return e.SuccessPayload()
	}
	return e.FailedPayload()
}

func (e BookingEvent) SuccessPayload() BookingSuccessEvent {
	return BookingSuccessEvent{
		BookingID:   e.BookingID,
		UserID:      e.UserID,
		ShowID:      e.ShowID,
		TotalAmount: e.TotalAmount,
	}
}

func (e BookingEvent) FailedPayload() BookingFailedEvent {
	return BookingFailedEvent{
		BookingID:   e.BookingID,
		UserID:      e.UserID,
		ShowID:      e.ShowID,
		TotalAmount: e.TotalAmount,
		Reason:      e.Reason,
	}
}
