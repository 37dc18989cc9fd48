package models

import "time"

// CreateBookingRequest - POST /api/v1/bookings
type CreateBookingRequest struct {
	ShowID  int64   `json:"show_id" binding:"required"`
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,unique,dive,gt=0"`
}

// BookingSeatResponse - seat line of a booking
type BookingSeatResponse struct {
	BookingSeatID int64   `json:"booking_seat_id"`
	SeatID        int64   `json:"seat_id"`
	SeatNumber    string  `json:"seat_number"`
	SeatType      string  `json:"seat_type"`
	Price         float64 `json:"price"`
}

// CreateBookingResponse - pending booking with payment redirect details
type CreateBookingResponse struct {
	BookingID        int64                 `json:"booking_id"`
	UserID           int64                 `json:"user_id"`
	ShowID           int64                 `json:"show_id"`
	TotalAmount      float64               `json:"total_amount"`
	Status           BookingStatus         `json:"status"`
	Seats            []BookingSeatResponse `json:"seats"`
	PaymentSessionID string                `json:"payment_session_id"`
	PaymentURL       string                `json:"payment_url"`
	PaymentExpiresAt *time.Time            `json:"payment_expires_at,omitempty"`
}

// BookingStatusResponse - current state of a booking
type BookingStatusResponse struct {
	BookingID   int64                 `json:"booking_id"`
	UserID      int64                 `json:"user_id"`
	ShowID      int64                 `json:"show_id"`
	TotalAmount float64               `json:"total_amount"`
	Status      BookingStatus         `json:"status"`
	Seats       []BookingSeatResponse `json:"seats"`
}

// SeatDetailsResponse - GET /api/v1/bookings/:id/seats
type SeatDetailsResponse struct {
	SeatID     int64   `json:"seat_id"`
	SeatNumber string  `json:"seat_number"`
	SeatType   string  `json:"seat_type"`
	Price      float64 `json:"price"`
}

// BookingDLQStats - dead-letter view of one booking
type BookingDLQStats struct {
	BookingID      int64         `json:"booking_id"`
	PendingCount   int           `json:"pending_count"`
	RetryingCount  int           `json:"retrying_count"`
	FailedCount    int           `json:"failed_count"`
	ProcessedCount int           `json:"processed_count"`
	Events         []FailedEvent `json:"events"`
}

// DLQStats - overall dead-letter counters
type DLQStats struct {
	PendingCount int `json:"pending_count"`
	FailedCount  int `json:"failed_count"`
	TotalCount   int `json:"total_count"`
}

// ErrorResponse - problem body returned by the API
type ErrorResponse struct {
	Error         string    `json:"error"`
	ErrorCode     string    `json:"error_code"`
	Timestamp     time.Time `json:"timestamp"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
}
