package models

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingFailed    BookingStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s
func (s BookingStatus) IsTerminal() bool {
	return s == BookingConfirmed || s == BookingFailed
}

type EventType string

const (
	EventTypeBookingSuccess EventType = "BOOKING_SUCCESS"
	EventTypeBookingFailed  EventType = "BOOKING_FAILED"
)

type FailedEventStatus string

const (
	FailedEventPending   FailedEventStatus = "PENDING"
	FailedEventRetrying  FailedEventStatus = "RETRYING"
	FailedEventProcessed FailedEventStatus = "PROCESSED"
	FailedEventFailed    FailedEventStatus = "FAILED"
)

// DefaultMaxRetries is the reconciliation budget of a dead-lettered event
const DefaultMaxRetries = 3

// DefaultClaimLease is how long a RETRYING claim holds before another sweep may take the event over
const DefaultClaimLease = 10 * time.Minute

// Booking represents one reservation attempt
type Booking struct {
	ID          int64         `json:"id" db:"id"`
	UserID      int64         `json:"user_id" db:"user_id"`
	ShowID      int64         `json:"show_id" db:"show_id"`
	TotalAmount float64       `json:"total_amount" db:"total_amount"`
	Status      BookingStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// BookingSeat is a seat line item; Price is captured at lock time and never changes
type BookingSeat struct {
	ID         int64     `json:"id" db:"id"`
	BookingID  int64     `json:"booking_id" db:"booking_id"`
	SeatID     int64     `json:"seat_id" db:"seat_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
	SeatType   string    `json:"seat_type" db:"seat_type"`
	Price      float64   `json:"price" db:"price"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// FailedEvent is a booking outcome event that exhausted dispatch retries
type FailedEvent struct {
	ID           int64             `json:"id" db:"id"`
	EventType    EventType         `json:"event_type" db:"event_type"`
	BookingID    int64             `json:"booking_id" db:"booking_id"`
	UserID       int64             `json:"user_id" db:"user_id"`
	ShowID       int64             `json:"show_id" db:"show_id"`
	TotalAmount  float64           `json:"total_amount" db:"total_amount"`
	Reason       *string           `json:"reason,omitempty" db:"reason"`
	EventPayload string            `json:"event_payload" db:"event_payload"`
	Status       FailedEventStatus `json:"status" db:"status"`
	RetryCount   int               `json:"retry_count" db:"retry_count"`
	MaxRetries   int               `json:"max_retries" db:"max_retries"`
	LastError    *string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	LastRetryAt  *time.Time        `json:"last_retry_at,omitempty" db:"last_retry_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	ClaimedAt    *time.Time        `json:"claimed_at,omitempty" db:"claimed_at"`
}

// ToBookingEvent rebuilds the delivered event from the denormalized columns
func (f *FailedEvent) ToBookingEvent() BookingEvent {
	evt := BookingEvent{
		Type:        f.EventType,
		BookingID:   f.BookingID,
		UserID:      f.UserID,
		ShowID:      f.ShowID,
		TotalAmount: f.TotalAmount,
	}
	if f.Reason != nil {
		evt.Reason = *f.Reason
	}
	return evt
}
