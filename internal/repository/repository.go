package repository

import (
	"bookticket/internal/database"
)

type Repositories struct {
	Bookings     *BookingRepository
	FailedEvents *FailedEventRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Bookings:     NewBookingRepository(db),
		FailedEvents: NewFailedEventRepository(db),
	}
}
