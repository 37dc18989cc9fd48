package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createBookingsTable,
		createBookingSeatsTable,
		createFailedEventsTable,
		createFailedEventsIndexes,
		addFailedEventsClaimedAt,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    show_id BIGINT NOT NULL,
    total_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'CONFIRMED', 'FAILED'))
);`

const createBookingSeatsTable = `
CREATE TABLE IF NOT EXISTS booking_seats (
    id BIGSERIAL PRIMARY KEY,
    booking_id BIGINT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
    seat_id BIGINT NOT NULL,
    seat_number VARCHAR(50),
    seat_type VARCHAR(50),
    price DECIMAL(12,2) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),

    UNIQUE(booking_id, seat_id)
);`

const createFailedEventsTable = `
CREATE TABLE IF NOT EXISTS failed_events (
    id BIGSERIAL PRIMARY KEY,
    event_type VARCHAR(30) NOT NULL,
    booking_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    show_id BIGINT NOT NULL,
    total_amount DECIMAL(12,2) NOT NULL,
    reason VARCHAR(1000),
    event_payload TEXT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    last_error VARCHAR(2000),
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    last_retry_at TIMESTAMP,
    processed_at TIMESTAMP,
    claimed_at TIMESTAMP,

    CHECK (event_type IN ('BOOKING_SUCCESS', 'BOOKING_FAILED')),
    CHECK (status IN ('PENDING', 'RETRYING', 'PROCESSED', 'FAILED')),
    CHECK (retry_count <= max_retries)
);`

const createFailedEventsIndexes = `
CREATE INDEX IF NOT EXISTS failed_events_status_idx ON failed_events (status, retry_count);
CREATE INDEX IF NOT EXISTS failed_events_booking_idx ON failed_events (booking_id);
CREATE INDEX IF NOT EXISTS booking_seats_booking_idx ON booking_seats (booking_id);`

const addFailedEventsClaimedAt = `
ALTER TABLE failed_events ADD COLUMN IF NOT EXISTS claimed_at TIMESTAMP;`
