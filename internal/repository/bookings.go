package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookticket/internal/database"
	apperrors "bookticket/internal/errors"
	"bookticket/internal/models"
)

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (user_id, show_id, total_amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		booking.UserID,
		booking.ShowID,
		booking.TotalAmount,
		booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

// GetByID returns nil, nil when the booking does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	booking := &models.Booking{}
	query := `
		SELECT id, user_id, show_id, total_amount, status, created_at, updated_at
		FROM bookings
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ShowID,
		&booking.TotalAmount,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return booking, err
}

// UpdateStatus moves a booking from one status to another. Terminal statuses
// are immutable: the update only applies while the row is still in from.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d %s -> %s: %w", id, from, to, apperrors.ErrInvalidTransition)
	}
	return nil
}

// AddSeats persists all seat lines of a booking in one transaction
func (r *BookingRepository) AddSeats(ctx context.Context, bookingID int64, seats []models.BookingSeat) ([]models.BookingSeat, error) {
	saved := make([]models.BookingSeat, 0, len(seats))

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO booking_seats (booking_id, seat_id, seat_number, seat_type, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, seat := range seats {
			seat.BookingID = bookingID
			if err := stmt.QueryRowContext(ctx,
				bookingID,
				seat.SeatID,
				seat.SeatNumber,
				seat.SeatType,
				seat.Price,
			).Scan(&seat.ID, &seat.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert seat %d: %w", seat.SeatID, err)
			}
			saved = append(saved, seat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (r *BookingRepository) GetSeats(ctx context.Context, bookingID int64) ([]models.BookingSeat, error) {
	var seats []models.BookingSeat
	query := `
		SELECT id, booking_id, seat_id, COALESCE(seat_number, ''), COALESCE(seat_type, ''), price, created_at
		FROM booking_seats
		WHERE booking_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seat models.BookingSeat
		err := rows.Scan(
			&seat.ID,
			&seat.BookingID,
			&seat.SeatID,
			&seat.SeatNumber,
			&seat.SeatType,
			&seat.Price,
			&seat.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}

	return seats, rows.Err()
}
