package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookticket/internal/database"
	"bookticket/internal/models"

	"github.com/lib/pq"
)

const failedEventColumns = `
	id, event_type, booking_id, user_id, show_id, total_amount, reason, event_payload,
	status, retry_count, max_retries, last_error, created_at, last_retry_at, processed_at, claimed_at`

type FailedEventRepository struct {
	db *database.DB
}

func NewFailedEventRepository(db *database.DB) *FailedEventRepository {
	return &FailedEventRepository{db: db}
}

func (r *FailedEventRepository) Create(ctx context.Context, event *models.FailedEvent) error {
	query := `
		INSERT INTO failed_events (event_type, booking_id, user_id, show_id, total_amount, reason,
		                           event_payload, status, retry_count, max_retries, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		event.EventType,
		event.BookingID,
		event.UserID,
		event.ShowID,
		event.TotalAmount,
		event.Reason,
		event.EventPayload,
		event.Status,
		event.RetryCount,
		event.MaxRetries,
		event.LastError,
	).Scan(&event.ID, &event.CreatedAt)
}

// GetByID returns nil, nil when the event does not exist
func (r *FailedEventRepository) GetByID(ctx context.Context, id int64) (*models.FailedEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+failedEventColumns+` FROM failed_events WHERE id = $1`, id)

	event, err := scanFailedEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// claimableCondition matches events with retries left that are PENDING, or
// RETRYING under a claim older than the lease. Parameters: $1 PENDING,
// $2 RETRYING, $3 lease in seconds.
const claimableCondition = `
	retry_count < max_retries
	AND (status = $1
	     OR (status = $2 AND (claimed_at IS NULL OR claimed_at < NOW() - $3::float8 * INTERVAL '1 second')))`

// FindRetryable returns claimable events, oldest first. A RETRYING event is
// included once its claim is older than lease.
func (r *FailedEventRepository) FindRetryable(ctx context.Context, limit int, lease time.Duration) ([]models.FailedEvent, error) {
	rows, err := r.db.QueryWithRetry(ctx, `
		SELECT `+failedEventColumns+`
		FROM failed_events
		WHERE `+claimableCondition+`
		ORDER BY created_at ASC
		LIMIT $4`, models.FailedEventPending, models.FailedEventRetrying, lease.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return collectFailedEvents(rows)
}

func (r *FailedEventRepository) FindByStatus(ctx context.Context, statuses ...models.FailedEventStatus) ([]models.FailedEvent, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+failedEventColumns+`
		FROM failed_events
		WHERE status = ANY($1)
		ORDER BY created_at DESC`, pq.Array(values))
	if err != nil {
		return nil, err
	}
	return collectFailedEvents(rows)
}

func (r *FailedEventRepository) FindByBookingID(ctx context.Context, bookingID int64) ([]models.FailedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+failedEventColumns+`
		FROM failed_events
		WHERE booking_id = $1
		ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectFailedEvents(rows)
}

func (r *FailedEventRepository) CountByStatus(ctx context.Context) (map[models.FailedEventStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM failed_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.FailedEventStatus]int)
	for rows.Next() {
		var status models.FailedEventStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Claim moves a claimable event to RETRYING and stamps claimed_at. It reports
// false when a live claim exists or the event is no longer retryable.
func (r *FailedEventRepository) Claim(ctx context.Context, id int64, lease time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE failed_events
		SET status = $2, claimed_at = NOW()
		WHERE id = $4 AND `+claimableCondition,
		models.FailedEventPending, models.FailedEventRetrying, lease.Seconds(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkProcessed sets PROCESSED. Without force only a RETRYING event moves;
// with force any event does. Reports false when no row matched.
func (r *FailedEventRepository) MarkProcessed(ctx context.Context, id int64, force bool) (bool, error) {
	query := `
		UPDATE failed_events
		SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3`
	args := []any{models.FailedEventProcessed, id, models.FailedEventRetrying}
	if force {
		query = `
			UPDATE failed_events
			SET status = $1, processed_at = NOW()
			WHERE id = $2`
		args = args[:2]
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RecordRetryFailure increments retry_count and moves the event back to
// PENDING, or to FAILED once the budget is spent. It returns the updated row.
func (r *FailedEventRepository) RecordRetryFailure(ctx context.Context, id int64, lastError string) (*models.FailedEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE failed_events
		SET retry_count = LEAST(retry_count + 1, max_retries),
		    last_retry_at = NOW(),
		    last_error = $1,
		    status = CASE WHEN retry_count + 1 >= max_retries THEN $2 ELSE $3 END
		WHERE id = $4 AND status IN ($3, $5)
		RETURNING `+failedEventColumns,
		lastError, models.FailedEventFailed, models.FailedEventPending, id, models.FailedEventRetrying)

	event, err := scanFailedEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFailedEvent(row rowScanner) (*models.FailedEvent, error) {
	var event models.FailedEvent
	err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.BookingID,
		&event.UserID,
		&event.ShowID,
		&event.TotalAmount,
		&event.Reason,
		&event.EventPayload,
		&event.Status,
		&event.RetryCount,
		&event.MaxRetries,
		&event.LastError,
		&event.CreatedAt,
		&event.LastRetryAt,
		&event.ProcessedAt,
		&event.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func collectFailedEvents(rows *sql.Rows) ([]models.FailedEvent, error) {
	defer rows.Close()

	var events []models.FailedEvent
	for rows.Next() {
		event, err := scanFailedEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}
