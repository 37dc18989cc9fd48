package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/logger"
	"bookticket/internal/models"
	"bookticket/internal/search"
)

const maxLastErrorLength = 2000

// ErrSearchDisabled is returned by Search when no index is configured
var ErrSearchDisabled = errors.New("dead letter search is not configured")

type FailedEventStore interface {
	Create(ctx context.Context, event *models.FailedEvent) error
	GetByID(ctx context.Context, id int64) (*models.FailedEvent, error)
	FindRetryable(ctx context.Context, limit int, lease time.Duration) ([]models.FailedEvent, error)
	FindByStatus(ctx context.Context, statuses ...models.FailedEventStatus) ([]models.FailedEvent, error)
	FindByBookingID(ctx context.Context, bookingID int64) ([]models.FailedEvent, error)
	CountByStatus(ctx context.Context) (map[models.FailedEventStatus]int, error)
	Claim(ctx context.Context, id int64, lease time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, id int64, force bool) (bool, error)
	RecordRetryFailure(ctx context.Context, id int64, lastError string) (*models.FailedEvent, error)
}

type FailedEventIndexer interface {
	Index(ctx context.Context, event *models.FailedEvent) error
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// DeadLetterService owns the lifecycle of dead-lettered booking events
type DeadLetterService struct {
	store      FailedEventStore
	indexer    FailedEventIndexer
	claimLease time.Duration
}

// NewDeadLetterService accepts a nil indexer. A claim older than claimLease
// is treated as abandoned; zero selects models.DefaultClaimLease.
func NewDeadLetterService(store FailedEventStore, indexer FailedEventIndexer, claimLease time.Duration) *DeadLetterService {
	if claimLease <= 0 {
		claimLease = models.DefaultClaimLease
	}
	return &DeadLetterService{store: store, indexer: indexer, claimLease: claimLease}
}

// Store records an event whose delivery was given up as PENDING with no retries spent
func (s *DeadLetterService) Store(ctx context.Context, event models.BookingEvent, cause error) error {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	failed := &models.FailedEvent{
		EventType:    event.Type,
		BookingID:    event.BookingID,
		UserID:       event.UserID,
		ShowID:       event.ShowID,
		TotalAmount:  event.TotalAmount,
		EventPayload: string(payload),
		Status:       models.FailedEventPending,
		RetryCount:   0,
		MaxRetries:   models.DefaultMaxRetries,
	}
	if event.Reason != "" {
		reason := event.Reason
		failed.Reason = &reason
	}
	if cause != nil {
		lastError := truncateError(cause.Error())
		failed.LastError = &lastError
	}

	if err := s.store.Create(ctx, failed); err != nil {
		return fmt.Errorf("failed to store failed event: %w", err)
	}

	logger.WithContext(ctx).Warn("Stored failed booking event in dead letter store",
		"event_id", failed.ID, "booking_id", failed.BookingID, "event_type", failed.EventType)

	s.index(ctx, failed)
	return nil
}

// PendingRetryable lists events with retries left that are PENDING or held by
// an abandoned claim, oldest first
func (s *DeadLetterService) PendingRetryable(ctx context.Context, limit int) ([]models.FailedEvent, error) {
	return s.store.FindRetryable(ctx, limit, s.claimLease)
}

// Failed lists events whose retries are exhausted
func (s *DeadLetterService) Failed(ctx context.Context) ([]models.FailedEvent, error) {
	return s.store.FindByStatus(ctx, models.FailedEventFailed)
}

func (s *DeadLetterService) ByBooking(ctx context.Context, bookingID int64) (*models.BookingDLQStats, error) {
	events, err := s.store.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	stats := &models.BookingDLQStats{BookingID: bookingID, Events: events}
	for _, e := range events {
		switch e.Status {
		case models.FailedEventPending:
			stats.PendingCount++
		case models.FailedEventRetrying:
			stats.RetryingCount++
		case models.FailedEventFailed:
			stats.FailedCount++
		case models.FailedEventProcessed:
			stats.ProcessedCount++
		}
	}
	if stats.Events == nil {
		stats.Events = []models.FailedEvent{}
	}
	return stats, nil
}

// Stats counts events still needing attention
func (s *DeadLetterService) Stats(ctx context.Context) (*models.DLQStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	pending := counts[models.FailedEventPending]
	failed := counts[models.FailedEventFailed]
	return &models.DLQStats{
		PendingCount: pending,
		FailedCount:  failed,
		TotalCount:   pending + failed,
	}, nil
}

// Claim moves an event to RETRYING under a fresh lease; false means a live claim exists
func (s *DeadLetterService) Claim(ctx context.Context, id int64) (bool, error) {
	return s.store.Claim(ctx, id, s.claimLease)
}

// MarkProcessed completes a claimed event
func (s *DeadLetterService) MarkProcessed(ctx context.Context, id int64) error {
	ok, err := s.store.MarkProcessed(ctx, id, false)
	if err != nil {
		return fmt.Errorf("failed to mark failed event %d processed: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("failed event %d: %w", id, apperrors.ErrInvalidTransition)
	}

	logger.WithContext(ctx).Info("Marked dead-lettered event processed", "event_id", id)
	s.reindex(ctx, id)
	return nil
}

// RecordRetryFailure spends one retry; the event becomes FAILED when none are left
func (s *DeadLetterService) RecordRetryFailure(ctx context.Context, id int64, cause error) (*models.FailedEvent, error) {
	msg := ""
	if cause != nil {
		msg = truncateError(cause.Error())
	}

	event, err := s.store.RecordRetryFailure(ctx, id, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to record retry failure for event %d: %w", id, err)
	}
	if event == nil {
		return nil, fmt.Errorf("failed event %d: %w", id, apperrors.ErrInvalidTransition)
	}

	log := logger.WithContext(ctx).With("event_id", id, "retry_count", event.RetryCount, "max_retries", event.MaxRetries)
	if event.Status == models.FailedEventFailed {
		log.Error("Dead-lettered event exhausted all retries, marking FAILED")
	} else {
		log.Warn("Dead-lettered event retry failed")
	}

	s.index(ctx, event)
	return event, nil
}

// ForceProcessed is the manual resolution path; it ignores status and retry count
func (s *DeadLetterService) ForceProcessed(ctx context.Context, id int64) (*models.FailedEvent, error) {
	event, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.ErrFailedEventNotFound
	}

	if _, err := s.store.MarkProcessed(ctx, id, true); err != nil {
		return nil, fmt.Errorf("failed to mark failed event %d processed: %w", id, err)
	}

	logger.WithContext(ctx).Info("Dead-lettered event manually marked processed",
		"event_id", id, "previous_status", event.Status)

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload failed event %d: %w", id, err)
	}
	if updated == nil {
		return nil, apperrors.ErrFailedEventNotFound
	}
	s.index(ctx, updated)
	return updated, nil
}

func (s *DeadLetterService) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	if s.indexer == nil {
		return nil, ErrSearchDisabled
	}
	return s.indexer.Search(ctx, q)
}

func (s *DeadLetterService) reindex(ctx context.Context, id int64) {
	if s.indexer == nil {
		return
	}
	event, err := s.store.GetByID(ctx, id)
	if err != nil || event == nil {
		return
	}
	s.index(ctx, event)
}

// index failures never fail the database operation
func (s *DeadLetterService) index(ctx context.Context, event *models.FailedEvent) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, event); err != nil {
		logger.WithContext(ctx).Warn("Failed to index dead-lettered event", "event_id", event.ID, "error", err)
	}
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxLastErrorLength {
		return msg
	}
	return string([]rune(msg)[:maxLastErrorLength])
}
