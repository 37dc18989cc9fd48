package lock

import (
	"context"
	"fmt"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/logger"
)

type Config struct {
	KeyPrefix   string
	OwnerPrefix string
	TTL         time.Duration
}

// ConflictRecorder is notified of every refused seat
type ConflictRecorder interface {
	SeatLockConflict()
}

// SeatLockManager acquires and releases per-seat locks as one unit.
// Acquisition is ordered and fails fast; the first refusal rolls back every
// key taken in the same call, so no partial set survives.
type SeatLockManager struct {
	store   Store
	cfg     Config
	metrics ConflictRecorder
}

func NewSeatLockManager(store Store, cfg Config, metrics ConflictRecorder) *SeatLockManager {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lock:seat"
	}
	if cfg.OwnerPrefix == "" {
		cfg.OwnerPrefix = "booking"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &SeatLockManager{store: store, cfg: cfg, metrics: metrics}
}

// SeatKey formats lock:seat:<showId>:<seatId>
func (m *SeatLockManager) SeatKey(showID, seatID int64) string {
	return fmt.Sprintf("%s:%d:%d", m.cfg.KeyPrefix, showID, seatID)
}

// OwnerValue formats booking:<bookingId>
func (m *SeatLockManager) OwnerValue(bookingID int64) string {
	return fmt.Sprintf("%s:%d", m.cfg.OwnerPrefix, bookingID)
}

// Acquire locks every seat for bookingID and returns the keys it holds.
func (m *SeatLockManager) Acquire(ctx context.Context, showID int64, seatIDs []int64, bookingID int64) ([]string, error) {
	log := logger.WithContext(ctx).With("show_id", showID, "booking_id", bookingID)
	log.Info("Acquiring seat locks", "seats", len(seatIDs))

	owner := m.OwnerValue(bookingID)
	acquired := make([]string, 0, len(seatIDs))

	for _, seatID := range seatIDs {
		key := m.SeatKey(showID, seatID)

		ok, err := m.store.SetNX(ctx, key, owner, m.cfg.TTL)
		if err != nil {
			log.Error("Lock store error while acquiring seat locks", "seat_id", seatID, "error", err)
			m.rollback(ctx, bookingID, acquired)
			return nil, apperrors.NewUpstream("lockstore", "acquire seat locks", 0, err)
		}

		if !ok {
			log.Warn("Seat is already locked", "seat_id", seatID)
			m.rollback(ctx, bookingID, acquired)
			if m.metrics != nil {
				m.metrics.SeatLockConflict()
			}
			return nil, &apperrors.SeatLockConflictError{ShowID: showID, SeatID: seatID}
		}

		acquired = append(acquired, key)
		log.Debug("Acquired seat lock", "seat_id", seatID, "key", key)
	}

	log.Info("Acquired all seat locks", "seats", len(acquired))
	return acquired, nil
}

// Release deletes those of the given lock keys that bookingID still owns.
// An empty list is a no-op.
func (m *SeatLockManager) Release(ctx context.Context, bookingID int64, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	deleted, err := m.store.DelIfValue(ctx, m.OwnerValue(bookingID), keys...)
	if err != nil {
		return fmt.Errorf("failed to release seat locks: %w", err)
	}

	logger.WithContext(ctx).Info("Released seat locks",
		"booking_id", bookingID, "released", deleted, "requested", len(keys))
	return nil
}

func (m *SeatLockManager) ReleaseByIDs(ctx context.Context, showID int64, seatIDs []int64, bookingID int64) error {
	keys := make([]string, len(seatIDs))
	for i, seatID := range seatIDs {
		keys[i] = m.SeatKey(showID, seatID)
	}
	return m.Release(ctx, bookingID, keys)
}

func (m *SeatLockManager) IsLocked(ctx context.Context, showID, seatID int64) (bool, error) {
	_, ok, err := m.store.Get(ctx, m.SeatKey(showID, seatID))
	return ok, err
}

// Owner returns the owner value of a seat lock, if held
func (m *SeatLockManager) Owner(ctx context.Context, showID, seatID int64) (string, bool, error) {
	return m.store.Get(ctx, m.SeatKey(showID, seatID))
}

func (m *SeatLockManager) rollback(ctx context.Context, bookingID int64, keys []string) {
	if err := m.Release(ctx, bookingID, keys); err != nil {
		logger.WithContext(ctx).Error("Failed to roll back partially acquired seat locks",
			"booking_id", bookingID, "keys", keys, "error", err)
	}
}
