package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/lock/locktest"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conflictCounter struct{ n int }

func (c *conflictCounter) SeatLockConflict() { c.n++ }

func newManager(store Store) (*SeatLockManager, *conflictCounter) {
	counter := &conflictCounter{}
	return NewSeatLockManager(store, Config{TTL: 10 * time.Minute}, counter), counter
}

func TestAcquireAllSeats(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m, _ := newManager(NewRedisStore(db))

	mock.ExpectSetNX("lock:seat:3:1", "booking:9", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("lock:seat:3:2", "booking:9", 10*time.Minute).SetVal(true)

	keys, err := m.Acquire(context.Background(), 3, []int64{1, 2}, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock:seat:3:1", "lock:seat:3:2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireRollsBackOnConflict(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m, counter := newManager(NewRedisStore(db))

	mock.ExpectSetNX("lock:seat:3:1", "booking:9", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("lock:seat:3:2", "booking:9", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("lock:seat:3:7", "booking:9", 10*time.Minute).SetVal(false)
	mock.ExpectEval(delIfValueScript, []string{"lock:seat:3:1", "lock:seat:3:2"}, "booking:9").SetVal(int64(2))

	keys, err := m.Acquire(context.Background(), 3, []int64{1, 2, 7, 8}, 9)
	assert.Nil(t, keys)

	var conflict *apperrors.SeatLockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.SeatID)
	assert.Equal(t, int64(3), conflict.ShowID)
	assert.Equal(t, 1, counter.n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireStoreErrorIsUpstream(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m, counter := newManager(NewRedisStore(db))

	mock.ExpectSetNX("lock:seat:3:1", "booking:9", 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("lock:seat:3:2", "booking:9", 10*time.Minute).SetErr(errors.New("i/o timeout"))
	mock.ExpectEval(delIfValueScript, []string{"lock:seat:3:1"}, "booking:9").SetVal(int64(1))

	_, err := m.Acquire(context.Background(), 3, []int64{1, 2}, 9)

	var upstream *apperrors.UpstreamServiceError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "lockstore", upstream.Service)
	assert.Zero(t, counter.n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLeavesNoPartialLocks(t *testing.T) {
	seatSets := [][]int64{
		{1, 2, 3},
		{3, 1},
		{5, 6, 7, 3},
		{3},
	}

	for _, seats := range seatSets {
		store := locktest.NewMemoryStore()
		m, _ := newManager(store)
		store.Put(m.SeatKey(1, 3), m.OwnerValue(42), time.Minute)

		_, err := m.Acquire(context.Background(), 1, seats, 100)

		var conflict *apperrors.SeatLockConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(3), conflict.SeatID)
		assert.Empty(t, store.KeysOwnedBy(m.OwnerValue(100)), "seats %v", seats)
		assert.Len(t, store.KeysOwnedBy(m.OwnerValue(42)), 1)
	}
}

func TestReleaseByIDs(t *testing.T) {
	store := locktest.NewMemoryStore()
	m, _ := newManager(store)
	ctx := context.Background()

	_, err := m.Acquire(ctx, 2, []int64{10, 11}, 8)
	require.NoError(t, err)

	locked, err := m.IsLocked(ctx, 2, 10)
	require.NoError(t, err)
	assert.True(t, locked)

	owner, ok, err := m.Owner(ctx, 2, 11)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "booking:8", owner)

	require.NoError(t, m.ReleaseByIDs(ctx, 2, []int64{10, 11}, 8))
	assert.Empty(t, store.KeysOwnedBy("booking:8"))
}

func TestReleaseLeavesLocksTakenOverByAnotherBooking(t *testing.T) {
	store := locktest.NewMemoryStore()
	m, _ := newManager(store)
	ctx := context.Background()

	keys, err := m.Acquire(ctx, 2, []int64{10, 11}, 8)
	require.NoError(t, err)

	// seat 11 expired and was re-locked by booking 9
	store.Put(m.SeatKey(2, 11), m.OwnerValue(9), time.Minute)

	require.NoError(t, m.Release(ctx, 8, keys))
	assert.Empty(t, store.KeysOwnedBy("booking:8"))
	assert.Equal(t, []string{"lock:seat:2:11"}, store.KeysOwnedBy("booking:9"))

	require.NoError(t, m.ReleaseByIDs(ctx, 2, []int64{10, 11}, 8))
	assert.Equal(t, []string{"lock:seat:2:11"}, store.KeysOwnedBy("booking:9"))
}

func TestReleaseEmptyIsNoop(t *testing.T) {
	store := locktest.NewMemoryStore()
	store.FailDel = errors.New("must not be called")
	m, _ := newManager(store)

	assert.NoError(t, m.Release(context.Background(), 8, nil))
}

func TestConcurrentBookingsNeverShareASeat(t *testing.T) {
	store := locktest.NewMemoryStore()
	m, _ := newManager(store)
	ctx := context.Background()

	_, errA := m.Acquire(ctx, 1, []int64{1, 2}, 1)
	_, errB := m.Acquire(ctx, 1, []int64{2, 1}, 2)

	require.NoError(t, errA)
	require.Error(t, errB)
	assert.Len(t, store.KeysOwnedBy("booking:1"), 2)
	assert.Empty(t, store.KeysOwnedBy("booking:2"))
}
