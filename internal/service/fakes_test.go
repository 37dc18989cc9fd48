package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/external"
	"bookticket/internal/lock/locktest"
	"bookticket/internal/models"

	"github.com/stretchr/testify/mock"
)

// callOrder records the order in which saga collaborators are reached
type callOrder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callOrder) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callOrder) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callOrder) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// orderedStore notes every lock release before handing it to the memory store
type orderedStore struct {
	*locktest.MemoryStore
	order *callOrder
}

func (s *orderedStore) DelIfValue(ctx context.Context, value string, keys ...string) (int64, error) {
	s.order.add("locks:release")
	return s.MemoryStore.DelIfValue(ctx, value, keys...)
}

// memoryBookings enforces the same PENDING-only transitions as the SQL repository
type memoryBookings struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]*models.Booking
	seats    map[int64][]models.BookingSeat
	failAdd  error
	order    *callOrder
}

func newMemoryBookings() *memoryBookings {
	return &memoryBookings{
		bookings: make(map[int64]*models.Booking),
		seats:    make(map[int64][]models.BookingSeat),
	}
}

func (m *memoryBookings) Create(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	copied := *b
	m.bookings[b.ID] = &copied
	return nil
}

func (m *memoryBookings) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (m *memoryBookings) UpdateStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	if m.order != nil {
		m.order.add("booking:" + string(to))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return fmt.Errorf("booking %d: %w", id, apperrors.ErrInvalidTransition)
	}
	b.Status = to
	return nil
}

func (m *memoryBookings) AddSeats(ctx context.Context, bookingID int64, seats []models.BookingSeat) ([]models.BookingSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return nil, m.failAdd
	}
	saved := make([]models.BookingSeat, len(seats))
	for i, s := range seats {
		s.ID = int64(100*bookingID) + int64(i+1)
		s.BookingID = bookingID
		saved[i] = s
	}
	m.seats[bookingID] = saved
	return saved, nil
}

func (m *memoryBookings) GetSeats(ctx context.Context, bookingID int64) ([]models.BookingSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seats[bookingID], nil
}

func (m *memoryBookings) status(id int64) models.BookingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id].Status
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) VerifySeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error) {
	args := m.Called("verify", showID, seatIDs)
	seats, _ := args.Get(0).([]external.SeatInfo)
	return seats, args.Error(1)
}

func (m *mockInventory) LockSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error) {
	args := m.Called("lock", showID, seatIDs)
	seats, _ := args.Get(0).([]external.SeatInfo)
	return seats, args.Error(1)
}

func (m *mockInventory) ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error) {
	args := m.Called("release", showID, seatIDs)
	seats, _ := args.Get(0).([]external.SeatInfo)
	return seats, args.Error(1)
}

func (m *mockInventory) BookSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error) {
	args := m.Called("book", showID, seatIDs)
	seats, _ := args.Get(0).([]external.SeatInfo)
	return seats, args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) CreateCheckoutSession(ctx context.Context, bookingID, userID int64, amount float64) (*external.CheckoutSession, error) {
	args := m.Called(bookingID, userID, amount)
	session, _ := args.Get(0).(*external.CheckoutSession)
	return session, args.Error(1)
}

type mockPoller struct{ mock.Mock }

func (m *mockPoller) Poll(ctx context.Context, sessionID string) (*external.PaymentStatus, error) {
	args := m.Called(sessionID)
	status, _ := args.Get(0).(*external.PaymentStatus)
	return status, args.Error(1)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []models.BookingEvent
	order  *callOrder
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event models.BookingEvent) {
	if d.order != nil {
		d.order.add("event:" + string(event.Type))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) all() []models.BookingEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.BookingEvent(nil), d.events...)
}
