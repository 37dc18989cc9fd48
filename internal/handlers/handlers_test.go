package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/middleware"
	"bookticket/internal/models"
	"bookticket/internal/search"
	"bookticket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSaga struct {
	mock.Mock
}

func (m *mockSaga) Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	args := m.Called(userID, req)
	resp, _ := args.Get(0).(*models.CreateBookingResponse)
	return resp, args.Error(1)
}

func (m *mockSaga) VerifyAndComplete(ctx context.Context, bookingID int64, sessionID string) (*models.BookingStatusResponse, error) {
	args := m.Called(bookingID, sessionID)
	resp, _ := args.Get(0).(*models.BookingStatusResponse)
	return resp, args.Error(1)
}

func (m *mockSaga) Get(ctx context.Context, bookingID int64) (*models.BookingStatusResponse, error) {
	args := m.Called(bookingID)
	resp, _ := args.Get(0).(*models.BookingStatusResponse)
	return resp, args.Error(1)
}

func (m *mockSaga) SeatDetails(ctx context.Context, bookingID int64) ([]models.SeatDetailsResponse, error) {
	args := m.Called(bookingID)
	resp, _ := args.Get(0).([]models.SeatDetailsResponse)
	return resp, args.Error(1)
}

type mockDeadLetters struct {
	mock.Mock
}

func (m *mockDeadLetters) PendingRetryable(ctx context.Context, limit int) ([]models.FailedEvent, error) {
	args := m.Called(limit)
	events, _ := args.Get(0).([]models.FailedEvent)
	return events, args.Error(1)
}

func (m *mockDeadLetters) Failed(ctx context.Context) ([]models.FailedEvent, error) {
	args := m.Called()
	events, _ := args.Get(0).([]models.FailedEvent)
	return events, args.Error(1)
}

func (m *mockDeadLetters) ByBooking(ctx context.Context, bookingID int64) (*models.BookingDLQStats, error) {
	args := m.Called(bookingID)
	stats, _ := args.Get(0).(*models.BookingDLQStats)
	return stats, args.Error(1)
}

func (m *mockDeadLetters) Stats(ctx context.Context) (*models.DLQStats, error) {
	args := m.Called()
	stats, _ := args.Get(0).(*models.DLQStats)
	return stats, args.Error(1)
}

func (m *mockDeadLetters) ForceProcessed(ctx context.Context, id int64) (*models.FailedEvent, error) {
	args := m.Called(id)
	event, _ := args.Get(0).(*models.FailedEvent)
	return event, args.Error(1)
}

func (m *mockDeadLetters) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	args := m.Called(q)
	result, _ := args.Get(0).(*search.Result)
	return result, args.Error(1)
}

func setupRouter(saga *mockSaga, dlq *mockDeadLetters) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1", middleware.Identity(middleware.IdentityConfig{}))
	NewHandlers(saga, dlq).RegisterRoutes(api)

	return r
}

func doRequest(r *gin.Engine, method, path string, body any, userID, role string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateBooking(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	req := &models.CreateBookingRequest{ShowID: 1, SeatIDs: []int64{10, 11}}
	saga.On("Create", int64(42), req).Return(&models.CreateBookingResponse{
		BookingID:        7,
		UserID:           42,
		Status:           models.BookingPending,
		PaymentSessionID: "sess-1",
		PaymentURL:       "https://pay.example/sess-1",
	}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/bookings", req, "42", "")

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp models.CreateBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.BookingID)
	assert.Equal(t, "sess-1", resp.PaymentSessionID)
	saga.AssertExpectations(t)
}

func TestCreateBookingValidation(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	tests := []struct {
		name string
		body any
	}{
		{"missing seats", map[string]any{"show_id": 1}},
		{"empty seats", map[string]any{"show_id": 1, "seat_ids": []int64{}}},
		{"non-positive seat", map[string]any{"show_id": 1, "seat_ids": []int64{0}}},
		{"duplicate seat", map[string]any{"show_id": 1, "seat_ids": []int64{5, 5}}},
		{"missing show", map[string]any{"seat_ids": []int64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/v1/bookings", tt.body, "42", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	saga.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateBookingRequiresIdentity(t *testing.T) {
	r := setupRouter(&mockSaga{}, &mockDeadLetters{})

	w := doRequest(r, http.MethodPost, "/api/v1/bookings", map[string]any{"show_id": 1, "seat_ids": []int64{1}}, "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateBookingErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"seat conflict", &apperrors.SeatLockConflictError{ShowID: 1, SeatID: 10}, http.StatusConflict, codeSeatLockConflict},
		{"no valid seats", apperrors.NewUpstream("inventory", "verify seats", 0, apperrors.ErrNoValidSeats), http.StatusBadRequest, codeNoValidSeats},
		{"upstream", apperrors.NewUpstream("inventory", "verify seats", 503, nil), http.StatusInternalServerError, codeInternal},
		{"system", apperrors.NewSystem("failed to create payment session", errors.New("boom")), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saga := &mockSaga{}
			r := setupRouter(saga, &mockDeadLetters{})
			saga.On("Create", int64(42), mock.Anything).Return(nil, tt.err)

			w := doRequest(r, http.MethodPost, "/api/v1/bookings", map[string]any{"show_id": 1, "seat_ids": []int64{10}}, "42", "")

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.ErrorCode)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, genericErrorMessage, resp.Error)
			}
		})
	}
}

func TestVerifyBooking(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	saga.On("Get", int64(7)).Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42, Status: models.BookingPending}, nil)
	saga.On("VerifyAndComplete", int64(7), "sess-1").Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42, Status: models.BookingConfirmed}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/bookings/7/verify?sessionId=sess-1", nil, "42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.BookingStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.BookingConfirmed, resp.Status)
	saga.AssertExpectations(t)
}

func TestVerifyBookingPaymentFailure(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	saga.On("Get", int64(7)).Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42}, nil)
	saga.On("VerifyAndComplete", int64(7), "sess-1").Return(nil, &apperrors.PaymentFailureError{
		Message:       "card declined",
		Status:        "FAILED",
		TransactionID: "tx-9",
	})

	w := doRequest(r, http.MethodPost, "/api/v1/bookings/7/verify?sessionId=sess-1", nil, "42", "")

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, codePaymentFailed, resp.ErrorCode)
	assert.Equal(t, "card declined", resp.Error)
	assert.Equal(t, "FAILED", resp.PaymentStatus)
	assert.Equal(t, "tx-9", resp.TransactionID)
}

func TestVerifyBookingRequiresSession(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	w := doRequest(r, http.MethodPost, "/api/v1/bookings/7/verify", nil, "42", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	saga.AssertNotCalled(t, "VerifyAndComplete", mock.Anything, mock.Anything)
}

func TestVerifyBookingOfAnotherUser(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	saga.On("Get", int64(7)).Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/bookings/7/verify?sessionId=sess-1", nil, "43", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	saga.AssertNotCalled(t, "VerifyAndComplete", mock.Anything, mock.Anything)
}

func TestGetBooking(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	saga.On("Get", int64(7)).Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42, Status: models.BookingFailed}, nil)
	saga.On("Get", int64(8)).Return(nil, apperrors.ErrBookingNotFound)

	t.Run("owner", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/bookings/7", nil, "42", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("admin", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/bookings/7", nil, "1", "admin")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("stranger", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/bookings/7", nil, "43", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/bookings/8", nil, "42", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, codeNotFound, decodeError(t, w).ErrorCode)
	})

	t.Run("bad id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/bookings/abc", nil, "42", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetBookingSeats(t *testing.T) {
	saga := &mockSaga{}
	r := setupRouter(saga, &mockDeadLetters{})

	saga.On("Get", int64(7)).Return(&models.BookingStatusResponse{BookingID: 7, UserID: 42}, nil)
	saga.On("SeatDetails", int64(7)).Return([]models.SeatDetailsResponse{
		{SeatID: 10, SeatNumber: "A1", SeatType: "VIP", Price: 120},
	}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/bookings/7/seats", nil, "42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var seats []models.SeatDetailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seats))
	require.Len(t, seats, 1)
	assert.Equal(t, "A1", seats[0].SeatNumber)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/stats", nil, "42", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	dlq.AssertNotCalled(t, "Stats")
}

func TestListPendingEvents(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	dlq.On("PendingRetryable", pendingListLimit).Return(nil, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/pending", nil, "1", "ADMIN")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListFailedEvents(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	dlq.On("Failed").Return([]models.FailedEvent{
		{ID: 3, BookingID: 7, EventType: models.EventTypeBookingFailed, Status: models.FailedEventFailed},
	}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/failed", nil, "1", "ADMIN")

	assert.Equal(t, http.StatusOK, w.Code)
	var events []models.FailedEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, models.FailedEventFailed, events[0].Status)
}

func TestDLQStats(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	dlq.On("Stats").Return(&models.DLQStats{PendingCount: 2, FailedCount: 1, TotalCount: 5}, nil)
	dlq.On("ByBooking", int64(7)).Return(&models.BookingDLQStats{BookingID: 7, PendingCount: 1}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/stats", nil, "1", "ADMIN")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pending_count":2,"failed_count":1,"total_count":5}`, w.Body.String())

	w = doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/booking/7", nil, "1", "ADMIN")
	assert.Equal(t, http.StatusOK, w.Code)
	var stats models.BookingDLQStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.PendingCount)
}

func TestMarkEventProcessed(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	dlq.On("ForceProcessed", int64(3)).Return(&models.FailedEvent{ID: 3, Status: models.FailedEventProcessed}, nil)
	dlq.On("ForceProcessed", int64(4)).Return(nil, apperrors.ErrFailedEventNotFound)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/booking-dlq/3/mark-processed", nil, "1", "ADMIN")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/admin/booking-dlq/4/mark-processed", nil, "1", "ADMIN")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEvents(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	want := search.Query{Text: "timeout", Status: models.FailedEventPending, BookingID: 7, From: 0, Size: 20}
	dlq.On("Search", want).Return(&search.Result{Total: 1, Events: []models.FailedEvent{{ID: 3}}}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/search?q=timeout&status=PENDING&bookingId=7", nil, "1", "ADMIN")

	assert.Equal(t, http.StatusOK, w.Code)
	dlq.AssertExpectations(t)
}

func TestSearchEventsDisabled(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	dlq.On("Search", mock.Anything).Return(nil, service.ErrSearchDisabled)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/search?q=x", nil, "1", "ADMIN")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearchEventsRejectsBadPaging(t *testing.T) {
	dlq := &mockDeadLetters{}
	r := setupRouter(&mockSaga{}, dlq)

	w := doRequest(r, http.MethodGet, "/api/v1/admin/booking-dlq/search?size=1000", nil, "1", "ADMIN")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	dlq.AssertNotCalled(t, "Search", mock.Anything)
}
