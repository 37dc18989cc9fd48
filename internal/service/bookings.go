package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/external"
	"bookticket/internal/logger"
	"bookticket/internal/metrics"
	"bookticket/internal/models"
)

const (
	phaseCreate = "create"
	phaseVerify = "verify"

	compensationTimeout = 30 * time.Second
)

// Failure reasons carried by booking_failed events
const (
	reasonSeatsUnavailable = "Seats no longer available"
	reasonPaymentSession   = "Failed to create payment session"
	reasonPaymentFailed    = "Payment failed"
	reasonPaymentTimeout   = "Payment verification timeout"
	reasonPaymentMismatch  = "Payment does not match booking"
)

type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.BookingStatus) error
	AddSeats(ctx context.Context, bookingID int64, seats []models.BookingSeat) ([]models.BookingSeat, error)
	GetSeats(ctx context.Context, bookingID int64) ([]models.BookingSeat, error)
}

type SeatLocker interface {
	Acquire(ctx context.Context, showID int64, seatIDs []int64, bookingID int64) ([]string, error)
	Release(ctx context.Context, bookingID int64, keys []string) error
	ReleaseByIDs(ctx context.Context, showID int64, seatIDs []int64, bookingID int64) error
}

type Inventory interface {
	VerifySeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error)
	LockSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error)
	ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error)
	BookSeats(ctx context.Context, showID int64, seatIDs []int64) ([]external.SeatInfo, error)
}

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, bookingID, userID int64, amount float64) (*external.CheckoutSession, error)
}

type PaymentPoller interface {
	Poll(ctx context.Context, sessionID string) (*external.PaymentStatus, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, event models.BookingEvent)
}

type SagaRecorder interface {
	SagaOutcome(phase, outcome string)
	PollDuration(seconds float64)
}

// Deps are the collaborators of the booking saga
type Deps struct {
	Bookings  BookingStore
	Locks     SeatLocker
	Inventory Inventory
	Payments  CheckoutCreator
	Poller    PaymentPoller
	Events    EventDispatcher
	Metrics   SagaRecorder
}

// BookingService runs the booking saga: verify, persist, lock, request
// payment, and later confirm or compensate.
type BookingService struct {
	deps Deps
}

func NewBookingService(deps Deps) *BookingService {
	return &BookingService{deps: deps}
}

type stepOutcome int

const (
	stepOK stepOutcome = iota
	stepConflict
	stepPaymentFailed
	stepUpstream
	stepTimeout
	stepSystem
)

func (o stepOutcome) metricLabel() string {
	switch o {
	case stepConflict:
		return metrics.OutcomeConflict
	case stepPaymentFailed:
		return metrics.OutcomePayment
	case stepUpstream:
		return metrics.OutcomeUpstream
	case stepTimeout:
		return metrics.OutcomeTimeout
	case stepSystem:
		return metrics.OutcomeSystem
	default:
		return "ok"
	}
}

// stepResult is the tagged result of one saga step
type stepResult struct {
	outcome stepOutcome
	err     error
}

func okResult() stepResult { return stepResult{outcome: stepOK} }

func resultOf(err error) stepResult {
	if err == nil {
		return okResult()
	}

	var conflict *apperrors.SeatLockConflictError
	var payment *apperrors.PaymentFailureError
	var timeout *apperrors.PollingTimeoutError
	var upstream *apperrors.UpstreamServiceError

	switch {
	case errors.As(err, &conflict):
		return stepResult{outcome: stepConflict, err: err}
	case errors.As(err, &payment):
		return stepResult{outcome: stepPaymentFailed, err: err}
	case errors.As(err, &timeout):
		return stepResult{outcome: stepTimeout, err: err}
	case errors.As(err, &upstream):
		return stepResult{outcome: stepUpstream, err: err}
	default:
		return stepResult{outcome: stepSystem, err: err}
	}
}

// held tracks what a booking currently owns so compensation can undo it
type held struct {
	booking   *models.Booking
	seatIDs   []int64
	lockKeys  []string
	inventory bool
}

// Create starts the saga and pauses once a payment session exists
func (s *BookingService) Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	// steps run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx).With("show_id", req.ShowID)
	log.Info("Creating booking", "seats", len(req.SeatIDs))

	seats, res := s.verifySeats(ctx, req)
	if res.outcome != stepOK {
		s.record(phaseCreate, res.outcome)
		log.Warn("Seat verification failed", "error", res.err)
		return nil, res.err
	}

	booking := &models.Booking{
		UserID:      userID,
		ShowID:      req.ShowID,
		TotalAmount: totalAmount(seats),
		Status:      models.BookingPending,
	}
	if err := s.deps.Bookings.Create(ctx, booking); err != nil {
		s.record(phaseCreate, stepSystem)
		return nil, apperrors.NewSystem("failed to create booking due to system error", err)
	}
	log = log.With("booking_id", booking.ID)
	log.Info("Created pending booking", "total_amount", booking.TotalAmount)

	h := &held{booking: booking, seatIDs: seatIDsOf(seats)}

	keys, err := s.deps.Locks.Acquire(ctx, booking.ShowID, h.seatIDs, booking.ID)
	res = resultOf(err)
	switch res.outcome {
	case stepOK:
		h.lockKeys = keys
	case stepConflict:
		// nothing is held after a refused acquisition
		s.record(phaseCreate, res.outcome)
		s.compensate(ctx, h, reasonSeatsUnavailable)
		return nil, res.err
	default:
		s.record(phaseCreate, res.outcome)
		s.compensate(ctx, h, res.err.Error())
		return nil, apperrors.NewSystem("failed to create booking due to system error", res.err)
	}

	saved, res := s.reserve(ctx, h, seats)
	if res.outcome != stepOK {
		s.record(phaseCreate, res.outcome)
		log.Error("Failed to reserve seats", "error", res.err)
		s.compensate(ctx, h, res.err.Error())
		return nil, apperrors.NewSystem("failed to create booking due to system error", res.err)
	}

	session, err := s.deps.Payments.CreateCheckoutSession(ctx, booking.ID, userID, booking.TotalAmount)
	if res = resultOf(err); res.outcome != stepOK {
		s.record(phaseCreate, res.outcome)
		log.Error("Failed to create checkout session", "error", res.err)
		s.compensate(ctx, h, reasonPaymentSession)
		return nil, apperrors.NewSystem("failed to create payment session", res.err)
	}

	s.record(phaseCreate, stepOK)
	log.Info("Booking awaiting payment", "session_id", session.SessionID)

	return &models.CreateBookingResponse{
		BookingID:        booking.ID,
		UserID:           booking.UserID,
		ShowID:           booking.ShowID,
		TotalAmount:      booking.TotalAmount,
		Status:           booking.Status,
		Seats:            toSeatResponses(saved),
		PaymentSessionID: session.SessionID,
		PaymentURL:       session.PaymentURL,
		PaymentExpiresAt: session.ExpiresAt,
	}, nil
}

// VerifyAndComplete resumes a PENDING booking after the user paid. A booking
// that is no longer PENDING is returned unchanged with no side effects.
func (s *BookingService) VerifyAndComplete(ctx context.Context, bookingID int64, sessionID string) (*models.BookingStatusResponse, error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx).With("booking_id", bookingID, "session_id", sessionID)

	booking, seats, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != models.BookingPending {
		log.Warn("Booking already resolved, skipping verification", "status", booking.Status)
		return statusResponse(booking, seats), nil
	}

	h := &held{booking: booking, seatIDs: seatIDsFromLines(seats), inventory: true}

	started := time.Now()
	payment, err := s.deps.Poller.Poll(ctx, sessionID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.PollDuration(time.Since(started).Seconds())
	}

	res := resultOf(err)
	if res.outcome == stepOK {
		res = checkPayment(booking, payment)
	}

	switch res.outcome {
	case stepOK:
		return s.confirm(ctx, h, seats)

	case stepPaymentFailed:
		s.record(phaseVerify, res.outcome)
		reason := reasonPaymentFailed
		var failure *apperrors.PaymentFailureError
		if errors.As(res.err, &failure) && failure.Message != "" {
			reason = failure.Message
		}
		if payment != nil {
			log = log.With("payment_booking_id", payment.BookingID, "paid_amount", payment.Amount)
		}
		log.Warn("Payment failed", "error", res.err, "total_amount", booking.TotalAmount)
		s.compensate(ctx, h, reason)
		return nil, res.err

	case stepTimeout:
		s.record(phaseVerify, res.outcome)
		log.Warn("Payment verification timed out", "error", res.err)
		s.compensate(ctx, h, reasonPaymentTimeout)
		return nil, &apperrors.PaymentFailureError{Message: res.err.Error(), Status: "TIMEOUT"}

	default:
		s.record(phaseVerify, res.outcome)
		log.Error("Payment verification failed", "error", res.err)
		s.compensate(ctx, h, res.err.Error())
		return nil, apperrors.NewSystem("failed to verify booking payment due to system error", res.err)
	}
}

// paymentMatchTolerance absorbs float rounding on amounts kept in major units
const paymentMatchTolerance = 0.005

// checkPayment turns a settled payment into a step result. A completed payment
// only counts when it was made for this booking and for its full amount.
func checkPayment(booking *models.Booking, payment *external.PaymentStatus) stepResult {
	if payment == nil {
		return stepResult{outcome: stepSystem, err: errors.New("payment status response was empty")}
	}
	if payment.IsFailed() {
		return stepResult{outcome: stepPaymentFailed, err: &apperrors.PaymentFailureError{
			Message:       payment.Message,
			Status:        payment.PaymentStatus,
			TransactionID: payment.TransactionID,
		}}
	}

	if payment.BookingID != booking.ID || math.Abs(payment.Amount-booking.TotalAmount) > paymentMatchTolerance {
		return stepResult{outcome: stepPaymentFailed, err: &apperrors.PaymentFailureError{
			Message:       reasonPaymentMismatch,
			Status:        "MISMATCH",
			TransactionID: payment.TransactionID,
		}}
	}

	return okResult()
}

// Get returns the current state of a booking
func (s *BookingService) Get(ctx context.Context, bookingID int64) (*models.BookingStatusResponse, error) {
	booking, seats, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return statusResponse(booking, seats), nil
}

// SeatDetails lists the persisted seat lines of a booking
func (s *BookingService) SeatDetails(ctx context.Context, bookingID int64) ([]models.SeatDetailsResponse, error) {
	_, seats, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	details := make([]models.SeatDetailsResponse, len(seats))
	for i, seat := range seats {
		details[i] = models.SeatDetailsResponse{
			SeatID:     seat.SeatID,
			SeatNumber: seat.SeatNumber,
			SeatType:   seat.SeatType,
			Price:      seat.Price,
		}
	}
	return details, nil
}

func (s *BookingService) verifySeats(ctx context.Context, req *models.CreateBookingRequest) ([]external.SeatInfo, stepResult) {
	seats, err := s.deps.Inventory.VerifySeats(ctx, req.ShowID, req.SeatIDs)
	if err != nil {
		return nil, resultOf(err)
	}

	for _, seat := range seats {
		if !seat.IsAvailable {
			return nil, resultOf(&apperrors.SeatLockConflictError{ShowID: req.ShowID, SeatID: seat.SeatID})
		}
	}
	return seats, okResult()
}

// reserve marks seats locked in inventory and persists the seat lines
func (s *BookingService) reserve(ctx context.Context, h *held, seats []external.SeatInfo) ([]models.BookingSeat, stepResult) {
	// a failed call may still have been applied on the inventory side
	h.inventory = true
	if _, err := s.deps.Inventory.LockSeats(ctx, h.booking.ShowID, h.seatIDs); err != nil {
		return nil, resultOf(err)
	}

	lines := make([]models.BookingSeat, len(seats))
	for i, seat := range seats {
		lines[i] = models.BookingSeat{
			SeatID:     seat.SeatID,
			SeatNumber: seat.SeatNumber,
			SeatType:   seat.SeatType,
			Price:      seat.SeatPrice,
		}
	}

	saved, err := s.deps.Bookings.AddSeats(ctx, h.booking.ID, lines)
	if err != nil {
		return nil, resultOf(fmt.Errorf("failed to save booking seats: %w", err))
	}
	return saved, okResult()
}

// confirm finalizes the seats before writing CONFIRMED so a failure can still compensate
func (s *BookingService) confirm(ctx context.Context, h *held, seats []models.BookingSeat) (*models.BookingStatusResponse, error) {
	booking := h.booking
	log := logger.WithContext(ctx).With("booking_id", booking.ID)

	if _, err := s.deps.Inventory.BookSeats(ctx, booking.ShowID, h.seatIDs); err != nil {
		res := resultOf(err)
		s.record(phaseVerify, res.outcome)
		log.Error("Failed to finalize seats in inventory", "error", err)
		s.compensate(ctx, h, err.Error())
		return nil, apperrors.NewSystem("failed to verify booking payment due to system error", err)
	}

	err := s.deps.Bookings.UpdateStatus(ctx, booking.ID, models.BookingPending, models.BookingConfirmed)
	if errors.Is(err, apperrors.ErrInvalidTransition) {
		// resolved by a concurrent verification
		current, lines, loadErr := s.load(ctx, booking.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		log.Warn("Booking resolved concurrently", "status", current.Status)
		return statusResponse(current, lines), nil
	}
	if err != nil {
		s.record(phaseVerify, stepSystem)
		log.Error("Failed to confirm booking", "error", err)
		s.compensate(ctx, h, err.Error())
		return nil, apperrors.NewSystem("failed to verify booking payment due to system error", err)
	}
	booking.Status = models.BookingConfirmed

	if err := s.deps.Locks.ReleaseByIDs(ctx, booking.ShowID, h.seatIDs, booking.ID); err != nil {
		log.Error("Failed to release seat locks after confirmation", "error", err)
	}

	s.deps.Events.Dispatch(ctx, models.NewSuccessEvent(booking))
	s.record(phaseVerify, stepOK)
	log.Info("Booking confirmed")

	return statusResponse(booking, seats), nil
}

// compensate releases locks, then the inventory hold, then marks the booking
// FAILED and emits the failure event. Its own failures are only logged.
func (s *BookingService) compensate(ctx context.Context, h *held, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	booking := h.booking
	log := logger.WithContext(ctx).With("booking_id", booking.ID, "reason", reason)
	log.Warn("Compensating booking")

	if len(h.lockKeys) > 0 {
		if err := s.deps.Locks.Release(ctx, booking.ID, h.lockKeys); err != nil {
			log.Error("Compensation: failed to release seat locks", "error", err)
		}
	} else if h.inventory {
		if err := s.deps.Locks.ReleaseByIDs(ctx, booking.ShowID, h.seatIDs, booking.ID); err != nil {
			log.Error("Compensation: failed to release seat locks", "error", err)
		}
	}

	if h.inventory {
		if _, err := s.deps.Inventory.ReleaseSeats(ctx, booking.ShowID, h.seatIDs); err != nil {
			log.Error("Compensation: failed to release inventory hold", "error", err)
		}
	}

	if err := s.deps.Bookings.UpdateStatus(ctx, booking.ID, models.BookingPending, models.BookingFailed); err != nil {
		log.Error("Compensation: failed to mark booking FAILED", "error", err)
	} else {
		booking.Status = models.BookingFailed
	}

	s.deps.Events.Dispatch(ctx, models.NewFailedEvent(booking, reason))
}

func (s *BookingService) load(ctx context.Context, bookingID int64) (*models.Booking, []models.BookingSeat, error) {
	booking, err := s.deps.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, apperrors.NewSystem("failed to load booking", err)
	}
	if booking == nil {
		return nil, nil, apperrors.ErrBookingNotFound
	}

	seats, err := s.deps.Bookings.GetSeats(ctx, bookingID)
	if err != nil {
		return nil, nil, apperrors.NewSystem("failed to load booking seats", err)
	}
	return booking, seats, nil
}

func (s *BookingService) record(phase string, outcome stepOutcome) {
	if s.deps.Metrics == nil {
		return
	}
	label := outcome.metricLabel()
	if outcome == stepOK {
		label = metrics.OutcomeConfirmed
		if phase == phaseCreate {
			label = metrics.OutcomePending
		}
	}
	s.deps.Metrics.SagaOutcome(phase, label)
}

// totalAmount uses inventory prices only; the client never supplies one
func totalAmount(seats []external.SeatInfo) float64 {
	var total float64
	for _, seat := range seats {
		total += seat.SeatPrice
	}
	return total
}

func seatIDsOf(seats []external.SeatInfo) []int64 {
	ids := make([]int64, len(seats))
	for i, seat := range seats {
		ids[i] = seat.SeatID
	}
	return ids
}

func seatIDsFromLines(seats []models.BookingSeat) []int64 {
	ids := make([]int64, len(seats))
	for i, seat := range seats {
		ids[i] = seat.SeatID
	}
	return ids
}

func toSeatResponses(seats []models.BookingSeat) []models.BookingSeatResponse {
	out := make([]models.BookingSeatResponse, len(seats))
	for i, seat := range seats {
		out[i] = models.BookingSeatResponse{
			BookingSeatID: seat.ID,
			SeatID:        seat.SeatID,
			SeatNumber:    seat.SeatNumber,
			SeatType:      seat.SeatType,
			Price:         seat.Price,
		}
	}
	return out
}

func statusResponse(booking *models.Booking, seats []models.BookingSeat) *models.BookingStatusResponse {
	return &models.BookingStatusResponse{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		ShowID:      booking.ShowID,
		TotalAmount: booking.TotalAmount,
		Status:      booking.Status,
		Seats:       toSeatResponses(seats),
	}
}
