package dispatch

import (
	"context"
	"fmt"
	"time"

	"bookticket/internal/logger"
	"bookticket/internal/metrics"
	"bookticket/internal/models"
)

// Publisher is the primary asynchronous channel
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Notifier is the synchronous fallback channel
type Notifier interface {
	PostBookingSuccess(ctx context.Context, event models.BookingSuccessEvent) error
	PostBookingFailure(ctx context.Context, event models.BookingFailedEvent) error
}

// DeadLetterWriter persists events whose delivery was given up
type DeadLetterWriter interface {
	Store(ctx context.Context, event models.BookingEvent, cause error) error
}

type Recorder interface {
	Delivery(channel string, err error)
	DeadLettered(eventType string)
	CallerRuns()
}

type Config struct {
	Pool            PoolConfig
	Retry           Policy
	DeliveryTimeout time.Duration
	ShutdownTimeout time.Duration
}

// Dispatcher delivers booking events off the caller's path
type Dispatcher struct {
	publisher  Publisher
	notifier   Notifier
	deadLetter DeadLetterWriter
	recorder   Recorder
	policy     Policy
	timeout    time.Duration
	drain      time.Duration
	pool       *Pool
}

func NewDispatcher(cfg Config, publisher Publisher, notifier Notifier, deadLetter DeadLetterWriter, recorder Recorder) *Dispatcher {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultPolicy()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 60 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Dispatcher{
		publisher:  publisher,
		notifier:   notifier,
		deadLetter: deadLetter,
		recorder:   recorder,
		policy:     cfg.Retry,
		timeout:    cfg.DeliveryTimeout,
		drain:      cfg.ShutdownTimeout,
		pool:       NewPool(cfg.Pool, recorder.CallerRuns),
	}
}

// Dispatch hands the event to the pool and returns; failures end in the dead letter store
func (d *Dispatcher) Dispatch(ctx context.Context, event models.BookingEvent) {
	detached := context.WithoutCancel(ctx)
	d.pool.Submit(func() {
		d.deliverWithRetry(detached, event)
	})
}

// Deliver makes one primary attempt and, on failure, one fallback attempt
func (d *Dispatcher) Deliver(ctx context.Context, event models.BookingEvent) error {
	log := logger.WithContext(ctx).With("booking_id", event.BookingID, "event_type", event.Type)

	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	primaryErr := d.publisher.Publish(pubCtx, event.Topic(), event.Payload())
	cancel()
	d.recorder.Delivery(metrics.ChannelBus, primaryErr)
	if primaryErr == nil {
		log.Debug("Booking event published", "topic", event.Topic())
		return nil
	}
	log.Warn("Message bus publish failed, using notification fallback", "error", primaryErr)

	notifyCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var fallbackErr error
	if event.Type == models.EventTypeBookingSuccess {
		fallbackErr = d.notifier.PostBookingSuccess(notifyCtx, event.SuccessPayload())
	} else {
		fallbackErr = d.notifier.PostBookingFailure(notifyCtx, event.FailedPayload())
	}
	d.recorder.Delivery(metrics.ChannelNotification, fallbackErr)
	if fallbackErr == nil {
		log.Info("Booking event delivered through notification fallback")
		return nil
	}

	return fmt.Errorf("primary: %v; fallback: %w", primaryErr, fallbackErr)
}

// Shutdown drains queued deliveries, waiting at most ShutdownTimeout or until ctx is done
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.drain)
	defer cancel()
	return d.pool.Shutdown(ctx)
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, event models.BookingEvent) {
	err := Retry(ctx, d.policy, func(ctx context.Context) error {
		return d.Deliver(ctx, event)
	})
	if err != nil {
		d.recover(ctx, event, err)
	}
}

// recover only records the event for later reconciliation
func (d *Dispatcher) recover(ctx context.Context, event models.BookingEvent, cause error) {
	log := logger.WithContext(ctx).With("booking_id", event.BookingID, "event_type", event.Type)
	log.Error("Booking event delivery exhausted, dead-lettering", "attempts", d.policy.Attempts, "error", cause)

	if err := d.deadLetter.Store(ctx, event, cause); err != nil {
		log.Error("Failed to store dead-lettered booking event", "error", err)
		return
	}
	d.recorder.DeadLettered(string(event.Type))
}

type nopRecorder struct{}

func (nopRecorder) Delivery(string, error) {}
func (nopRecorder) DeadLettered(string)    {}
func (nopRecorder) CallerRuns()            {}
