package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bookticket/internal/models"
)

type ReconcilerConfig struct {
	Enabled      bool
	InitialDelay time.Duration
	Interval     time.Duration
	BatchSize    int
	// EventTimeout bounds the delivery and bookkeeping of one claimed event;
	// it must stay below ClaimLease
	EventTimeout time.Duration
	ClaimLease   time.Duration
}

// DeadLetters is the slice of the dead letter store the reconciler needs
type DeadLetters interface {
	PendingRetryable(ctx context.Context, limit int) ([]models.FailedEvent, error)
	Claim(ctx context.Context, id int64) (bool, error)
	MarkProcessed(ctx context.Context, id int64) error
	RecordRetryFailure(ctx context.Context, id int64, cause error) (*models.FailedEvent, error)
}

// Deliverer makes one primary plus fallback delivery attempt
type Deliverer interface {
	Deliver(ctx context.Context, event models.BookingEvent) error
}

type SweepRecorder interface {
	ReconcilerSweep(skipped bool)
	ReconcilerEvent(result string)
}

// SweepResult summarizes one reconciliation pass
type SweepResult struct {
	Found     int
	Processed int
	Failed    int
	Skipped   int
}

// DLQReconciler periodically redelivers dead-lettered booking events.
// Sweeps never overlap; a tick that arrives during a sweep is dropped.
type DLQReconciler struct {
	deadLetters DeadLetters
	deliverer   Deliverer
	recorder    SweepRecorder
	cfg         ReconcilerConfig

	running atomic.Bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewDLQReconciler(cfg ReconcilerConfig, deadLetters DeadLetters, deliverer Deliverer, recorder SweepRecorder) *DLQReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 30 * time.Second
	}
	if cfg.ClaimLease > 0 && cfg.EventTimeout >= cfg.ClaimLease {
		cfg.EventTimeout = cfg.ClaimLease / 2
	}

	return &DLQReconciler{
		deadLetters: deadLetters,
		deliverer:   deliverer,
		recorder:    recorder,
		cfg:         cfg,
		done:        make(chan struct{}),
	}
}

// Start runs the first sweep after InitialDelay and then every Interval until Stop or ctx is done
func (j *DLQReconciler) Start(ctx context.Context) {
	slog.Info("Starting DLQ reconciler", "initial_delay", j.cfg.InitialDelay, "interval", j.cfg.Interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		initial := time.NewTimer(j.cfg.InitialDelay)
		defer initial.Stop()

		select {
		case <-initial.C:
		case <-j.done:
			return
		case <-ctx.Done():
			return
		}

		j.tick(ctx)

		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.tick(ctx)
			case <-j.done:
				slog.Info("DLQ reconciler stopped")
				return
			case <-ctx.Done():
				slog.Info("DLQ reconciler stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep
func (j *DLQReconciler) Stop() {
	j.once.Do(func() { close(j.done) })
	j.wg.Wait()
}

func (j *DLQReconciler) tick(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if _, ran := j.RunOnce(ctx); !ran {
			slog.Warn("Skipping DLQ sweep, previous sweep still running")
		}
	}()
}

// RunOnce performs a single sweep unless one is already running; ran reports whether it did
func (j *DLQReconciler) RunOnce(ctx context.Context) (result SweepResult, ran bool) {
	if !j.running.CompareAndSwap(false, true) {
		j.recordSweep(true)
		return result, false
	}
	defer j.running.Store(false)
	j.recordSweep(false)

	events, err := j.deadLetters.PendingRetryable(ctx, j.cfg.BatchSize)
	if err != nil {
		slog.Error("Failed to load pending dead-lettered events", "error", err)
		return result, true
	}

	result.Found = len(events)
	if len(events) == 0 {
		slog.Debug("No dead-lettered events to reconcile")
		return result, true
	}

	slog.Info("Reconciling dead-lettered events", "count", len(events))

	for i := range events {
		if ctx.Err() != nil {
			break
		}
		switch j.reconcile(ctx, &events[i]) {
		case outcomeProcessed:
			result.Processed++
		case outcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	slog.Info("DLQ sweep finished",
		"found", result.Found,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, true
}

const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

// reconcile handles one event; its errors never escape the sweep
func (j *DLQReconciler) reconcile(ctx context.Context, event *models.FailedEvent) (outcome string) {
	log := slog.With("event_id", event.ID, "booking_id", event.BookingID, "event_type", event.EventType)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while reconciling dead-lettered event", "panic", r)
			outcome = outcomeFailed
		}
		j.recordEvent(outcome)
	}()

	claimed, err := j.deadLetters.Claim(ctx, event.ID)
	if err != nil {
		log.Error("Failed to claim dead-lettered event", "error", err)
		return outcomeSkipped
	}
	if !claimed {
		log.Debug("Dead-lettered event already claimed")
		return outcomeSkipped
	}

	// a claimed event is always settled, even when the sweep is being stopped
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.EventTimeout)
	defer cancel()

	if err := j.deliverer.Deliver(ctx, event.ToBookingEvent()); err != nil {
		log.Warn("Redelivery of dead-lettered event failed", "retry_count", event.RetryCount, "error", err)
		if _, recErr := j.deadLetters.RecordRetryFailure(ctx, event.ID, err); recErr != nil {
			log.Error("Failed to record retry failure", "error", recErr)
		}
		return outcomeFailed
	}

	if err := j.deadLetters.MarkProcessed(ctx, event.ID); err != nil {
		log.Error("Event redelivered but could not be marked processed", "error", err)
		return outcomeFailed
	}

	log.Info("Dead-lettered event redelivered")
	return outcomeProcessed
}

func (j *DLQReconciler) recordSweep(skipped bool) {
	if j.recorder != nil {
		j.recorder.ReconcilerSweep(skipped)
	}
}

func (j *DLQReconciler) recordEvent(result string) {
	if j.recorder != nil {
		j.recorder.ReconcilerEvent(result)
	}
}
