package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SeatLockConflict()
	m.SeatLockConflict()
	m.SagaOutcome("create", OutcomeConflict)
	m.Delivery(ChannelBus, errors.New("down"))
	m.Delivery(ChannelNotification, nil)
	m.DeadLettered("BOOKING_FAILED")
	m.CallerRuns()
	m.ReconcilerSweep(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.seatLockConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sagaOutcomes.WithLabelValues("create", OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues(ChannelBus, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues(ChannelNotification, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLettered.WithLabelValues("BOOKING_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callerRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerSweeps.WithLabelValues("skipped")))
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.PollDuration(1.5)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["booking_payment_poll_seconds"])
	assert.True(t, names["booking_seat_lock_conflicts_total"])
}
