package config

import (
	"testing"
	"time"

	"bookticket/internal/messaging"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, messaging.DriverNATS, cfg.Messaging.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, 10, cfg.Polling.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 30*time.Second, cfg.Polling.Timeout)
	assert.Equal(t, 3, cfg.Dispatch.Retry.Attempts)
	assert.Equal(t, 4*time.Second, cfg.Dispatch.Retry.Max)
	assert.True(t, cfg.Reconciler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.EventTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Reconciler.ClaimLease)
	assert.False(t, cfg.Elasticsearch.Enabled())
	assert.Equal(t, "booking-failed-events", cfg.Elasticsearch.Index)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MESSAGE_BUS_DRIVER", "AMQP")
	t.Setenv("SEAT_LOCK_TTL", "90s")
	t.Setenv("PAYMENT_POLL_TIMEOUT", "45")
	t.Setenv("DLQ_RECONCILER_ENABLED", "false")
	t.Setenv("EVENT_WORKERS", "8")
	t.Setenv("ELASTICSEARCH_URL", "http://es:9200")

	cfg := Load()

	assert.Equal(t, messaging.DriverAMQP, cfg.Messaging.Driver)
	assert.Equal(t, 90*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 45*time.Second, cfg.Polling.Timeout)
	assert.False(t, cfg.Reconciler.Enabled)
	assert.Equal(t, 8, cfg.Dispatch.Pool.Workers)
	assert.True(t, cfg.Elasticsearch.Enabled())
}

func TestGetEnvFallsBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("X_DURATION", time.Second))
}
