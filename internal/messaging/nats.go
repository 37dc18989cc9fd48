package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

type NATSConfig struct {
	URL       string
	ClusterID string
	ClientID  string
}

// NATSPublisher publishes JSON payloads to NATS Streaming subjects and waits for the server ack
type NATSPublisher struct {
	conn stan.Conn
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	// client ids must be unique per connection within a cluster
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			slog.Error("NATS Streaming connection lost", "error", reason)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming", "url", cfg.URL, "cluster", cfg.ClusterID, "client", clientID)
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	acked := make(chan error, 1)
	_, err = p.conn.PublishAsync(topic, data, func(_ string, ackErr error) {
		acked <- ackErr
	})
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", topic, err)
	}

	select {
	case err := <-acked:
		if err != nil {
			return fmt.Errorf("publish to subject %s not acknowledged: %w", topic, err)
		}
		slog.Debug("Published message to subject", "subject", topic)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to subject %s: %w", topic, ctx.Err())
	}
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
