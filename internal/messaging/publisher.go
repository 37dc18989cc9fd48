package messaging

import (
	"context"
	"errors"
	"fmt"
)

const (
	DriverNATS = "nats"
	DriverAMQP = "amqp"
	DriverNone = "none"
)

// ErrBusDisabled is returned by the disabled publisher so delivery always takes the fallback
var ErrBusDisabled = errors.New("message bus is disabled")

type Config struct {
	Driver string
	NATS   NATSConfig
	AMQP   AMQPConfig
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

func NewPublisher(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case DriverNATS, "":
		pub, err := NewNATSPublisher(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case DriverAMQP:
		pub, err := NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case DriverNone:
		return disabledPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown message bus driver %q", cfg.Driver)
	}
}

type disabledPublisher struct{}

func (disabledPublisher) Publish(context.Context, string, any) error { return ErrBusDisabled }
func (disabledPublisher) Close() error                               { return nil }
