// Package eventbus is the shared publish/subscribe client used by producers
// and consumers. Transports: Kafka (confluent-kafka-go), Redis Pub/Sub and an
// in-process bus.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sima-events/internal/config"
	"sima-events/internal/domain"

	"golang.org/x/time/rate"
)

var (
	ErrNotConnected  = errors.New("event bus is not connected")
	ErrUnknownDriver = errors.New("unknown event bus driver")
	ErrNilHandler    = errors.New("handler must not be nil")
)

// Handler is invoked once per delivered message on the subscribed topic.
type Handler func(ctx context.Context, ev domain.DomainEvent) error

// Bus is the client contract shared by every transport.
//
// Connect is idempotent. Subscribe registers an additional handler; every
// handler registered for a topic receives every message on it. SendMessage
// publishes one message and waits at most the configured send timeout.
// After Disconnect, Subscribe and SendMessage fail with ErrNotConnected.
// Broker-backed transports that were never connected, or lost the broker
// before connecting, retry Connect from SendMessage at most once per
// reconnect interval; an explicit Disconnect ends those retries.
type Bus interface {
	Connect(ctx context.Context) error
	Subscribe(topic domain.Topic, handler Handler) error
	SendMessage(ctx context.Context, topic domain.Topic, payload any) error
	Disconnect() error
	Connected() bool
}

const (
	DriverKafka  = "kafka"
	DriverRedis  = "redis"
	DriverMemory = "memory"

	defaultGroupID           = "sima-group"
	defaultReconnectInterval = 5 * time.Second
)

// newRedialLimiter paces lazy reconnects from SendMessage.
func newRedialLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// New builds the transport selected by cfg.Driver. groupID identifies the
// consuming process; it is ignored by transports without consumer groups.
func New(cfg config.Bus, groupID string) (Bus, error) {
	if groupID == "" {
		groupID = cfg.GroupID
	}
	if groupID == "" {
		groupID = defaultGroupID
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverKafka:
		return NewKafkaBus(KafkaConfig{
			Brokers:           cfg.Brokers,
			ClientID:          cfg.ClientID,
			GroupID:           groupID,
			ConnectTimeout:    cfg.ConnectTimeout,
			SendTimeout:       cfg.SendTimeout,
			QueueSize:         cfg.QueueSize,
			ReconnectInterval: cfg.ReconnectInterval,
		}), nil
	case DriverRedis:
		return NewRedisBus(RedisConfig{
			Addr:              cfg.RedisAddr,
			ConnectTimeout:    cfg.ConnectTimeout,
			SendTimeout:       cfg.SendTimeout,
			QueueSize:         cfg.QueueSize,
			ReconnectInterval: cfg.ReconnectInterval,
		}), nil
	case DriverMemory:
		return NewMemoryBus(cfg.QueueSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
