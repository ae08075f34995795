package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sima-events/internal/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type RedisConfig struct {
	Addr              string
	ConnectTimeout    time.Duration
	SendTimeout       time.Duration
	QueueSize         int
	ReconnectInterval time.Duration
}

// RedisBus runs over Redis Pub/Sub. Messages published while no subscriber is
// attached are lost.
type RedisBus struct {
	cfg    RedisConfig
	redial *rate.Limiter

	mu           sync.RWMutex
	client       *redis.Client
	pubsub       *redis.PubSub
	registry     *registry
	readerDone   chan struct{}
	connected    bool
	disconnected bool
}

func NewRedisBus(cfg RedisConfig) *RedisBus {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultDialTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &RedisBus{cfg: cfg, redial: newRedialLimiter(cfg.ReconnectInterval)}
}

func (b *RedisBus) Connect(ctx context.Context) error {
	return b.connect(ctx, false)
}

func (b *RedisBus) connect(ctx context.Context, lazy bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}
	if lazy && b.disconnected {
		return ErrNotConnected
	}

	client := redis.NewClient(&redis.Options{
		Addr:        b.cfg.Addr,
		DialTimeout: b.cfg.ConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", b.cfg.Addr, err)
	}

	b.client = client
	b.registry = newRegistry(b.cfg.QueueSize)
	b.connected = true
	b.disconnected = false

	log.WithField("addr", b.cfg.Addr).Info("Redis event bus connected")
	return nil
}

func (b *RedisBus) Subscribe(topic domain.Topic, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return ErrNotConnected
	}

	if handler == nil {
		return ErrNilHandler
	}
	if b.registry.has(topic) {
		_, err := b.registry.add(topic, handler)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ConnectTimeout)
	defer cancel()

	if b.pubsub == nil {
		ps, err := b.openPubSub(ctx, topic)
		if err != nil {
			return err
		}
		b.pubsub = ps
		b.readerDone = make(chan struct{})
		go b.read(ps.Channel(), b.registry, b.readerDone)
	} else if err := b.pubsub.Subscribe(ctx, topic.String()); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	if _, err := b.registry.add(topic, handler); err != nil {
		return err
	}

	log.WithField("topic", topic).Info("Subscribed to redis channel")
	return nil
}

// openPubSub subscribes to the first channel and waits for the server to
// confirm it. client.Subscribe alone never reports a failed SUBSCRIBE.
func (b *RedisBus) openPubSub(ctx context.Context, topic domain.Topic) (*redis.PubSub, error) {
	ps := b.client.Subscribe(ctx, topic.String())

	reply, err := ps.Receive(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if _, ok := reply.(*redis.Subscription); !ok {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: unexpected reply %T", topic, reply)
	}
	return ps, nil
}

func (b *RedisBus) SendMessage(ctx context.Context, topic domain.Topic, payload any) error {
	ev, err := domain.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	data, err := encodeEnvelope(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", topic, err)
	}

	client, err := b.activeClient(ctx)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
	defer cancel()

	if err := client.Publish(sendCtx, topic.String(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// activeClient returns the connected client, connecting lazily when the
// server was unreachable so far. Retries are limited to one per
// ReconnectInterval.
func (b *RedisBus) activeClient(ctx context.Context) (*redis.Client, error) {
	b.mu.RLock()
	client, connected, disconnected := b.client, b.connected, b.disconnected
	b.mu.RUnlock()

	if connected {
		return client, nil
	}
	if disconnected || !b.redial.Allow() {
		return nil, ErrNotConnected
	}
	if err := b.connect(ctx, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return nil, ErrNotConnected
	}
	return b.client, nil
}

func (b *RedisBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disconnected = true
	if !b.connected {
		return nil
	}
	b.connected = false

	var errs []error
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis subscription: %w", err))
		}
	}

	b.registry.close()
	b.registry = nil

	if b.pubsub != nil {
		<-b.readerDone
		b.pubsub = nil
	}

	if err := b.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
	}
	b.client = nil

	log.Info("Redis event bus disconnected")
	return errors.Join(errs...)
}

func (b *RedisBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *RedisBus) read(messages <-chan *redis.Message, reg *registry, done chan struct{}) {
	defer close(done)

	for msg := range messages {
		ev, err := decodeEnvelope(msg.Channel, []byte(msg.Payload))
		if err != nil {
			log.WithError(err).Warn("Skipping undecodable redis message")
			continue
		}
		if _, err := reg.deliver(context.Background(), ev, nil); err != nil {
			return
		}
	}
}
