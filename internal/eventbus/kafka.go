package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sima-events/internal/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	kafkaPollInterval  = 500 * time.Millisecond
	kafkaReadBackoff   = time.Second
	kafkaFlushTimeout  = 15 * 1000
	defaultSendTimeout = 5 * time.Second
	defaultDialTimeout = 10 * time.Second
)

type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Flush(timeoutMs int) int
	Close()
}

type kafkaConsumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	StoreOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Close() error
}

type KafkaConfig struct {
	Brokers           string
	ClientID          string
	GroupID           string
	ConnectTimeout    time.Duration
	SendTimeout       time.Duration
	QueueSize         int
	ReconnectInterval time.Duration
}

// KafkaBus is the production transport. The consumer side is created on the
// first Subscribe, so producer-only processes never join a consumer group.
// Offsets are stored only once every handler finished with a message, so a
// crash redelivers unhandled messages instead of losing them.
type KafkaBus struct {
	cfg         KafkaConfig
	newProducer func(*kafka.ConfigMap) (kafkaProducer, error)
	newConsumer func(*kafka.ConfigMap) (kafkaConsumer, error)
	redial      *rate.Limiter

	mu           sync.RWMutex
	producer     kafkaProducer
	consumer     kafkaConsumer
	registry     *registry
	stopReader   context.CancelFunc
	readerDone   chan struct{}
	connected    bool
	disconnected bool
}

func NewKafkaBus(cfg KafkaConfig) *KafkaBus {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultDialTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	return &KafkaBus{
		cfg:    cfg,
		redial: newRedialLimiter(cfg.ReconnectInterval),
		newProducer: func(cm *kafka.ConfigMap) (kafkaProducer, error) {
			return kafka.NewProducer(cm)
		},
		newConsumer: func(cm *kafka.ConfigMap) (kafkaConsumer, error) {
			return kafka.NewConsumer(cm)
		},
	}
}

// Connect creates the producer and checks that the brokers answer within the
// connect timeout. Calling it again while connected is a no-op.
func (b *KafkaBus) Connect(ctx context.Context) error {
	return b.connect(ctx, false)
}

func (b *KafkaBus) connect(ctx context.Context, lazy bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}
	if lazy && b.disconnected {
		return ErrNotConnected
	}

	cm := &kafka.ConfigMap{"bootstrap.servers": b.cfg.Brokers}
	if b.cfg.ClientID != "" {
		_ = cm.SetKey("client.id", b.cfg.ClientID)
	}

	producer, err := b.newProducer(cm)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	timeout := b.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		producer.Close()
		return fmt.Errorf("failed to connect to kafka at %s: %w", b.cfg.Brokers, context.DeadlineExceeded)
	}

	if _, err := producer.GetMetadata(nil, true, int(timeout.Milliseconds())); err != nil {
		producer.Close()
		return fmt.Errorf("failed to connect to kafka at %s: %w", b.cfg.Brokers, err)
	}

	b.producer = producer
	b.registry = newRegistry(b.cfg.QueueSize)
	b.connected = true
	b.disconnected = false

	log.WithField("brokers", b.cfg.Brokers).Info("Kafka event bus connected")
	return nil
}

func (b *KafkaBus) Subscribe(topic domain.Topic, handler Handler) error {
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

	if b.consumer == nil {
		consumer, err := b.newConsumer(&kafka.ConfigMap{
			"bootstrap.servers":        b.cfg.Brokers,
			"group.id":                 b.cfg.GroupID,
			"auto.offset.reset":        "earliest",
			"enable.auto.commit":       true,
			"enable.auto.offset.store": false,
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}
		b.consumer = consumer

		ctx, cancel := context.WithCancel(context.Background())
		b.stopReader = cancel
		b.readerDone = make(chan struct{})
		go b.read(ctx, consumer, b.registry, newOffsetTracker(consumer.StoreOffsets), b.readerDone)
	}

	// SubscribeTopics replaces the subscription, so always pass the full set.
	topics := append(b.registry.topics(), topic.String())
	if err := b.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if _, err := b.registry.add(topic, handler); err != nil {
		return err
	}

	log.WithFields(log.Fields{"topic": topic, "group": b.cfg.GroupID}).Info("Subscribed to kafka topic")
	return nil
}

// SendMessage produces one message and waits for its delivery report.
func (b *KafkaBus) SendMessage(ctx context.Context, topic domain.Topic, payload any) error {
	ev, err := domain.NewEvent(topic, payload)
	if err != nil {
		return err
	}

	producer, err := b.activeProducer(ctx)
	if err != nil {
		return err
	}

	// Buffered so a late report never blocks librdkafka. The channel is left
	// for the GC: closing it here could race with a delivery after timeout.
	deliveryChan := make(chan kafka.Event, 1)
	if err := producer.Produce(toKafkaMessage(ev), deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	timer := time.NewTimer(b.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected event type: %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("delivery to %s timed out after %s", topic, b.cfg.SendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activeProducer returns the connected producer, connecting lazily when the
// broker was unreachable so far.
func (b *KafkaBus) activeProducer(ctx context.Context) (kafkaProducer, error) {
	b.mu.RLock()
	producer, connected, disconnected := b.producer, b.connected, b.disconnected
	b.mu.RUnlock()

	if connected {
		return producer, nil
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
	return b.producer, nil
}

// Disconnect stops the reader, drains handler queues and flushes pending
// deliveries before closing the clients. Offsets stored by the drained
// handlers are committed when the consumer closes.
func (b *KafkaBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disconnected = true
	if !b.connected {
		return nil
	}
	b.connected = false

	if b.consumer != nil {
		b.stopReader()
	}
	// Closing the registry first unblocks a reader stuck on a full queue.
	b.registry.close()
	b.registry = nil

	var errs []error
	if b.consumer != nil {
		<-b.readerDone
		if err := b.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka consumer: %w", err))
		}
		b.consumer = nil
	}

	if remaining := b.producer.Flush(kafkaFlushTimeout); remaining > 0 {
		log.WithField("pending", remaining).Warn("Kafka producer closed with undelivered messages")
	}
	b.producer.Close()
	b.producer = nil

	log.Info("Kafka event bus disconnected")
	return errors.Join(errs...)
}

func (b *KafkaBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *KafkaBus) read(ctx context.Context, consumer kafkaConsumer, reg *registry, offsets *offsetTracker, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := consumer.ReadMessage(kafkaPollInterval)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			log.WithError(err).Warn("Kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(kafkaReadBackoff):
			}
			continue
		}

		handled := offsets.track(msg.TopicPartition)
		ev, err := fromKafkaMessage(msg)
		if err != nil {
			log.WithError(err).Warn("Skipping undecodable kafka message")
			handled()
			continue
		}
		// An event not queued for every handler keeps its offset unstored and
		// is redelivered after restart.
		if _, err := reg.deliver(ctx, ev, handled); err != nil {
			return
		}
	}
}

func toKafkaMessage(ev domain.DomainEvent) *kafka.Message {
	topic := ev.Topic.String()
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          ev.Payload,
		Timestamp:      ev.Timestamp,
	}
	if ev.Key != "" {
		msg.Key = []byte(ev.Key)
	}
	for key, value := range headersOf(ev) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return msg
}

func fromKafkaMessage(msg *kafka.Message) (domain.DomainEvent, error) {
	if msg.TopicPartition.Topic == nil {
		return domain.DomainEvent{}, fmt.Errorf("%w: message without topic", domain.ErrInvalidPayload)
	}
	topic := *msg.TopicPartition.Topic
	if len(msg.Value) == 0 {
		return domain.DomainEvent{}, fmt.Errorf("%w: empty payload on %s", domain.ErrInvalidPayload, topic)
	}

	ev := domain.DomainEvent{
		Topic:     domain.Topic(topic),
		Key:       string(msg.Key),
		Timestamp: msg.Timestamp,
		Payload:   msg.Value,
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	applyHeaders(&ev, headers)
	return ev, nil
}
