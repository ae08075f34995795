package eventbus

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

type partitionKey struct {
	topic     string
	partition int32
}

type partitionProgress struct {
	pending []kafka.Offset
	handled map[kafka.Offset]bool
}

// offsetTracker stores a partition's offset only after every message read
// before it on that partition has been handled. Auto-commit then never moves
// past work a crash would lose.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionProgress
	store func([]kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

func newOffsetTracker(store func([]kafka.TopicPartition) ([]kafka.TopicPartition, error)) *offsetTracker {
	return &offsetTracker{
		parts: make(map[partitionKey]*partitionProgress),
		store: store,
	}
}

// track records a message as in flight and returns the func that marks it
// handled. Every tracked message must be marked, or its partition stops
// advancing.
func (t *offsetTracker) track(tp kafka.TopicPartition) func() {
	if tp.Topic == nil || tp.Offset < 0 {
		return func() {}
	}
	key := partitionKey{topic: *tp.Topic, partition: tp.Partition}

	t.mu.Lock()
	p := t.parts[key]
	// A rebalance can rewind the partition to the committed offset.
	if p == nil || (len(p.pending) > 0 && tp.Offset <= p.pending[len(p.pending)-1]) {
		p = &partitionProgress{handled: make(map[kafka.Offset]bool)}
		t.parts[key] = p
	}
	p.pending = append(p.pending, tp.Offset)
	t.mu.Unlock()

	offset := tp.Offset
	var once sync.Once
	return func() {
		once.Do(func() { t.markHandled(key, p, offset) })
	}
}

func (t *offsetTracker) markHandled(key partitionKey, p *partitionProgress, offset kafka.Offset) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.parts[key] != p {
		return
	}
	p.handled[offset] = true

	var next kafka.Offset
	advanced := false
	for len(p.pending) > 0 && p.handled[p.pending[0]] {
		next = p.pending[0] + 1
		delete(p.handled, p.pending[0])
		p.pending = p.pending[1:]
		advanced = true
	}
	if !advanced {
		return
	}

	// Stored under the lock so offsets reach librdkafka in order.
	topic := key.topic
	if _, err := t.store([]kafka.TopicPartition{{Topic: &topic, Partition: key.partition, Offset: next}}); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"topic":     key.topic,
			"partition": key.partition,
			"offset":    next,
		}).Warn("Failed to store kafka offset")
	}
}
