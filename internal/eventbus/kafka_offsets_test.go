package eventbus

import (
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
)

type offsetLog struct {
	mu     sync.Mutex
	stored []kafka.Offset
}

func (l *offsetLog) store(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tp := range offsets {
		l.stored = append(l.stored, tp.Offset)
	}
	return offsets, nil
}

func at(topic string, partition int32, offset kafka.Offset) kafka.TopicPartition {
	return kafka.TopicPartition{Topic: &topic, Partition: partition, Offset: offset}
}

func TestOffsetTracker_StoresContiguousPrefix(t *testing.T) {
	log := &offsetLog{}
	tracker := newOffsetTracker(log.store)

	first := tracker.track(at("user.created", 0, 1))
	second := tracker.track(at("user.created", 0, 2))
	third := tracker.track(at("user.created", 0, 3))

	second()
	assert.Empty(t, log.stored)

	first()
	assert.Equal(t, []kafka.Offset{3}, log.stored)

	third()
	third()
	assert.Equal(t, []kafka.Offset{3, 4}, log.stored)
}

func TestOffsetTracker_PartitionsAreIndependent(t *testing.T) {
	log := &offsetLog{}
	tracker := newOffsetTracker(log.store)

	blocked := tracker.track(at("asset.created", 0, 10))
	other := tracker.track(at("asset.created", 1, 5))

	other()
	assert.Equal(t, []kafka.Offset{6}, log.stored)

	blocked()
	assert.Equal(t, []kafka.Offset{6, 11}, log.stored)
}

func TestOffsetTracker_RewindStartsOver(t *testing.T) {
	log := &offsetLog{}
	tracker := newOffsetTracker(log.store)

	stale := tracker.track(at("audit.log", 0, 8))
	replayed := tracker.track(at("audit.log", 0, 7))

	stale()
	assert.Empty(t, log.stored)

	replayed()
	assert.Equal(t, []kafka.Offset{8}, log.stored)
}

func TestOffsetTracker_IgnoresUnplacedMessages(t *testing.T) {
	log := &offsetLog{}
	tracker := newOffsetTracker(log.store)

	tracker.track(kafka.TopicPartition{Offset: 3})()
	tracker.track(at("audit.log", 0, kafka.OffsetInvalid))()

	assert.Empty(t, log.stored)
}
