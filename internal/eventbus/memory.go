package eventbus

import (
	"context"
	"fmt"
	"sync"

	"sima-events/internal/domain"
)

// MemoryBus delivers messages inside one process. It backs the "all" command
// and tests.
type MemoryBus struct {
	queueSize int

	mu        sync.RWMutex
	registry  *registry
	connected bool
}

func NewMemoryBus(queueSize int) *MemoryBus {
	return &MemoryBus{queueSize: queueSize}
}

func (b *MemoryBus) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}
	b.registry = newRegistry(b.queueSize)
	b.connected = true
	return nil
}

func (b *MemoryBus) Subscribe(topic domain.Topic, handler Handler) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected {
		return ErrNotConnected
	}
	_, err := b.registry.add(topic, handler)
	return err
}

func (b *MemoryBus) SendMessage(ctx context.Context, topic domain.Topic, payload any) error {
	ev, err := domain.NewEvent(topic, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	reg, connected := b.registry, b.connected
	b.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	// A full handler queue holds the sender only until ctx is done.
	if _, err := reg.deliver(ctx, ev, nil); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", topic, err)
	}
	return nil
}

// Disconnect waits until handlers finish the messages already delivered.
func (b *MemoryBus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	reg := b.registry
	b.connected = false
	b.registry = nil
	b.mu.Unlock()

	reg.close()
	return nil
}

func (b *MemoryBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}
