package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sima-events/internal/domain"

	"github.com/destel/rill"
	log "github.com/sirupsen/logrus"
)

const defaultQueueSize = 256

type subscription struct {
	topic   domain.Topic
	handler Handler
	queue   chan delivery
}

// delivery is one queued event. done, when set, is called after the handler
// returned, whatever its outcome.
type delivery struct {
	ev   domain.DomainEvent
	done func()
}

// fanIn calls onHandled once every registration has finished with an event.
type fanIn struct {
	pending   atomic.Int32
	onHandled func()
}

func (f *fanIn) release() {
	if f.pending.Add(-1) == 0 {
		f.onHandled()
	}
}

// registry fans delivered events out to handler registrations. Every
// registration owns a queue and a worker, so a slow handler only delays
// its own registration.
type registry struct {
	mu        sync.RWMutex
	subs      map[domain.Topic][]*subscription
	queueSize int
	closed    bool

	stop    context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

func newRegistry(queueSize int) *registry {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	stop, cancel := context.WithCancel(context.Background())
	return &registry{
		subs:      make(map[domain.Topic][]*subscription),
		queueSize: queueSize,
		stop:      stop,
		cancel:    cancel,
	}
}

// add registers handler and reports whether topic had no registration before.
func (r *registry) add(topic domain.Topic, handler Handler) (bool, error) {
	if handler == nil {
		return false, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrNotConnected
	}

	sub := &subscription{
		topic:   topic,
		handler: handler,
		queue:   make(chan delivery, r.queueSize),
	}
	first := len(r.subs[topic]) == 0
	r.subs[topic] = append(r.subs[topic], sub)

	r.workers.Add(1)
	go r.work(sub)

	return first, nil
}

func (r *registry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, string(topic))
	}
	return topics
}

func (r *registry) has(topic domain.Topic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[topic]) > 0
}

// deliver enqueues ev for every registration on its topic, waiting while a
// queue is full until ctx is done or the registry closes. onHandled, if not
// nil, runs once every registration has handled ev; it never runs when the
// event was not enqueued everywhere.
func (r *registry) deliver(ctx context.Context, ev domain.DomainEvent, onHandled func()) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrNotConnected
	}

	subs := r.subs[ev.Topic]
	item := delivery{ev: ev}
	var fan *fanIn
	if onHandled != nil {
		fan = &fanIn{onHandled: onHandled}
		fan.pending.Store(int32(len(subs)) + 1)
		item.done = fan.release
	}

	delivered := 0
	for _, sub := range subs {
		select {
		case sub.queue <- item:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		case <-r.stop.Done():
			return delivered, ErrNotConnected
		}
	}

	if fan != nil {
		fan.release()
	}
	return delivered, nil
}

// close stops accepting events, lets workers drain what is already queued and
// waits for them.
func (r *registry) close() {
	r.cancel()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, subs := range r.subs {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	r.mu.Unlock()

	r.workers.Wait()
}

func (r *registry) work(sub *subscription) {
	defer r.workers.Done()

	_ = rill.ForEach(rill.FromChan(sub.queue, nil), 1, func(item delivery) error {
		if err := invoke(sub.handler, item.ev); err != nil {
			log.WithError(err).WithField("topic", sub.topic).Warn("Event handler failed")
		}
		if item.done != nil {
			item.done()
		}
		return nil
	})
}

func invoke(handler Handler, ev domain.DomainEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(context.Background(), ev)
}
