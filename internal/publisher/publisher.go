// Package publisher is the best-effort producer side of the event bus. A
// failed publish is logged and dropped; it never fails the business
// operation that triggered it.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sima-events/internal/config"
	"sima-events/internal/domain"

	log "github.com/sirupsen/logrus"
)

const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

var ErrShutdownTimeout = errors.New("publisher shutdown timed out")

// Sender is the part of the event bus a producer needs.
type Sender interface {
	SendMessage(ctx context.Context, topic domain.Topic, payload any) error
}

type job struct {
	topic   domain.Topic
	payload any
}

// Publisher sends domain events in call order. In async mode a single worker
// drains a bounded buffer; when the buffer is full the event is dropped.
type Publisher struct {
	bus             Sender
	mode            string
	timeout         time.Duration
	shutdownTimeout time.Duration
	throttle        *logThrottler

	mu     sync.RWMutex
	queue  chan job
	closed bool
	done   chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Stats counts outcomes since start.
type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

func New(bus Sender, cfg config.Publisher) *Publisher {
	p := &Publisher{
		bus:             bus,
		mode:            strings.ToLower(cfg.Mode),
		timeout:         cfg.Timeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		throttle:        newLogThrottler(cfg.WarnInterval),
		done:            make(chan struct{}),
	}
	if p.timeout <= 0 {
		p.timeout = 3 * time.Second
	}
	if p.shutdownTimeout <= 0 {
		p.shutdownTimeout = 10 * time.Second
	}

	if p.mode != ModeSync {
		p.mode = ModeAsync
		size := cfg.BufferSize
		if size <= 0 {
			size = 1024
		}
		p.queue = make(chan job, size)
		go p.run()
	} else {
		close(p.done)
	}

	log.WithFields(log.Fields{"mode": p.mode, "timeout": p.timeout}).Info("Event publisher started")
	return p
}

// Publish never returns an error and never blocks longer than the publish
// timeout.
func (p *Publisher) Publish(ctx context.Context, topic domain.Topic, payload any) {
	if p.mode == ModeSync {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		p.send(sendCtx, job{topic: topic, payload: payload})
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(topic, "publisher closed")
		return
	}

	select {
	case p.queue <- job{topic: topic, payload: payload}:
	default:
		p.drop(topic, "publish buffer full")
	}
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Close stops accepting events and waits for the buffer to drain, at most
// until ctx is done or the shutdown timeout passes.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.queue != nil {
			close(p.queue)
		}
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		log.WithFields(log.Fields{
			"sent":    p.sent.Load(),
			"failed":  p.failed.Load(),
			"dropped": p.dropped.Load(),
		}).Info("Event publisher stopped")
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, p.shutdownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	for j := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		p.send(ctx, j)
		cancel()
	}
}

func (p *Publisher) send(ctx context.Context, j job) {
	if err := p.bus.SendMessage(ctx, j.topic, j.payload); err != nil {
		p.failed.Add(1)
		p.throttle.Warn("send:"+j.topic.String(),
			log.WithError(err).WithField("topic", j.topic),
			"Failed to publish event, discarding")
		return
	}
	p.sent.Add(1)
}

func (p *Publisher) drop(topic domain.Topic, reason string) {
	p.dropped.Add(1)
	p.throttle.Warn("drop:"+topic.String(),
		log.WithFields(log.Fields{"topic": topic, "reason": reason}),
		"Dropping event")
}
