package consumer

import (
	"context"
	"fmt"

	"sima-events/internal/domain"
	"sima-events/internal/eventbus"

	log "github.com/sirupsen/logrus"
)

// start connects bus and registers every handler. Any failure leaves the
// consumer STOPPED; running unsubscribed is never an option.
func start(ctx context.Context, name string, bus eventbus.Bus, lc *lifecycle, handlers map[domain.Topic]eventbus.Handler, order []domain.Topic) error {
	lc.set(StateConnecting)

	if err := bus.Connect(ctx); err != nil {
		lc.set(StateStopped)
		return fmt.Errorf("%s: failed to connect: %w", name, err)
	}

	for _, topic := range order {
		if err := bus.Subscribe(topic, handlers[topic]); err != nil {
			lc.set(StateStopped)
			if derr := bus.Disconnect(); derr != nil {
				log.WithError(derr).Warn("Failed to disconnect after subscribe error")
			}
			return fmt.Errorf("%s: failed to subscribe to %s: %w", name, topic, err)
		}
	}

	lc.set(StateSubscribed)
	log.WithFields(log.Fields{"consumer": name, "topics": order}).Info("Consumer subscriptions ready")
	return nil
}

func stop(name string, bus eventbus.Bus, lc *lifecycle) error {
	defer lc.set(StateStopped)

	if err := bus.Disconnect(); err != nil {
		return fmt.Errorf("%s: failed to disconnect: %w", name, err)
	}
	log.WithField("consumer", name).Info("Consumer stopped")
	return nil
}
