package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"sima-events/internal/domain"
)

const (
	headerCorrelationID = "correlation-id"
	headerTimestamp     = "timestamp"
)

// envelope is the Redis wire form. Pub/Sub has no message headers or keys, so
// they travel next to the payload.
type envelope struct {
	Key     string            `json:"key,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload"`
}

func headersOf(ev domain.DomainEvent) map[string]string {
	headers := map[string]string{
		headerTimestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if ev.CorrelationID != "" {
		headers[headerCorrelationID] = ev.CorrelationID
	}
	return headers
}

func applyHeaders(ev *domain.DomainEvent, headers map[string]string) {
	if cid := headers[headerCorrelationID]; cid != "" {
		ev.CorrelationID = cid
	}
	if ts, err := time.Parse(time.RFC3339Nano, headers[headerTimestamp]); err == nil {
		ev.Timestamp = ts
	}
}

func encodeEnvelope(ev domain.DomainEvent) ([]byte, error) {
	return json.Marshal(envelope{
		Key:     ev.Key,
		Headers: headersOf(ev),
		Payload: ev.Payload,
	})
}

func decodeEnvelope(topic string, data []byte) (domain.DomainEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.DomainEvent{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, topic, err)
	}
	if len(env.Payload) == 0 {
		return domain.DomainEvent{}, fmt.Errorf("%w: empty payload on %s", domain.ErrInvalidPayload, topic)
	}

	ev := domain.DomainEvent{
		Topic:   domain.Topic(topic),
		Key:     env.Key,
		Payload: env.Payload,
	}
	applyHeaders(&ev, env.Headers)
	return ev, nil
}
