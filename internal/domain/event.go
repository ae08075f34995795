package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Topic names one channel of the event bus.
type Topic string

const (
	TopicUserCreated  Topic = "user.created"
	TopicUserUpdated  Topic = "user.updated"
	TopicAssetCreated Topic = "asset.created"
	TopicAssetUpdated Topic = "asset.updated"
	TopicAuditLog     Topic = "audit.log"
	TopicTelemetry    Topic = "telemetry.data"
	TopicNotification Topic = "notification.send"
)

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Topics returns the full taxonomy.
func Topics() []Topic {
	return []Topic{
		TopicUserCreated,
		TopicUserUpdated,
		TopicAssetCreated,
		TopicAssetUpdated,
		TopicAuditLog,
		TopicTelemetry,
		TopicNotification,
	}
}

func (t Topic) Valid() bool {
	for _, known := range Topics() {
		if t == known {
			return true
		}
	}
	return false
}

func (t Topic) String() string {
	return string(t)
}

// DomainEvent is the unit exchanged over the bus. Payload holds the raw JSON
// object published by the producer; it is never rewritten after NewEvent.
type DomainEvent struct {
	Topic         Topic
	Key           string
	CorrelationID string
	Timestamp     time.Time
	Payload       json.RawMessage
}

// NewEvent serializes payload into an event for topic. A "timestamp" field is
// added to the payload when the producer did not set one.
func NewEvent(topic Topic, payload any) (DomainEvent, error) {
	if !topic.Valid() {
		return DomainEvent{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return DomainEvent{}, fmt.Errorf("%w: %s payload must be a JSON object", ErrInvalidPayload, topic)
	}

	now := time.Now().UTC()
	if ts, ok := fields["timestamp"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			now = parsed
		}
	} else {
		fields["timestamp"] = now.Format(time.RFC3339Nano)
		if raw, err = json.Marshal(fields); err != nil {
			return DomainEvent{}, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
		}
	}

	ev := DomainEvent{
		Topic:     topic,
		Timestamp: now,
		Payload:   raw,
	}
	if id, ok := fields["id"]; ok && id != nil {
		ev.Key = fmt.Sprint(id)
	}
	if cid, ok := fields["correlationId"].(string); ok {
		ev.CorrelationID = cid
	}
	return ev, nil
}

// Decode unmarshals the payload into v. Fields v does not declare are ignored.
func (e DomainEvent) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload on %s", ErrInvalidPayload, e.Topic)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Topic, err)
	}
	return nil
}

// Fields returns a fresh map of the payload; callers may keep or modify it.
func (e DomainEvent) Fields() (map[string]any, error) {
	fields := map[string]any{}
	if err := e.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
