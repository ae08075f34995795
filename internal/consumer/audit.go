package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sima-events/internal/domain"
	"sima-events/internal/eventbus"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const auditConsumerName = "audit-consumer"

// errNotAudited marks events that are delivered on an audited topic but
// carry nothing worth recording, such as metric readings.
var errNotAudited = errors.New("event is not audited")

// AuditLogger persists normalized entries. Defaults for absent fields are
// applied by the implementation.
type AuditLogger interface {
	LogFromEvent(ctx context.Context, req domain.CreateAuditLogRequest) (*domain.AuditLogEntry, error)
}

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

var auditRoutes = map[domain.Topic]auditRoute{
	domain.TopicUserCreated:  {domain.AuditActionCreate, "user"},
	domain.TopicUserUpdated:  {domain.AuditActionUpdate, "user"},
	domain.TopicAssetCreated: {domain.AuditActionCreate, "asset"},
	domain.TopicAssetUpdated: {domain.AuditActionUpdate, "asset"},
}

var telemetryRoutes = map[string]domain.AuditAction{
	domain.TelemetryDeviceRegistered: domain.AuditActionCreate,
	domain.TelemetryDeviceUpdated:    domain.AuditActionUpdate,
}

// AuditTopics is the compliance set the audit consumer subscribes to.
func AuditTopics() []domain.Topic {
	return []domain.Topic{
		domain.TopicAuditLog,
		domain.TopicUserCreated,
		domain.TopicUserUpdated,
		domain.TopicAssetCreated,
		domain.TopicAssetUpdated,
		domain.TopicTelemetry,
	}
}

// AuditConsumer writes one audit entry per delivered event. Redeliveries are
// written again; nothing is deduplicated.
type AuditConsumer struct {
	lifecycle
	bus   eventbus.Bus
	audit AuditLogger
}

func NewAuditConsumer(bus eventbus.Bus, audit AuditLogger) *AuditConsumer {
	return &AuditConsumer{bus: bus, audit: audit}
}

func (c *AuditConsumer) Start(ctx context.Context) error {
	handlers := make(map[domain.Topic]eventbus.Handler)
	for _, topic := range AuditTopics() {
		handlers[topic] = c.handle
	}
	return start(ctx, auditConsumerName, c.bus, &c.lifecycle, handlers, AuditTopics())
}

func (c *AuditConsumer) Stop() error {
	return stop(auditConsumerName, c.bus, &c.lifecycle)
}

// handle never returns an error: a bad message is logged and skipped.
func (c *AuditConsumer) handle(ctx context.Context, ev domain.DomainEvent) error {
	c.consuming()

	req, err := NormalizeAudit(ev)
	if errors.Is(err, errNotAudited) {
		log.WithField("topic", ev.Topic).Debug("Event not audited")
		return nil
	}
	if err != nil {
		log.WithError(err).WithField("topic", ev.Topic).Warn("Failed to normalize audit event")
		return nil
	}

	entry, err := c.audit.LogFromEvent(ctx, req)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"topic":         ev.Topic,
			"resource_type": req.ResourceType,
		}).Warn("Failed to log audit event")
		return nil
	}

	log.WithFields(log.Fields{
		"topic":    ev.Topic,
		"audit_id": entry.ID,
		"action":   entry.Action,
	}).Debug("Audit event logged")
	return nil
}

// NormalizeAudit maps a delivered event into an audit submission. Actor
// defaults are left to the logger. Typed topics are always recorded at INFO;
// only an explicit audit.log submission chooses its own severity.
func NormalizeAudit(ev domain.DomainEvent) (domain.CreateAuditLogRequest, error) {
	payload, err := domain.ParsePayload(ev)
	if err != nil {
		return domain.CreateAuditLogRequest{}, err
	}

	req := domain.CreateAuditLogRequest{
		NewValues: ev.Payload,
		Severity:  domain.SeverityInfo,
	}

	switch p := payload.(type) {
	case *domain.UserPayload:
		route := auditRoutes[ev.Topic]
		req.Action, req.ResourceType = route.action, route.resourceType
		req.ResourceID = p.ID.String()
		req.ResourceName = p.Email
		req.UserID = p.UserID.String()
		req.UserName = lo.CoalesceOrEmpty(p.UserName, p.Email)
		req.Description = p.Description
	case *domain.AssetPayload:
		route := auditRoutes[ev.Topic]
		req.Action, req.ResourceType = route.action, route.resourceType
		req.ResourceID = p.ID.String()
		req.ResourceName = p.AssetCode
		req.UserID = p.UserID.String()
		req.UserName = p.UserName
		req.Description = p.Description
	case *domain.TelemetryPayload:
		action, ok := telemetryRoutes[p.Event]
		if !ok {
			return domain.CreateAuditLogRequest{}, errNotAudited
		}
		req.Action, req.ResourceType = action, "device"
		req.ResourceID = p.ID.String()
		req.ResourceName = p.DeviceID
		req.UserID = p.UserID.String()
		req.UserName = p.UserName
		req.Description = p.Description
	case *domain.AuditPayload:
		if err := applyExplicitAudit(&req, p); err != nil {
			return domain.CreateAuditLogRequest{}, err
		}
	default:
		return domain.CreateAuditLogRequest{}, fmt.Errorf("%w: %q", domain.ErrUnknownTopic, ev.Topic)
	}

	return req, nil
}

// applyExplicitAudit reads the hints an explicit submission carries.
func applyExplicitAudit(req *domain.CreateAuditLogRequest, p *domain.AuditPayload) error {
	req.Action = domain.AuditActionCreate
	if p.Action != "" {
		action, err := domain.ParseAuditAction(p.Action)
		if err != nil {
			return fmt.Errorf("%w: %q", err, p.Action)
		}
		req.Action = action
	}

	req.ResourceType = p.ResourceType
	req.ResourceID = lo.CoalesceOrEmpty(p.ResourceID, p.ID).String()
	req.ResourceName = p.ResourceName
	req.UserID = p.UserID.String()
	req.UserName = p.UserName
	req.Description = p.Description
	req.IPAddress = p.IPAddress
	req.UserAgent = p.UserAgent
	req.ErrorMessage = p.ErrorMessage
	if p.Severity != "" {
		req.Severity = p.Severity
	}

	if p.OldValues != nil {
		raw, err := json.Marshal(p.OldValues)
		if err != nil {
			return fmt.Errorf("failed to marshal old values: %w", err)
		}
		req.OldValues = raw
	}
	if p.NewValues != nil {
		raw, err := json.Marshal(p.NewValues)
		if err != nil {
			return fmt.Errorf("failed to marshal new values: %w", err)
		}
		req.NewValues = raw
	}
	return nil
}
