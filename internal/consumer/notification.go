package consumer

import (
	"context"
	"fmt"

	"sima-events/internal/domain"
	"sima-events/internal/eventbus"

	log "github.com/sirupsen/logrus"
)

const (
	notificationConsumerName = "notification-consumer"

	welcomeSubject  = "Welcome to SIMA"
	welcomeMessage  = "Your account has been created."
	welcomeTemplate = "user_welcome"
	defaultSubject  = "Notification"
)

type Dispatcher interface {
	Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResult, error)
}

// NotificationTopics are the topics that drive automatic notifications.
func NotificationTopics() []domain.Topic {
	return []domain.Topic{domain.TopicNotification, domain.TopicUserCreated}
}

type NotificationConsumer struct {
	lifecycle
	bus        eventbus.Bus
	dispatcher Dispatcher
}

func NewNotificationConsumer(bus eventbus.Bus, dispatcher Dispatcher) *NotificationConsumer {
	return &NotificationConsumer{bus: bus, dispatcher: dispatcher}
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	handlers := map[domain.Topic]eventbus.Handler{
		domain.TopicNotification: c.handleNotification,
		domain.TopicUserCreated:  c.handleUserCreated,
	}
	return start(ctx, notificationConsumerName, c.bus, &c.lifecycle, handlers, NotificationTopics())
}

func (c *NotificationConsumer) Stop() error {
	return stop(notificationConsumerName, c.bus, &c.lifecycle)
}

func (c *NotificationConsumer) handleNotification(ctx context.Context, ev domain.DomainEvent) error {
	c.consuming()

	var payload domain.NotificationPayload
	if err := ev.Decode(&payload); err != nil {
		log.WithError(err).WithField("topic", ev.Topic).Warn("Failed to decode notification")
		return nil
	}

	c.dispatch(ctx, ev.Topic, NotificationFromPayload(payload))
	return nil
}

func (c *NotificationConsumer) handleUserCreated(ctx context.Context, ev domain.DomainEvent) error {
	c.consuming()

	var user domain.UserPayload
	if err := ev.Decode(&user); err != nil {
		log.WithError(err).WithField("topic", ev.Topic).Warn("Failed to decode user event")
		return nil
	}
	if user.Email == "" {
		log.WithField("user_id", user.ID).Debug("User created without email, no welcome message")
		return nil
	}

	c.dispatch(ctx, ev.Topic, WelcomeNotification(user))
	return nil
}

func (c *NotificationConsumer) dispatch(ctx context.Context, topic domain.Topic, req domain.NotificationRequest) {
	result, err := c.dispatcher.Send(ctx, req)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"topic":   topic,
			"channel": req.Channel,
		}).Warn("Failed to process notification")
		return
	}

	log.WithFields(log.Fields{
		"topic":           topic,
		"notification_id": result.ID,
		"channel":         result.Channel,
	}).Info("Notification dispatched")
}

// NotificationFromPayload fills the defaults for absent fields.
func NotificationFromPayload(p domain.NotificationPayload) domain.NotificationRequest {
	subject := p.Subject
	if subject == "" {
		subject = p.Title
	}
	if subject == "" {
		subject = defaultSubject
	}
	message := p.Message
	if message == "" {
		message = p.Body
	}

	return domain.NotificationRequest{
		Channel:  domain.ParseNotificationChannel(p.Channel),
		Email:    p.Email,
		Phone:    p.Phone,
		UserID:   p.UserID.String(),
		Subject:  subject,
		Message:  message,
		Template: p.Template,
		Metadata: p.Metadata,
	}
}

func WelcomeNotification(u domain.UserPayload) domain.NotificationRequest {
	req := domain.NotificationRequest{
		Channel:  domain.ChannelEmail,
		Email:    u.Email,
		UserID:   u.ID.String(),
		Subject:  welcomeSubject,
		Message:  welcomeMessage,
		Template: welcomeTemplate,
	}
	if u.Name != "" {
		req.Metadata = map[string]any{"name": u.Name}
		req.Message = fmt.Sprintf("Hello %s, your account has been created.", u.Name)
	}
	return req
}
