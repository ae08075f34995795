package service

import (
	"context"
	"fmt"
	"time"

	"sima-events/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Sender delivers one notification over a single channel and returns the
// provider that accepted it.
type Sender interface {
	Send(ctx context.Context, req domain.NotificationRequest) (string, error)
}

// NotificationService routes requests to the sender of their channel.
type NotificationService struct {
	senders map[domain.NotificationChannel]Sender
	now     func() time.Time
}

func NewNotificationService(email, sms, inApp Sender) *NotificationService {
	return &NotificationService{
		senders: map[domain.NotificationChannel]Sender{
			domain.ChannelEmail: email,
			domain.ChannelSMS:   sms,
			domain.ChannelInApp: inApp,
		},
		now: time.Now,
	}
}

// NewLoggingNotificationService wires senders that only log. External
// providers plug in through NewNotificationService.
func NewLoggingNotificationService() *NotificationService {
	return NewNotificationService(EmailLogSender{}, SMSLogSender{}, InAppLogSender{})
}

func (s *NotificationService) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResult, error) {
	switch req.Channel {
	case domain.ChannelEmail:
		if req.Email == "" {
			return nil, fmt.Errorf("%w: email channel needs an address", domain.ErrMissingRecipient)
		}
	case domain.ChannelSMS:
		if req.Phone == "" {
			return nil, fmt.Errorf("%w: sms channel needs a phone number", domain.ErrMissingRecipient)
		}
	default:
		req.Channel = domain.ChannelInApp
	}

	sender, ok := s.senders[req.Channel]
	if !ok || sender == nil {
		return nil, fmt.Errorf("no sender configured for channel %s", req.Channel)
	}

	provider, err := sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s notification: %w", req.Channel, err)
	}

	return &domain.NotificationResult{
		ID:        uuid.NewString(),
		Status:    "sent",
		Channel:   req.Channel,
		Provider:  provider,
		Timestamp: s.now().UTC(),
	}, nil
}

type EmailLogSender struct{}

func (EmailLogSender) Send(_ context.Context, req domain.NotificationRequest) (string, error) {
	log.WithFields(log.Fields{
		"to":       req.Email,
		"subject":  req.Subject,
		"template": req.Template,
	}).Info("Sending email")
	return "sendgrid", nil
}

type SMSLogSender struct{}

func (SMSLogSender) Send(_ context.Context, req domain.NotificationRequest) (string, error) {
	log.WithField("phone", req.Phone).Info("Sending SMS")
	return "twilio", nil
}

type InAppLogSender struct{}

func (InAppLogSender) Send(_ context.Context, req domain.NotificationRequest) (string, error) {
	userID := req.UserID
	if userID == "" {
		userID = "unknown"
	}
	log.WithField("user_id", userID).Info("In-app notification queued")
	return "in-app", nil
}
