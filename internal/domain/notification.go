package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrMissingRecipient = errors.New("notification recipient is missing")

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
	ChannelInApp NotificationChannel = "IN_APP"
)

// ParseNotificationChannel falls back to IN_APP for empty or unknown values.
func ParseNotificationChannel(s string) NotificationChannel {
	switch NotificationChannel(strings.ToUpper(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail
	case ChannelSMS:
		return ChannelSMS
	default:
		return ChannelInApp
	}
}

// NotificationRequest is derived from an event and handed to the dispatcher.
// It is never stored.
type NotificationRequest struct {
	Channel  NotificationChannel `json:"channel"`
	Email    string              `json:"email,omitempty"`
	Phone    string              `json:"phone,omitempty"`
	UserID   string              `json:"userId,omitempty"`
	Subject  string              `json:"subject"`
	Message  string              `json:"message"`
	Template string              `json:"template,omitempty"`
	Metadata map[string]any      `json:"metadata,omitempty"`
}

type NotificationResult struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Channel   NotificationChannel `json:"channel"`
	Provider  string              `json:"provider,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}
