package consumer

import (
	"encoding/json"
	"testing"

	"sima-events/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonField(t *testing.T, raw json.RawMessage, key string) string {
	t.Helper()
	fields := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	return string(fields[key])
}

func event(t *testing.T, topic domain.Topic, payload map[string]any) domain.DomainEvent {
	t.Helper()
	ev, err := domain.NewEvent(topic, payload)
	require.NoError(t, err)
	return ev
}

func TestNormalizeAudit(t *testing.T) {
	tests := []struct {
		name         string
		topic        domain.Topic
		payload      map[string]any
		action       domain.AuditAction
		resourceType string
		resourceName string
		userName     string
	}{
		{
			name:         "user created",
			topic:        domain.TopicUserCreated,
			payload:      map[string]any{"id": "u1", "email": "a@b.com"},
			action:       domain.AuditActionCreate,
			resourceType: "user",
			resourceName: "a@b.com",
			userName:     "a@b.com",
		},
		{
			name:         "asset updated with actor",
			topic:        domain.TopicAssetUpdated,
			payload:      map[string]any{"id": "a1", "assetCode": "LAP-1", "userId": "u7", "userName": "Bob"},
			action:       domain.AuditActionUpdate,
			resourceType: "asset",
			resourceName: "LAP-1",
			userName:     "Bob",
		},
		{
			name:         "device updated",
			topic:        domain.TopicTelemetry,
			payload:      map[string]any{"id": "d1", "deviceId": "sensor-1", "event": "DEVICE_UPDATED"},
			action:       domain.AuditActionUpdate,
			resourceType: "device",
			resourceName: "sensor-1",
		},
		{
			name:         "explicit submission",
			topic:        domain.TopicAuditLog,
			payload:      map[string]any{"action": "login", "resourceType": "session", "resourceName": "web"},
			action:       domain.AuditActionLogin,
			resourceType: "session",
			resourceName: "web",
		},
		{
			name:    "explicit submission defaults",
			topic:   domain.TopicAuditLog,
			payload: map[string]any{"description": "manual"},
			action:  domain.AuditActionCreate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NormalizeAudit(event(t, tt.topic, tt.payload))

			require.NoError(t, err)
			assert.Equal(t, tt.action, req.Action)
			assert.Equal(t, tt.resourceType, req.ResourceType)
			assert.Equal(t, tt.resourceName, req.ResourceName)
			assert.Equal(t, tt.userName, req.UserName)
			assert.Equal(t, domain.SeverityInfo, req.Severity)
		})
	}
}

func TestNormalizeAudit_ExplicitFields(t *testing.T) {
	req, err := NormalizeAudit(event(t, domain.TopicAuditLog, map[string]any{
		"id":           "evt-1",
		"resourceId":   "r-9",
		"resourceType": "report",
		"action":       "EXPORT",
		"severity":     "CRITICAL",
		"ipAddress":    "10.0.0.1",
		"oldValues":    map[string]any{"status": "ACTIVE"},
		"newValues":    map[string]any{"status": "RETIRED"},
	}))

	require.NoError(t, err)
	assert.Equal(t, "r-9", req.ResourceID)
	assert.Equal(t, "CRITICAL", req.Severity)
	assert.Equal(t, "10.0.0.1", req.IPAddress)
	assert.JSONEq(t, `{"status":"ACTIVE"}`, string(req.OldValues))
	assert.JSONEq(t, `{"status":"RETIRED"}`, string(req.NewValues))
}

func TestNormalizeAudit_Rejects(t *testing.T) {
	_, err := NormalizeAudit(event(t, domain.TopicAuditLog, map[string]any{"action": "PURGE"}))
	assert.ErrorIs(t, err, domain.ErrInvalidAuditAction)

	_, err = NormalizeAudit(event(t, domain.TopicTelemetry, map[string]any{"id": "d1", "event": "TELEMETRY"}))
	assert.ErrorIs(t, err, errNotAudited)

	_, err = NormalizeAudit(event(t, domain.TopicNotification, map[string]any{"id": "n1"}))
	assert.ErrorIs(t, err, domain.ErrUnknownTopic)

	_, err = NormalizeAudit(domain.DomainEvent{Topic: domain.TopicUserCreated, Payload: []byte(`[1]`)})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestNormalizeAudit_NumericID(t *testing.T) {
	req, err := NormalizeAudit(event(t, domain.TopicAssetCreated, map[string]any{"id": 42}))

	require.NoError(t, err)
	assert.Equal(t, "42", req.ResourceID)
}

func TestNormalizeAudit_TypedTopicsStayInfo(t *testing.T) {
	req, err := NormalizeAudit(event(t, domain.TopicUserUpdated, map[string]any{
		"id":          "u1",
		"severity":    "CRITICAL",
		"description": "role changed",
	}))

	require.NoError(t, err)
	assert.Equal(t, domain.SeverityInfo, req.Severity)
	assert.Equal(t, "role changed", req.Description)
	assert.JSONEq(t, `"CRITICAL"`, jsonField(t, req.NewValues, "severity"))
}

func TestNormalizeAudit_ExplicitNumericResource(t *testing.T) {
	req, err := NormalizeAudit(event(t, domain.TopicAuditLog, map[string]any{"id": "evt-1", "resourceId": 314, "userId": 9}))

	require.NoError(t, err)
	assert.Equal(t, "314", req.ResourceID)
	assert.Equal(t, "9", req.UserID)
}

func TestNotificationFromPayload(t *testing.T) {
	req := NotificationFromPayload(domain.NotificationPayload{Channel: "sms", Phone: "+100", Message: "hi"})

	assert.Equal(t, domain.ChannelSMS, req.Channel)
	assert.Equal(t, "Notification", req.Subject)
	assert.Equal(t, "hi", req.Message)

	req = NotificationFromPayload(domain.NotificationPayload{Subject: "S", Title: "T"})
	assert.Equal(t, "S", req.Subject)
	assert.Equal(t, domain.ChannelInApp, req.Channel)
	assert.Empty(t, req.Message)
}

func TestWelcomeNotification(t *testing.T) {
	req := WelcomeNotification(domain.UserPayload{ID: "u1", Email: "a@b.com", Name: "Ann"})

	assert.Equal(t, "Welcome to SIMA", req.Subject)
	assert.Equal(t, "Hello Ann, your account has been created.", req.Message)
	assert.Equal(t, map[string]any{"name": "Ann"}, req.Metadata)
}
