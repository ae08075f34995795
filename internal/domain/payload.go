package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a payload identifier. Producers send strings; a JSON number is
// accepted too and kept in its decimal form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// UserPayload is published on user.created and user.updated.
type UserPayload struct {
	ID          ID     `json:"id"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	UserID      ID     `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// AssetPayload is published on asset.created and asset.updated.
type AssetPayload struct {
	ID          ID     `json:"id"`
	AssetCode   string `json:"assetCode,omitempty"`
	Status      string `json:"status,omitempty"`
	Type        string `json:"type,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	UserID      ID     `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// AuditPayload is an explicit submission on audit.log. It carries its own
// action and resource hints.
type AuditPayload struct {
	ID           ID     `json:"id,omitempty"`
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	ResourceID   ID     `json:"resourceId,omitempty"`
	ResourceName string `json:"resourceName,omitempty"`
	UserID       ID     `json:"userId,omitempty"`
	UserName     string `json:"userName,omitempty"`
	OldValues    any    `json:"oldValues,omitempty"`
	NewValues    any    `json:"newValues,omitempty"`
	IPAddress    string `json:"ipAddress,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	Description  string `json:"description,omitempty"`
	Severity     string `json:"severity,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Telemetry event kinds carried in TelemetryPayload.Event.
const (
	TelemetryDeviceRegistered = "DEVICE_REGISTERED"
	TelemetryDeviceUpdated    = "DEVICE_UPDATED"
	TelemetryMetricReading    = "TELEMETRY"
)

// TelemetryPayload is published on telemetry.data for device lifecycle
// changes and metric readings.
type TelemetryPayload struct {
	ID          ID             `json:"id"`
	DeviceID    string         `json:"deviceId,omitempty"`
	Status      string         `json:"status,omitempty"`
	Type        string         `json:"type,omitempty"`
	Event       string         `json:"event,omitempty"`
	Metric      string         `json:"metric,omitempty"`
	Value       *float64       `json:"value,omitempty"`
	Tags        map[string]any `json:"tags,omitempty"`
	UserID      ID             `json:"userId,omitempty"`
	UserName    string         `json:"userName,omitempty"`
	Description string         `json:"description,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// NotificationPayload is published on notification.send.
type NotificationPayload struct {
	Channel   string         `json:"channel,omitempty"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Body      string         `json:"body,omitempty"`
	Template  string         `json:"template,omitempty"`
	UserID    ID             `json:"userId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// ParsePayload decodes the payload into the variant registered for the
// event's topic.
func ParsePayload(ev DomainEvent) (any, error) {
	var target any
	switch ev.Topic {
	case TopicUserCreated, TopicUserUpdated:
		target = &UserPayload{}
	case TopicAssetCreated, TopicAssetUpdated:
		target = &AssetPayload{}
	case TopicAuditLog:
		target = &AuditPayload{}
	case TopicTelemetry:
		target = &TelemetryPayload{}
	case TopicNotification:
		target = &NotificationPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, ev.Topic)
	}

	if err := ev.Decode(target); err != nil {
		return nil, err
	}
	return target, nil
}
