package domain

import (
	"errors"
	"strings"
	"time"
)

const maxDeviceIDLength = 100

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceExists       = errors.New("device with this deviceId already exists")
	ErrInvalidDeviceID    = errors.New("invalid device id")
	ErrInvalidDeviceState = errors.New("invalid device status")
	ErrInvalidMetric      = errors.New("invalid telemetry metric")
	ErrTelemetryNotPosted = errors.New("telemetry could not be published")
)

type DeviceStatus string

const (
	DeviceStatusOnline      DeviceStatus = "ONLINE"
	DeviceStatusOffline     DeviceStatus = "OFFLINE"
	DeviceStatusMaintenance DeviceStatus = "MAINTENANCE"
)

type Device struct {
	ID        string       `json:"id"`
	DeviceID  string       `json:"deviceId"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Status    DeviceStatus `json:"status"`
	AssetID   *string      `json:"assetId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type CreateDeviceRequest struct {
	DeviceID string       `json:"deviceId"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Status   DeviceStatus `json:"status,omitempty"`
	AssetID  *string      `json:"assetId,omitempty"`
}

type UpdateDeviceRequest struct {
	Name    *string       `json:"name,omitempty"`
	Type    *string       `json:"type,omitempty"`
	Status  *DeviceStatus `json:"status,omitempty"`
	AssetID *string       `json:"assetId,omitempty"`
}

type TelemetryRequest struct {
	Metric string         `json:"metric"`
	Value  float64        `json:"value"`
	Tags   map[string]any `json:"tags,omitempty"`
}

// TelemetryReading exists only as a published event; it is not stored here.
type TelemetryReading struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"deviceId"`
	Metric    string         `json:"metric"`
	Value     float64        `json:"value"`
	Tags      map[string]any `json:"tags,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func ValidateDeviceID(id string) error {
	if id == "" || len(id) > maxDeviceIDLength || strings.ContainsAny(id, " ") {
		return ErrInvalidDeviceID
	}
	return nil
}
