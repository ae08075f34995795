package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sima-events/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*domain.Device, error)
	Update(ctx context.Context, id string, req domain.UpdateDeviceRequest) (*domain.Device, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]domain.Device, error)
}

// TelemetrySender publishes readings and reports failures, unlike
// EventPublisher.
type TelemetrySender interface {
	SendMessage(ctx context.Context, topic domain.Topic, payload any) error
}

type deviceService struct {
	deviceRepo DeviceRepository
	events     EventPublisher
	telemetry  TelemetrySender
}

func NewDeviceService(deviceRepo DeviceRepository, events EventPublisher, telemetry TelemetrySender) *deviceService {
	return &deviceService{deviceRepo: deviceRepo, events: events, telemetry: telemetry}
}

func (s *deviceService) RegisterDevice(ctx context.Context, req domain.CreateDeviceRequest) (*domain.Device, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if err := domain.ValidateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = domain.DeviceStatusOffline
	}
	if err := validateDeviceStatus(req.Status); err != nil {
		return nil, err
	}

	existing, err := s.deviceRepo.GetByDeviceID(ctx, req.DeviceID)
	if err != nil && !errors.Is(err, domain.ErrDeviceNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDeviceExists
	}

	device := &domain.Device{
		ID:       uuid.NewString(),
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Status:   req.Status,
		AssetID:  req.AssetID,
	}
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicTelemetry, devicePayload(device, domain.TelemetryDeviceRegistered))

	log.WithFields(log.Fields{
		"id":        device.ID,
		"device_id": device.DeviceID,
	}).Info("Device successfully registered")

	return device, nil
}

func (s *deviceService) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	return s.deviceRepo.GetByID(ctx, id)
}

func (s *deviceService) UpdateDevice(ctx context.Context, id string, req domain.UpdateDeviceRequest) (*domain.Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	if req.Status != nil {
		if err := validateDeviceStatus(*req.Status); err != nil {
			return nil, err
		}
	}

	device, err := s.deviceRepo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicTelemetry, devicePayload(device, domain.TelemetryDeviceUpdated))

	log.WithField("id", id).Info("Device successfully updated")
	return device, nil
}

func (s *deviceService) DeleteDevice(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidUUID
	}
	return s.deviceRepo.Delete(ctx, id)
}

func (s *deviceService) ListDevices(ctx context.Context, limit, offset int) ([]domain.Device, error) {
	offset, limit = page(offset, limit)
	return s.deviceRepo.List(ctx, limit, offset)
}

// RecordTelemetry publishes a reading synchronously. The reading is only
// ever an event, so a failed send is reported to the caller.
func (s *deviceService) RecordTelemetry(ctx context.Context, id string, req domain.TelemetryRequest) (*domain.TelemetryReading, error) {
	if strings.TrimSpace(req.Metric) == "" {
		return nil, domain.ErrInvalidMetric
	}
	device, err := s.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	reading := &domain.TelemetryReading{
		ID:        uuid.NewString(),
		DeviceID:  device.DeviceID,
		Metric:    req.Metric,
		Value:     req.Value,
		Tags:      req.Tags,
		Timestamp: time.Now().UTC(),
	}

	value := req.Value
	err = s.telemetry.SendMessage(ctx, domain.TopicTelemetry, domain.TelemetryPayload{
		ID:        domain.ID(device.ID),
		DeviceID:  device.DeviceID,
		Event:     domain.TelemetryMetricReading,
		Metric:    req.Metric,
		Value:     &value,
		Tags:      req.Tags,
		Timestamp: reading.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		log.WithError(err).WithField("device_id", device.DeviceID).Error("Failed to publish telemetry")
		return nil, fmt.Errorf("%w: %v", domain.ErrTelemetryNotPosted, err)
	}

	return reading, nil
}

func validateDeviceStatus(status domain.DeviceStatus) error {
	switch status {
	case domain.DeviceStatusOnline, domain.DeviceStatusOffline, domain.DeviceStatusMaintenance:
		return nil
	}
	return domain.ErrInvalidDeviceState
}

func devicePayload(d *domain.Device, event string) domain.TelemetryPayload {
	return domain.TelemetryPayload{
		ID:        domain.ID(d.ID),
		DeviceID:  d.DeviceID,
		Status:    string(d.Status),
		Type:      d.Type,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
