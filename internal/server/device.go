package server

import (
	"context"
	"errors"
	"net/http"

	"sima-events/internal/domain"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type DeviceService interface {
	RegisterDevice(ctx context.Context, req domain.CreateDeviceRequest) (*domain.Device, error)
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	UpdateDevice(ctx context.Context, id string, req domain.UpdateDeviceRequest) (*domain.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context, limit, offset int) ([]domain.Device, error)
	RecordTelemetry(ctx context.Context, id string, req domain.TelemetryRequest) (*domain.TelemetryReading, error)
}

type deviceServer struct {
	deviceService DeviceService
}

func NewDeviceServer(deviceService DeviceService) *deviceServer {
	return &deviceServer{deviceService: deviceService}
}

func handleDeviceError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDeviceNotFound):
		return http.StatusNotFound, "device not found"
	case errors.Is(err, domain.ErrDeviceExists):
		return http.StatusConflict, "device with this deviceId already exists"
	case errors.Is(err, domain.ErrTelemetryNotPosted):
		return http.StatusServiceUnavailable, "telemetry could not be published"
	case errors.Is(err, domain.ErrInvalidDeviceID), errors.Is(err, domain.ErrInvalidDeviceState),
		errors.Is(err, domain.ErrInvalidMetric), errors.Is(err, domain.ErrInvalidUUID):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *deviceServer) RegisterDevice(c echo.Context) error {
	var req domain.CreateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	device, err := s.deviceService.RegisterDevice(c.Request().Context(), req)
	if err != nil {
		log.WithError(err).WithField("device_id", req.DeviceID).Error("Failed to register device")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusCreated, device)
}

func (s *deviceServer) GetDevice(c echo.Context) error {
	id := c.Param("id")

	device, err := s.deviceService.GetDevice(c.Request().Context(), id)
	if err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to get device")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, device)
}

func (s *deviceServer) UpdateDevice(c echo.Context) error {
	id := c.Param("id")

	var req domain.UpdateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	device, err := s.deviceService.UpdateDevice(c.Request().Context(), id, req)
	if err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to update device")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, device)
}

func (s *deviceServer) DeleteDevice(c echo.Context) error {
	id := c.Param("id")

	if err := s.deviceService.DeleteDevice(c.Request().Context(), id); err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to delete device")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *deviceServer) ListDevices(c echo.Context) error {
	limit, offset := limitOffset(c)

	devices, err := s.deviceService.ListDevices(c.Request().Context(), limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list devices")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, devices)
}

// RecordTelemetry answers 202: the reading is accepted onto the bus, not stored.
func (s *deviceServer) RecordTelemetry(c echo.Context) error {
	id := c.Param("id")

	var req domain.TelemetryRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	reading, err := s.deviceService.RecordTelemetry(c.Request().Context(), id, req)
	if err != nil {
		log.WithError(err).WithField("device_id", id).Error("Failed to record telemetry")
		statusCode, errorMsg := handleDeviceError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusAccepted, reading)
}
