package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sima-events/internal/domain"
	"sima-events/internal/publisher"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type AuditService interface {
	Log(ctx context.Context, req domain.CreateAuditLogRequest) (*domain.AuditLogEntry, error)
	FindAll(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
	FindOne(ctx context.Context, id string) (*domain.AuditLogEntry, error)
	FindByUser(ctx context.Context, userID string, skip, take int) (*domain.AuditPage, error)
	FindByAction(ctx context.Context, action string, skip, take int) (*domain.AuditPage, error)
	FindByResourceType(ctx context.Context, resourceType string, skip, take int) (*domain.AuditPage, error)
	FindByDateRange(ctx context.Context, from, to time.Time, skip, take int) (*domain.AuditPage, error)
	GenerateReport(ctx context.Context, from, to time.Time) (*domain.AuditReport, error)
}

// BusStatus reports whether the process still holds a bus connection.
type BusStatus interface {
	Connected() bool
}

type PublishStats interface {
	Stats() publisher.Stats
}

type auditServer struct {
	auditService AuditService
	bus          BusStatus
	stats        PublishStats
}

func NewAuditServer(auditService AuditService, bus BusStatus, stats PublishStats) *auditServer {
	return &auditServer{
		auditService: auditService,
		bus:          bus,
		stats:        stats,
	}
}

func handleAuditError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuditLogNotFound):
		return http.StatusNotFound, "audit log not found"
	case errors.Is(err, domain.ErrInvalidDateRange):
		return http.StatusBadRequest, "invalid date range"
	case errors.Is(err, domain.ErrInvalidAuditAction):
		return http.StatusBadRequest, "invalid audit action"
	case errors.Is(err, domain.ErrInvalidAuditLog), errors.Is(err, domain.ErrInvalidUUID):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *auditServer) fail(c echo.Context, err error, msg string) error {
	status, errorMsg := handleAuditError(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error(msg)
	} else {
		log.WithError(err).Debug(msg)
	}
	return errorJSON(c, status, errorMsg)
}

func (s *auditServer) Create(c echo.Context) error {
	var req domain.CreateAuditLogRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.IPAddress == "" {
		req.IPAddress = c.RealIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request().UserAgent()
	}

	entry, err := s.auditService.Log(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err, "Failed to create audit log")
	}

	return c.JSON(http.StatusCreated, entry)
}

func (s *auditServer) FindAll(c echo.Context) error {
	from, err := parseDate(c.QueryParam("startDate"), false)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid startDate")
	}
	to, err := parseDate(c.QueryParam("endDate"), true)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid endDate")
	}

	filter := domain.AuditFilter{
		UserID:       c.QueryParam("userId"),
		ResourceType: c.QueryParam("resourceType"),
		From:         from,
		To:           to,
	}
	if action := c.QueryParam("action"); action != "" {
		parsed, err := domain.ParseAuditAction(action)
		if err != nil {
			return s.fail(c, err, "Invalid audit action filter")
		}
		filter.Action = parsed
	}
	filter.Skip, filter.Take = skipTake(c)

	page, err := s.auditService.FindAll(c.Request().Context(), filter)
	if err != nil {
		return s.fail(c, err, "Failed to list audit logs")
	}

	return c.JSON(http.StatusOK, page)
}

func (s *auditServer) FindOne(c echo.Context) error {
	id := c.Param("id")

	entry, err := s.auditService.FindOne(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err, "Failed to get audit log")
	}

	return c.JSON(http.StatusOK, entry)
}

func (s *auditServer) FindByUser(c echo.Context) error {
	skip, take := skipTake(c)

	page, err := s.auditService.FindByUser(c.Request().Context(), c.Param("userId"), skip, take)
	if err != nil {
		return s.fail(c, err, "Failed to list audit logs by user")
	}

	return c.JSON(http.StatusOK, page)
}

func (s *auditServer) FindByAction(c echo.Context) error {
	skip, take := skipTake(c)

	page, err := s.auditService.FindByAction(c.Request().Context(), c.Param("action"), skip, take)
	if err != nil {
		return s.fail(c, err, "Failed to list audit logs by action")
	}

	return c.JSON(http.StatusOK, page)
}

func (s *auditServer) FindByResourceType(c echo.Context) error {
	skip, take := skipTake(c)

	page, err := s.auditService.FindByResourceType(c.Request().Context(), c.Param("resourceType"), skip, take)
	if err != nil {
		return s.fail(c, err, "Failed to list audit logs by resource type")
	}

	return c.JSON(http.StatusOK, page)
}

func (s *auditServer) FindByDateRange(c echo.Context) error {
	from, to, err := dateRange(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid date range")
	}
	skip, take := skipTake(c)

	page, err := s.auditService.FindByDateRange(c.Request().Context(), from, to, skip, take)
	if err != nil {
		return s.fail(c, err, "Failed to list audit logs by date range")
	}

	return c.JSON(http.StatusOK, page)
}

func (s *auditServer) Report(c echo.Context) error {
	from, to, err := dateRange(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid date range")
	}

	report, err := s.auditService.GenerateReport(c.Request().Context(), from, to)
	if err != nil {
		return s.fail(c, err, "Failed to generate audit report")
	}

	return c.JSON(http.StatusOK, report)
}

// BusHealth reports the bus connection of this process and what its
// publisher has done so far.
func (s *auditServer) BusHealth(c echo.Context) error {
	connected := s.bus.Connected()
	stats := s.stats.Stats()

	status := http.StatusOK
	state := "up"
	if !connected {
		status = http.StatusServiceUnavailable
		state = "down"
	}

	return c.JSON(status, map[string]any{
		"status":    state,
		"connected": connected,
		"published": stats,
	})
}

func dateRange(c echo.Context) (time.Time, time.Time, error) {
	from, err := parseDate(c.QueryParam("startDate"), false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(c.QueryParam("endDate"), true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
