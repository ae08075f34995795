package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sima-events/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTake = 10
	maxTake     = 100
	reportLimit = 1000
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
	GetByID(ctx context.Context, id string) (*domain.AuditLogEntry, error)
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, int, error)
}

// AuditService owns the append-only audit trail. There is no update or
// delete path.
type AuditService struct {
	repo AuditLogRepository
	now  func() time.Time
}

func NewAuditService(repo AuditLogRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

// Log validates and stores an explicit submission.
func (s *AuditService) Log(ctx context.Context, req domain.CreateAuditLogRequest) (*domain.AuditLogEntry, error) {
	action, err := domain.ParseAuditAction(string(req.Action))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.UserName) == "" {
		return nil, fmt.Errorf("%w: user id and user name are required", domain.ErrInvalidAuditLog)
	}
	if strings.TrimSpace(req.ResourceType) == "" {
		return nil, fmt.Errorf("%w: resource type is required", domain.ErrInvalidAuditLog)
	}

	severity := strings.ToUpper(strings.TrimSpace(req.Severity))
	if severity == "" {
		severity = domain.SeverityInfo
	}

	entry := &domain.AuditLogEntry{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		UserName:     req.UserName,
		Action:       action,
		ResourceType: req.ResourceType,
		ResourceID:   lo.EmptyableToPtr(req.ResourceID),
		ResourceName: lo.EmptyableToPtr(req.ResourceName),
		OldValues:    req.OldValues,
		NewValues:    req.NewValues,
		IPAddress:    lo.EmptyableToPtr(req.IPAddress),
		UserAgent:    lo.EmptyableToPtr(req.UserAgent),
		Description:  lo.EmptyableToPtr(req.Description),
		Severity:     severity,
		ErrorMessage: lo.EmptyableToPtr(req.ErrorMessage),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
		}).Error("Failed to store audit log")
		return nil, fmt.Errorf("failed to store audit log: %w", err)
	}

	log.WithFields(log.Fields{
		"audit_id":      entry.ID,
		"user_id":       entry.UserID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
	}).Info("Audit log stored")

	return entry, nil
}

// LogFromEvent fills the defaults for fields an event did not carry and
// stores the entry.
func (s *AuditService) LogFromEvent(ctx context.Context, req domain.CreateAuditLogRequest) (*domain.AuditLogEntry, error) {
	if req.UserID == "" {
		req.UserID = domain.SystemActor
	}
	if req.UserName == "" {
		req.UserName = domain.SystemActor
	}
	if req.Action == "" {
		req.Action = domain.AuditActionCreate
	}
	if req.ResourceType == "" {
		req.ResourceType = domain.UnknownResource
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityInfo
	}
	return s.Log(ctx, req)
}

func (s *AuditService) FindAll(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, domain.ErrInvalidDateRange
	}
	filter.Skip, filter.Take = page(filter.Skip, filter.Take)

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list audit logs")
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return &domain.AuditPage{Logs: logs, Total: total}, nil
}

func (s *AuditService) FindOne(ctx context.Context, id string) (*domain.AuditLogEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	return s.repo.GetByID(ctx, id)
}

func (s *AuditService) FindByUser(ctx context.Context, userID string, skip, take int) (*domain.AuditPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidAuditLog)
	}
	return s.FindAll(ctx, domain.AuditFilter{UserID: userID, Skip: skip, Take: take})
}

func (s *AuditService) FindByAction(ctx context.Context, action string, skip, take int) (*domain.AuditPage, error) {
	parsed, err := domain.ParseAuditAction(action)
	if err != nil {
		return nil, err
	}
	return s.FindAll(ctx, domain.AuditFilter{Action: parsed, Skip: skip, Take: take})
}

func (s *AuditService) FindByResourceType(ctx context.Context, resourceType string, skip, take int) (*domain.AuditPage, error) {
	if strings.TrimSpace(resourceType) == "" {
		return nil, fmt.Errorf("%w: resource type is required", domain.ErrInvalidAuditLog)
	}
	return s.FindAll(ctx, domain.AuditFilter{ResourceType: resourceType, Skip: skip, Take: take})
}

func (s *AuditService) FindByDateRange(ctx context.Context, from, to time.Time, skip, take int) (*domain.AuditPage, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.FindAll(ctx, domain.AuditFilter{From: from, To: to, Skip: skip, Take: take})
}

// GenerateReport summarizes at most reportLimit entries of the window.
func (s *AuditService) GenerateReport(ctx context.Context, from, to time.Time) (*domain.AuditReport, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}

	logs, _, err := s.repo.List(ctx, domain.AuditFilter{From: from, To: to, Take: reportLimit})
	if err != nil {
		log.WithError(err).Error("Failed to load audit logs for report")
		return nil, fmt.Errorf("failed to generate audit report: %w", err)
	}

	return &domain.AuditReport{Summary: Summarize(logs), Logs: logs}, nil
}

func Summarize(logs []domain.AuditLogEntry) domain.AuditSummary {
	return domain.AuditSummary{
		TotalActions: len(logs),
		ActionsByType: lo.CountValuesBy(logs, func(e domain.AuditLogEntry) domain.AuditAction {
			return e.Action
		}),
		ActionsByUser: lo.CountValuesBy(logs, func(e domain.AuditLogEntry) string {
			return e.UserID
		}),
		CriticalActions: lo.CountBy(logs, func(e domain.AuditLogEntry) bool {
			return e.Severity == domain.SeverityCritical
		}),
	}
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", domain.ErrInvalidDateRange)
	}
	if from.After(to) {
		return fmt.Errorf("%w: start date is after end date", domain.ErrInvalidDateRange)
	}
	return nil
}

func page(skip, take int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = defaultTake
	}
	if take > maxTake {
		take = maxTake
	}
	return skip, take
}
