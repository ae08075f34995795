package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sima-events/internal/domain"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const auditLogColumns = `id, user_id, user_name, action, resource_type, resource_id, resource_name,
		old_values, new_values, ip_address, user_agent, description, severity, error_message, created_at`

// postgresAuditLogRepository is append-only: entries are inserted and read,
// never updated or deleted.
type postgresAuditLogRepository struct {
	db *sql.DB
}

func NewPostgresAuditLogRepository(db *sql.DB) *postgresAuditLogRepository {
	return &postgresAuditLogRepository{db: db}
}

func (r *postgresAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO audit_logs (
			id, user_id, user_name, action, resource_type, resource_id, resource_name,
			old_values, new_values, ip_address, user_agent, description, severity, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.UserName,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.ResourceName,
		jsonbValue(entry.OldValues),
		jsonbValue(entry.NewValues),
		entry.IPAddress,
		entry.UserAgent,
		entry.Description,
		entry.Severity,
		entry.ErrorMessage,
	).Scan(&entry.CreatedAt)

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"audit_id":      entry.ID,
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
		}).Error("Failed to create audit log")
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

func (r *postgresAuditLogRepository) GetByID(ctx context.Context, id string) (*domain.AuditLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE id = $1`

	entry, err := scanAuditLog(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuditLogNotFound
	}
	if err != nil {
		log.WithError(err).WithField("audit_id", id).Error("Failed to get audit log by ID")
		return nil, fmt.Errorf("failed to get audit log by ID: %w", err)
	}

	return entry, nil
}

// List returns one page of entries newest first, plus the number of entries
// matching the filter across all pages.
func (r *postgresAuditLogRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where, args := auditWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.WithError(err).Error("Failed to count audit logs")
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	argPos := len(args) + 1
	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditLogColumns, where, argPos, argPos+1)
	args = append(args, filter.Take, filter.Skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to list audit logs")
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLogEntry{}
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan audit log row")
			return nil, 0, fmt.Errorf("failed to scan audit log row: %w", err)
		}
		logs = append(logs, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over audit log rows: %w", err)
	}

	return logs, total, nil
}

// auditWhere builds the WHERE clause shared by the page and count queries.
func auditWhere(filter domain.AuditFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLogEntry, error) {
	var entry domain.AuditLogEntry
	var resourceID, resourceName, ipAddress, userAgent, description, errorMessage sql.NullString
	var oldValues, newValues []byte

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.UserName,
		&entry.Action,
		&entry.ResourceType,
		&resourceID,
		&resourceName,
		&oldValues,
		&newValues,
		&ipAddress,
		&userAgent,
		&description,
		&entry.Severity,
		&errorMessage,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ResourceID = nullString(resourceID)
	entry.ResourceName = nullString(resourceName)
	entry.IPAddress = nullString(ipAddress)
	entry.UserAgent = nullString(userAgent)
	entry.Description = nullString(description)
	entry.ErrorMessage = nullString(errorMessage)
	entry.OldValues = oldValues
	entry.NewValues = newValues

	return &entry, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return lo.ToPtr(s.String)
}

// jsonbValue keeps absent values NULL instead of an empty document.
func jsonbValue(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
