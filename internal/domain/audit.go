package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuditLogNotFound   = errors.New("audit log not found")
	ErrInvalidAuditAction = errors.New("invalid audit action")
	ErrInvalidDateRange   = errors.New("invalid date range")
	ErrInvalidAuditLog    = errors.New("invalid audit log")
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionRead   AuditAction = "READ"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionLogin  AuditAction = "LOGIN"
	AuditActionLogout AuditAction = "LOGOUT"
	AuditActionExport AuditAction = "EXPORT"
	AuditActionImport AuditAction = "IMPORT"
)

// AuditActions returns every valid action.
func AuditActions() []AuditAction {
	return []AuditAction{
		AuditActionCreate, AuditActionRead, AuditActionUpdate, AuditActionDelete,
		AuditActionLogin, AuditActionLogout, AuditActionExport, AuditActionImport,
	}
}

// ParseAuditAction accepts any letter case.
func ParseAuditAction(s string) (AuditAction, error) {
	candidate := AuditAction(strings.ToUpper(strings.TrimSpace(s)))
	for _, action := range AuditActions() {
		if candidate == action {
			return action, nil
		}
	}
	return "", ErrInvalidAuditAction
}

const (
	SystemActor      = "system"
	UnknownResource  = "unknown"
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// AuditLogEntry is an append-only record of one consumed event or one
// explicit submission.
type AuditLogEntry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   *string         `json:"resourceId,omitempty"`
	ResourceName *string         `json:"resourceName,omitempty"`
	OldValues    json.RawMessage `json:"oldValues,omitempty"`
	NewValues    json.RawMessage `json:"newValues,omitempty"`
	IPAddress    *string         `json:"ipAddress,omitempty"`
	UserAgent    *string         `json:"userAgent,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Severity     string          `json:"severity"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CreateAuditLogRequest is the input of an explicit audit submission.
type CreateAuditLogRequest struct {
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	ResourceName string          `json:"resourceName,omitempty"`
	OldValues    json.RawMessage `json:"oldValues,omitempty"`
	NewValues    json.RawMessage `json:"newValues,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	Description  string          `json:"description,omitempty"`
	Severity     string          `json:"severity,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// AuditFilter narrows a listing. Zero values mean "no constraint".
type AuditFilter struct {
	UserID       string
	Action       AuditAction
	ResourceType string
	From         time.Time
	To           time.Time
	Skip         int
	Take         int
}

type AuditPage struct {
	Logs  []AuditLogEntry `json:"logs"`
	Total int             `json:"total"`
}

type AuditSummary struct {
	TotalActions    int                 `json:"totalActions"`
	ActionsByType   map[AuditAction]int `json:"actionsByType"`
	ActionsByUser   map[string]int      `json:"actionsByUser"`
	CriticalActions int                 `json:"criticalActions"`
}

type AuditReport struct {
	Summary AuditSummary    `json:"summary"`
	Logs    []AuditLogEntry `json:"logs"`
}
