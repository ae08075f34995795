package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"sima-events/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditCols = []string{
	"id", "user_id", "user_name", "action", "resource_type", "resource_id", "resource_name",
	"old_values", "new_values", "ip_address", "user_agent", "description", "severity", "error_message", "created_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestAuditLogRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := &domain.AuditLogEntry{
		ID:           "e1",
		UserID:       "system",
		UserName:     "system",
		Action:       domain.AuditActionCreate,
		ResourceType: "asset",
		ResourceID:   lo.ToPtr("a1"),
		NewValues:    []byte(`{"id":"a1"}`),
		Severity:     domain.SeverityInfo,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs("e1", "system", "system", "CREATE", "asset", "a1", nil, nil, `{"id":"a1"}`, nil, nil, nil, "INFO", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	err := NewPostgresAuditLogRepository(db).Create(context.Background(), entry)

	require.NoError(t, err)
	assert.Equal(t, created, entry.CreatedAt)
}

func TestAuditLogRepository_CreateFailure(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnError(errors.New("connection reset"))

	err := NewPostgresAuditLogRepository(db).Create(context.Background(), &domain.AuditLogEntry{ID: "e1"})

	assert.ErrorContains(t, err, "connection reset")
}

func TestAuditLogRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		created := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(auditCols).AddRow(
				"e1", "u1", "Ann", "UPDATE", "user", "u1", "a@b.com",
				[]byte(`{"role":"USER"}`), []byte(`{"role":"ADMIN"}`), nil, nil, nil, "WARNING", nil, created,
			))

		entry, err := NewPostgresAuditLogRepository(db).GetByID(context.Background(), "e1")

		require.NoError(t, err)
		assert.Equal(t, domain.AuditActionUpdate, entry.Action)
		assert.Equal(t, "a@b.com", *entry.ResourceName)
		assert.Nil(t, entry.IPAddress)
		assert.JSONEq(t, `{"role":"ADMIN"}`, string(entry.NewValues))
		assert.Equal(t, domain.SeverityWarning, entry.Severity)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(auditCols))

		_, err := NewPostgresAuditLogRepository(db).GetByID(context.Background(), "nope")

		assert.ErrorIs(t, err, domain.ErrAuditLogNotFound)
	})
}

func TestAuditLogRepository_ListFilters(t *testing.T) {
	db, mock := newMock(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE user_id = $1 AND action = $2 AND created_at >= $3 AND created_at <= $4")).
		WithArgs("u1", "DELETE", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND action = $2 AND created_at >= $3 AND created_at <= $4 ORDER BY created_at DESC LIMIT $5 OFFSET $6")).
		WithArgs("u1", "DELETE", from, to, 2, 10).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("e1", "u1", "Ann", "DELETE", "asset", "a1", nil, nil, nil, nil, nil, nil, "INFO", nil, to).
			AddRow("e2", "u1", "Ann", "DELETE", "asset", "a2", nil, nil, nil, nil, nil, nil, "INFO", nil, from))

	logs, total, err := NewPostgresAuditLogRepository(db).List(context.Background(), domain.AuditFilter{
		UserID: "u1",
		Action: domain.AuditActionDelete,
		From:   from,
		To:     to,
		Skip:   10,
		Take:   2,
	})

	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "e1", logs[0].ID)
	assert.Nil(t, logs[0].NewValues)
}

func TestAuditLogRepository_ListUnfiltered(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(auditCols))

	logs, total, err := NewPostgresAuditLogRepository(db).List(context.Background(), domain.AuditFilter{Take: 10})

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestAuditWhere(t *testing.T) {
	where, args := auditWhere(domain.AuditFilter{ResourceType: "device"})

	assert.Equal(t, " WHERE resource_type = $1", where)
	assert.Equal(t, []any{"device"}, args)
}
