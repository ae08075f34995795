package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sima-events/internal/domain"
	"sima-events/internal/publisher"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuditService struct {
	mock.Mock
}

func (m *mockAuditService) Log(ctx context.Context, req domain.CreateAuditLogRequest) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *mockAuditService) FindAll(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	return m.page(m.Called(ctx, filter))
}

func (m *mockAuditService) FindOne(ctx context.Context, id string) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *mockAuditService) FindByUser(ctx context.Context, userID string, skip, take int) (*domain.AuditPage, error) {
	return m.page(m.Called(ctx, userID, skip, take))
}

func (m *mockAuditService) FindByAction(ctx context.Context, action string, skip, take int) (*domain.AuditPage, error) {
	return m.page(m.Called(ctx, action, skip, take))
}

func (m *mockAuditService) FindByResourceType(ctx context.Context, resourceType string, skip, take int) (*domain.AuditPage, error) {
	return m.page(m.Called(ctx, resourceType, skip, take))
}

func (m *mockAuditService) FindByDateRange(ctx context.Context, from, to time.Time, skip, take int) (*domain.AuditPage, error) {
	return m.page(m.Called(ctx, from, to, skip, take))
}

func (m *mockAuditService) GenerateReport(ctx context.Context, from, to time.Time) (*domain.AuditReport, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditReport), args.Error(1)
}

func (m *mockAuditService) page(args mock.Arguments) (*domain.AuditPage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditPage), args.Error(1)
}

type busStatus bool

func (b busStatus) Connected() bool { return bool(b) }

type statsFunc func() publisher.Stats

func (f statsFunc) Stats() publisher.Stats { return f() }

type fakeDevices struct {
	DeviceService
	telemetryErr error
}

func (f *fakeDevices) RecordTelemetry(_ context.Context, id string, req domain.TelemetryRequest) (*domain.TelemetryReading, error) {
	if f.telemetryErr != nil {
		return nil, f.telemetryErr
	}
	return &domain.TelemetryReading{ID: "r1", DeviceID: id, Metric: req.Metric, Value: req.Value}, nil
}

type fakeUsers struct {
	UserService
	createErr error
}

func (f *fakeUsers) CreateUser(_ context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.User{ID: "u1", Email: req.Email, Name: req.Name}, nil
}

type fakeAssets struct {
	AssetService
	gotStatus *domain.AssetStatus
}

func (f *fakeAssets) ListAssets(_ context.Context, status *domain.AssetStatus, _, _ int) ([]domain.Asset, error) {
	f.gotStatus = status
	return []domain.Asset{}, nil
}

type testEnv struct {
	echo    *echo.Echo
	audit   *mockAuditService
	users   *fakeUsers
	assets  *fakeAssets
	devices *fakeDevices
	sql     sqlmock.Sqlmock
}

func newTestEnv(t *testing.T, connected bool) *testEnv {
	t.Helper()

	db, sqlMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		audit:   &mockAuditService{},
		users:   &fakeUsers{},
		assets:  &fakeAssets{},
		devices: &fakeDevices{},
		sql:     sqlMock,
	}
	stats := statsFunc(func() publisher.Stats { return publisher.Stats{Sent: 7, Failed: 2, Dropped: 1} })

	env.echo = NewRouter(Handlers{
		Health:  NewServer(db),
		Audit:   NewAuditServer(env.audit, busStatus(connected), stats),
		Users:   NewUserServer(env.users),
		Assets:  NewAssetServer(env.assets),
		Devices: NewDeviceServer(env.devices),
	})
	return env
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, true)

	env.sql.ExpectPing()
	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.sql.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database connection error", decodeError(t, rec))
}

func TestAudit_FindAllParsesFilter(t *testing.T) {
	env := newTestEnv(t, true)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)

	env.audit.On("FindAll", mock.Anything, domain.AuditFilter{
		UserID: "u1",
		Action: domain.AuditActionUpdate,
		From:   from,
		To:     to,
		Skip:   20,
		Take:   5,
	}).Return(&domain.AuditPage{Logs: []domain.AuditLogEntry{{ID: "e1"}}, Total: 21}, nil)

	rec := env.do(http.MethodGet, "/api/audit?userId=u1&action=update&startDate=2026-05-01&endDate=2026-05-01&skip=20&take=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.AuditPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 21, page.Total)
	env.audit.AssertExpectations(t)
}

func TestAudit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		setup  func(m *mockAuditService)
		status int
		msg    string
	}{
		{
			name:   "unknown action filter",
			target: "/api/audit?action=PURGE",
			status: http.StatusBadRequest,
			msg:    "invalid audit action",
		},
		{
			name:   "store failure",
			target: "/api/audit",
			setup: func(m *mockAuditService) {
				m.On("FindAll", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
			},
			status: http.StatusInternalServerError,
			msg:    "internal server error",
		},
		{
			name:   "entry not found",
			target: "/api/audit/5f0c3a4e-8d1b-4f53-9a6c-2b7e1d9c0a11",
			setup: func(m *mockAuditService) {
				m.On("FindOne", mock.Anything, "5f0c3a4e-8d1b-4f53-9a6c-2b7e1d9c0a11").Return(nil, domain.ErrAuditLogNotFound)
			},
			status: http.StatusNotFound,
			msg:    "audit log not found",
		},
		{
			name:   "action route rejects unknown action",
			target: "/api/audit/action/PURGE",
			setup: func(m *mockAuditService) {
				m.On("FindByAction", mock.Anything, "PURGE", 0, 0).Return(nil, domain.ErrInvalidAuditAction)
			},
			status: http.StatusBadRequest,
			msg:    "invalid audit action",
		},
		{
			name:   "unparseable report date",
			target: "/api/audit/report?startDate=yesterday&endDate=2026-05-01",
			status: http.StatusBadRequest,
			msg:    "invalid date range",
		},
		{
			name:   "inverted range",
			target: "/api/audit/range?startDate=2026-05-02&endDate=2026-05-01",
			setup: func(m *mockAuditService) {
				m.On("FindByDateRange", mock.Anything, mock.Anything, mock.Anything, 0, 0).
					Return(nil, fmt.Errorf("%w: start date is after end date", domain.ErrInvalidDateRange))
			},
			status: http.StatusBadRequest,
			msg:    "invalid date range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			if tt.setup != nil {
				tt.setup(env.audit)
			}

			rec := env.do(http.MethodGet, tt.target, "")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}
}

func TestAudit_Report(t *testing.T) {
	env := newTestEnv(t, true)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC)
	env.audit.On("GenerateReport", mock.Anything, from, to).Return(&domain.AuditReport{
		Summary: domain.AuditSummary{
			TotalActions:  3,
			ActionsByType: map[domain.AuditAction]int{domain.AuditActionCreate: 2, domain.AuditActionDelete: 1},
			ActionsByUser: map[string]int{"u1": 3},
		},
		Logs: []domain.AuditLogEntry{},
	}, nil)

	rec := env.do(http.MethodGet, "/api/audit/report?startDate=2026-05-01T00:00:00Z&endDate=2026-05-31T23:59:59Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Summary struct {
			TotalActions  int            `json:"totalActions"`
			ActionsByType map[string]int `json:"actionsByType"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Summary.TotalActions)
	assert.Equal(t, map[string]int{"CREATE": 2, "DELETE": 1}, body.Summary.ActionsByType)
}

func TestAudit_FilterRoutes(t *testing.T) {
	env := newTestEnv(t, true)
	empty := &domain.AuditPage{Logs: []domain.AuditLogEntry{}}
	env.audit.On("FindByUser", mock.Anything, "u1", 0, 50).Return(empty, nil).Once()
	env.audit.On("FindByResourceType", mock.Anything, "asset", 10, 0).Return(empty, nil).Once()

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/audit/user/u1?take=50", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/audit/resource/asset?skip=10", "").Code)
	env.audit.AssertExpectations(t)
}

func TestAudit_Create(t *testing.T) {
	env := newTestEnv(t, true)
	env.audit.On("Log", mock.Anything, mock.MatchedBy(func(req domain.CreateAuditLogRequest) bool {
		return req.Action == domain.AuditActionExport && req.UserAgent == "ops-cli/1.0" && req.IPAddress != ""
	})).Return(&domain.AuditLogEntry{ID: "e1", Action: domain.AuditActionExport}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/audit",
		strings.NewReader(`{"userId":"u1","userName":"Ann","action":"EXPORT","resourceType":"report"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "ops-cli/1.0")
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env.audit.AssertExpectations(t)
}

func TestAudit_CreateRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/api/audit", `{"userId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.audit.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}

func TestAudit_BusHealth(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		rec := newTestEnv(t, true).do(http.MethodGet, "/api/audit/health/bus", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Status    string          `json:"status"`
			Connected bool            `json:"connected"`
			Published publisher.Stats `json:"published"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "up", body.Status)
		assert.True(t, body.Connected)
		assert.Equal(t, publisher.Stats{Sent: 7, Failed: 2, Dropped: 1}, body.Published)
	})

	t.Run("disconnected", func(t *testing.T) {
		rec := newTestEnv(t, false).do(http.MethodGet, "/api/audit/health/bus", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestDevices_RecordTelemetry(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/api/devices/d1/telemetry", `{"metric":"temperature","value":21.5}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	env.devices.telemetryErr = fmt.Errorf("%w: not connected", domain.ErrTelemetryNotPosted)
	rec = env.do(http.MethodPost, "/api/devices/d1/telemetry", `{"metric":"temperature","value":21.5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.devices.telemetryErr = domain.ErrInvalidMetric
	rec = env.do(http.MethodPost, "/api/devices/d1/telemetry", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers_CreateConflict(t *testing.T) {
	env := newTestEnv(t, true)
	env.users.createErr = domain.ErrUserEmailExists

	rec := env.do(http.MethodPost, "/api/users", `{"email":"a@b.com","name":"Ann"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user with this email already exists", decodeError(t, rec))
}

func TestAssets_ListStatusFilter(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodGet, "/api/assets?status=maintenance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.assets.gotStatus)
	assert.Equal(t, domain.AssetStatusMaintenance, *env.assets.gotStatus)

	rec = env.do(http.MethodGet, "/api/assets?status=LOST", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("2026-05-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := parseDate("2026-05-01", true)
	require.NoError(t, err)
	assert.Equal(t, 2026, end.Year())
	assert.Equal(t, 23, end.Hour())

	zero, err := parseDate("", true)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseDate("01/05/2026", false)
	assert.Error(t, err)
}
