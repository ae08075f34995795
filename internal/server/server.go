package server

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	defaultLimit = 10
	dateLayout   = "2006-01-02"
)

type Server struct {
	db *sql.DB
}

func NewServer(db *sql.DB) *Server {
	return &Server{db: db}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		log.WithError(err).Error("Health check failed: database is down")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection error",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Health  *Server
	Audit   *auditServer
	Users   *userServer
	Assets  *assetServer
	Devices *deviceServer
}

func NewRouter(h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.GET("/health", h.Health.HealthCheck)

	api := e.Group("/api")

	audit := api.Group("/audit")
	audit.GET("", h.Audit.FindAll)
	audit.POST("", h.Audit.Create)
	audit.GET("/health/bus", h.Audit.BusHealth)
	audit.GET("/report", h.Audit.Report)
	audit.GET("/range", h.Audit.FindByDateRange)
	audit.GET("/user/:userId", h.Audit.FindByUser)
	audit.GET("/action/:action", h.Audit.FindByAction)
	audit.GET("/resource/:resourceType", h.Audit.FindByResourceType)
	audit.GET("/:id", h.Audit.FindOne)

	users := api.Group("/users")
	users.POST("", h.Users.CreateUser)
	users.GET("", h.Users.ListUsers)
	users.GET("/:id", h.Users.GetUser)
	users.PUT("/:id", h.Users.UpdateUser)
	users.DELETE("/:id", h.Users.DeleteUser)

	assets := api.Group("/assets")
	assets.POST("", h.Assets.CreateAsset)
	assets.GET("", h.Assets.ListAssets)
	assets.GET("/:id", h.Assets.GetAsset)
	assets.PUT("/:id", h.Assets.UpdateAsset)
	assets.DELETE("/:id", h.Assets.DeleteAsset)

	devices := api.Group("/devices")
	devices.POST("", h.Devices.RegisterDevice)
	devices.GET("", h.Devices.ListDevices)
	devices.GET("/:id", h.Devices.GetDevice)
	devices.PUT("/:id", h.Devices.UpdateDevice)
	devices.DELETE("/:id", h.Devices.DeleteDevice)
	devices.POST("/:id/telemetry", h.Devices.RecordTelemetry)

	return e
}

func limitOffset(c echo.Context) (int, int) {
	limit := defaultLimit
	offset := 0

	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

// skipTake leaves bounds to the service, which applies defaults and caps.
func skipTake(c echo.Context) (int, int) {
	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	take, _ := strconv.Atoi(c.QueryParam("take"))
	return skip, take
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the whole
// day. Empty input yields the zero time.
func parseDate(value string, end bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
