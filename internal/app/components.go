package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sima-events/internal/config"
	"sima-events/internal/consumer"
	"sima-events/internal/eventbus"
	"sima-events/internal/publisher"
	"sima-events/internal/repository"
	"sima-events/internal/server"
	"sima-events/internal/service"

	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const (
	auditGroupID        = "sima-audit"
	notificationGroupID = "sima-notifications"

	httpShutdownTimeout = 10 * time.Second
)

func openDatabase(ctx context.Context, cfg config.DB) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping the database: %w", err)
	}

	log.Info("Successfully connected to the PostgreSQL database.")
	return db, nil
}

// api is the HTTP process: entity CRUD that produces events plus the audit
// query surface.
type api struct {
	echo   *echo.Echo
	events *publisher.Publisher
}

func newAPI(db *sql.DB, bus eventbus.Bus, cfg config.Publisher) *api {
	events := publisher.New(bus, cfg)

	userService := service.NewUserService(repository.NewPostgresUserRepository(db), events)
	assetService := service.NewAssetService(repository.NewPostgresAssetRepository(db), events)
	deviceService := service.NewDeviceService(repository.NewPostgresDeviceRepository(db), events, bus)
	auditService := service.NewAuditService(repository.NewPostgresAuditLogRepository(db))

	e := server.NewRouter(server.Handlers{
		Health:  server.NewServer(db),
		Audit:   server.NewAuditServer(auditService, bus, events),
		Users:   server.NewUserServer(userService),
		Assets:  server.NewAssetServer(assetService),
		Devices: server.NewDeviceServer(deviceService),
	})

	return &api{echo: e, events: events}
}

// serve runs the HTTP server until ctx is cancelled or the listener fails.
func (a *api) serve(ctx context.Context, port string) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", port).Info("HTTP server is starting with Echo")
		if err := a.echo.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("echo server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Could not gracefully shut down the HTTP server")
	}
	return nil
}

// close drains pending events; anything still queued at the deadline is lost.
func (a *api) close() {
	if err := a.events.Close(context.Background()); err != nil {
		log.WithError(err).Warn("Publisher closed with pending events")
	}
}

// connectProducer tolerates an unreachable broker: producers are
// best-effort, so the API keeps serving and the bus reconnects on a later
// publish.
func connectProducer(ctx context.Context, bus eventbus.Bus) {
	if err := bus.Connect(ctx); err != nil {
		log.WithError(err).Warn("Event bus unavailable, events are dropped until it reconnects")
		return
	}
	log.Info("Event bus connected for publishing")
}

func newAuditConsumer(db *sql.DB, bus eventbus.Bus) *consumer.AuditConsumer {
	auditService := service.NewAuditService(repository.NewPostgresAuditLogRepository(db))
	return consumer.NewAuditConsumer(bus, auditService)
}

func newNotificationConsumer(bus eventbus.Bus) *consumer.NotificationConsumer {
	return consumer.NewNotificationConsumer(bus, service.NewLoggingNotificationService())
}

type stopper interface {
	Stop() error
}

func stopAll(consumers ...stopper) {
	for _, c := range consumers {
		if err := c.Stop(); err != nil {
			log.WithError(err).Warn("Consumer did not stop cleanly")
		}
	}
}
