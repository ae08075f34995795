// Package app wires configuration, storage, the event bus and the HTTP
// surface into the sima-events commands.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sima-events/internal/config"
	"sima-events/internal/eventbus"
	"sima-events/internal/migrations"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "sima-events",
	Short:        "SIMA domain event bus: producers, audit trail and notifications",
	SilenceUsage: true,
}

var skipMigrations bool

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	apiCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	allCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")

	migrateCmd.Flags().Bool("down", false, "roll back all migrations")
	migrateCmd.Flags().Int("steps", 0, "migrate n versions, negative to roll back")
	migrateCmd.Flags().Bool("version", false, "print the current schema version")

	rootCmd.AddCommand(apiCmd, auditConsumerCmd, notificationConsumerCmd, allCmd, migrateCmd)
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API and publish domain events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Load)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		if err := migrateUp(cfg.DB); err != nil {
			return err
		}
		db, err := openDatabase(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		bus, err := eventbus.New(cfg.Bus, "")
		if err != nil {
			return err
		}
		connectProducer(ctx, bus)

		a := newAPI(db, bus, cfg.Publisher)
		serveErr := a.serve(ctx, cfg.HTTP.Port)
		a.close()
		if err := bus.Disconnect(); err != nil {
			log.WithError(err).Warn("Event bus did not disconnect cleanly")
		}
		return serveErr
	},
}

var auditConsumerCmd = &cobra.Command{
	Use:   "audit-consumer",
	Short: "Persist an audit entry for every compliance-relevant event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Load)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		db, err := openDatabase(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		bus, err := eventbus.New(cfg.Bus, auditGroupID)
		if err != nil {
			return err
		}

		c := newAuditConsumer(db, bus)
		if err := c.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		log.Info("Shutting down audit consumer")
		return c.Stop()
	},
}

var notificationConsumerCmd = &cobra.Command{
	Use:   "notification-consumer",
	Short: "Dispatch notifications requested over the bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.LoadBus)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		bus, err := eventbus.New(cfg.Bus, notificationGroupID)
		if err != nil {
			return err
		}

		c := newNotificationConsumer(bus)
		if err := c.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		log.Info("Shutting down notification consumer")
		return c.Stop()
	},
}

// allCmd runs every role in one process over a single bus connection.
var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the API and both consumers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Load)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		if err := migrateUp(cfg.DB); err != nil {
			return err
		}
		db, err := openDatabase(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		bus, err := eventbus.New(cfg.Bus, "")
		if err != nil {
			return err
		}

		audit := newAuditConsumer(db, bus)
		if err := audit.Start(ctx); err != nil {
			return err
		}
		notify := newNotificationConsumer(bus)
		if err := notify.Start(ctx); err != nil {
			stopAll(audit)
			return err
		}

		a := newAPI(db, bus, cfg.Publisher)
		serveErr := a.serve(ctx, cfg.HTTP.Port)
		a.close()
		stopAll(audit, notify)
		return serveErr
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Load)
		if err != nil {
			return err
		}

		m, err := migrations.NewMigrator(cfg.DB.MigrationsPath, cfg.DB.URL)
		if err != nil {
			return err
		}
		defer m.Close()

		down, _ := cmd.Flags().GetBool("down")
		steps, _ := cmd.Flags().GetInt("steps")
		version, _ := cmd.Flags().GetBool("version")

		switch {
		case version:
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d, dirty: %t\n", v, dirty)
			return nil
		case down:
			return m.Down()
		case steps != 0:
			return m.Steps(steps)
		default:
			return m.Up()
		}
	},
}

func loadConfig(load func() (*config.Config, error)) (*config.Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrateUp(cfg config.DB) error {
	if skipMigrations {
		return nil
	}

	m, err := migrations.NewMigrator(cfg.MigrationsPath, cfg.URL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
