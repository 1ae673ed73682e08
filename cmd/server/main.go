/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the leave engine. Loads configuration, builds
  the logger, opens the configured store and hands off to a subcommand.

COMMANDS:
  serve            Start the HTTP API and the carry-forward scheduler
  migrate          Apply schema migrations (--rollback reverts the latest)
  seed <scenario>  Load a demo scenario into the configured database
  import <file>    Apply an organization document as --actor

GLOBAL FLAGS:
  --config   Path to leave.yml or a directory containing it (default: .)

ENVIRONMENT:
  LEAVE_* variables override the file, e.g. LEAVE_DATABASE_DRIVER=postgres.
  See config/config.go for the full list.

EXAMPLES:
  # Run with the default SQLite file
  ./leave-engine serve

  # Run against Postgres
  LEAVE_DATABASE_DRIVER=postgres LEAVE_DATABASE_DSN=postgres://... ./leave-engine serve

  # In-memory store, nothing persisted
  LEAVE_DATABASE_DRIVER=memory ./leave-engine serve

SEE ALSO:
  - serve.go:   HTTP server and graceful shutdown
  - migrate.go: Schema migrations
  - seed.go:    Demo scenarios
  - import.go:  Organization documents (factory package)
*/
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/leave/store"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "leave-engine",
	Short:         "Leave request lifecycle and entitlement engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "path to leave.yml or the directory containing it")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// setup loads configuration and installs the global logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// backend is an opened store plus its lifecycle hooks.
type backend struct {
	store   api.Store
	migrate func(ctx context.Context, logger *zap.Logger, down bool) error
	close   func() error
}

func noClose() error { return nil }

// openStore opens the configured store. Schemas are brought up to date
// unless migrations are being run by hand.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, autoMigrate bool) (*backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &backend{
			store: store.NewMemory(),
			migrate: func(context.Context, *zap.Logger, bool) error {
				return errors.New("the memory driver has no schema to migrate")
			},
			close: noClose,
		}, nil

	case config.DriverSQLite:
		var s *sqlite.Store
		if autoMigrate {
			var err error
			if s, err = sqlite.New(ctx, cfg.DSN); err != nil {
				return nil, err
			}
		} else {
			db, err := sql.Open("sqlite3", cfg.DSN+"?_foreign_keys=on")
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}
			db.SetMaxOpenConns(1)
			s = sqlite.Open(db)
		}
		return &backend{
			store: s,
			migrate: func(ctx context.Context, logger *zap.Logger, down bool) error {
				if down {
					return s.Rollback(ctx, logger)
				}
				return s.Migrate(ctx, logger)
			},
			close: s.Close,
		}, nil

	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if autoMigrate {
			if err := s.Migrate(ctx, logger); err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		return &backend{
			store: s,
			migrate: func(ctx context.Context, logger *zap.Logger, down bool) error {
				if down {
					return s.Rollback(ctx, logger)
				}
				return s.Migrate(ctx, logger)
			},
			close: s.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// newPublisher logs every event and, when brokers are configured, also
// writes it to Kafka. The returned func closes the Kafka writer.
func newPublisher(cfg config.KafkaConfig, logger *zap.Logger) (events.Publisher, func() error) {
	logPub := events.NewLogPublisher(logger)
	if !cfg.Enabled() {
		return logPub, noClose
	}
	kafkaPub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Brokers), cfg.Topic)
	logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return events.Multi{logPub, kafkaPub}, kafkaPub.Close
}
