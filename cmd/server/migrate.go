package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateRollback bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations to the configured database",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	be, err := openStore(cmd.Context(), cfg.Database, logger, false)
	if err != nil {
		return err
	}
	defer be.close() //nolint:errcheck

	if err := be.migrate(cmd.Context(), logger, migrateRollback); err != nil {
		return err
	}
	logger.Info("migrations complete",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("rollback", migrateRollback),
	)
	return nil
}
