package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:       "seed <scenario>",
	Short:     "Load a demo scenario (small-team, year-end-carryover)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"small-team", "year-end-carryover"},
	RunE:      runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Database.Driver == config.DriverMemory {
		return errors.New("seed needs a persistent database; the memory driver forgets everything on exit")
	}

	be, err := openStore(cmd.Context(), cfg.Database, logger, true)
	if err != nil {
		return err
	}
	defer be.close() //nolint:errcheck

	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer closePublisher() //nolint:errcheck

	handler := api.NewHandler(be.store, publisher, logger)
	if err := handler.LoadScenarioByID(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("seed %s: %w", args[0], err)
	}
	logger.Info("scenario loaded", zap.String("scenario_id", args[0]))
	return nil
}
