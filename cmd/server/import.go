package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/factory"
	"go.uber.org/zap"
)

var importActor string

var importCmd = &cobra.Command{
	Use:   "import <organization.json>",
	Short: "Apply an organization document (leave types, policies, holidays)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importActor, "actor", "", "admin user ID to act as (required)")
	_ = importCmd.MarkFlagRequired("actor")
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	org, err := factory.ParseOrganization(data)
	if err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	be, err := openStore(cmd.Context(), cfg.Database, logger, true)
	if err != nil {
		return err
	}
	defer be.close() //nolint:errcheck

	handler := api.NewHandler(be.store, nil, logger)
	res, err := factory.Apply(cmd.Context(), handler.Admin, importActor, org)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	logger.Info("organization imported",
		zap.String("organization_id", org.OrganizationID),
		zap.Int("leave_types_created", res.LeaveTypesCreated),
		zap.Int("leave_types_updated", res.LeaveTypesUpdated),
		zap.Int("policies_saved", res.PoliciesSaved),
		zap.Int("holidays_added", res.HolidaysAdded),
	)
	return nil
}
