package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/api"
	"go.uber.org/zap"
)

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP API and the background carry-forward expiry scheduler.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "disable the carry-forward expiry scheduler")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openStore(ctx, cfg.Database, logger, true)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Error("database close error", zap.Error(err))
		}
	}()

	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer func() {
		if err := closePublisher(); err != nil {
			logger.Error("publisher close error", zap.Error(err))
		}
	}()

	handler := api.NewHandler(be.store, publisher, logger)

	scheduler := api.NewCarryForwardScheduler(handler.Admin, logger)
	scheduler.Enabled = !noScheduler
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, cfg.HTTP.AllowedOrigins...),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("driver", cfg.Database.Driver),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server", zap.Duration("timeout", cfg.HTTP.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
