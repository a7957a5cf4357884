package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/config"
	"github.com/fyrsmithlabs/atreides/internal/engine"
	"github.com/fyrsmithlabs/atreides/internal/logging"
	"github.com/fyrsmithlabs/atreides/internal/policy"
	"github.com/fyrsmithlabs/atreides/internal/server"
	"github.com/fyrsmithlabs/atreides/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration daemon",
	Long: `Start the long-lived orchestration daemon. Claude Code hook events
reach it through "atreidesd hook <event>" bridges configured in hook
settings.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync errors are harmless

	store := session.NewStore(&cfg.Session, logger)

	validator, err := policy.NewValidator(&cfg.Policy, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(store, validator, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Policy.OverridesPath != "" {
		if err := policy.WatchOverrides(ctx, cfg.Policy.OverridesPath, validator, logger); err != nil {
			logger.Warn("policy overrides watcher unavailable", zap.Error(err))
		}
	}

	srv := server.New(&cfg.Server, eng, logger)
	logger.Info("atreidesd starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("atreidesd stopped")
	return nil
}
