package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chargeflow/backend/libs/logging"
	"chargeflow/backend/services/charging-service/internal/app"
	"chargeflow/backend/services/charging-service/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "charging-service",
	Short:         "EV charging session and billing service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  serve,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return app.Migrate(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("CONFIG_FILE"), "configuration file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger("charging-service")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application stopped with error", zap.Error(err))
		return err
	}
	return nil
}
