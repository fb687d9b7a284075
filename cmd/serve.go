package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert API",
	Long: `Starts the HTTP API. Depending on ingestion.mode the store is seeded
with synthetic alerts or loaded from a connection log before serving.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("flowhawk"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Seed(ctx); err != nil {
		return fmt.Errorf("startup ingestion: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("flowhawk stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
