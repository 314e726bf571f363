package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/servicedesk/requests/internal/app"
	"github.com/servicedesk/requests/internal/pkg/config"
	"github.com/servicedesk/requests/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// opener loads configuration, initialises logging and wires the app.
type opener func(cmd *cobra.Command) (*app.App, zerolog.Logger, error)

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "servicedesk",
		Short:        "Maintenance tool for the service request store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")

	open := func(cmd *cobra.Command) (*app.App, zerolog.Logger, error) {
		cfg, err := config.Load(cmd.Context(), envFile)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Env: cfg.Env})
		log := logger.Component(cmd.Name())
		a, err := app.New(cmd.Context(), cfg, logger.Get())
		if err != nil {
			log.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open the store")
			return nil, log, err
		}
		return a, log, nil
	}

	rootCmd.AddCommand(
		seedCmd(open),
		importCmd(open),
		exportCmd(open),
		reconcileCmd(open),
		purgeSessionsCmd(open),
		createAdminCmd(open),
		statsCmd(open),
	)
	return rootCmd
}
