package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/shared"
)

type rootOpts struct {
	cfg shared.Config
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{}
	root := &cobra.Command{
		Use:           "gaenrich",
		Short:         "Build and query GA friendliness scores for airports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.Load()
			if err != nil {
				return err
			}
			o.cfg = cfg
			// logs go to stderr; stdout carries command output
			log.Logger = observability.NewLogger(cmd.ErrOrStderr(), cfg.AppEnv, cfg.LogLevel)
			return nil
		},
	}
	root.AddCommand(
		newRebuildCmd(o),
		newValidateCmd(o),
		newScoreCmd(o),
		newSummaryCmd(o),
		newScheduleCmd(o),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("gaenrich failed")
		stop()
		os.Exit(1)
	}
}
