package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline consumers",
		Long:  "Consumes the ingest, analyze and extract topics until interrupted.",
		RunE:  runWorker,
	}
	cmd.Flags().String("group", "venwatch-workers", "Consumer group name")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The screener works from its last good list; a failed first load only
	// disables sanctions enrichment until the next refresh.
	if a.screener != nil {
		if err := a.screener.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial sanctions list load failed")
		}
	}

	group, _ := cmd.Flags().GetString("group")
	if err := a.startPipeline(ctx, group); err != nil {
		return err
	}
	log.Info().Str("group", group).Msg("pipeline consumers running")

	<-ctx.Done()
	log.Info().Msg("draining consumers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return a.bus.Stop(shutdownCtx)
}
