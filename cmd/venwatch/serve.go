package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/venwatch/venwatch/internal/httpapi"
	"github.com/venwatch/venwatch/internal/score/daily"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serves triggers, correlation, graph, chat, health, metrics and the live event tail.",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(httpapi.Deps{
		Registry:  a.registry,
		Bus:       a.bus,
		Graphs:    a.graphBuilder(),
		Loader:    a.correlationLoader(),
		Events:    a.events,
		Daily:     daily.New(daily.DefaultCategoryWeights()),
		Chat:      a.chat,
		Trending:  a.tracker,
		Forecasts: a.forecastClient(),
	})
	if err := srv.AttachTail(ctx, "venwatch-api"); err != nil {
		log.Warn().Err(err).Msg("event tail unavailable")
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
