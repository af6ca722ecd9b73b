package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/venwatch/venwatch/internal/alerts"
)

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Sweep indicator thresholds and publish alerts",
		Long:  "Checks each configured series' latest two observations and publishes a synthetic event for every boundary crossing.",
		RunE:  runAlerts,
	}
	cmd.Flags().String("rules", "config/alerts.yaml", "Alert rule file")
	return cmd
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rulesPath, _ := cmd.Flags().GetString("rules")
	rules, err := alerts.LoadRules(rulesPath)
	if err != nil {
		return err
	}
	gen := alerts.New(rules, alerts.NewBusPublisher(a.bus))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fired, err := gen.Sweep(ctx, a.indicators)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(fired)
	return err
}
