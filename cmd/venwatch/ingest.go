package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <source>",
		Short: "Run one adapter immediately",
		Long:  "Fetches and publishes events for a single source, then exits.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	cmd.Flags().Int("lookback-hours", 0, "Window size (0 uses the adapter default)")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	lookback, _ := cmd.Flags().GetInt("lookback-hours")
	end := time.Now().UTC()
	var start time.Time
	if lookback > 0 {
		start = end.Add(-time.Duration(lookback) * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	res, err := a.registry.Run(ctx, args[0], start, end)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}
