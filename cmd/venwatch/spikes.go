package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/venwatch/venwatch/internal/spikes"
)

func newSpikesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spikes",
		Short: "Detect mention spikes",
		Long:  "Scans entities mentioned on the given day against their rolling baseline and persists every detected spike.",
		RunE:  runSpikes,
	}
	cmd.Flags().String("date", "", "Day to scan, YYYY-MM-DD (default today UTC)")
	return cmd
}

func runSpikes(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if v, _ := cmd.Flags().GetString("date"); v != "" {
		day, err = time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only subjects mentioned on the scan day can spike on it.
	mentions, err := a.entities.MentionsSince(ctx, day)
	if err != nil {
		return fmt.Errorf("load mentions: %w", err)
	}
	seen := map[string]bool{}
	var ids []string
	for _, m := range mentions {
		if m.MentionedAt.Before(day.Add(24*time.Hour)) && !seen[m.CanonicalID] {
			seen[m.CanonicalID] = true
			ids = append(ids, m.CanonicalID)
		}
	}

	scanner := spikes.NewScanner(a.entities, a.spikes)
	found, err := scanner.Scan(ctx, ids, day)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(found); encErr != nil && err == nil {
		err = encErr
	}
	return err
}
