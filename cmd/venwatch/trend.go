package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newTrendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Trending leaderboard operations",
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute the leaderboard from the mention log",
		Long:  "Replaces the incrementally maintained scores with exact decayed values. Run nightly.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.tracker.Rebuild(context.Background()); err != nil {
				return err
			}
			log.Info().Msg("trending leaderboard rebuilt")
			return nil
		},
	}

	top := &cobra.Command{
		Use:   "top",
		Short: "Print the current leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			n, _ := cmd.Flags().GetInt("n")
			entries, err := a.tracker.Top(context.Background(), n)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(entries)
		},
	}
	top.Flags().Int("n", 10, "Number of entries")

	cmd.AddCommand(rebuild, top)
	return cmd
}
