package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/venwatch/venwatch/internal/sched"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the adapter scheduler",
		Long:  "Drives periodic adapter runs from a YAML job file.",
		RunE:  runSchedule,
	}
	cmd.Flags().String("jobs", "config/jobs.yaml", "Job file")
	cmd.Flags().Bool("once", false, "Run due jobs once, then exit")
	cmd.Flags().Bool("dry-run", false, "Resolve jobs and windows without invoking adapters")
	return cmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobsPath, _ := cmd.Flags().GetString("jobs")
	jobCfg, err := sched.LoadConfig(jobsPath)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	s := sched.New(jobCfg, a.registry, dryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once, _ := cmd.Flags().GetBool("once"); once {
		var failed int
		for _, res := range s.RunOnce(ctx) {
			if res.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d job(s) failed", failed)
		}
		return nil
	}
	return s.Start(ctx)
}
