package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/venwatch/venwatch/internal/correlation"
)

func newCorrelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Run a correlation analysis",
		Long: `Computes pairwise correlations between named variables. Variables are
<kind>:<name> with kind one of indicator, event_type, entity.`,
		RunE: runCorrelate,
	}
	cmd.Flags().StringSlice("var", nil, "Variable, repeatable (at least two)")
	cmd.Flags().String("start", "", "Start date, YYYY-MM-DD")
	cmd.Flags().String("end", "", "End date, YYYY-MM-DD")
	cmd.Flags().String("method", correlation.MethodPearson, "pearson or spearman")
	cmd.Flags().Float64("alpha", 0.05, "Significance level before Bonferroni correction")
	cmd.Flags().Float64("min-effect-size", 0.3, "Minimum |r| to report")
	cmd.MarkFlagRequired("var")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func runCorrelate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	variables, _ := cmd.Flags().GetStringSlice("var")
	if len(variables) < 2 {
		return fmt.Errorf("need at least two --var flags")
	}
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	from, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	to, err := time.ParseInLocation("2006-01-02", endStr, time.UTC)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	series, err := a.correlationLoader().LoadSeries(ctx, variables, from, to)
	if err != nil {
		return err
	}

	method, _ := cmd.Flags().GetString("method")
	alpha, _ := cmd.Flags().GetFloat64("alpha")
	minEffect, _ := cmd.Flags().GetFloat64("min-effect-size")
	result, err := correlation.Compute(series, correlation.Params{
		Method:        method,
		Alpha:         alpha,
		MinEffectSize: minEffect,
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
