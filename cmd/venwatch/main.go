package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	appName = "venwatch"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Venezuela event intelligence platform",
		Version: version,
		Long: `venwatch ingests events from public sources (GDELT, ReliefWeb, FRED,
UN Comtrade, World Bank, search trends, SEC filings), scores them with a
hybrid quantitative/LLM pipeline and serves the resulting risk picture.`,
	}
	rootCmd.PersistentFlags().String("config", "config/venwatch.yaml", "Configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	// Unset flags fall back to VENWATCH_<FLAG> environment variables.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed || err != nil {
				return
			}
			env := "VENWATCH_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if v, ok := os.LookupEnv(env); ok {
				err = cmd.Flags().Set(f.Name, v)
			}
		})
		return err
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newIngestCmd(),
		newTrendCmd(),
		newCorrelateCmd(),
		newScheduleCmd(),
		newAlertsCmd(),
		newSpikesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command) {
	level, _ := cmd.Flags().GetString("log-level")
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
