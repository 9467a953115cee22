// screener resolves financial concepts in SEC filings, computes ratios and
// keeps one snapshot per company and reporting date.
package main

import (
	"fmt"
	"os"
	"time"

	"filing_screener/pkg/core/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Resolve SEC filing concepts and compute financial ratios",
	Long: `screener pulls 10-K/10-Q statement tables from SEC EDGAR, resolves the
concepts each ratio needs, computes the ratios and stores one snapshot per
company and reporting date.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return setupLogging(cfg.Logging)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/screener.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(resolveCmd, priceCmd, recomputeCmd, showCmd, checkCmd, seriesCmd, tickersCmd, latestCmd, serveCmd)
}

func setupLogging(c config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	return nil
}
