package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pricewatch/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pricewatch",
		Short: "PriceWatch: competitor price and discount monitor",
		Long: `PriceWatch scrapes a fixed catalog of competitor product listings, keeps an
append-only price/discount history, forecasts near-term discounts, classifies
customer review sentiment and sends an LLM-generated pricing strategy to Slack
or Telegram.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PriceWatch %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Concurrency:       %d\n", cfg.Engine.Concurrency)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  Retry Delay:       %s\n", cfg.Fetcher.RetryDelay)
			fmt.Printf("  Load Timeout:      %s\n", cfg.Fetcher.LoadTimeout)
			fmt.Printf("  Ready Selector:    %s\n", cfg.Fetcher.ReadySelector)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Directory:         %s\n", cfg.Storage.Dir)
			fmt.Printf("  Observations:      %s\n", cfg.Storage.ObservationFile)
			fmt.Printf("  Reviews:           %s\n", cfg.Storage.ReviewFile)
			fmt.Printf("  MongoDB mirror:    %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("  Postgres mirror:   %v\n", cfg.Storage.Postgres.Enabled)
			fmt.Printf("  Redis snapshots:   %v\n", cfg.Storage.Redis.Enabled)
			fmt.Printf("\nAnalysis:\n")
			fmt.Printf("  Forecast:          horizon %d, order %d\n", cfg.Forecast.Horizon, cfg.Forecast.Order)
			fmt.Printf("  Sentiment:         %s (max %d runes)\n", cfg.Sentiment.Provider, cfg.Sentiment.MaxLength)
			fmt.Printf("  Completion:        %s %s @ %s\n", cfg.AI.Provider, cfg.AI.Model, cfg.AI.Endpoint)
			fmt.Printf("\nNotify:\n")
			fmt.Printf("  Slack:             %v\n", cfg.Notify.SlackWebhook != "")
			fmt.Printf("  Telegram:          %v\n", cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "")
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			fmt.Printf("\nCatalog (%d products):\n", len(cfg.Catalog))
			for _, p := range cfg.Catalog {
				fmt.Printf("  - %s\n    %s\n", p.Name, p.URL)
			}
			return nil
		},
	}
}
