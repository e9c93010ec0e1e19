package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/engine"
	"github.com/IshaanNene/pricewatch/internal/forecast"
	"github.com/IshaanNene/pricewatch/internal/monitor"
	"github.com/IshaanNene/pricewatch/internal/types"
)

var (
	concurrency int
	fetcherType string
	horizon     int
	interval    time.Duration

	forecastHorizon int
)

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if concurrency > 0 {
		cfg.Engine.Concurrency = concurrency
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = fetcherType
	}
	if horizon > 0 {
		cfg.Forecast.Horizon = horizon
	}
	if interval > 0 {
		cfg.Monitor.Interval = interval
	}
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "number of concurrent product workers (0 = config)")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "page session backend: browser or http (empty = config)")
}

// prepare loads config, applies flags and builds the pipeline.
func prepare(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	return newApp(ctx, cfg, logger)
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once for every catalog product",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(setupLogger(config.LoggingConfig{}))
			defer cancel()

			a, err := prepare(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report := a.engine.Run(ctx, a.cfg.Products())
			printReport(report)
			if report.Cancelled {
				return context.Canceled
			}
			return nil
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().IntVar(&horizon, "horizon", 0, "forecast horizon in days (0 = config)")
	return cmd
}

// ingestCmd creates the "ingest" subcommand.
func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape every catalog product and append to the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(setupLogger(config.LoggingConfig{}))
			defer cancel()

			a, err := prepare(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			obs, err := a.engine.Ingest(ctx, a.cfg.Products())
			printObservations(obs)
			return err
		},
	}
	addPipelineFlags(cmd)
	return cmd
}

// forecastCmd creates the "forecast" subcommand.
func forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast <product>",
		Short: "Forecast a product's discount from the stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			series, err := store.SeriesFor(ctx, args[0])
			if err != nil {
				return err
			}
			fc, err := forecast.New(forecast.ARModel{Order: cfg.Forecast.Order}, logger).Forecast(series, forecastHorizon)
			if err != nil {
				var fe *types.ForecastError
				if errors.As(err, &fe) {
					fmt.Printf("No forecast available for %q: %s (%d usable points)\n", args[0], fe.Kind, fe.Points)
					return nil
				}
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tDISCOUNT\t")
			for _, p := range series.Points {
				fmt.Fprintf(w, "%s\t%.2f%%\t\n", p.Date.Format("2006-01-02"), p.Value)
			}
			for _, p := range fc.Points {
				fmt.Fprintf(w, "%s\t%.2f%%\t(predicted)\n", p.Date.Format("2006-01-02"), p.Value)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&forecastHorizon, "horizon", 5, "days to forecast")
	return cmd
}

// watchCmd creates the "watch" subcommand.
func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline repeatedly on the monitor interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(setupLogger(config.LoggingConfig{}))
			defer cancel()

			a, err := prepare(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s := monitor.NewScheduler(a.cfg.Monitor.Interval, a.logger)
			s.Start(ctx, func(ctx context.Context) error {
				report := a.engine.Run(ctx, a.cfg.Products())
				printReport(report)
				return nil
			})
			return nil
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between runs (0 = config)")
	return cmd
}

func printObservations(obs []types.Observation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tPRICE\tDISCOUNT\tRATING\tDEFAULTED\t")
	for _, o := range obs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n", o.Product, o.Price, o.Discount, o.Rating, o.Defaulted())
	}
	w.Flush()
}

func printReport(r *engine.RunReport) {
	fmt.Printf("\nRun %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tPRICE\tDISCOUNT\tFORECAST\tREVIEWS\tRECOMMENDATION\tDISPATCH\t")
	for _, p := range r.Products {
		if p.Skipped {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\tskipped\t-\t\n", p.Product.Name)
			continue
		}
		fc := "n/a"
		if p.Forecast != nil && len(p.Forecast.Points) > 0 {
			fc = fmt.Sprintf("%.1f%%", p.Forecast.Points[0].Value)
		}
		rec := "n/a"
		switch {
		case p.Recommendation != nil:
			rec = "ok"
		case p.RecommendErr != nil:
			rec = "failed"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\t\n",
			p.Product.Name, p.Observation.Price, p.Observation.Discount, fc, len(p.Sentiment), rec, dispatchStatus(p))
	}
	w.Flush()
}

func dispatchStatus(p engine.ProductReport) string {
	switch {
	case p.DispatchErr != nil:
		return "failed"
	case len(p.Dispatch) == 0:
		return "-"
	case p.Dispatch[0].Skipped:
		return "skipped"
	default:
		return "sent"
	}
}
