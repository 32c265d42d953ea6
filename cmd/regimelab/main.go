// Package main provides the regimelab CLI: schema migration, the refresh
// pipeline, and backtest run inspection.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"regimelab/internal/config"
	"regimelab/internal/observability"
	"regimelab/internal/refresh"
	"regimelab/internal/storage/clickhouse"
	"regimelab/internal/storage/migrations"
	"regimelab/internal/storage/postgres"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "regimelab",
		Short:         "Multi-timeframe EMA and market regime pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to the YAML config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(migrateCmd(), refreshCmd(), backtestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
			log.Info().Msg("postgres migrations applied")

			conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
			if err != nil {
				return fmt.Errorf("clickhouse migrations: %w", err)
			}
			defer conn.Close()
			log.Info().Msg("clickhouse migrations applied")
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run the full feature pipeline over the configured assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if len(cfg.Refresh.Assets) == 0 {
				return fmt.Errorf("no assets configured")
			}

			ctx, cancel := signalContext()
			defer cancel()

			pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			conn, err := clickhouse.NewConn(ctx, cfg.Clickhouse.DSN)
			if err != nil {
				return fmt.Errorf("connect clickhouse: %w", err)
			}
			defer conn.Close()

			metrics := observability.NewMetrics("")
			go serveMetrics(cfg.Metrics.Addr, log)

			orch, err := refresh.New(refresh.Options{
				BarStore:         clickhouse.NewBarStore(conn),
				EmaStore:         clickhouse.NewEmaStore(conn),
				ComovementStore:  clickhouse.NewComovementStore(conn),
				RegimeStore:      postgres.NewRegimeStore(pool),
				FlipStore:        postgres.NewFlipStore(pool),
				PositionStore:    postgres.NewPositionStore(pool),
				RunStore:         postgres.NewRunStore(pool),
				SessionStore:     postgres.NewSessionStore(pool),
				FeatureTier:      cfg.Tier(),
				EmaPeriods:       cfg.Refresh.EmaPeriods,
				Timeframes:       cfg.Refresh.Timeframes,
				Workers:          cfg.Refresh.Workers,
				MaxGapDays:       cfg.Refresh.MaxGapDays,
				FastPeriod:       cfg.Signals.FastPeriod,
				SlowPeriod:       cfg.Signals.SlowPeriod,
				LongOnly:         cfg.Signals.LongOnly,
				ComovementWindow: cfg.Comovement.WindowBars,
				ComovementMaxLag: cfg.Comovement.MaxLag,
				Metrics:          metrics,
				Logger:           log,
			})
			if err != nil {
				return err
			}

			result, err := orch.Run(ctx, cfg.Refresh.Assets)
			if err != nil {
				return err
			}

			fmt.Printf("Refresh completed: %d succeeded, %d failed\n", result.Succeeded, result.Failed)
			for asset, perr := range result.Errors {
				fmt.Printf("  %s: %v\n", asset, perr)
			}
			for _, run := range result.Runs {
				fmt.Printf("  %s: %d positions, win rate %.2f, sharpe %.2f\n",
					run.AssetID, run.TotalPositions, run.WinRate, run.Sharpe)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d partitions failed", result.Failed)
			}
			return nil
		},
	}
}

func backtestCmd() *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Show stored backtest runs for an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			runs, err := postgres.NewRunStore(pool).GetByAsset(ctx, asset)
			if err != nil {
				return fmt.Errorf("load runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Printf("No backtest runs for %s\n", asset)
				return nil
			}

			for _, r := range runs {
				fmt.Printf("%s  %s tier=%s positions=%d\n", r.RunID, r.Tf, r.FeatureTier, r.TotalPositions)
				fmt.Printf("  win_rate=%.3f sharpe=%.3f sortino=%.3f calmar=%.3f\n",
					r.WinRate, r.Sharpe, r.Sortino, r.Calmar)
				fmt.Printf("  max_dd=%.2f%% var95=%.3f es=%.3f\n",
					r.MaxDrawdownPct, r.VaR95, r.ExpectedShortfall)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "Asset id to show runs for")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics endpoint failed")
	}
}
