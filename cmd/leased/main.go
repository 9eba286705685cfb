// Command leased runs the lease engine as a standalone daemon with a
// Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/lease"
	"github.com/xraph/lease/config"
	"github.com/xraph/lease/driver/fake"
	"github.com/xraph/lease/observability"
	"github.com/xraph/lease/store"
	"github.com/xraph/lease/store/memory"
	"github.com/xraph/lease/store/mongo"
	"github.com/xraph/lease/store/sqlite"
	"github.com/xraph/lease/types"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "leased",
		Short:         "Compute-lease engine daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(runCmd(&cfgPath))
	root.AddCommand(estimateCmd(&cfgPath))

	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.Store.DSN)
	case "mongo":
		return mongo.Open(ctx, cfg.Store.DSN, cfg.Store.Database)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger := cfg.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}

			opts := []lease.Option{
				lease.WithLogger(logger),
				lease.WithTariff(cfg.Tariff),
				lease.WithLimits(cfg.Limits),
				lease.WithCollectionInterval(cfg.Engine.CollectionInterval.Std()),
				lease.WithDriverTimeout(cfg.Engine.DriverTimeout.Std()),
			}

			var metricsSrv *http.Server
			if cfg.Metrics.Enabled {
				reg := prometheus.NewRegistry()
				ext := observability.NewMetricsExtension(observability.NewPromFactory(reg))
				opts = append(opts, lease.WithPlugin(ext))

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				metricsSrv = &http.Server{
					Addr:              cfg.Metrics.Addr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
					if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
					}
				}()
			}

			engine := lease.New(st, fake.New(), cfg.QuotaSource(), opts...)
			if err := engine.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("shutting down")

			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort during shutdown
			}

			return engine.Stop()
		},
	}
}

func estimateCmd(cfgPath *string) *cobra.Command {
	var r types.Resources

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a prospective allocation at full utilization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			engine := lease.New(memory.New(), fake.New(), cfg.QuotaSource(),
				lease.WithTariff(cfg.Tariff),
				lease.WithLimits(cfg.Limits),
			)

			est, err := engine.Estimate(r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resources:    %s\n", est.Resources)
			fmt.Fprintf(out, "hourly rate:  %s %s\n", est.HourlyRate.FormatMajor(), est.HourlyRate.Currency)
			fmt.Fprintf(out, "daily cost:   %s %s\n", est.DailyCost.FormatMajor(), est.DailyCost.Currency)
			fmt.Fprintf(out, "monthly cost: %s %s\n", est.MonthlyCost.FormatMajor(), est.MonthlyCost.Currency)
			return nil
		},
	}

	cmd.Flags().Int64Var(&r.CPUCores, "cpu", 1, "CPU cores")
	cmd.Flags().Int64Var(&r.RAMMB, "ram", 1024, "RAM in MB")
	cmd.Flags().Int64Var(&r.StorageGB, "storage", 10, "storage in GB")
	cmd.Flags().Int64Var(&r.BandwidthGB, "bandwidth", 0, "bandwidth allowance in GB")

	return cmd
}
