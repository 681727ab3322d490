package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"iconload/internal/api"
	"iconload/internal/config"
	"iconload/internal/iconserver"
	"iconload/pkg/logger"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

func serveCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts a stub icon server to try load runs against",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mp metric.MeterProvider
			stops := []func(context.Context){}
			if cfg.HTTP.Enabled {
				sdkProvider, err := api.NewMeterProvider(nil)
				if err != nil {
					logger.Fatal(ctx, "could not create meter provider", zap.Error(err))
				}
				mp = sdkProvider

				opts := api.NewOptions(cfg)
				opts.Addr = cfg.Serve.MetricsAddr
				stopMetrics, err := startServer(ctx, "metrics", api.NewServer(api.Deps{}, opts))
				if err != nil {
					logger.Fatal(ctx, "could not start metrics server", zap.Error(err))
				}
				stops = append(stops, stopMetrics, func(ctx context.Context) { _ = sdkProvider.Shutdown(ctx) })
			}

			icons, err := iconserver.New(iconserver.Options{
				CacheSize:     cfg.Serve.CacheSize,
				Delay:         cfg.Serve.Delay,
				MeterProvider: mp,
			})
			if err != nil {
				logger.Fatal(ctx, "could not create icon server", zap.Error(err))
			}
			stopIcons, err := startServer(ctx, "icons", &http.Server{
				Addr:              cfg.Serve.Addr,
				Handler:           icons.Handler(),
				ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
				IdleTimeout:       cfg.HTTP.IdleTimeout,
			})
			if err != nil {
				logger.Fatal(ctx, "could not start icon server", zap.Error(err))
			}
			stops = append(stops, stopIcons)

			// wait for interrupt
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()

			for i := len(stops) - 1; i >= 0; i-- {
				stops[i](shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&cfg.Serve.Addr, "addr", cfg.Serve.Addr, "address the icon server listens on")
	cmd.Flags().StringVar(&cfg.Serve.MetricsAddr, "metrics-addr", cfg.Serve.MetricsAddr, "address the metrics server listens on")
	cmd.Flags().DurationVar(&cfg.Serve.Delay, "delay", cfg.Serve.Delay, "latency added to every uncached render")
	cmd.Flags().IntVar(&cfg.Serve.CacheSize, "cache-size", cfg.Serve.CacheSize, "number of icons kept in memory")

	return cmd
}
