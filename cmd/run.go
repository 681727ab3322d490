package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"iconload/internal/api"
	"iconload/internal/config"
	"iconload/internal/domainlist"
	"iconload/internal/harness"
	"iconload/internal/icontask"
	"iconload/internal/stats"
	"iconload/pkg/domain"
	"iconload/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// loadDomains reads the domain list described by the target section.
func loadDomains(cfg *config.Config) (*domainlist.DomainList, error) {
	return domainlist.Load(cfg.Target.DomainsFile, domainlist.Options{
		Columns:      cfg.Target.Columns,
		DomainColumn: cfg.Target.DomainColumn,
		Prefix:       cfg.Target.HostPrefix,
	})
}

// getRedis connects to the shared counter store and returns the client with
// a cleanup function closing it.
func getRedis(ctx context.Context, cfg *config.Config) (*redis.Client, func()) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal(ctx, "could not connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	return rdb, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn(ctx, "could not close redis client", zap.Error(err))
		}
	}
}

// runRecord turns a finished run into its history record.
func runRecord(cfg *config.Config, summary harness.Summary, report stats.Report) domain.Run {
	run := domain.Run{
		ID:         domain.RunID(summary.RunID),
		Target:     cfg.Target.Host,
		Users:      summary.Users,
		SpawnRate:  cfg.Load.SpawnRate,
		WaitMin:    cfg.Load.WaitMin,
		WaitMax:    cfg.Load.WaitMax,
		Seed:       summary.Seed,
		StartedAt:  summary.Started,
		FinishedAt: summary.Finished,
		Requests:   report.Total.Requests,
		Failures:   report.Total.Failures,
		RPS:        report.Total.RPS,
		Statuses:   report.Statuses,
	}
	for _, e := range report.Entries {
		run.Entries = append(run.Entries, domain.RunEntry{
			Name:     e.Name,
			Requests: e.Requests,
			Failures: e.Failures,
			Min:      e.Min,
			Max:      e.Max,
			Mean:     e.Mean,
			Median:   e.Median,
			P90:      e.P90,
			P95:      e.P95,
			P99:      e.P99,
			AvgBytes: e.AvgBytes,
			RPS:      e.RPS,
		})
	}

	return run
}

func runCommand(cfg *config.Config) *cobra.Command {
	var (
		runID           string
		maxFailureRatio float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sends icon requests for random top domains with simulated users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := cfg.Validate(); err != nil {
				logger.Fatal(ctx, "invalid configuration", zap.Error(err))
			}
			if runID == "" {
				runID = uuid.NewString()
			}
			// the runner adds runID to its own logs, so only the command's
			// logs take it from here
			runCtx := ctx
			ctx = logger.WithFields(ctx, zap.String("runID", runID))

			domains, err := loadDomains(cfg)
			if err != nil {
				logger.Fatal(ctx, "could not load domains", zap.String("file", cfg.Target.DomainsFile), zap.Error(err))
			}
			logger.Info(ctx, "domains loaded", zap.Int("count", domains.Len()))

			task, err := icontask.New(icontask.Options{
				BaseURL:  cfg.Target.Host,
				IconPath: cfg.Target.IconPath,
				Query:    cfg.Target.Query,
				Domains:  domains,
				Client:   icontask.NewHTTPClient(cfg.Target.RequestTimeout, cfg.Target.MaxIdleConnsPerHost),
			})
			if err != nil {
				logger.Fatal(ctx, "could not create request task", zap.Error(err))
			}

			agg := stats.NewAggregator()
			sinks := stats.MultiSink{agg}

			var mp *sdkmetric.MeterProvider
			if cfg.HTTP.Enabled {
				if mp, err = api.NewMeterProvider(nil); err != nil {
					logger.Fatal(ctx, "could not create meter provider", zap.Error(err))
				}
				otelSink, err := stats.NewOtelSink(mp)
				if err != nil {
					logger.Fatal(ctx, "could not create metrics sink", zap.Error(err))
				}
				sinks = append(sinks, otelSink)
			}

			var redisSink *stats.RedisSink
			if cfg.Redis.Enabled {
				rdb, closeRedis := getRedis(ctx, cfg)
				defer closeRedis()

				redisSink = stats.NewRedisSink(rdb, runID,
					stats.WithRedisPrefix(cfg.Redis.Prefix),
					stats.WithRedisTTL(cfg.Redis.TTL))
				sinks = append(sinks, redisSink)
			}

			runner, err := harness.New(task, sinks, harness.Options{
				RunID:     runID,
				Users:     cfg.Load.Users,
				SpawnRate: cfg.Load.SpawnRate,
				WaitMin:   cfg.Load.WaitMin,
				WaitMax:   cfg.Load.WaitMax,
				Duration:  cfg.Load.Duration,
				MaxRPS:    cfg.Load.MaxRPS,
				Seed:      cfg.Load.Seed,
			})
			if err != nil {
				logger.Fatal(ctx, "could not create runner", zap.Error(err))
			}

			if mp != nil {
				stopServer, err := startServer(ctx, "metrics", api.NewServer(api.Deps{
					Health: func() error {
						if runner.ActiveUsers() == 0 {
							return errors.New("no active users")
						}

						return nil
					},
				}, api.NewOptions(cfg)))
				if err != nil {
					logger.Fatal(ctx, "could not start metrics server", zap.Error(err))
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
					defer cancel()
					stopServer(shutdownCtx)
					_ = mp.Shutdown(shutdownCtx)
				}()
			}

			summary, err := runner.Run(runCtx)
			if err != nil {
				return fmt.Errorf("could not complete run: %w", err)
			}

			report := agg.Report()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "run %s, %d users, %s\n\n", summary.RunID, summary.Users, report.Elapsed.Round(time.Millisecond))
			if err := report.Write(out); err != nil {
				return fmt.Errorf("could not write report: %w", err)
			}

			if redisSink != nil {
				// counters of every process that took part in the run
				totals, err := redisSink.Totals(context.WithoutCancel(ctx), runID)
				if err != nil {
					logger.Warn(ctx, "could not read shared totals", zap.Error(err))
				} else {
					_, _ = fmt.Fprintf(out, "\nall processes: %d requests, %d failures, %d bytes\n",
						totals.Requests, totals.Failures, totals.Bytes)
				}
			}

			if cfg.Database.Enabled {
				storeCtx := context.WithoutCancel(ctx)
				strg, closeStrg := getPostgres(storeCtx, cfg)
				defer closeStrg()

				if _, err := strg.StoreRun(storeCtx, runRecord(cfg, summary, report)); err != nil {
					logger.Error(ctx, "could not store run", zap.Error(err))
				} else {
					logger.Info(ctx, "run stored")
				}
			}

			if maxFailureRatio < 1 && report.Total.Requests > 0 {
				ratio := float64(report.Total.Failures) / float64(report.Total.Requests)
				if ratio > maxFailureRatio {
					return fmt.Errorf("failure ratio %.4f exceeds %.4f", ratio, maxFailureRatio)
				}
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Target.Host, "host", cfg.Target.Host, "base URL of the icon service")
	f.StringVar(&cfg.Target.DomainsFile, "domains", cfg.Target.DomainsFile, "CSV file with the domains")
	f.IntVarP(&cfg.Load.Users, "users", "u", cfg.Load.Users, "number of simulated users")
	f.Float64VarP(&cfg.Load.SpawnRate, "spawn-rate", "r", cfg.Load.SpawnRate, "users started per second, 0 starts all at once")
	f.DurationVarP(&cfg.Load.Duration, "duration", "t", cfg.Load.Duration, "run length, 0 runs until interrupted")
	f.Float64Var(&cfg.Load.MaxRPS, "max-rps", cfg.Load.MaxRPS, "request rate cap across all users, 0 disables it")
	f.Uint64Var(&cfg.Load.Seed, "seed", cfg.Load.Seed, "seed of the host picks, 0 seeds from the clock")
	f.StringVar(&runID, "run-id", "", "run identifier shared by every process of a distributed run")
	f.Float64Var(&maxFailureRatio, "max-failure-ratio", 1, "exit with an error when the failure ratio exceeds this value")

	return cmd
}
