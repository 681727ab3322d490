// Package main provides the iconload CLI. It loads configuration, sets up
// logging and wires the run, domains, serve, migrate and history subcommands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"iconload/internal/config"
	"iconload/pkg/logger"
	"iconload/pkg/storage/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// getPostgres connects to the run history database and returns the storage
// with a cleanup function closing it.
func getPostgres(ctx context.Context, cfg *config.Config) (*postgres.PgSQL, func()) {
	pgsql, err := postgres.New(ctx, postgres.Options{
		Username:           cfg.Database.Username,
		Password:           cfg.Database.Password,
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		Database:           cfg.Database.DatabaseName,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.Database.ConnMaxIdleTime,
		MaxOpenConnections: cfg.Database.MaxOpenConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		SslMode:            cfg.Database.SslMode,
	})
	if err != nil {
		logger.Fatal(ctx, "could not create postgres storage", zap.Error(err))
	}

	return pgsql, func() {
		logger.Info(ctx, "closing postgres client...")
		if err = pgsql.Close(); err != nil {
			logger.Warn(ctx, "could not close postgres connection", zap.Error(err))
		}
	}
}

// startServer binds srv.Addr and serves srv in the background. It returns
// a function that shuts the server down gracefully, or the bind error.
func startServer(ctx context.Context, name string, srv *http.Server) (func(ctx context.Context), error) {
	ctx = logger.WithFields(ctx, zap.String("server", name), zap.String("addr", srv.Addr))

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen for %s server on %s: %w", name, srv.Addr, err)
	}

	go func() {
		logger.Info(ctx, "starting server...", zap.String("listen", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", zap.Error(err))
		}
	}()

	return func(shutdownCtx context.Context) {
		logger.Info(ctx, "stopping server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "could not stop server", zap.Error(err))
		}
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "iconload",
		Short: "Load generator for the icon service",
		// errors are logged by the commands themselves
		SilenceUsage: true,
	}

	// cobra parses flags only when a command runs, but the config is needed
	// to build the commands; -c is read with the flag package first and
	// declared on the root command so cobra accepts it.
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "config file path")

	fs := flag.NewFlagSet("iconload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("c", "config.yml", "config file path")
	fs.StringVar(configPath, "config", "config.yml", "config file path")
	_ = fs.Parse(configArgs(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("could not load config: ", err)
	}

	if err := logger.Setup(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatal("could not set up logger: ", err)
	}

	ctx := context.Background()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			logger.Sync()

			panic(p)
		}
	}()

	rootCmd.AddCommand(
		runCommand(cfg),
		domainsCommand(cfg),
		serveCommand(cfg),
		migrateCommand(cfg),
		historyCommand(cfg),
	)

	err = rootCmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}

// configArgs keeps only the config flag out of args so the flag package
// does not stop at subcommands or their flags.
func configArgs(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "-c" || a == "--config" || a == "-config":
			if i+1 < len(args) {
				out = append(out, "-c", args[i+1])
				i++
			}
		case strings.HasPrefix(a, "-c="):
			out = append(out, "-c", strings.TrimPrefix(a, "-c="))
		case strings.HasPrefix(a, "--config="):
			out = append(out, "-c", strings.TrimPrefix(a, "--config="))
		}
	}

	return out
}
