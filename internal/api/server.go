// Package api exposes the diagnostics HTTP server that runs next to the load
// generator and the stub icon server: Prometheus metrics, a health probe and
// pprof.
package api

import (
	"fmt"
	"net/http"
	"time"

	"iconload/internal/config"
	"iconload/pkg/controller"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// HealthPath answers 200 while the process is healthy.
const HealthPath = "/healthz"

// Options holds the listener settings of the diagnostics server.
type Options struct {
	// Addr is the TCP address the server listens on, e.g. ":9646".
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	// MetricsPath is the HTTP path at which Prometheus metrics are served.
	MetricsPath string
}

// NewOptions maps the http section of the configuration onto Options.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MetricsPath:       cfg.HTTP.MetricsPath,
	}
}

// Deps are the collaborators of the diagnostics server.
type Deps struct {
	// Gatherer serves the metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	// Health reports whether the process can do its work; always healthy when nil.
	Health func() error
}

// NewMeterProvider returns an OpenTelemetry meter provider whose instruments
// are exported through reg, so they show up on the metrics endpoint.
func NewMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}

// NewServer wires the metrics, health and pprof routes behind the CORS and
// logging middlewares.
func NewServer(deps Deps, opts Options) *http.Server {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle(opts.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintln(w, err.Error())

				return
			}
		}
		_, _ = fmt.Fprintln(w, "ok")
	})
	controller.RegisterPprof(mux)

	handler := controller.WithCORS(mux)
	handler = controller.WithLogger(handler)

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
}
