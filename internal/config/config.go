package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"time"

	"iconload/pkg/serrors"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the application configuration structure.
// It is read from a YAML file and every field can be overridden through
// the environment variable named in its env tag.
type Config struct {
	// Environment specifies the current running environment (development, production)
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`
	// LogLevel overrides the default level of the environment when set
	LogLevel string `env:"LOG_LEVEL" yaml:"logLevel"`

	// Target describes the service under test and the requests sent to it
	Target struct {
		// Host is the base URL every icon path is appended to
		Host string `env:"TARGET_HOST" env-default:"http://localhost:50024" yaml:"host"`
		// DomainsFile is the CSV file holding the domains, relative to the working directory
		DomainsFile string `env:"TARGET_DOMAINS_FILE" env-default:"top500domains.csv" yaml:"domainsFile"`
		// Columns is the CSV header list; rows are mapped onto it by position
		Columns []string `env:"TARGET_COLUMNS" env-default:"Rank,Root Domain,Linking Root Domains,Domain Authority" env-separator:"," yaml:"columns"` //nolint: lll
		// DomainColumn names the column holding the domain
		DomainColumn string `env:"TARGET_DOMAIN_COLUMN" env-default:"Root Domain" yaml:"domainColumn"`
		// HostPrefix is prepended to every domain
		HostPrefix string `env:"TARGET_HOST_PREFIX" env-default:"www." yaml:"hostPrefix"`
		// IconPath is the path requested under every hostname
		IconPath string `env:"TARGET_ICON_PATH" env-default:"icon.png" yaml:"iconPath"`
		// Query is the raw query appended to every request
		Query string `env:"TARGET_QUERY" env-default:"cache=false" yaml:"query"`
		// RequestTimeout bounds a single request, including reading the body
		RequestTimeout time.Duration `env:"TARGET_REQUEST_TIMEOUT" env-default:"10s" yaml:"requestTimeout"`
		// MaxIdleConnsPerHost sizes the client keep-alive pool
		MaxIdleConnsPerHost int `env:"TARGET_MAX_IDLE_CONNS_PER_HOST" env-default:"100" yaml:"maxIdleConnsPerHost"`
	} `yaml:"target"`

	// Load controls how many simulated users run and how they are paced
	Load struct {
		// Users is the number of simulated users
		Users int `env:"LOAD_USERS" env-default:"1" yaml:"users"`
		// SpawnRate is the number of users started per second, 0 starts all at once
		SpawnRate float64 `env:"LOAD_SPAWN_RATE" env-default:"1" yaml:"spawnRate"`
		// WaitMin is the lower bound of the pause between two requests of a user
		WaitMin time.Duration `env:"LOAD_WAIT_MIN" env-default:"1s" yaml:"waitMin"`
		// WaitMax is the upper bound of the pause between two requests of a user
		WaitMax time.Duration `env:"LOAD_WAIT_MAX" env-default:"2500ms" yaml:"waitMax"`
		// Duration is the run length, 0 runs until interrupted
		Duration time.Duration `env:"LOAD_DURATION" env-default:"0s" yaml:"duration"`
		// MaxRPS caps requests per second across all users, 0 disables the cap
		MaxRPS float64 `env:"LOAD_MAX_RPS" env-default:"0" yaml:"maxRPS"`
		// Seed makes host picks reproducible, 0 seeds from the clock
		Seed uint64 `env:"LOAD_SEED" env-default:"0" yaml:"seed"`
	} `yaml:"load"`

	// HTTP contains the metrics and diagnostics server settings
	HTTP struct {
		// Enabled starts the metrics server next to run and serve
		Enabled bool `env:"HTTP_ENABLED" env-default:"true" yaml:"enabled"`
		// Addr is the address and port the metrics server listens on
		Addr string `env:"HTTP_ADDR" env-default:":9646" yaml:"addr"`
		// ReadTimeout is the maximum duration for reading the entire request
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"2m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// MetricsPath defines the URL path where metrics are exposed
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// Serve configures the stub icon server
	Serve struct {
		// Addr is the address the stub server listens on
		Addr string `env:"SERVE_ADDR" env-default:":50024" yaml:"addr"`
		// MetricsAddr is where serve exposes its metrics server, apart from the
		// one of run so both can share a machine
		MetricsAddr string `env:"SERVE_METRICS_ADDR" env-default:":9647" yaml:"metricsAddr"`
		// CacheSize is the number of rendered icons kept in memory
		CacheSize int `env:"SERVE_CACHE_SIZE" env-default:"1000" yaml:"cacheSize"`
		// Delay is added to every uncached render to emulate backend work
		Delay time.Duration `env:"SERVE_DELAY" env-default:"0s" yaml:"delay"`
	} `yaml:"serve"`

	// Redis configures the shared counters used when several processes take part in one run
	Redis struct {
		// Enabled turns the redis stats sink on
		Enabled bool `env:"REDIS_ENABLED" env-default:"false" yaml:"enabled"`
		// Addr is the redis host:port
		Addr string `env:"REDIS_ADDR" env-default:"localhost:6379" yaml:"addr"`
		// Password for redis authentication
		Password string `env:"REDIS_PASSWORD" yaml:"password"`
		// DB selects the redis logical database
		DB int `env:"REDIS_DB" env-default:"0" yaml:"db"`
		// Prefix namespaces every key written by the sink
		Prefix string `env:"REDIS_PREFIX" env-default:"iconload" yaml:"prefix"`
		// TTL applies to per-minute buckets and run totals
		TTL time.Duration `env:"REDIS_TTL" env-default:"24h" yaml:"ttl"`
	} `yaml:"redis"`

	// Database contains the run history connection settings
	Database struct {
		// Enabled stores every finished run
		Enabled bool `env:"DATABASE_ENABLED" env-default:"false" yaml:"enabled"`
		// Username for database authentication
		Username string `env:"DATABASE_USERNAME" env-default:"myuser" yaml:"username"`
		// Password for database authentication
		Password string `env:"DATABASE_PASSWORD" env-default:"mypassword" yaml:"password"`
		// Host is the database server hostname or IP address
		Host string `env:"DATABASE_HOST" env-default:"localhost" yaml:"host"`
		// Port is the database server port number
		Port int `env:"DATABASE_PORT" env-default:"5432" yaml:"port"`
		// SslMode defines the SSL mode for the database connection
		SslMode string `env:"DATABASE_SSL_MODE" env-default:"disable" yaml:"sslMode"`
		// DatabaseName is the name of the database to connect to
		DatabaseName string `env:"DATABASE_NAME" env-default:"iconload" yaml:"name"`
		// MaxOpenConnections limits the number of open connections to the database
		MaxOpenConnections int `env:"DATABASE_MAX_OPEN_CONNECTIONS" env-default:"4" yaml:"maxOpenConnections"`
		// MaxIdleConnections limits the number of connections in the idle connection pool
		MaxIdleConnections int `env:"DATABASE_MAX_IDLE_CONNECTIONS" env-default:"1" yaml:"maxIdleConnections"`
		// ConnMaxLifetime is the maximum amount of time a connection may be reused
		ConnMaxLifetime time.Duration `env:"DATABASE_CONNECTION_MAX_LIFETIME" env-default:"3m" yaml:"connMaxLifetime"`
		// ConnMaxIdleTime is the maximum amount of time a connection may be idle
		ConnMaxIdleTime time.Duration `env:"DATABASE_CONNECTION_MAX_IDLE_TIME" env-default:"3m" yaml:"connMaxIdleTime"`
	} `yaml:"database"`

	// GracefulShutdownTimeout bounds the wait for in-flight work on shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load receives the path for yaml config file and returns a filled Config struct.
// A missing file is not an error: defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	var cfg Config
	err := cleanenv.ReadConfig(configPath, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings that cannot produce a meaningful run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return serrors.With(serrors.ErrInvalidConfig, "target host %q is not an absolute http(s) URL", c.Target.Host)
	}
	if c.Target.DomainsFile == "" {
		return serrors.With(serrors.ErrInvalidConfig, "domains file is not set")
	}
	if len(c.Target.Columns) == 0 {
		return serrors.With(serrors.ErrInvalidConfig, "column list is empty")
	}
	if !slices.Contains(c.Target.Columns, c.Target.DomainColumn) {
		return serrors.With(serrors.ErrInvalidConfig,
			"domain column %q is not one of the columns %v", c.Target.DomainColumn, c.Target.Columns)
	}
	if c.Load.Users < 1 {
		return serrors.With(serrors.ErrInvalidConfig, "users must be at least 1, got %d", c.Load.Users)
	}
	if c.Load.SpawnRate < 0 {
		return serrors.With(serrors.ErrInvalidConfig, "spawn rate must not be negative")
	}
	if c.Load.MaxRPS < 0 {
		return serrors.With(serrors.ErrInvalidConfig, "max rps must not be negative")
	}
	if c.Load.WaitMin < 0 || c.Load.WaitMax < c.Load.WaitMin {
		return serrors.With(serrors.ErrInvalidConfig,
			"wait interval [%s, %s] is invalid", c.Load.WaitMin, c.Load.WaitMax)
	}
	if c.Load.Duration < 0 {
		return serrors.With(serrors.ErrInvalidConfig, "duration must not be negative")
	}

	return nil
}
