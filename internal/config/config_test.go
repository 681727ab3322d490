package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"iconload/internal/config"
	"iconload/pkg/serrors"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	require.Equal(t, "http://localhost:50024", cfg.Target.Host)
	require.Equal(t, "top500domains.csv", cfg.Target.DomainsFile)
	require.Equal(t,
		[]string{"Rank", "Root Domain", "Linking Root Domains", "Domain Authority"},
		cfg.Target.Columns)
	require.Equal(t, "Root Domain", cfg.Target.DomainColumn)
	require.Equal(t, "www.", cfg.Target.HostPrefix)
	require.Equal(t, "cache=false", cfg.Target.Query)
	require.Equal(t, time.Second, cfg.Load.WaitMin)
	require.Equal(t, 2500*time.Millisecond, cfg.Load.WaitMax)
	require.Equal(t, 1, cfg.Load.Users)
	require.NotEqual(t, cfg.HTTP.Addr, cfg.Serve.MetricsAddr, "run and serve must not share a metrics port")
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
target:
  host: http://icons.internal:8080
  domainsFile: /data/domains.csv
load:
  users: 50
  spawnRate: 5
  waitMin: 100ms
  waitMax: 300ms
  duration: 1m
`), 0o600))

	t.Setenv("LOAD_USERS", "75")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "http://icons.internal:8080", cfg.Target.Host)
	require.Equal(t, "/data/domains.csv", cfg.Target.DomainsFile)
	require.Equal(t, 75, cfg.Load.Users, "environment should win over the file")
	require.InDelta(t, 5.0, cfg.Load.SpawnRate, 0.0001)
	require.Equal(t, 100*time.Millisecond, cfg.Load.WaitMin)
	require.Equal(t, 300*time.Millisecond, cfg.Load.WaitMax)
	require.Equal(t, time.Minute, cfg.Load.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("load: [not, a, map"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *config.Config {
		t.Helper()
		cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "relative target", mutate: func(c *config.Config) { c.Target.Host = "localhost:50024" }},
		{name: "ftp target", mutate: func(c *config.Config) { c.Target.Host = "ftp://localhost" }},
		{name: "no domains file", mutate: func(c *config.Config) { c.Target.DomainsFile = "" }},
		{name: "no columns", mutate: func(c *config.Config) { c.Target.Columns = nil }},
		{name: "unknown domain column", mutate: func(c *config.Config) { c.Target.DomainColumn = "Domain" }},
		{name: "zero users", mutate: func(c *config.Config) { c.Load.Users = 0 }},
		{name: "negative spawn rate", mutate: func(c *config.Config) { c.Load.SpawnRate = -1 }},
		{name: "negative max rps", mutate: func(c *config.Config) { c.Load.MaxRPS = -1 }},
		{name: "inverted wait", mutate: func(c *config.Config) {
			c.Load.WaitMin = 3 * time.Second
			c.Load.WaitMax = time.Second
		}},
		{name: "negative duration", mutate: func(c *config.Config) { c.Load.Duration = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, serrors.ErrInvalidConfig)
		})
	}
}
