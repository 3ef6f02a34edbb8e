package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Schema    SchemaConfig
	Directory DirectoryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
	// CORSOrigins is a comma-separated list of browser origins allowed to
	// call the HTTP API. Empty disables CORS.
	CORSOrigins string
}

type StorageConfig struct {
	DataDir string
}

// SchemaConfig selects the database the schema builder introspects.
type SchemaConfig struct {
	// Driver is "sqlite" (the directory database when DSN is empty) or "postgres".
	Driver string
	DSN    string
	// DefaultSorts uses the form "users:signup_tstamp desc,id;orders:total".
	DefaultSorts    string
	Include         string // comma-separated table names
	Exclude         string // comma-separated table names
	RefreshInterval string
}

type DirectoryConfig struct {
	CacheTTL string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Schema: SchemaConfig{
			Driver:          "sqlite",
			DefaultSorts:    "users:signup_tstamp desc",
			Exclude:         "",
			RefreshInterval: "5m",
		},
		Directory: DirectoryConfig{
			CacheTTL: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/nlpmodel/config.json, then applies NLPMODEL_* environment
// overrides. Variables from a .env file in the working directory are merged
// into the environment first; variables already set win.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend())
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToLower(c.Schema.Driver) {
	case "sqlite":
	case "postgres":
		if c.Schema.DSN == "" {
			return fmt.Errorf("missing required config: schema.dsn must be set when schema.driver is postgres. " +
				"Set it via environment variable NLPMODEL_SCHEMA_DSN")
		}
	default:
		return fmt.Errorf("invalid schema.driver %q: expected sqlite or postgres", c.Schema.Driver)
	}
	if _, err := c.Schema.RefreshEvery(); err != nil {
		return err
	}
	if _, err := c.Directory.TTL(); err != nil {
		return err
	}
	return nil
}

// RefreshEvery parses the schema refresh interval.
func (s SchemaConfig) RefreshEvery() (time.Duration, error) {
	d, err := time.ParseDuration(s.RefreshInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid schema.refresh_interval %q: %w", s.RefreshInterval, err)
	}
	return d, nil
}

// Tables splits a comma-separated table list.
func Tables(list string) []string {
	var out []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TTL parses the directory cache TTL.
func (d DirectoryConfig) TTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(d.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid directory.cache_ttl %q: %w", d.CacheTTL, err)
	}
	return ttl, nil
}
