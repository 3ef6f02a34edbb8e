package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NLPMODEL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "NLPMODEL_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.cors_origins", typ: kString, env: "NLPMODEL_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NLPMODEL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "schema.driver", typ: kString, env: "NLPMODEL_SCHEMA_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Schema.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.Driver },
	},
	{
		key: "schema.dsn", typ: kString, env: "NLPMODEL_SCHEMA_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Schema.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.DSN },
	},
	{
		key: "schema.default_sorts", typ: kString, env: "NLPMODEL_SCHEMA_DEFAULT_SORTS",
		apply:   func(cfg *Config, v any) { cfg.Schema.DefaultSorts = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.DefaultSorts },
	},
	{
		key: "schema.include", typ: kString, env: "NLPMODEL_SCHEMA_INCLUDE",
		apply:   func(cfg *Config, v any) { cfg.Schema.Include = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.Include },
	},
	{
		key: "schema.exclude", typ: kString, env: "NLPMODEL_SCHEMA_EXCLUDE",
		apply:   func(cfg *Config, v any) { cfg.Schema.Exclude = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.Exclude },
	},
	{
		key: "schema.refresh_interval", typ: kString, env: "NLPMODEL_SCHEMA_REFRESH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schema.RefreshInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.RefreshInterval },
	},
	{
		key: "directory.cache_ttl", typ: kString, env: "NLPMODEL_DIRECTORY_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Directory.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Directory.CacheTTL },
	},
	{
		key: "log.level", typ: kString, env: "NLPMODEL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
