package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
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
		key: "server.port", typ: kInt, env: "MARKETLENS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "MARKETLENS_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "model.provider", typ: kString, env: "MARKETLENS_MODEL_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Model.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Provider },
	},
	{
		key: "model.name", typ: kString, env: "MARKETLENS_MODEL_NAME",
		apply:   func(cfg *Config, v any) { cfg.Model.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Name },
	},
	{
		key: "model.grounding", typ: kBool, env: "MARKETLENS_MODEL_GROUNDING",
		apply:   func(cfg *Config, v any) { cfg.Model.Grounding = v.(bool) },
		extract: func(cfg Config) any { return cfg.Model.Grounding },
	},
	{
		key: "model.requests_per_minute", typ: kInt, env: "MARKETLENS_MODEL_RPM",
		apply:   func(cfg *Config, v any) { cfg.Model.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Model.RequestsPerMinute },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MARKETLENS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.backend", typ: kString, env: "MARKETLENS_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "fetch.timeout", typ: kDuration, env: "MARKETLENS_FETCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Fetch.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Fetch.Timeout },
	},
	{
		key: "pipeline.persona_concurrency", typ: kInt, env: "MARKETLENS_PIPELINE_PERSONA_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.PersonaConcurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.PersonaConcurrency },
	},
	{
		key: "log.level", typ: kString, env: "MARKETLENS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "secrets.google_api_key", typ: kString, env: "GOOGLE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Secrets.GoogleAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Secrets.GoogleAPIKey },
	},
	{
		key: "secrets.openrouter_api_key", typ: kString, env: "OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Secrets.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Secrets.OpenRouterAPIKey },
	},
	{
		key: "secrets.api_token", typ: kString, env: "MARKETLENS_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Secrets.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Secrets.APIToken },
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
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := parseValue(s.typ, v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				continue
			}
			s.apply(cfg, parsed)
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
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
