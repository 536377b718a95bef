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
	kFloat
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
		key: "server.host", typ: kString, env: "SDR_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SDR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SDR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "completion.base_url", typ: kString, env: "SDR_COMPLETION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.model", typ: kString, env: "SDR_COMPLETION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.timeout", typ: kDuration, env: "SDR_COMPLETION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Completion.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Completion.Timeout },
	},
	{
		key: "completion.api_key", typ: kString, env: "SDR_COMPLETION_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "log.level", typ: kString, env: "SDR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "scoring.local_aggregate", typ: kBool, env: "SDR_SCORING_LOCAL_AGGREGATE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.LocalAggregate = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scoring.LocalAggregate },
	},
	{
		key: "search.default_limit", typ: kInt, env: "SDR_SEARCH_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.DefaultLimit },
	},
}

// parseValue converts raw text into the Go type of a key.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func typeName(typ keyType) string {
	switch typ {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b Backend) error {
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
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if pv, err := parseValue(s.typ, v); err == nil {
					s.apply(cfg, pv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", typeName(s.typ), s.key, v, err)
				}
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
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", typeName(s.typ), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
