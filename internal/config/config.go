package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	keychainService = "sdr"
	keychainAccount = "completion_api_key"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Completion CompletionConfig
	Log        LogConfig
	Scoring    ScoringConfig
	Search     SearchConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	DataDir string
}

type CompletionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type LogConfig struct {
	Level string
}

type ScoringConfig struct {
	// LocalAggregate persists the locally computed weighted score instead of
	// the model-reported total.
	LocalAggregate bool
}

type SearchConfig struct {
	DefaultLimit int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Completion: CompletionConfig{
			BaseURL: "https://api.x.ai/v1",
			Model:   "grok-beta",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sdr.app) and the API key
// falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sdr/config.json and
// the API key falls back to $XDG_DATA_HOME/sdr/secrets.json.
//
// Environment variables (SDR_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Completion.APIKey == "" {
		if key, err := kc.Get(keychainService, keychainAccount); err == nil && key != "" {
			cfg.Completion.APIKey = key
		}
	}

	return cfg, nil
}

// Validate reports configuration that would keep the server from starting.
func (c Config) Validate() error {
	if c.Completion.APIKey == "" {
		return fmt.Errorf("missing required config: completion API key. "+
			"Set it via environment variable SDR_COMPLETION_API_KEY, "+
			"`sdr config set completion.api_key <key>`%s", apiKeyHint())
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("invalid completion.timeout %s", c.Completion.Timeout)
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
