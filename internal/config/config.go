package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Model providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Storage  StorageConfig
	Fetch    FetchConfig
	Pipeline PipelineConfig
	Log      LogConfig
	Secrets  Secrets
}

type ServerConfig struct {
	Port int

	// AllowedOrigins is a comma-separated CORS origin list.
	AllowedOrigins string
}

type ModelConfig struct {
	Provider          string
	Name              string
	Grounding         bool
	RequestsPerMinute int
}

type StorageConfig struct {
	DataDir string
	Backend string
}

type FetchConfig struct {
	Timeout time.Duration
}

type PipelineConfig struct {
	PersonaConcurrency int
}

type LogConfig struct {
	Level string
}

// Secrets are read from the environment (or a .env file) only.
type Secrets struct {
	GoogleAPIKey     string
	OpenRouterAPIKey string
	APIToken         string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           5000,
			AllowedOrigins: "*",
		},
		Model: ModelConfig{
			Provider:  ProviderGemini,
			Name:      "gemini-2.0-flash-exp",
			Grounding: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: "csv",
		},
		Fetch: FetchConfig{
			Timeout: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			PersonaConcurrency: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the JSON file at
// ConfigFilePath, a .env file in the working directory, and environment
// variables, in increasing order of precedence.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newFileBackend(ConfigFilePath()))
}

// loadDotEnv exports the variables of path into the process environment.
// Variables that are already set keep their value.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	switch cfg.Model.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		return Config{}, fmt.Errorf("unknown model provider %q (want %s or %s)", cfg.Model.Provider, ProviderGemini, ProviderOpenRouter)
	}

	return cfg, nil
}

// ModelAPIKey returns the API key of the configured provider.
func (c Config) ModelAPIKey() (string, error) {
	key, env := c.Secrets.GoogleAPIKey, "GOOGLE_API_KEY"
	if c.Model.Provider == ProviderOpenRouter {
		key, env = c.Secrets.OpenRouterAPIKey, "OPENROUTER_API_KEY"
	}
	if key == "" {
		return "", fmt.Errorf("missing required config: %s API key. Set it via environment variable %s or a .env file", c.Model.Provider, env)
	}
	return key, nil
}

// Origins splits Server.AllowedOrigins.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
