// Package config loads repoindex settings from defaults, a YAML file,
// REPOINDEX_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/repoindex/internal/embedder"
)

// EnvPrefix is prepended to every environment override, e.g. REPOINDEX_LOG_LEVEL
const EnvPrefix = "REPOINDEX"

// ErrInvalidConfig is returned when a loaded value is out of range
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration
type Config struct {
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Embedder EmbedderConfig `mapstructure:"embedder" yaml:"embedder"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// EmbedderConfig selects and configures the embedding provider
type EmbedderConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"` // local, ollama or openai
	Model     string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// SearchConfig holds search defaults
type SearchConfig struct {
	Limit          int     `mapstructure:"limit" yaml:"limit"`
	KeywordWeight  float64 `mapstructure:"keyword_weight" yaml:"keyword_weight"`
	SemanticWeight float64 `mapstructure:"semantic_weight" yaml:"semantic_weight"`
}

// IndexConfig holds the default include/exclude globs
type IndexConfig struct {
	Include []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// EmbedderSettings converts the section into the embedder factory's config
func (c EmbedderConfig) EmbedderSettings() embedder.Config {
	return embedder.Config{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		CacheSize: c.CacheSize,
	}
}

// Validate checks value ranges after loading
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	switch strings.ToLower(c.Embedder.Provider) {
	case "", embedder.ProviderLocal, embedder.ProviderOllama, embedder.ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown embedder.provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}
	if c.Search.Limit < 1 {
		return fmt.Errorf("%w: search.limit must be positive", ErrInvalidConfig)
	}
	if c.Search.KeywordWeight < 0 || c.Search.SemanticWeight < 0 {
		return fmt.Errorf("%w: search weights must not be negative", ErrInvalidConfig)
	}
	return nil
}

// YAML renders the configuration with secrets masked
func (c *Config) YAML() (string, error) {
	masked := *c
	if masked.Embedder.APIKey != "" {
		masked.Embedder.APIKey = "****"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}

// Loader resolves configuration in priority order: flags, environment,
// config file, defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults and environment overrides applied
func NewLoader() *Loader {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// BindFlag makes a command-line flag override key when the flag is set
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the config file (path, or the default location when empty)
// and returns the merged, validated configuration. A missing file is not
// an error; a malformed one is.
func (l *Loader) Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		def, err := DefaultConfigPath()
		if err == nil {
			path = def
		}
	}

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		l.v.SetConfigFile(expanded)
		if err := l.v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			notFound := errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist)
			if !notFound || explicit {
				return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	dataDir, err := ExpandPath(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file the last Load read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// DefaultDir returns ~/.repoindex
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".repoindex"), nil
}

// DefaultConfigPath returns ~/.repoindex/config.yaml
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	return path, nil
}
