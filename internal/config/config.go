// Package config provides Viper-based configuration for the rendition server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// IMAGE_RENDITION_STATIC_DIR or IMAGE_RENDITION_LOG_LEVEL.
const EnvPrefix = "IMAGE_RENDITION"

// Config is the complete server configuration.
type Config struct {
	// StaticDir is the directory rendition paths are relative to.
	StaticDir string `mapstructure:"static_dir"`

	// OutputSubdir is the directory under StaticDir that holds renditions.
	OutputSubdir string `mapstructure:"output_subdir"`

	// SearchPaths are tried in order when resolving relative image names.
	SearchPaths []string `mapstructure:"search_paths"`

	// HashSuffixLen is the number of content hash digits in filenames.
	HashSuffixLen int `mapstructure:"hash_suffix_len"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Render  RenderConfig  `mapstructure:"render"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig contains Prometheus exporter settings
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the exporter.
	Addr string `mapstructure:"addr"`
}

// RenderConfig contains rendition defaults
type RenderConfig struct {
	// DefaultScales are the output scales of a rendition set when the
	// request names none.
	DefaultScales []float64 `mapstructure:"default_scales"`
}

// New returns a Viper instance with defaults and environment binding set up.
// Callers may bind flags to it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration from cfgFile (or the default search locations
// when empty), the environment, and any flags bound to v.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".image-rendition")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/image-rendition")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("static_dir", "static")
	v.SetDefault("output_subdir", "_img")
	v.SetDefault("search_paths", []string{"."})
	v.SetDefault("hash_suffix_len", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("render.default_scales", []float64{1, 2})
}

func validate(cfg *Config) error {
	if cfg.StaticDir == "" {
		return fmt.Errorf("static_dir must not be empty")
	}
	if cfg.OutputSubdir == "" {
		return fmt.Errorf("output_subdir must not be empty")
	}
	if cfg.HashSuffixLen < 6 || cfg.HashSuffixLen > 32 {
		return fmt.Errorf("hash_suffix_len must be between 6 and 32, got %d", cfg.HashSuffixLen)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	if len(cfg.Render.DefaultScales) == 0 {
		return fmt.Errorf("render.default_scales must not be empty")
	}
	for _, s := range cfg.Render.DefaultScales {
		if s <= 0 {
			return fmt.Errorf("render.default_scales must be positive, got %g", s)
		}
	}
	return nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger. Output goes to stderr because stdout
// carries the MCP protocol.
func (c *Config) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
