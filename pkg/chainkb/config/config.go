package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
)

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the reasoner configuration file
type Config struct {
	// Verbosity: 0 warnings only, 1 assert/retract tracing, 2+ every derivation
	Verbosity    int      `yaml:"verbosity"`
	LogFormat    string   `yaml:"log_format"`
	AskCacheSize int      `yaml:"ask_cache_size"`
	Journal      Journal  `yaml:"journal"`
	Knowledge    []string `yaml:"knowledge"`
}

// Journal configures the operation journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Verbosity:    0,
		LogFormat:    FormatConsole,
		AskCacheSize: 128,
	}
}

// Load reads a configuration from a YAML file. Missing keys keep their
// default values. Relative knowledge paths resolve against the file's
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", path, err, internalerr.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i, k := range cfg.Knowledge {
		if !filepath.IsAbs(k) {
			cfg.Knowledge[i] = filepath.Join(dir, k)
		}
	}

	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Verbosity < 0 {
		return fmt.Errorf("verbosity %d is negative: %w", c.Verbosity, internalerr.ErrInvalidConfig)
	}
	if c.AskCacheSize < 0 {
		return fmt.Errorf("ask_cache_size %d is negative: %w", c.AskCacheSize, internalerr.ErrInvalidConfig)
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("log_format %q: want %s or %s: %w", c.LogFormat, FormatConsole, FormatJSON, internalerr.ErrInvalidConfig)
	}
	return nil
}

// Level maps verbosity to a log level
func (c *Config) Level() zapcore.Level {
	switch {
	case c.Verbosity <= 0:
		return zapcore.WarnLevel
	case c.Verbosity == 1:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewLogger builds a stderr logger at the configured verbosity
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.Level())
	zc.Sampling = nil
	if c.LogFormat != FormatJSON {
		zc.Encoding = FormatConsole
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
