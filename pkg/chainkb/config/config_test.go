package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "chainkb.yaml", `verbosity: 2
log_format: json
ask_cache_size: 16
journal:
  path: /tmp/chainkb.db
knowledge:
  - blocks.kb
  - family.kb
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Verbosity != 2 {
		t.Errorf("Expected verbosity 2, got %d", cfg.Verbosity)
	}
	if cfg.LogFormat != FormatJSON {
		t.Errorf("Expected json format, got %q", cfg.LogFormat)
	}
	if cfg.AskCacheSize != 16 {
		t.Errorf("Expected cache size 16, got %d", cfg.AskCacheSize)
	}
	if cfg.Journal.Path != "/tmp/chainkb.db" {
		t.Errorf("Unexpected journal path %q", cfg.Journal.Path)
	}
	if len(cfg.Knowledge) != 2 || cfg.Knowledge[1] != filepath.Join(filepath.Dir(path), "family.kb") {
		t.Errorf("Unexpected knowledge list %v", cfg.Knowledge)
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeFile(t, "partial.yaml", "verbosity: 1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	def := Default()
	if cfg.LogFormat != def.LogFormat || cfg.AskCacheSize != def.AskCacheSize {
		t.Errorf("Missing keys should keep defaults, got %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"negative verbosity": "verbosity: -1\n",
		"negative cache":     "ask_cache_size: -5\n",
		"unknown format":     "log_format: xml\n",
		"bad yaml":           "verbosity: [1\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", content))
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfigNonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/chainkb.yaml"); err == nil {
		t.Error("Should error on nonexistent file")
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Verbosity = tt.verbosity
		if got := cfg.Level(); got != tt.want {
			t.Errorf("verbosity %d: got %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{FormatConsole, FormatJSON} {
		cfg := Default()
		cfg.LogFormat = format
		cfg.Verbosity = 1

		logger, err := cfg.NewLogger()
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("%s: info should be enabled at verbosity 1", format)
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("%s: debug should be disabled at verbosity 1", format)
		}
	}
}
