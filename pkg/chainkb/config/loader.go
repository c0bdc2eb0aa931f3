package config

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/parse"
	"github.com/cognicore/chainkb/pkg/chainkb/trace/sqlite"
)

// Loader loads the configuration file and the files it points to.
// Non-empty fields override the corresponding file settings.
type Loader struct {
	ConfigPath     string
	KnowledgePaths []string // appended to the file's knowledge list
	JournalPath    string
	Verbosity      int // 0 keeps the configured verbosity
}

// Components holds everything a reasoner needs to start
type Components struct {
	Config  *Config
	Logger  *zap.Logger
	Journal *sqlite.Journal // nil when journaling is disabled
	Items   []parse.Item
}

// Close releases the journal and flushes the logger
func (c *Components) Close() error {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	if c.Journal != nil {
		return c.Journal.Close()
	}
	return nil
}

// Load reads all configured files and returns initialized components
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	cfg := Default()
	if l.ConfigPath != "" {
		loaded, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if l.Verbosity > 0 {
		cfg.Verbosity = l.Verbosity
	}
	if l.JournalPath != "" {
		cfg.Journal.Path = l.JournalPath
	}
	cfg.Knowledge = append(cfg.Knowledge, l.KnowledgePaths...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	comp := &Components{Config: cfg, Logger: logger}

	// Load knowledge files
	for _, path := range cfg.Knowledge {
		items, err := loadKnowledge(path)
		if err != nil {
			return nil, fmt.Errorf("load knowledge: %w", err)
		}
		logger.Info("knowledge file loaded", zap.String("path", path), zap.Int("items", len(items)))
		comp.Items = append(comp.Items, items...)
	}

	// Open journal last so failures above leave nothing to close
	if cfg.Journal.Path != "" {
		j, err := sqlite.OpenJournal(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		comp.Journal = j
	}

	return comp, nil
}

func loadKnowledge(path string) ([]parse.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	items, err := parse.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}
