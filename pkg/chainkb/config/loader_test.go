package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/parse"
)

func TestLoaderAllEmpty(t *testing.T) {
	loader := Loader{}

	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Empty loader should succeed: %v", err)
	}
	defer comp.Close()

	if comp.Config == nil || comp.Logger == nil {
		t.Fatal("Should have default config and logger")
	}
	if comp.Journal != nil {
		t.Error("Journal should be disabled without a path")
	}
	if len(comp.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(comp.Items))
	}
}

func TestLoaderKnowledgeFiles(t *testing.T) {
	blocks := writeFile(t, "blocks.kb", `# blocks
fact: isa(cube, block)
rule: isa(?x, block) -> movable(?x)
`)
	extra := writeFile(t, "extra.kb", "fact: (isa pyramid block)\n")
	cfgPath := writeFile(t, "chainkb.yaml", "knowledge:\n  - "+blocks+"\n")

	loader := Loader{
		ConfigPath:     cfgPath,
		KnowledgePaths: []string{extra},
	}
	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer comp.Close()

	if len(comp.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(comp.Items))
	}
	if comp.Items[1].Kind != parse.KindRule {
		t.Error("Second item should be the rule")
	}
	if comp.Items[2].Fact.Key() != "isa(pyramid, block)" {
		t.Errorf("Flag knowledge should load after config knowledge, got %s", comp.Items[2])
	}
}

func TestLoaderOverrides(t *testing.T) {
	cfgPath := writeFile(t, "chainkb.yaml", "verbosity: 1\njournal:\n  path: ignored.db\n")
	journal := filepath.Join(t.TempDir(), "journal.db")

	loader := Loader{
		ConfigPath:  cfgPath,
		JournalPath: journal,
		Verbosity:   3,
	}
	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer comp.Close()

	if comp.Config.Verbosity != 3 {
		t.Errorf("Flag verbosity should win, got %d", comp.Config.Verbosity)
	}
	if comp.Config.Journal.Path != journal {
		t.Errorf("Flag journal should win, got %q", comp.Config.Journal.Path)
	}
	if comp.Journal == nil {
		t.Fatal("Journal should be open")
	}
	stats, err := comp.Journal.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("New journal should be empty, got %d events", stats.Total)
	}
}

func TestLoaderNonExistentConfig(t *testing.T) {
	loader := Loader{ConfigPath: "/nonexistent/chainkb.yaml"}
	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("Should error on nonexistent config")
	}
}

func TestLoaderNonExistentKnowledge(t *testing.T) {
	loader := Loader{KnowledgePaths: []string{"/nonexistent/blocks.kb"}}
	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("Should error on nonexistent knowledge file")
	}
}

func TestLoaderSyntaxError(t *testing.T) {
	bad := writeFile(t, "bad.kb", "fact: isa(cube, block)\nrule: isa(?x -> movable(?x)\n")

	loader := Loader{KnowledgePaths: []string{bad}}
	_, err := loader.Load(context.Background())
	if !errors.Is(err, internalerr.ErrSyntax) {
		t.Fatalf("Expected ErrSyntax, got %v", err)
	}
}
