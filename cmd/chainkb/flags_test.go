package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskCommand(t *testing.T) {
	out, err := execute(t, "--load", blocksPath(t), "ask", "above(?x,", "table)")
	require.NoError(t, err)
	assert.Equal(t, "0: ?x : cube    [above(cube, table)]\n1: ?x : pyramid    [above(pyramid, table)]\n", out)
}

func TestWhyCommand(t *testing.T) {
	out, err := execute(t, "--load", blocksPath(t), "why", "stacked(pyramid)")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fact: stacked(pyramid)\n"), out)
	assert.Contains(t, out, "fact: movable(cube)")
	assert.Contains(t, out, "rule: on(?x, ?y), movable(?y) -> stacked(?x) ASSERTED")
}

func TestCheckCommandWithConfig(t *testing.T) {
	cfgPath := filepath.Join(repoRoot(t), "testdata", "chainkb.yaml")
	out, err := execute(t, "--config", cfgPath, "check")
	require.NoError(t, err)
	assert.Equal(t, "ok: 11 facts, 9 rules\n", out)
}

func TestRepeatableLoadFlag(t *testing.T) {
	extra := filepath.Join(t.TempDir(), "extra.kb")
	require.NoError(t, os.WriteFile(extra, []byte("fact: isa(wedge, block)\n"), 0644))

	out, err := execute(t, "--load", blocksPath(t), "--load", extra, "-vv", "ask", "movable(?x)")
	require.NoError(t, err)
	assert.Contains(t, out, "2: ?x : wedge")
}

func TestBuildReasonerErrors(t *testing.T) {
	ctx := context.Background()

	_, _, err := buildReasoner(ctx, &options{configPath: "/nonexistent/chainkb.yaml"})
	assert.Error(t, err, "missing config")

	_, _, err = buildReasoner(ctx, &options{loadPaths: []string{"/nonexistent/blocks.kb"}})
	assert.Error(t, err, "missing knowledge file")

	_, err = execute(t, "ask")
	assert.Error(t, err, "ask needs a pattern")

	_, err = execute(t, "check", "extra")
	assert.Error(t, err, "check takes no arguments")
}
