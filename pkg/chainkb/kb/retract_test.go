package kb

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/trace"
	"github.com/cognicore/chainkb/pkg/chainkb/trace/memtrace"
)

func keys(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key()
	}
	return out
}

func conjunctionKB(t *testing.T) *KnowledgeBase {
	kb := New(Options{})
	mustAssert(t, kb,
		fact(t, "p(a)"),
		fact(t, "q(a)"),
		rule(t, "p(?x), q(?x) -> r(?x)"))
	require.True(t, has(kb, fact(t, "r(a)")))
	return kb
}

func TestRetractCascades(t *testing.T) {
	kb := conjunctionKB(t)
	require.NotEmpty(t, kb.Ask(fact(t, "r(a)")))

	removed, err := kb.Retract(fact(t, "p(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p(a)", "q(a) -> r(a)", "r(a)"}, keys(removed))

	assert.False(t, has(kb, fact(t, "r(a)")))
	assert.True(t, has(kb, fact(t, "q(a)")))
	assert.True(t, has(kb, rule(t, "p(?x), q(?x) -> r(?x)")))
	assert.Empty(t, kb.Ask(fact(t, "r(a)")))
	require.NoError(t, kb.Verify())

	q, _ := kb.Lookup(fact(t, "q(a)"))
	assert.Empty(t, q.SupportsRules())
	assert.Empty(t, q.SupportsFacts())
}

func TestRetractKeepsAssertedConclusion(t *testing.T) {
	kb := conjunctionKB(t)
	mustAssert(t, kb, fact(t, "r(a)"))

	removed, err := kb.Retract(fact(t, "p(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p(a)", "q(a) -> r(a)"}, keys(removed))

	r, ok := kb.Lookup(fact(t, "r(a)"))
	require.True(t, ok)
	assert.True(t, r.Asserted())
	assert.Empty(t, r.SupportedBy())
	require.NoError(t, kb.Verify())
}

func TestRetractKeepsOtherPaths(t *testing.T) {
	kb := New(Options{})
	mustAssert(t, kb,
		fact(t, "p(a)"),
		fact(t, "s(a)"),
		rule(t, "p(?x) -> q(?x)"),
		rule(t, "s(?x) -> q(?x)"),
		rule(t, "q(?x) -> u(?x)"))

	removed, err := kb.Retract(fact(t, "p(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p(a)"}, keys(removed))

	q, ok := kb.Lookup(fact(t, "q(a)"))
	require.True(t, ok)
	require.Len(t, q.SupportedBy(), 1)
	assert.True(t, has(kb, fact(t, "u(a)")))
	require.NoError(t, kb.Verify())

	removed, err = kb.Retract(fact(t, "s(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s(a)", "q(a)", "u(a)"}, keys(removed))
	require.NoError(t, kb.Verify())
}

func TestRetractRefusals(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := memtrace.New(false)
	kb := New(Options{Logger: zap.New(core), Sink: rec})
	mustAssert(t, kb,
		fact(t, "p(a)"),
		fact(t, "q(a)"),
		rule(t, "p(?x), q(?x) -> r(?x)"),
		fact(t, "r(a)"))
	before := kb.String()
	rec.Drain()

	tests := []struct {
		name string
		item Item
		want error
	}{
		{"asserted rule", rule(t, "p(?x), q(?x) -> r(?x)"), internalerr.ErrRuleRetraction},
		{"derived rule", rule(t, "q(a) -> r(a)"), internalerr.ErrRuleRetraction},
		{"asserted and supported", fact(t, "r(a)"), internalerr.ErrStillSupported},
		{"unknown", fact(t, "r(b)"), internalerr.ErrNotFound},
		{"nil", nil, internalerr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := kb.Retract(tt.item)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, removed)
			assert.Equal(t, before, kb.String())
		})
	}

	assert.Equal(t, 3, logs.FilterMessage("retraction refused").Len())
	var refused int
	for _, ev := range rec.Drain() {
		if ev.Op == trace.OpRefuse {
			refused++
		}
	}
	assert.Equal(t, 3, refused)
}

func TestRetractDerivedFactRefused(t *testing.T) {
	kb := conjunctionKB(t)

	_, err := kb.Retract(fact(t, "r(a)"))
	assert.ErrorIs(t, err, internalerr.ErrStillSupported)
	assert.True(t, has(kb, fact(t, "r(a)")))
}

func TestRetractSelfSupportingFact(t *testing.T) {
	kb := New(Options{})
	mustAssert(t, kb,
		fact(t, "p(a)"),
		rule(t, "p(?x) -> q(?x)"),
		rule(t, "q(?x) -> p(?x)"))

	p, _ := kb.Lookup(fact(t, "p(a)"))
	require.Len(t, p.SupportedBy(), 1, "q(a) re-derives p(a)")

	removed, err := kb.Retract(fact(t, "p(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p(a)", "q(a)"}, keys(removed))
	require.NoError(t, kb.Verify())
}

func TestRetractRemovesUnfoundedCycle(t *testing.T) {
	kb := New(Options{})
	mustAssert(t, kb,
		fact(t, "t(a)"),
		rule(t, "t(?x) -> p(?x)"),
		rule(t, "p(?x) -> q(?x)"),
		rule(t, "q(?x) -> p(?x)"),
		rule(t, "q(?x) -> w(?x)"))

	p, _ := kb.Lookup(fact(t, "p(a)"))
	require.Len(t, p.SupportedBy(), 2)

	removed, err := kb.Retract(fact(t, "t(a)"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t(a)", "p(a)", "q(a)", "w(a)"}, keys(removed))
	assert.Equal(t, "t(a)", removed[0].Key())

	facts, rules := kb.Len()
	assert.Equal(t, 0, facts)
	assert.Equal(t, 4, rules)
	require.NoError(t, kb.Verify())
}

func TestRetractKeepsGroundedCycle(t *testing.T) {
	kb := New(Options{})
	mustAssert(t, kb,
		fact(t, "t(a)"),
		fact(t, "s(a)"),
		rule(t, "t(?x) -> p(?x)"),
		rule(t, "s(?x) -> q(?x)"),
		rule(t, "p(?x) -> q(?x)"),
		rule(t, "q(?x) -> p(?x)"))

	removed, err := kb.Retract(fact(t, "t(a)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"t(a)"}, keys(removed))
	assert.True(t, has(kb, fact(t, "p(a)")), "p(a) still follows from s(a)")
	assert.True(t, has(kb, fact(t, "q(a)")))
	require.NoError(t, kb.Verify())
}

func TestRetractTraceEvents(t *testing.T) {
	rec := memtrace.New(false)
	kb := New(Options{Sink: rec})
	mustAssert(t, kb,
		fact(t, "p(a)"),
		fact(t, "q(a)"),
		rule(t, "p(?x), q(?x) -> r(?x)"))
	rec.Drain()

	_, err := kb.Retract(fact(t, "p(a)"))
	require.NoError(t, err)

	var got []string
	for _, ev := range rec.Drain() {
		got = append(got, fmt.Sprintf("%s %s", ev.Op, ev.Item))
	}
	assert.Equal(t, []string{
		"retract p(a)",
		"remove p(a)",
		"remove q(a) -> r(a)",
		"remove r(a)",
	}, got)
}

// closure rebuilds a knowledge base from the asserted items of kb
func closure(t *testing.T, kb *KnowledgeBase) *KnowledgeBase {
	fresh := New(Options{})
	for _, r := range kb.Rules() {
		if r.Asserted() {
			require.NoError(t, fresh.Assert(NewRule(r.LHS(), r.RHS())))
		}
	}
	for _, f := range kb.Facts() {
		if f.Asserted() {
			require.NoError(t, fresh.Assert(NewFact(f.Statement())))
		}
	}
	return fresh
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rules := []string{
		"p(?x) -> q(?x)",
		"q(?x), r(?x) -> s(?x)",
		"s(?x) -> p(?x)",
		"p(?x), s(?x) -> t(?x)",
		"t(?x) -> r(?x)",
		"e(?x, ?y) -> p(?y)",
	}
	preds := []string{"p", "q", "r", "s", "t"}
	consts := []string{"a", "b", "c"}

	rng := rand.New(rand.NewSource(42))
	kb := New(Options{AskCacheSize: 4})
	for _, src := range rules {
		mustAssert(t, kb, rule(t, src))
	}

	for step := 0; step < 400; step++ {
		var f *Fact
		if rng.Intn(6) == 0 {
			f = fact(t, fmt.Sprintf("e(%s, %s)", consts[rng.Intn(len(consts))], consts[rng.Intn(len(consts))]))
		} else {
			f = fact(t, fmt.Sprintf("%s(%s)", preds[rng.Intn(len(preds))], consts[rng.Intn(len(consts))]))
		}

		if rng.Intn(3) == 0 {
			_, err := kb.Retract(f)
			if err != nil {
				assert.True(t,
					errors.Is(err, internalerr.ErrNotFound) || errors.Is(err, internalerr.ErrStillSupported),
					"step %d: %v", step, err)
			}
		} else {
			require.NoError(t, kb.Assert(f))
		}

		require.NoError(t, kb.Verify(), "step %d:\n%s", step, kb)
		if step%25 == 0 {
			assert.ElementsMatch(t, factKeys(closure(t, kb)), factKeys(kb), "step %d", step)
		}
	}
}
