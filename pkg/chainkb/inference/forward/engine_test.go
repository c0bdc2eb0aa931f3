package forward

import (
	"testing"

	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

func TestInferSingleConjunctYieldsFact(t *testing.T) {
	e := New(nil)

	fact := logic.NewStatement("isa", "cube", "block")
	lhs := []logic.Statement{logic.NewStatement("isa", "?x", "block")}
	rhs := logic.NewStatement("movable", "?x")

	d, ok := e.Infer(fact, lhs, rhs)
	if !ok {
		t.Fatal("expected match")
	}
	if !d.IsFact() {
		t.Fatal("expected a fact derivation")
	}
	if d.RHS.Key() != "movable(cube)" {
		t.Errorf("unexpected conclusion %s", d.RHS)
	}
}

func TestInferMultiConjunctYieldsRule(t *testing.T) {
	e := New(nil)

	fact := logic.NewStatement("on", "a", "b")
	lhs := []logic.Statement{
		logic.NewStatement("on", "?x", "?y"),
		logic.NewStatement("on", "?y", "?z"),
	}
	rhs := logic.NewStatement("above", "?x", "?z")

	d, ok := e.Infer(fact, lhs, rhs)
	if !ok {
		t.Fatal("expected match")
	}
	if d.IsFact() {
		t.Fatal("expected a rule derivation")
	}
	if len(d.LHS) != 1 || d.LHS[0].Key() != "on(b, ?z)" {
		t.Errorf("unexpected lhs %v", d.LHS)
	}
	if d.RHS.Key() != "above(a, ?z)" {
		t.Errorf("unexpected rhs %s", d.RHS)
	}

	// Source rule must be untouched
	if lhs[1].Key() != "on(?y, ?z)" {
		t.Error("rule conjunct was mutated")
	}
}

func TestInferNoMatch(t *testing.T) {
	e := New(nil)

	fact := logic.NewStatement("isa", "cube", "pyramid")
	lhs := []logic.Statement{logic.NewStatement("isa", "?x", "block")}

	if _, ok := e.Infer(fact, lhs, logic.NewStatement("movable", "?x")); ok {
		t.Error("expected no match")
	}
	if _, ok := e.Infer(fact, nil, logic.NewStatement("movable", "?x")); ok {
		t.Error("empty lhs must not match")
	}
}
