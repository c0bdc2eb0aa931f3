package logic

import (
	"strings"
)

// Binding associates a variable with the term it was unified with.
type Binding struct {
	Var   Term
	Value Term
}

// Bindings is an ordered association list of variable bindings
type Bindings []Binding

// Lookup returns the value bound to v
func (b Bindings) Lookup(v Term) (Term, bool) {
	for _, bind := range b {
		if bind.Var == v {
			return bind.Value, true
		}
	}
	return "", false
}

func (b Bindings) String() string {
	parts := make([]string, len(b))
	for i, bind := range b {
		parts[i] = string(bind.Var) + " : " + string(bind.Value)
	}
	return strings.Join(parts, ", ")
}

// Match unifies two statements term by term. It fails when the predicates or
// arities differ, or when a variable would need two different values. A
// variable in a is considered before a variable in b, so matching a fact
// against a rule pattern binds the pattern's variables.
func Match(a, b Statement) (Bindings, bool) {
	if a.Predicate != b.Predicate || len(a.Terms) != len(b.Terms) {
		return nil, false
	}

	bindings := Bindings{}
	for i := range a.Terms {
		t1, t2 := a.Terms[i], b.Terms[i]
		var ok bool
		switch {
		case t1.IsVar():
			bindings, ok = bind(bindings, t1, t2)
		case t2.IsVar():
			bindings, ok = bind(bindings, t2, t1)
		default:
			ok = t1 == t2
		}
		if !ok {
			return nil, false
		}
	}
	return bindings, true
}

// bind records v=val unless v already holds a different value
func bind(bindings Bindings, v, val Term) (Bindings, bool) {
	if existing, found := bindings.Lookup(v); found {
		return bindings, existing == val
	}
	return append(bindings, Binding{Var: v, Value: val}), true
}

// Instantiate substitutes bound variables in a template. Unbound variables
// are left in place.
func Instantiate(s Statement, b Bindings) Statement {
	out := Statement{Predicate: s.Predicate, Terms: make([]Term, len(s.Terms))}
	for i, t := range s.Terms {
		if t.IsVar() {
			if val, ok := b.Lookup(t); ok {
				out.Terms[i] = val
				continue
			}
		}
		out.Terms[i] = t
	}
	return out
}
