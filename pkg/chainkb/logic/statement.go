package logic

import (
	"strings"
)

// Term is a constant or a variable. Variables are written with a leading '?'.
type Term string

// IsVar reports whether the term is a variable
func (t Term) IsVar() bool {
	return len(t) > 1 && t[0] == '?'
}

// Statement is a predicate applied to an ordered list of terms
// Example: isa(?x, block)
type Statement struct {
	Predicate string
	Terms     []Term
}

// NewStatement builds a statement from plain strings
func NewStatement(predicate string, terms ...string) Statement {
	s := Statement{Predicate: predicate, Terms: make([]Term, len(terms))}
	for i, t := range terms {
		s.Terms[i] = Term(t)
	}
	return s
}

// Valid reports whether the statement is well formed: a constant predicate
// and no empty terms.
func (s Statement) Valid() bool {
	if s.Predicate == "" || strings.HasPrefix(s.Predicate, "?") {
		return false
	}
	for _, t := range s.Terms {
		if t == "" || t == "?" {
			return false
		}
	}
	return true
}

// Ground reports whether the statement contains no variables
func (s Statement) Ground() bool {
	for _, t := range s.Terms {
		if t.IsVar() {
			return false
		}
	}
	return true
}

// Variables returns the distinct variables in order of first appearance
func (s Statement) Variables() []Term {
	var vars []Term
	seen := make(map[Term]struct{})
	for _, t := range s.Terms {
		if !t.IsVar() {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		vars = append(vars, t)
	}
	return vars
}

// Equal compares statements structurally
func (s Statement) Equal(o Statement) bool {
	if s.Predicate != o.Predicate || len(s.Terms) != len(o.Terms) {
		return false
	}
	for i := range s.Terms {
		if s.Terms[i] != o.Terms[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with s
func (s Statement) Clone() Statement {
	terms := make([]Term, len(s.Terms))
	copy(terms, s.Terms)
	return Statement{Predicate: s.Predicate, Terms: terms}
}

// Key is the canonical text of the statement. Two statements are equal
// iff their keys are equal.
func (s Statement) Key() string {
	var b strings.Builder
	b.WriteString(s.Predicate)
	b.WriteByte('(')
	for i, t := range s.Terms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(t))
	}
	b.WriteByte(')')
	return b.String()
}

func (s Statement) String() string {
	return s.Key()
}

// JoinKeys renders a conjunction the way rules print their left-hand side
func JoinKeys(stmts []Statement) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = s.Key()
	}
	return strings.Join(parts, ", ")
}
