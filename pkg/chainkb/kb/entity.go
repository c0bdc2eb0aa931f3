package kb

import (
	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

// ID identifies a stored fact or rule. IDs are unique across both kinds and
// never reused. The zero ID marks an item that is not in a knowledge base.
type ID uint64

// Kind distinguishes facts from rules
type Kind int

const (
	KindFact Kind = iota + 1
	KindRule
)

func (k Kind) String() string {
	switch k {
	case KindFact:
		return "fact"
	case KindRule:
		return "rule"
	default:
		return "unknown"
	}
}

// Justification is the (fact, rule) pair that derived an item
type Justification struct {
	Fact ID
	Rule ID
}

func (j Justification) mentions(id ID) bool {
	return j.Fact == id || j.Rule == id
}

// Item is the capability shared by facts and rules.
// Only *Fact and *Rule implement it.
type Item interface {
	ID() ID
	Kind() Kind
	Key() string
	Asserted() bool
	SupportedBy() []Justification
	SupportsFacts() []ID
	SupportsRules() []ID
	String() string

	base() *node
}

// node holds the truth-maintenance state common to facts and rules
type node struct {
	id            ID
	asserted      bool
	supportedBy   []Justification
	supportsFacts []ID
	supportsRules []ID
}

func (n *node) base() *node { return n }

// ID returns the store identifier, or 0 for an unattached item
func (n *node) ID() ID { return n.id }

// Asserted reports whether a caller introduced the item explicitly
func (n *node) Asserted() bool { return n.asserted }

// SupportedBy returns a copy of the item's justifications
func (n *node) SupportedBy() []Justification {
	return append([]Justification(nil), n.supportedBy...)
}

// SupportsFacts returns the facts this item helped derive
func (n *node) SupportsFacts() []ID {
	return append([]ID(nil), n.supportsFacts...)
}

// SupportsRules returns the rules this item helped derive
func (n *node) SupportsRules() []ID {
	return append([]ID(nil), n.supportsRules...)
}

func (n *node) hasJustification(j Justification) bool {
	for _, existing := range n.supportedBy {
		if existing == j {
			return true
		}
	}
	return false
}

// children lists every item that names n in one of its justifications
func (n *node) children() []ID {
	out := make([]ID, 0, len(n.supportsFacts)+len(n.supportsRules))
	out = append(out, n.supportsFacts...)
	return append(out, n.supportsRules...)
}

// Fact is a statement believed true
type Fact struct {
	node
	statement logic.Statement
}

// NewFact creates an unattached fact for Assert, Ask or Retract
func NewFact(s logic.Statement) *Fact {
	return &Fact{node: node{asserted: true}, statement: s.Clone()}
}

// Statement returns the fact's content
func (f *Fact) Statement() logic.Statement { return f.statement.Clone() }

func (f *Fact) Kind() Kind { return KindFact }

// Key is the structural identity of the fact
func (f *Fact) Key() string { return f.statement.Key() }

func (f *Fact) String() string { return f.statement.Key() }

// Rule is an implication from a conjunction of patterns to a conclusion
type Rule struct {
	node
	lhs []logic.Statement
	rhs logic.Statement
}

// NewRule creates an unattached rule for Assert
func NewRule(lhs []logic.Statement, rhs logic.Statement) *Rule {
	r := &Rule{node: node{asserted: true}, rhs: rhs.Clone()}
	r.lhs = make([]logic.Statement, len(lhs))
	for i, s := range lhs {
		r.lhs[i] = s.Clone()
	}
	return r
}

// LHS returns a copy of the rule's conjuncts
func (r *Rule) LHS() []logic.Statement {
	out := make([]logic.Statement, len(r.lhs))
	for i, s := range r.lhs {
		out[i] = s.Clone()
	}
	return out
}

// RHS returns the rule's conclusion
func (r *Rule) RHS() logic.Statement { return r.rhs.Clone() }

func (r *Rule) Kind() Kind { return KindRule }

// Key is the structural identity of the rule
func (r *Rule) Key() string {
	return logic.JoinKeys(r.lhs) + " -> " + r.rhs.Key()
}

func (r *Rule) String() string { return r.Key() }

// trigger is the predicate a fact must carry to match the first conjunct
func (r *Rule) trigger() string {
	if len(r.lhs) == 0 {
		return ""
	}
	return r.lhs[0].Predicate
}

// addID appends id unless already present
func addID(ids []ID, id ID) []ID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// removeID deletes id, keeping order
func removeID(ids []ID, id ID) []ID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
