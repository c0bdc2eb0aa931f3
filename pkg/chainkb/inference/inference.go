package inference

import (
	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

// Engine performs one step of forward chaining.
// This interface allows swapping the matching strategy without touching the
// knowledge base bookkeeping.
type Engine interface {
	// Infer combines a fact with the leading conjunct of a rule.
	// ok is false when the fact does not match lhs[0].
	// Example: Infer(isa(cube, block), [isa(?x, block)], movable(?x)) → movable(cube)
	Infer(fact logic.Statement, lhs []logic.Statement, rhs logic.Statement) (d Derivation, ok bool)
}

// Derivation is the result of a successful inference step.
// An empty LHS means the rule was fully satisfied and RHS is a new fact;
// otherwise LHS/RHS describe a new, more specific rule.
type Derivation struct {
	LHS []logic.Statement
	RHS logic.Statement
}

// IsFact reports whether the derivation concludes a fact
func (d Derivation) IsFact() bool {
	return len(d.LHS) == 0
}
