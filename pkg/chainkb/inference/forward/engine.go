package forward

import (
	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/inference"
	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

// Engine is the default one-step forward chainer.
// It unifies a fact with the first conjunct of a rule and instantiates the
// remainder of the rule under the resulting bindings.
type Engine struct {
	log *zap.Logger
}

// New creates a forward chaining engine. A nil logger disables logging.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

var _ inference.Engine = (*Engine)(nil)

// Infer implements inference.Engine
func (e *Engine) Infer(fact logic.Statement, lhs []logic.Statement, rhs logic.Statement) (inference.Derivation, bool) {
	if len(lhs) == 0 {
		return inference.Derivation{}, false
	}

	e.log.Debug("attempting inference",
		zap.Stringer("fact", fact),
		zap.String("lhs", logic.JoinKeys(lhs)),
		zap.Stringer("rhs", rhs))

	bindings, ok := logic.Match(fact, lhs[0])
	if !ok {
		return inference.Derivation{}, false
	}

	d := inference.Derivation{
		RHS: logic.Instantiate(rhs, bindings),
	}
	if rest := lhs[1:]; len(rest) > 0 {
		d.LHS = make([]logic.Statement, len(rest))
		for i, stmt := range rest {
			d.LHS[i] = logic.Instantiate(stmt, bindings)
		}
	}

	e.log.Debug("inferred",
		zap.Bool("fact", d.IsFact()),
		zap.String("bindings", bindings.String()))
	return d, true
}
