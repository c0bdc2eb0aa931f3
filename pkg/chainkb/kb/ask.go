package kb

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

// Answer is one way a query matched: the bindings and the facts behind them
type Answer struct {
	Bindings logic.Bindings
	Facts    []*Fact
}

// BindingSet is the ordered result of Ask
type BindingSet []Answer

func (bs BindingSet) String() string {
	var b strings.Builder
	for i, a := range bs {
		fmt.Fprintf(&b, "%d: %s\n", i, a.Bindings)
	}
	return b.String()
}

// Ask matches a query fact against every stored fact. A query that is not a
// well-formed fact yields an empty result and a warning; no error is raised.
func (kb *KnowledgeBase) Ask(query Item) BindingSet {
	f, ok := query.(*Fact)
	if !ok || f == nil || !f.statement.Valid() {
		kb.log.Warn("invalid ask", zap.String("query", describeQuery(query)))
		return nil
	}

	key := f.Key()
	kb.log.Info("asking", zap.String("query", key))

	if kb.cache != nil {
		if cached, hit := kb.cache.Get(key); hit {
			return append(BindingSet(nil), cached...)
		}
	}

	var out BindingSet
	for _, id := range kb.factsByPred[f.statement.Predicate] {
		stored := kb.facts[id]
		if bindings, ok := logic.Match(f.statement, stored.statement); ok {
			out = append(out, Answer{Bindings: bindings, Facts: []*Fact{stored}})
		}
	}

	if kb.cache != nil {
		kb.cache.Add(key, out)
	}
	return append(BindingSet(nil), out...)
}

func describeQuery(query Item) string {
	switch q := query.(type) {
	case nil:
		return "<nil>"
	case *Fact:
		if q == nil {
			return "<nil fact>"
		}
		return q.Key()
	case *Rule:
		if q == nil {
			return "<nil rule>"
		}
		return "rule: " + q.Key()
	default:
		return fmt.Sprintf("%T", query)
	}
}
