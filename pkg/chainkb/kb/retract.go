package kb

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/trace"
)

// Retract withdraws a previously asserted fact and removes everything that
// loses all support as a result. It returns the removed items in removal
// order.
//
// Rules are never retractable by callers. A fact that still has a
// justification grounded in other knowledge is refused, whether or not it
// was also asserted. Refusals leave the knowledge base unchanged.
func (kb *KnowledgeBase) Retract(item Item) ([]Item, error) {
	switch it := item.(type) {
	case *Rule:
		if it == nil {
			return nil, fmt.Errorf("retract: nil rule: %w", internalerr.ErrInvalidInput)
		}
		kb.log.Info("retraction refused", zap.String("rule", it.Key()), zap.String("reason", "rules cannot be retracted"))
		kb.emit(trace.OpRefuse, it, "rules cannot be retracted")
		return nil, fmt.Errorf("retract %s: %w", it.Key(), internalerr.ErrRuleRetraction)

	case *Fact:
		if it == nil {
			return nil, fmt.Errorf("retract: nil fact: %w", internalerr.ErrInvalidInput)
		}
		return kb.retractFact(it)

	default:
		kb.log.Warn("retract rejected", zap.String("item", describeQuery(item)))
		return nil, fmt.Errorf("retract: unsupported item %T: %w", item, internalerr.ErrInvalidInput)
	}
}

func (kb *KnowledgeBase) retractFact(query *Fact) ([]Item, error) {
	if !query.statement.Valid() {
		return nil, fmt.Errorf("retract: malformed fact %q: %w", query.Key(), internalerr.ErrInvalidInput)
	}

	id, ok := kb.factKeys[query.Key()]
	if !ok {
		kb.log.Info("retraction of unknown fact", zap.String("fact", query.Key()))
		return nil, fmt.Errorf("retract %s: %w", query.Key(), internalerr.ErrNotFound)
	}
	f := kb.facts[id]

	if kb.independentlySupported(f) {
		reason := "derived fact is supported"
		if f.asserted {
			reason = "fact is asserted and supported"
		}
		kb.log.Info("retraction refused", zap.String("fact", f.Key()), zap.String("reason", reason))
		kb.emit(trace.OpRefuse, f, reason)
		return nil, fmt.Errorf("retract %s: %s: %w", f.Key(), reason, internalerr.ErrStillSupported)
	}

	kb.log.Info("retracting", zap.String("fact", f.Key()))
	kb.invalidate()
	kb.emit(trace.OpRetract, f, "")

	removed := kb.cascade(f.id)
	kb.log.Info("retraction complete",
		zap.String("fact", f.Key()),
		zap.Int("removed", len(removed)))
	return removed, nil
}

// independentlySupported reports whether some justification of f is
// grounded in asserted knowledge without passing back through f itself.
// Support that only exists through a cycle involving f does not count.
func (kb *KnowledgeBase) independentlySupported(f *Fact) bool {
	if len(f.supportedBy) == 0 {
		return false
	}
	scope := kb.downstream([]ID{f.id})
	grounded := kb.groundedIn(scope, f.id)
	for _, j := range f.supportedBy {
		if grounded(j.Fact) && grounded(j.Rule) {
			return true
		}
	}
	return false
}

// cascade removes seed and every item whose support disappears with it.
//
// The worklist removes items whose justification set becomes empty. Merged
// justifications can also form support cycles (p derives q, q re-derives p),
// which an emptiness check never drains. Once the worklist is empty, the
// unasserted items that lost a justification are rechecked for grounded
// support and the ungrounded ones go back on the worklist.
func (kb *KnowledgeBase) cascade(seed ID) []Item {
	var removed []Item
	work := []ID{seed}
	shrunk := make(map[ID]bool)

	for len(work) > 0 {
		for len(work) > 0 {
			id := work[0]
			work = work[1:]

			it := kb.item(id)
			if it == nil {
				continue // already removed through another path
			}
			kb.detach(it)
			removed = append(removed, it)
			delete(shrunk, id)

			for _, childID := range it.base().children() {
				child := kb.item(childID)
				if child == nil {
					continue
				}
				cn := child.base()
				dropped := kb.dropMentions(child, id)
				if dropped == 0 || cn.asserted {
					continue
				}
				if len(cn.supportedBy) == 0 {
					work = append(work, childID)
				} else {
					shrunk[childID] = true
				}
			}
		}

		if len(shrunk) == 0 {
			break
		}
		work = kb.unfounded(shrunk)
		shrunk = make(map[ID]bool)
	}

	return removed
}

// detach removes an item from the tables and from its sources' back-references
func (kb *KnowledgeBase) detach(it Item) {
	n := it.base()
	switch v := it.(type) {
	case *Fact:
		delete(kb.facts, v.id)
		delete(kb.factKeys, v.Key())
		pred := v.statement.Predicate
		if ids := removeID(kb.factsByPred[pred], v.id); len(ids) > 0 {
			kb.factsByPred[pred] = ids
		} else {
			delete(kb.factsByPred, pred)
		}
	case *Rule:
		delete(kb.rules, v.id)
		delete(kb.ruleKeys, v.Key())
		pred := v.trigger()
		if ids := removeID(kb.rulesByPred[pred], v.id); len(ids) > 0 {
			kb.rulesByPred[pred] = ids
		} else {
			delete(kb.rulesByPred, pred)
		}
	}

	for _, j := range n.supportedBy {
		for _, src := range []Item{kb.lookupFact(j.Fact), kb.lookupRule(j.Rule)} {
			if src == nil {
				continue
			}
			sn := src.base()
			sn.supportsFacts = removeID(sn.supportsFacts, n.id)
			sn.supportsRules = removeID(sn.supportsRules, n.id)
		}
	}

	kb.log.Debug("removed", zap.Stringer("kind", it.Kind()), zap.String("item", it.Key()))
	kb.emit(trace.OpRemove, it, "")
}

// dropMentions deletes every justification of child that names removed,
// and unlinks child from the other source of each dropped pair
func (kb *KnowledgeBase) dropMentions(child Item, removed ID) int {
	cn := child.base()
	var kept, dropped []Justification
	for _, j := range cn.supportedBy {
		if j.mentions(removed) {
			dropped = append(dropped, j)
		} else {
			kept = append(kept, j)
		}
	}
	cn.supportedBy = kept
	for _, j := range dropped {
		kb.unlink(j, child)
	}
	return len(dropped)
}

// downstream returns seeds plus every unasserted item reachable from them
// through support edges. Asserted items stop the walk: they are grounded
// regardless of what happens above them.
func (kb *KnowledgeBase) downstream(seeds []ID) map[ID]bool {
	scope := make(map[ID]bool)
	queue := append([]ID(nil), seeds...)
	for _, id := range seeds {
		scope[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		it := kb.item(id)
		if it == nil {
			continue
		}
		for _, child := range it.base().children() {
			c := kb.item(child)
			if c == nil || scope[child] || c.Asserted() {
				continue
			}
			scope[child] = true
			queue = append(queue, child)
		}
	}
	return scope
}

// groundedIn computes, as a least fixpoint, which items in scope have
// support grounded in asserted knowledge. Stored items outside scope count
// as grounded; excluded never does. The returned function answers for any ID.
func (kb *KnowledgeBase) groundedIn(scope map[ID]bool, excluded ID) func(ID) bool {
	grounded := make(map[ID]bool)
	isGrounded := func(id ID) bool {
		if id == excluded {
			return false
		}
		if !scope[id] {
			return kb.item(id) != nil
		}
		return grounded[id]
	}

	for id := range scope {
		if id == excluded {
			continue
		}
		if it := kb.item(id); it != nil && it.Asserted() {
			grounded[id] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for id := range scope {
			if grounded[id] || id == excluded {
				continue
			}
			it := kb.item(id)
			if it == nil {
				continue
			}
			for _, j := range it.base().supportedBy {
				if isGrounded(j.Fact) && isGrounded(j.Rule) {
					grounded[id] = true
					changed = true
					break
				}
			}
		}
	}

	return isGrounded
}

// unfounded returns, in ID order, the items reachable from shrunk that are
// no longer grounded in asserted knowledge
func (kb *KnowledgeBase) unfounded(shrunk map[ID]bool) []ID {
	seeds := make([]ID, 0, len(shrunk))
	for id := range shrunk {
		seeds = append(seeds, id)
	}
	scope := kb.downstream(seeds)
	grounded := kb.groundedIn(scope, 0)

	var out []ID
	for id := range scope {
		if kb.item(id) != nil && !grounded(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
