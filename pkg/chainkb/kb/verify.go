package kb

import (
	"errors"
	"fmt"
)

// Verify checks the structural invariants of the store and returns every
// violation found, joined. It returns nil for a consistent knowledge base.
//
//   - uniqueness: one stored item per structural key
//   - symmetry: every justification is mirrored in both sources'
//     back-references, and every back-reference is backed by a justification
//   - retention: every item is asserted or has at least one justification
//   - no dangling roots: justifications name stored items only
//   - grounding: every item is supported by asserted knowledge, not just by
//     a cycle of derivations
func (kb *KnowledgeBase) Verify() error {
	var errs []error

	if len(kb.factKeys) != len(kb.facts) {
		errs = append(errs, fmt.Errorf("fact index has %d keys for %d facts", len(kb.factKeys), len(kb.facts)))
	}
	if len(kb.ruleKeys) != len(kb.rules) {
		errs = append(errs, fmt.Errorf("rule index has %d keys for %d rules", len(kb.ruleKeys), len(kb.rules)))
	}
	for id, f := range kb.facts {
		if kb.factKeys[f.Key()] != id {
			errs = append(errs, fmt.Errorf("fact %s: key indexed to another id", f.Key()))
		}
		errs = append(errs, kb.verifyItem(f)...)
	}
	for id, r := range kb.rules {
		if kb.ruleKeys[r.Key()] != id {
			errs = append(errs, fmt.Errorf("rule %s: key indexed to another id", r.Key()))
		}
		errs = append(errs, kb.verifyItem(r)...)
	}

	all := make(map[ID]bool, len(kb.facts)+len(kb.rules))
	for id := range kb.facts {
		all[id] = true
	}
	for id := range kb.rules {
		all[id] = true
	}
	grounded := kb.groundedIn(all, 0)
	for id := range all {
		if !grounded(id) {
			errs = append(errs, fmt.Errorf("%s %s: support is not grounded", kb.item(id).Kind(), kb.item(id).Key()))
		}
	}

	return errors.Join(errs...)
}

func (kb *KnowledgeBase) verifyItem(it Item) []error {
	var errs []error
	n := it.base()
	name := it.Kind().String() + " " + it.Key()

	if !n.asserted && len(n.supportedBy) == 0 {
		errs = append(errs, fmt.Errorf("%s: neither asserted nor supported", name))
	}

	for _, j := range n.supportedBy {
		f := kb.lookupFact(j.Fact)
		r := kb.lookupRule(j.Rule)
		if f == nil || r == nil {
			errs = append(errs, fmt.Errorf("%s: justification %v names a missing item", name, j))
			continue
		}
		for _, src := range []Item{f, r} {
			if !containsID(backRefs(src, it.Kind()), n.id) {
				errs = append(errs, fmt.Errorf("%s: not listed as supported by %s", name, src.Key()))
			}
		}
	}

	for _, childID := range n.supportsFacts {
		child, ok := kb.facts[childID]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: supports missing fact %d", name, childID))
			continue
		}
		if !stillNames(child.supportedBy, n.id) {
			errs = append(errs, fmt.Errorf("%s: stale back-reference to fact %s", name, child.Key()))
		}
	}
	for _, childID := range n.supportsRules {
		child, ok := kb.rules[childID]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: supports missing rule %d", name, childID))
			continue
		}
		if !stillNames(child.supportedBy, n.id) {
			errs = append(errs, fmt.Errorf("%s: stale back-reference to rule %s", name, child.Key()))
		}
	}

	return errs
}

func backRefs(src Item, kind Kind) []ID {
	if kind == KindFact {
		return src.base().supportsFacts
	}
	return src.base().supportsRules
}

func containsID(ids []ID, id ID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
