package kb

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/inference"
	"github.com/cognicore/chainkb/pkg/chainkb/inference/forward"
	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/trace"
)

// KnowledgeBase stores facts and rules, derives their consequences on
// insertion and cascades retractions through the support graph.
//
// A KnowledgeBase is not safe for concurrent use. Callers that share one
// must serialize every call, reads included, since Ask fills a cache.
type KnowledgeBase struct {
	log    *zap.Logger
	engine inference.Engine
	sink   trace.Sink
	cache  *lru.Cache[string, BindingSet]

	nextID ID
	facts  map[ID]*Fact
	rules  map[ID]*Rule

	factKeys map[string]ID
	ruleKeys map[string]ID

	// insertion-ordered indexes: fact predicate → facts,
	// first conjunct predicate → rules
	factsByPred map[string][]ID
	rulesByPred map[string][]ID
}

// Options configures a KnowledgeBase
type Options struct {
	// Logger receives diagnostics. Its level controls verbosity:
	// Info traces assert/retract calls, Debug traces every derivation.
	Logger *zap.Logger
	// Engine performs one-step inference. Defaults to forward.New.
	Engine inference.Engine
	// Sink records every mutation. Optional.
	Sink trace.Sink
	// AskCacheSize enables an LRU cache of Ask results when > 0.
	AskCacheSize int
}

// New creates an empty knowledge base
func New(opts Options) *KnowledgeBase {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	engine := opts.Engine
	if engine == nil {
		engine = forward.New(log)
	}

	kb := &KnowledgeBase{
		log:         log,
		engine:      engine,
		sink:        opts.Sink,
		facts:       make(map[ID]*Fact),
		rules:       make(map[ID]*Rule),
		factKeys:    make(map[string]ID),
		ruleKeys:    make(map[string]ID),
		factsByPred: make(map[string][]ID),
		rulesByPred: make(map[string][]ID),
	}

	if opts.AskCacheSize > 0 {
		cache, err := lru.New[string, BindingSet](opts.AskCacheSize)
		if err != nil {
			log.Warn("ask cache disabled", zap.Error(err))
		} else {
			kb.cache = cache
		}
	}

	return kb
}

// Assert introduces a fact or rule as externally known truth. Asserting
// content that is already stored marks it asserted instead of duplicating it.
func (kb *KnowledgeBase) Assert(item Item) error {
	fresh, err := detachedCopy(item)
	if err != nil {
		kb.log.Warn("assert rejected", zap.Error(err))
		return fmt.Errorf("assert: %w", err)
	}

	kb.log.Info("asserting",
		zap.Stringer("kind", fresh.Kind()),
		zap.String("item", fresh.Key()))
	kb.add(fresh)
	return nil
}

// detachedCopy validates a caller-supplied item and clones it so the store
// never shares memory with the caller.
func detachedCopy(item Item) (Item, error) {
	switch it := item.(type) {
	case *Fact:
		if it == nil {
			return nil, fmt.Errorf("nil fact: %w", internalerr.ErrInvalidInput)
		}
		if !it.statement.Valid() {
			return nil, fmt.Errorf("malformed fact %q: %w", it.Key(), internalerr.ErrInvalidInput)
		}
		return NewFact(it.statement), nil

	case *Rule:
		if it == nil {
			return nil, fmt.Errorf("nil rule: %w", internalerr.ErrInvalidInput)
		}
		if len(it.lhs) == 0 {
			return nil, fmt.Errorf("rule %q has no conditions: %w", it.Key(), internalerr.ErrInvalidInput)
		}
		for _, s := range it.lhs {
			if !s.Valid() {
				return nil, fmt.Errorf("malformed condition %q: %w", s.Key(), internalerr.ErrInvalidInput)
			}
		}
		if !it.rhs.Valid() {
			return nil, fmt.Errorf("malformed conclusion %q: %w", it.rhs.Key(), internalerr.ErrInvalidInput)
		}
		return NewRule(it.lhs, it.rhs), nil

	default:
		return nil, fmt.Errorf("unsupported item %T: %w", item, internalerr.ErrInvalidInput)
	}
}

// add inserts an item and everything it lets the engine derive. Derivations
// are processed from a FIFO worklist rather than by recursion, so long
// inference chains do not grow the stack.
func (kb *KnowledgeBase) add(first Item) {
	kb.invalidate()

	queue := []Item{first}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		queue = append(queue, kb.addOne(next)...)
	}
}

// addOne stores or merges a single item and returns its immediate derivations
func (kb *KnowledgeBase) addOne(item Item) []Item {
	kb.log.Debug("adding",
		zap.Stringer("kind", item.Kind()),
		zap.String("item", item.Key()),
		zap.Int("justifications", len(item.base().supportedBy)))

	switch it := item.(type) {
	case *Fact:
		if id, ok := kb.factKeys[it.Key()]; ok {
			kb.merge(kb.facts[id], it)
			return nil
		}
		kb.insertFact(it)
		return kb.inferFromFact(it)

	case *Rule:
		if id, ok := kb.ruleKeys[it.Key()]; ok {
			kb.merge(kb.rules[id], it)
			return nil
		}
		kb.insertRule(it)
		return kb.inferFromRule(it)
	}
	return nil
}

// merge folds an incoming duplicate into the stored item. Justifications are
// appended so every independent derivation path is kept; a bare
// re-assertion promotes the stored item to asserted.
func (kb *KnowledgeBase) merge(existing, incoming Item) {
	dst, src := existing.base(), incoming.base()

	if len(src.supportedBy) == 0 {
		if !dst.asserted {
			dst.asserted = true
			kb.emit(trace.OpPromote, existing, "")
		}
		return
	}

	for _, j := range src.supportedBy {
		// an item cannot justify itself
		if j.mentions(dst.id) || dst.hasJustification(j) {
			continue
		}
		dst.supportedBy = append(dst.supportedBy, j)
		kb.link(j, existing)
		kb.emit(trace.OpMerge, existing, kb.describe(j))
	}
}

func (kb *KnowledgeBase) insertFact(f *Fact) {
	kb.nextID++
	f.id = kb.nextID
	kb.facts[f.id] = f
	kb.factKeys[f.Key()] = f.id
	kb.factsByPred[f.statement.Predicate] = append(kb.factsByPred[f.statement.Predicate], f.id)
	kb.attach(f)
}

func (kb *KnowledgeBase) insertRule(r *Rule) {
	kb.nextID++
	r.id = kb.nextID
	kb.rules[r.id] = r
	kb.ruleKeys[r.Key()] = r.id
	kb.rulesByPred[r.trigger()] = append(kb.rulesByPred[r.trigger()], r.id)
	kb.attach(r)
}

// attach mirrors a newly stored item's justifications onto its sources
func (kb *KnowledgeBase) attach(item Item) {
	n := item.base()
	if len(n.supportedBy) == 0 {
		kb.emit(trace.OpAssert, item, "")
		return
	}
	for _, j := range n.supportedBy {
		kb.link(j, item)
	}
	kb.emit(trace.OpDerive, item, kb.describe(n.supportedBy[0]))
}

// link records child on both ends of justification j
func (kb *KnowledgeBase) link(j Justification, child Item) {
	for _, src := range []Item{kb.lookupFact(j.Fact), kb.lookupRule(j.Rule)} {
		if src == nil {
			continue
		}
		n := src.base()
		switch child.Kind() {
		case KindFact:
			n.supportsFacts = addID(n.supportsFacts, child.ID())
		case KindRule:
			n.supportsRules = addID(n.supportsRules, child.ID())
		}
	}
}

// unlink drops child from the sources of j unless another of child's
// justifications still names that source
func (kb *KnowledgeBase) unlink(j Justification, child Item) {
	remaining := child.base().supportedBy
	for _, src := range []Item{kb.lookupFact(j.Fact), kb.lookupRule(j.Rule)} {
		if src == nil || stillNames(remaining, src.ID()) {
			continue
		}
		n := src.base()
		switch child.Kind() {
		case KindFact:
			n.supportsFacts = removeID(n.supportsFacts, child.ID())
		case KindRule:
			n.supportsRules = removeID(n.supportsRules, child.ID())
		}
	}
}

func stillNames(justs []Justification, id ID) bool {
	for _, j := range justs {
		if j.mentions(id) {
			return true
		}
	}
	return false
}

// inferFromFact runs the engine for a new fact against every stored rule
// whose first conjunct could match it
func (kb *KnowledgeBase) inferFromFact(f *Fact) []Item {
	var out []Item
	for _, rid := range kb.rulesByPred[f.statement.Predicate] {
		r := kb.rules[rid]
		if d, ok := kb.engine.Infer(f.statement, r.lhs, r.rhs); ok {
			out = append(out, derived(d, f.id, r.id))
		}
	}
	return out
}

// inferFromRule runs the engine for a new rule against every stored fact
// that could match its first conjunct
func (kb *KnowledgeBase) inferFromRule(r *Rule) []Item {
	var out []Item
	for _, fid := range kb.factsByPred[r.trigger()] {
		f := kb.facts[fid]
		if d, ok := kb.engine.Infer(f.statement, r.lhs, r.rhs); ok {
			out = append(out, derived(d, f.id, r.id))
		}
	}
	return out
}

// derived wraps a derivation as an unattached item justified by (fact, rule)
func derived(d inference.Derivation, fact, rule ID) Item {
	n := node{supportedBy: []Justification{{Fact: fact, Rule: rule}}}
	if d.IsFact() {
		return &Fact{node: n, statement: d.RHS}
	}
	return &Rule{node: n, lhs: d.LHS, rhs: d.RHS}
}

// Lookup returns the stored item structurally equal to item
func (kb *KnowledgeBase) Lookup(item Item) (Item, bool) {
	switch it := item.(type) {
	case *Fact:
		if it == nil {
			return nil, false
		}
		if id, ok := kb.factKeys[it.Key()]; ok {
			return kb.facts[id], true
		}
	case *Rule:
		if it == nil {
			return nil, false
		}
		if id, ok := kb.ruleKeys[it.Key()]; ok {
			return kb.rules[id], true
		}
	}
	return nil, false
}

// Get returns the stored item with the given ID
func (kb *KnowledgeBase) Get(id ID) (Item, bool) {
	it := kb.item(id)
	return it, it != nil
}

func (kb *KnowledgeBase) item(id ID) Item {
	if f, ok := kb.facts[id]; ok {
		return f
	}
	if r, ok := kb.rules[id]; ok {
		return r
	}
	return nil
}

// lookupFact and lookupRule return a nil interface for missing IDs
func (kb *KnowledgeBase) lookupFact(id ID) Item {
	if f, ok := kb.facts[id]; ok {
		return f
	}
	return nil
}

func (kb *KnowledgeBase) lookupRule(id ID) Item {
	if r, ok := kb.rules[id]; ok {
		return r
	}
	return nil
}

// Facts returns stored facts in insertion order
func (kb *KnowledgeBase) Facts() []*Fact {
	out := make([]*Fact, 0, len(kb.facts))
	for _, f := range kb.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Rules returns stored rules in insertion order
func (kb *KnowledgeBase) Rules() []*Rule {
	out := make([]*Rule, 0, len(kb.rules))
	for _, r := range kb.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of stored facts and rules
func (kb *KnowledgeBase) Len() (facts, rules int) {
	return len(kb.facts), len(kb.rules)
}

func (kb *KnowledgeBase) String() string {
	var b strings.Builder
	b.WriteString("Knowledge Base:\n")
	for _, f := range kb.Facts() {
		b.WriteString("fact: ")
		b.WriteString(f.Key())
		b.WriteString(marker(f))
		b.WriteByte('\n')
	}
	for _, r := range kb.Rules() {
		b.WriteString("rule: ")
		b.WriteString(r.Key())
		b.WriteString(marker(r))
		b.WriteByte('\n')
	}
	return b.String()
}

func marker(it Item) string {
	n := it.base()
	switch {
	case n.asserted && len(n.supportedBy) > 0:
		return " [asserted, supported]"
	case n.asserted:
		return " [asserted]"
	default:
		return ""
	}
}

// describe renders a justification for logs and trace events
func (kb *KnowledgeBase) describe(j Justification) string {
	f, r := "?", "?"
	if it := kb.lookupFact(j.Fact); it != nil {
		f = it.Key()
	}
	if it := kb.lookupRule(j.Rule); it != nil {
		r = it.Key()
	}
	return f + " + " + r
}

func (kb *KnowledgeBase) emit(op trace.Op, it Item, detail string) {
	if kb.sink == nil {
		return
	}
	kb.sink.Record(trace.Event{
		Op:     op,
		Kind:   it.Kind().String(),
		Item:   it.Key(),
		Detail: detail,
	})
}

// invalidate drops cached Ask results after a mutation
func (kb *KnowledgeBase) invalidate() {
	if kb.cache != nil {
		kb.cache.Purge()
	}
}
