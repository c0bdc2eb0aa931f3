package chainkb

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb/inference"
	"github.com/cognicore/chainkb/pkg/chainkb/kb"
	"github.com/cognicore/chainkb/pkg/chainkb/parse"
	"github.com/cognicore/chainkb/pkg/chainkb/trace"
	"github.com/cognicore/chainkb/pkg/chainkb/trace/memtrace"
)

// Reasoner is the main facade: a knowledge base plus an optional journal
// of every mutation it performs
type Reasoner struct {
	kb      *kb.KnowledgeBase
	log     *zap.Logger
	rec     *memtrace.Recorder
	journal trace.Journal
	// events drained from rec that the journal has not accepted yet
	unflushed []trace.Event
}

// Options configures a Reasoner
type Options struct {
	Logger       *zap.Logger
	Engine       inference.Engine
	Journal      trace.Journal // optional; events are written on Flush
	AskCacheSize int
}

// New creates a Reasoner with the given dependencies
func New(opts Options) *Reasoner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Reasoner{log: log, journal: opts.Journal}
	kbOpts := kb.Options{
		Logger:       log,
		Engine:       opts.Engine,
		AskCacheSize: opts.AskCacheSize,
	}
	if r.journal != nil {
		r.rec = memtrace.New(false)
		kbOpts.Sink = r.rec
	}
	r.kb = kb.New(kbOpts)
	return r
}

// KB exposes the underlying knowledge base
func (r *Reasoner) KB() *kb.KnowledgeBase {
	return r.kb
}

// Tell asserts a fact or rule
func (r *Reasoner) Tell(item kb.Item) error {
	return r.kb.Assert(item)
}

// TellString parses and asserts a single line, e.g. "fact: isa(cube, block)"
func (r *Reasoner) TellString(line string) error {
	item, err := ParseItem(line)
	if err != nil {
		return err
	}
	return r.kb.Assert(item)
}

// TellItems asserts parsed items in order and stops at the first failure
func (r *Reasoner) TellItems(items []parse.Item) error {
	for _, p := range items {
		if err := r.kb.Assert(Item(p)); err != nil {
			if p.Line > 0 {
				return fmt.Errorf("line %d: %w", p.Line, err)
			}
			return err
		}
	}
	return nil
}

// Load parses a knowledge file and asserts its contents.
// Returns the number of items asserted.
func (r *Reasoner) Load(ctx context.Context, src io.Reader) (int, error) {
	items, err := parse.Load(src)
	if err != nil {
		return 0, err
	}
	for i, p := range items {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := r.kb.Assert(Item(p)); err != nil {
			return i, fmt.Errorf("line %d: %w", p.Line, err)
		}
	}
	return len(items), nil
}

// Retract withdraws an asserted fact and returns what was removed
func (r *Reasoner) Retract(item kb.Item) ([]kb.Item, error) {
	return r.kb.Retract(item)
}

// Ask matches a query pattern against stored facts
func (r *Reasoner) Ask(query kb.Item) kb.BindingSet {
	return r.kb.Ask(query)
}

// Why explains how a stored item came to be
func (r *Reasoner) Why(item kb.Item) (*kb.Proof, error) {
	return r.kb.Why(item)
}

// Check verifies the knowledge base invariants
func (r *Reasoner) Check() error {
	return r.kb.Verify()
}

// Flush writes recorded events to the journal. Events the journal rejects
// are kept and retried on the next Flush.
func (r *Reasoner) Flush(ctx context.Context) error {
	if r.journal == nil {
		return nil
	}

	r.unflushed = append(r.unflushed, r.rec.Drain()...)
	if len(r.unflushed) == 0 {
		return nil
	}
	if err := r.journal.Append(ctx, r.unflushed); err != nil {
		r.log.Warn("journal flush failed", zap.Int("events", len(r.unflushed)), zap.Error(err))
		return fmt.Errorf("flush journal: %w", err)
	}

	r.log.Debug("journal flushed", zap.Int("events", len(r.unflushed)))
	r.unflushed = nil
	return nil
}

// Close flushes pending events and closes the journal
func (r *Reasoner) Close() error {
	if r.journal == nil {
		return nil
	}
	flushErr := r.Flush(context.Background())
	if err := r.journal.Close(); err != nil {
		return err
	}
	return flushErr
}

// Item converts a parsed item into a knowledge base item
func Item(p parse.Item) kb.Item {
	if p.Kind == parse.KindRule {
		return kb.NewRule(p.LHS, p.RHS)
	}
	return kb.NewFact(p.Fact)
}

// ParseItem parses "fact: ..." or "rule: ... -> ..." into a knowledge base item
func ParseItem(line string) (kb.Item, error) {
	p, err := parse.ParseItem(line)
	if err != nil {
		return nil, err
	}
	return Item(p), nil
}

// ParseFact parses a single statement such as "isa(?x, block)"
func ParseFact(s string) (*kb.Fact, error) {
	stmt, err := parse.ParseStatement(s)
	if err != nil {
		return nil, err
	}
	return kb.NewFact(stmt), nil
}
