package kb

import (
	"fmt"
	"strings"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
)

// maxProofDepth bounds Why on very long derivation chains
const maxProofDepth = 64

// Proof explains why an item is in the knowledge base
type Proof struct {
	Item     Item
	Asserted bool
	Because  []ProofStep
	// Truncated is set when the depth limit or a support cycle cut the tree
	Truncated bool
}

// ProofStep is one justification: the fact and rule that derived the item
type ProofStep struct {
	Fact *Proof
	Rule *Proof
}

// Why builds the justification tree of a stored item
func (kb *KnowledgeBase) Why(item Item) (*Proof, error) {
	stored, ok := kb.Lookup(item)
	if !ok {
		return nil, fmt.Errorf("why %s: %w", describeQuery(item), internalerr.ErrNotFound)
	}
	return kb.prove(stored, make(map[ID]bool), 0), nil
}

func (kb *KnowledgeBase) prove(it Item, visiting map[ID]bool, depth int) *Proof {
	n := it.base()
	p := &Proof{Item: it, Asserted: n.asserted}
	if depth >= maxProofDepth || visiting[n.id] {
		p.Truncated = len(n.supportedBy) > 0
		return p
	}

	visiting[n.id] = true
	defer delete(visiting, n.id)

	for _, j := range n.supportedBy {
		step := ProofStep{}
		if f := kb.lookupFact(j.Fact); f != nil {
			step.Fact = kb.prove(f, visiting, depth+1)
		}
		if r := kb.lookupRule(j.Rule); r != nil {
			step.Rule = kb.prove(r, visiting, depth+1)
		}
		p.Because = append(p.Because, step)
	}
	return p
}

// String renders the proof as an indented tree
func (p *Proof) String() string {
	var b strings.Builder
	p.write(&b, 0)
	return b.String()
}

func (p *Proof) write(b *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	b.WriteString(pad)
	b.WriteString(p.Item.Kind().String())
	b.WriteString(": ")
	b.WriteString(p.Item.Key())
	if p.Asserted {
		b.WriteString(" ASSERTED")
	}
	if p.Truncated {
		b.WriteString(" ...")
	}
	b.WriteByte('\n')

	for _, step := range p.Because {
		b.WriteString(pad)
		b.WriteString("  SUPPORTED BY\n")
		if step.Fact != nil {
			step.Fact.write(b, indent+2)
		}
		if step.Rule != nil {
			step.Rule.write(b, indent+2)
		}
	}
}
