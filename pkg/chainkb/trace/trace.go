package trace

import (
	"context"
	"time"
)

// Op names a knowledge base mutation
type Op string

const (
	OpAssert  Op = "assert"  // new item introduced by a caller
	OpDerive  Op = "derive"  // new item produced by inference
	OpMerge   Op = "merge"   // extra justification added to an existing item
	OpPromote Op = "promote" // existing item re-asserted by a caller
	OpRetract Op = "retract" // caller retraction accepted
	OpRemove  Op = "remove"  // item dropped by the retraction cascade
	OpRefuse  Op = "refuse"  // caller retraction rejected
)

// Ops lists every operation in display order
var Ops = []Op{OpAssert, OpDerive, OpMerge, OpPromote, OpRetract, OpRemove, OpRefuse}

// Event is a single recorded knowledge base change
type Event struct {
	ID     string // ULID, assigned by the recorder
	Seq    uint64
	Op     Op
	Kind   string // "fact" or "rule"
	Item   string // canonical item text
	Detail string // justification or reason
	At     time.Time
}

// Sink receives events synchronously from the knowledge base.
// Implementations must not block on I/O.
type Sink interface {
	Record(ev Event)
}

// Journal is a queryable log of events
type Journal interface {
	Close() error

	Append(ctx context.Context, events []Event) error
	Events(ctx context.Context, f Filter) ([]Event, error)
	Stats(ctx context.Context) (Stats, error)
}

// Filter narrows an event listing. Zero values match everything.
type Filter struct {
	Op    Op
	Item  string
	Limit int
}

// Match reports whether ev passes the filter (Limit is ignored)
func (f Filter) Match(ev Event) bool {
	if f.Op != "" && ev.Op != f.Op {
		return false
	}
	if f.Item != "" && ev.Item != f.Item {
		return false
	}
	return true
}

// Stats summarizes a journal
type Stats struct {
	Total    int64
	ByOp     map[Op]int64
	TopItems []ItemCount
}

// ItemCount is the number of events touching one item
type ItemCount struct {
	Item  string
	Count int64
}
