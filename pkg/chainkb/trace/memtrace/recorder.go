package memtrace

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/chainkb/pkg/chainkb/trace"
)

// Recorder is an in-memory implementation of trace.Sink and trace.Journal.
// The knowledge base records into it; Drain hands the buffered events to a
// durable journal.
type Recorder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	seq     uint64
	pending []trace.Event
	all     []trace.Event
	keep    bool
}

// New creates a recorder. With keep set, drained events stay queryable
// through the Journal methods.
func New(keep bool) *Recorder {
	return &Recorder{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
		keep:    keep,
	}
}

// Record implements trace.Sink.
func (r *Recorder) Record(ev trace.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ev.Seq = r.seq
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	if ev.ID == "" {
		ev.ID = ulid.MustNew(ulid.Timestamp(ev.At), r.entropy).String()
	}
	r.pending = append(r.pending, ev)
	if r.keep {
		r.all = append(r.all, ev)
	}
}

// Drain returns buffered events and clears the buffer.
func (r *Recorder) Drain() []trace.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.pending
	r.pending = nil
	return out
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close implements trace.Journal.
func (r *Recorder) Close() error { return nil }

// Append implements trace.Journal.
func (r *Recorder) Append(ctx context.Context, events []trace.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.all = append(r.all, events...)
	return nil
}

// Events implements trace.Journal.
func (r *Recorder) Events(ctx context.Context, f trace.Filter) ([]trace.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []trace.Event
	for _, ev := range r.all {
		if !f.Match(ev) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Stats implements trace.Journal.
func (r *Recorder) Stats(ctx context.Context) (trace.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := trace.Stats{
		Total: int64(len(r.all)),
		ByOp:  make(map[trace.Op]int64),
	}
	counts := make(map[string]int64)
	for _, ev := range r.all {
		stats.ByOp[ev.Op]++
		counts[ev.Item]++
	}

	for item, n := range counts {
		stats.TopItems = append(stats.TopItems, trace.ItemCount{Item: item, Count: n})
	}
	sort.Slice(stats.TopItems, func(i, j int) bool {
		if stats.TopItems[i].Count == stats.TopItems[j].Count {
			return stats.TopItems[i].Item < stats.TopItems[j].Item
		}
		return stats.TopItems[i].Count > stats.TopItems[j].Count
	})
	if len(stats.TopItems) > topItems {
		stats.TopItems = stats.TopItems[:topItems]
	}
	return stats, nil
}

const topItems = 10

var (
	_ trace.Sink    = (*Recorder)(nil)
	_ trace.Journal = (*Recorder)(nil)
)
