package kinetic

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxOutstanding is the recommended registry capacity from
// spec.md §3: the maximum number of operations a session may have
// in-flight at once.
const DefaultMaxOutstanding = 64

// registry maps outstanding sequence numbers to their pending
// Operation, bounded by a counting semaphore so submission blocks
// (back-pressure) once MaxOutstanding operations are in flight. The
// submission path (Session.submit) acquires a permit first, then assigns
// the sequence, writes the frame and inserts here while holding the
// session's send lock, so wire order matches sequence order.
type registry struct {
	sem *semaphore.Weighted

	mu  sync.Mutex
	ops map[int64]*Operation
}

func newRegistry(maxOutstanding int) *registry {
	if maxOutstanding <= 0 {
		maxOutstanding = DefaultMaxOutstanding
	}
	return &registry{
		sem: semaphore.NewWeighted(int64(maxOutstanding)),
		ops: make(map[int64]*Operation),
	}
}

// acquire blocks for a free permit up to ctx's deadline.
func (r *registry) acquire(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

// insert registers op under sequence. Callers must already hold a
// permit from acquire.
func (r *registry) insert(sequence int64, op *Operation) {
	r.mu.Lock()
	r.ops[sequence] = op
	r.mu.Unlock()
}

// lookupAndRemove returns the pending operation for ackSequence, if
// any, removing it from the map and releasing its permit. Responses
// whose ackSequence is unknown (already resolved by timeout, or a
// protocol error) return ok == false and the caller should log and
// discard.
func (r *registry) lookupAndRemove(ackSequence int64) (op *Operation, ok bool) {
	r.mu.Lock()
	op, ok = r.ops[ackSequence]
	if ok {
		delete(r.ops, ackSequence)
	}
	r.mu.Unlock()
	if ok {
		r.sem.Release(1)
	}
	return op, ok
}

// remove drops sequence from the registry without resolving it,
// returning the operation if present and releasing its permit. Used by
// the timeout sweeper and by Execute's cancellation path, which resolve
// the returned operation themselves.
func (r *registry) remove(sequence int64) (*Operation, bool) {
	r.mu.Lock()
	op, ok := r.ops[sequence]
	if ok {
		delete(r.ops, sequence)
	}
	r.mu.Unlock()
	if ok {
		r.sem.Release(1)
	}
	return op, ok
}

// size returns the current number of outstanding operations; invariant
// §8.2 requires this never exceed the configured capacity.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// pendingEntry pairs a sequence number with its pending operation, as
// returned by snapshot.
type pendingEntry struct {
	Sequence int64
	Op       *Operation
}

// snapshot returns all currently outstanding operations, used by the
// timeout sweeper to find expired entries without holding the registry
// lock while resolving them.
func (r *registry) snapshot() []pendingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pendingEntry, 0, len(r.ops))
	for seq, op := range r.ops {
		out = append(out, pendingEntry{seq, op})
	}
	return out
}

// drainAll removes and returns every outstanding operation, releasing
// all their permits. Used on session teardown: every remaining
// operation is then force-failed with ConnectionError.
func (r *registry) drainAll() []*Operation {
	r.mu.Lock()
	ops := make([]*Operation, 0, len(r.ops))
	for seq, op := range r.ops {
		ops = append(ops, op)
		delete(r.ops, seq)
	}
	n := len(ops)
	r.mu.Unlock()
	if n > 0 {
		r.sem.Release(int64(n))
	}
	return ops
}
