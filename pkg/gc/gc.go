// Package gc implements the explicitly triggered mark/sweep heap used by the
// virtual machine.
//
// Slots are addressed by stable AllocIds. Reachability is computed only from
// the explicit root set; the heap is never collected implicitly, so a slot
// lives until a Collect finds it unreachable or it is freed by hand.
package gc

import (
	"sort"
	"time"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("crunch.gc")

// AllocId identifies one heap slot.
type AllocId uint32

// Handle is returned by allocation and is the token used to root a slot.
type Handle struct {
	id   AllocId
	size int
}

// ID returns the slot id the handle refers to.
func (h Handle) ID() AllocId { return h.id }

// Size returns the number of bytes reserved for the slot.
func (h Handle) Size() int { return h.size }

// Referencer is implemented by payloads that hold references to other slots.
// Marking follows these references transitively.
type Referencer interface {
	References() []AllocId
}

type slot struct {
	payload any
	written bool
	size    int
	marked  bool
}

// Stats holds statistics from a single collection.
type Stats struct {
	Freed     int
	FreedSize int
	Live      int
	LiveSize  int
	Roots     int
	Duration  time.Duration
	Timestamp time.Time
}

// Gc is a mark/sweep heap with an explicit root set. It is not safe for
// concurrent use; it is owned by exactly one mutator.
type Gc struct {
	slots  map[AllocId]*slot
	roots  map[AllocId]struct{}
	nextID AllocId
	size   int

	limit          int
	logCollections bool

	collections uint64
	lastStats   *Stats
}

// Option configures a Gc.
type Option func(*Gc)

// WithHeapLimit caps the number of live bytes. Allocations that would exceed
// the limit fail with a GcError. Zero means unlimited.
func WithHeapLimit(bytes int) Option {
	return func(g *Gc) {
		g.limit = bytes
	}
}

// WithCollectionLogging logs a summary after every collection.
func WithCollectionLogging(enabled bool) Option {
	return func(g *Gc) {
		g.logCollections = enabled
	}
}

// New creates an empty heap.
func New(opts ...Option) *Gc {
	g := &Gc{
		slots: make(map[AllocId]*slot),
		roots: make(map[AllocId]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allocate reserves a slot of the given size under a fresh id.
func (g *Gc) Allocate(size int) (Handle, AllocId, error) {
	id := g.nextID
	for {
		if _, live := g.slots[id]; !live {
			break
		}
		id++
		if id == g.nextID {
			return Handle{}, 0, fault.New(fault.GcError, "heap id space exhausted")
		}
	}
	g.nextID = id + 1
	return g.reserve(size, id)
}

// AllocateID reserves a slot under a caller chosen id. It is used when the
// bytecode already encodes the target heap location.
func (g *Gc) AllocateID(size int, id AllocId) (Handle, AllocId, error) {
	if _, live := g.slots[id]; live {
		return Handle{}, 0, fault.Newf(fault.GcError, "heap location %d is already allocated", id)
	}
	return g.reserve(size, id)
}

func (g *Gc) reserve(size int, id AllocId) (Handle, AllocId, error) {
	if size < 0 {
		return Handle{}, 0, fault.Newf(fault.GcError, "invalid allocation size %d", size)
	}
	if g.limit > 0 && g.size+size > g.limit {
		return Handle{}, 0, fault.Newf(fault.GcError,
			"allocating %d bytes at %d exceeds the heap limit of %d bytes (%d live)",
			size, id, g.limit, g.size)
	}

	g.slots[id] = &slot{size: size}
	g.size += size
	return Handle{id: id, size: size}, id, nil
}

// Write stores a payload into a live slot. If handle is not nil it must refer
// to id.
func (g *Gc) Write(id AllocId, payload any, handle *Handle) error {
	s, live := g.slots[id]
	if !live {
		return fault.Newf(fault.GcError, "write to heap location %d which is not allocated", id)
	}
	if handle != nil && handle.id != id {
		return fault.Newf(fault.GcError, "handle for %d used to write %d", handle.id, id)
	}

	s.payload = payload
	s.written = true
	return nil
}

// Fetch reads the payload of a live slot as a T.
func Fetch[T any](g *Gc, id AllocId) (T, error) {
	var zero T

	s, live := g.slots[id]
	if !live {
		return zero, fault.Newf(fault.GcError, "heap location %d is not allocated", id)
	}
	if !s.written {
		return zero, fault.Newf(fault.GcError, "heap location %d has not been written", id)
	}

	v, ok := s.payload.(T)
	if !ok {
		return zero, fault.Newf(fault.GcError, "heap location %d holds %T, not %T", id, s.payload, zero)
	}
	return v, nil
}

// Peek returns the raw payload of a slot without type checking.
func (g *Gc) Peek(id AllocId) (any, bool) {
	s, live := g.slots[id]
	if !live || !s.written {
		return nil, false
	}
	return s.payload, true
}

// HandleOf returns the handle of a live slot.
func (g *Gc) HandleOf(id AllocId) (Handle, error) {
	s, live := g.slots[id]
	if !live {
		return Handle{}, fault.Newf(fault.GcError, "heap location %d is not allocated", id)
	}
	return Handle{id: id, size: s.size}, nil
}

// AddRoot marks the slot behind handle as a root.
func (g *Gc) AddRoot(handle Handle) error {
	if _, live := g.slots[handle.id]; !live {
		return fault.Newf(fault.GcError, "cannot root heap location %d which is not allocated", handle.id)
	}
	g.roots[handle.id] = struct{}{}
	return nil
}

// RemoveRoot unroots a slot. The slot stays allocated until the next
// collection finds it unreachable.
func (g *Gc) RemoveRoot(id AllocId) error {
	if _, live := g.slots[id]; !live {
		return fault.Newf(fault.GcError, "cannot unroot heap location %d which is not allocated", id)
	}
	if _, rooted := g.roots[id]; !rooted {
		return fault.Newf(fault.GcError, "heap location %d is not a root", id)
	}
	delete(g.roots, id)
	return nil
}

// IsRoot reports whether id is in the root set.
func (g *Gc) IsRoot(id AllocId) bool {
	_, rooted := g.roots[id]
	return rooted
}

// Contains reports whether id is a live allocation.
func (g *Gc) Contains(id AllocId) bool {
	_, live := g.slots[id]
	return live
}

// Free releases a slot immediately, rooted or not.
func (g *Gc) Free(id AllocId) error {
	s, live := g.slots[id]
	if !live {
		return fault.Newf(fault.GcError, "double free of heap location %d", id)
	}
	g.size -= s.size
	delete(g.slots, id)
	delete(g.roots, id)
	return nil
}

// Collect marks every slot reachable from the root set and frees the rest.
func (g *Gc) Collect() error {
	start := time.Now()

	for _, s := range g.slots {
		s.marked = false
	}

	work := make([]AllocId, 0, len(g.roots))
	for id := range g.roots {
		work = append(work, id)
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]

		s, live := g.slots[id]
		if !live || s.marked {
			continue
		}
		s.marked = true

		if ref, ok := s.payload.(Referencer); ok {
			work = append(work, ref.References()...)
		}
	}

	stats := &Stats{Roots: len(g.roots), Timestamp: start}
	for id, s := range g.slots {
		if s.marked {
			stats.Live++
			stats.LiveSize += s.size
			continue
		}
		stats.Freed++
		stats.FreedSize += s.size
		g.size -= s.size
		delete(g.slots, id)
	}
	stats.Duration = time.Since(start)

	g.collections++
	g.lastStats = stats

	if g.logCollections {
		log.Infof("collection %d: freed %d slots (%d bytes), %d live (%d bytes), %d roots in %s",
			g.collections, stats.Freed, stats.FreedSize, stats.Live, stats.LiveSize, stats.Roots, stats.Duration)
	}
	return nil
}

// Len returns the number of live slots.
func (g *Gc) Len() int { return len(g.slots) }

// Size returns the number of live bytes.
func (g *Gc) Size() int { return g.size }

// Collections returns the number of collections performed.
func (g *Gc) Collections() uint64 { return g.collections }

// LastStats returns statistics from the most recent collection, or nil if no
// collection has run yet.
func (g *Gc) LastStats() *Stats { return g.lastStats }

// IDs returns the live slot ids in ascending order.
func (g *Gc) IDs() []AllocId {
	ids := make([]AllocId, 0, len(g.slots))
	for id := range g.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Roots returns the rooted slot ids in ascending order.
func (g *Gc) Roots() []AllocId {
	ids := make([]AllocId, 0, len(g.roots))
	for id := range g.roots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
