package alloc

import (
	"fmt"

	"github.com/marmos91/webio/pkg/fault"
)

// guardMarker is the ASCII "MEMM" stamped before and after every payload.
const guardMarker uint32 = 0x4D454D4D

// guarded brackets one object with markers and records its payload size.
type guarded[T any] struct {
	lead  uint32
	size  uint64
	obj   T
	trail uint32
}

// Heap is the guarded heap strategy. Blocks come from the Go heap, so it
// never runs out; the markers turn overruns and double releases into a
// fatal violation instead of silent state damage.
type Heap[T any] struct {
	kind   string
	size   uint64
	blocks []*guarded[T]
	gens   []uint32
	free   []int
	stats  counters
}

// NewHeap creates an unbounded guarded allocator for kind.
func NewHeap[T any](kind string) *Heap[T] {
	return &Heap[T]{
		kind:   kind,
		size:   sizeOf[T](),
		blocks: make([]*guarded[T], 0, 16),
		gens:   make([]uint32, 0, 16),
		free:   make([]int, 0, 16),
	}
}

// Acquire allocates a fresh zeroed block and stamps its markers. The slot's
// generation moves on, invalidating handles from its previous use.
func (a *Heap[T]) Acquire() (Handle, *T, error) {
	blk := &guarded[T]{
		lead:  guardMarker,
		size:  a.size,
		trail: guardMarker,
	}

	var slot int
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
		a.blocks[slot] = blk
	} else {
		slot = len(a.blocks)
		a.blocks = append(a.blocks, blk)
		a.gens = append(a.gens, 0)
	}
	a.gens[slot]++

	a.stats.acquired(a.size)
	return makeHandle(slot, a.gens[slot]), &blk.obj, nil
}

func (a *Heap[T]) Get(h Handle) (*T, bool) {
	blk := a.block(h)
	if blk == nil || blk.lead != guardMarker {
		return nil, false
	}
	return &blk.obj, true
}

// Release verifies both markers before giving the block back. A handle the
// heap never issued, or one whose slot has since been reused, is an
// ordinary error; a damaged or already cleared marker means memory can no
// longer be trusted and is fatal.
func (a *Heap[T]) Release(h Handle) error {
	blk := a.block(h)
	if blk == nil {
		return fmt.Errorf("%s: release %s: %w", a.kind, h, ErrBadHandle)
	}

	if blk.lead != guardMarker {
		fault.Fatal("alloc.release", "%s block %s: lead marker 0x%08x", a.kind, h, blk.lead)
	}
	if blk.size != a.size || blk.trail != guardMarker {
		fault.Fatal("alloc.release", "%s block %s: trail marker 0x%08x (size %d)", a.kind, h, blk.trail, blk.size)
	}

	// Cleared markers make a second release of h fatal until the slot is reused.
	blk.lead = 0
	blk.trail = 0
	var zero T
	blk.obj = zero

	a.free = append(a.free, h.Slot())
	a.stats.released(blk.size)
	return nil
}

func (a *Heap[T]) Kind() string { return a.kind }

func (a *Heap[T]) Stats() Stats { return a.stats.snapshot() }

func (a *Heap[T]) block(h Handle) *guarded[T] {
	slot := h.Slot()
	if slot < 0 || slot >= len(a.blocks) || a.gens[slot] != h.Generation() {
		return nil
	}
	return a.blocks[slot]
}
