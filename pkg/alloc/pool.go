package alloc

import "fmt"

// Pool is the static slot strategy: a fixed number of slots sized once at
// construction. Each acquisition gets a fresh object, so a pointer kept
// past Release never aliases the slot's next occupant.
type Pool[T any] struct {
	kind  string
	slots []*T
	gens  []uint32
	size  uint64
	stats counters
}

// NewPool creates a pool holding at most capacity objects of kind.
func NewPool[T any](kind string, capacity int) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}

	p := &Pool[T]{
		kind:  kind,
		slots: make([]*T, capacity),
		gens:  make([]uint32, capacity),
		size:  sizeOf[T](),
	}
	p.stats.s.Capacity = capacity
	return p
}

// Acquire scans for the first free slot. A full pool returns ErrExhausted.
func (p *Pool[T]) Acquire() (Handle, *T, error) {
	for i := range p.slots {
		if p.slots[i] != nil {
			continue
		}

		obj := new(T)
		p.slots[i] = obj
		p.gens[i]++

		p.stats.acquired(p.size)
		return makeHandle(i, p.gens[i]), obj, nil
	}

	return 0, nil, fmt.Errorf("%s: %w (capacity %d)", p.kind, ErrExhausted, len(p.slots))
}

func (p *Pool[T]) Get(h Handle) (*T, bool) {
	idx, ok := p.index(h)
	if !ok {
		return nil, false
	}
	return p.slots[idx], true
}

// Release frees the slot behind h after checking that h belongs to this
// pool and is the slot's current occupant. The released object is zeroed.
func (p *Pool[T]) Release(h Handle) error {
	idx, ok := p.index(h)
	if !ok {
		return fmt.Errorf("%s: release %s: %w", p.kind, h, ErrBadHandle)
	}

	var zero T
	*p.slots[idx] = zero
	p.slots[idx] = nil

	p.stats.released(p.size)
	return nil
}

func (p *Pool[T]) Kind() string { return p.kind }

func (p *Pool[T]) Stats() Stats { return p.stats.snapshot() }

// Capacity returns the fixed slot count.
func (p *Pool[T]) Capacity() int { return len(p.slots) }

// index resolves h to an occupied slot of the matching generation.
func (p *Pool[T]) index(h Handle) (int, bool) {
	idx := h.Slot()
	if idx < 0 || idx >= len(p.slots) || p.slots[idx] == nil || p.gens[idx] != h.Generation() {
		return 0, false
	}
	return idx, true
}
