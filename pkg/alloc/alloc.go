// Package alloc provides object storage for the session core.
//
// Every object kind (sessions, files, transmit buffers, forms, embedded
// open files) is stored in an Allocator that hands out small integer
// Handles instead of raw pointers. Owners keep ordered slices of handles,
// so unlinking an object is a slice operation rather than pointer surgery.
//
// Two strategies are available and a program picks one for all kinds:
//
//   - StrategyHeap: unbounded, each block bracketed by guard markers that
//     are verified on release. A damaged marker is fatal.
//   - StrategyPool: a fixed number of slots per kind. Exhaustion is an
//     ordinary error (ErrExhausted) the caller must handle.
//
// A Handle carries the generation of the slot it was issued for. Reusing a
// slot moves its generation on, so a handle kept past its release is
// rejected by Get and Release instead of reaching the slot's new occupant.
package alloc

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Handle identifies an object inside one Allocator. The low 32 bits hold
// the slot index plus one, the high 32 bits the slot generation. Zero is
// never valid.
type Handle uint64

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

// Slot returns the slot index, or -1 for the zero handle.
func (h Handle) Slot() int {
	return int(uint32(h)) - 1
}

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

// String formats the handle as slot/generation.
func (h Handle) String() string {
	return fmt.Sprintf("%d/%d", h.Slot(), h.Generation())
}

// Allocator stores objects of one kind.
//
// Acquire returns a zeroed object. Pointers returned by Acquire and Get stay
// valid until the handle is released; they must not be used afterwards.
type Allocator[T any] interface {
	// Acquire reserves and zeroes a new object.
	Acquire() (Handle, *T, error)

	// Get returns the live object behind h. Handles from an earlier
	// generation of the slot are not found.
	Get(h Handle) (*T, bool)

	// Release returns the object to the allocator. Unknown and stale
	// handles fail with ErrBadHandle.
	Release(h Handle) error

	// Kind names the object kind for logs and metrics.
	Kind() string

	// Stats returns a snapshot of allocator usage. It is safe to call
	// concurrently with the other methods.
	Stats() Stats
}

// Stats holds the usage counters of one allocator.
type Stats struct {
	// Blocks is the number of live objects.
	Blocks uint64

	// Bytes is the payload size of all live objects.
	Bytes uint64

	// MaxBytes is the high-water mark of Bytes.
	MaxBytes uint64

	// TotalBlocks counts every successful Acquire.
	TotalBlocks uint64

	// Capacity is the fixed slot count for pools, 0 for heaps.
	Capacity int
}

// counters tracks Stats for one allocator. Allocators are driven by a
// single goroutine but Stats may be read from others (metrics scrapes), so
// the counters sit behind their own lock.
type counters struct {
	mu sync.Mutex
	s  Stats
}

func (c *counters) acquired(size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.Blocks++
	c.s.TotalBlocks++
	c.s.Bytes += size
	if c.s.Bytes > c.s.MaxBytes {
		c.s.MaxBytes = c.s.Bytes
	}
}

func (c *counters) released(size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.Blocks--
	c.s.Bytes -= size
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// StatsReporter is implemented by anything that can summarise allocator
// usage across kinds. AllocStats may be called from any goroutine.
type StatsReporter interface {
	AllocStats() map[string]Stats
}

// Strategy selects the allocation discipline.
type Strategy string

const (
	StrategyHeap Strategy = "heap"
	StrategyPool Strategy = "pool"
)

// ParseStrategy validates a configuration value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyHeap:
		return StrategyHeap, nil
	case StrategyPool:
		return StrategyPool, nil
	default:
		return "", fmt.Errorf("unknown allocator strategy %q", s)
	}
}

// Limits sizes the slot pools, one maximum per object kind.
type Limits struct {
	Sessions      int `mapstructure:"sessions" yaml:"sessions" validate:"gte=1"`
	Files         int `mapstructure:"files" yaml:"files" validate:"gte=1"`
	Buffers       int `mapstructure:"buffers" yaml:"buffers" validate:"gte=1"`
	Forms         int `mapstructure:"forms" yaml:"forms" validate:"gte=1"`
	EmbeddedFiles int `mapstructure:"embedded_files" yaml:"embedded_files" validate:"gte=1"`
}

// DefaultLimits returns the pool sizes used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Sessions:      16,
		Files:         32,
		Buffers:       64,
		Forms:         32,
		EmbeddedFiles: 32,
	}
}

// New builds an allocator for kind using the given strategy. limit is only
// used by the pool strategy.
func New[T any](strategy Strategy, kind string, limit int) Allocator[T] {
	if strategy == StrategyPool {
		return NewPool[T](kind, limit)
	}
	return NewHeap[T](kind)
}

func sizeOf[T any]() uint64 {
	return uint64(reflect.TypeFor[T]().Size())
}
