// Package vec provides a growable typed array that draws every byte from an
// explicitly supplied allocator - the "no hidden allocation" consumer shape
// the alloc package is designed for.
package vec

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/alloc"
	"github.com/joshuapare/memkit/internal/arith"
)

// minCapacity is the element capacity of the first allocation.
const minCapacity = 4

// Vec is a growable array of T backed by an alloc.Allocator. The zero Vec is
// not usable; construct with New. Vec owns its backing region (paired
// construct/release): Deinit returns it to the allocator, and nothing is
// allocated behind the caller's back.
//
// Not safe for concurrent use.
type Vec[T any] struct {
	a   alloc.Allocator
	raw []byte // allocation handle backing the elements
	n   int
}

// New returns an empty Vec drawing from a. No allocation happens until the
// first Append or Reserve.
func New[T any](a alloc.Allocator) *Vec[T] {
	return &Vec[T]{a: a}
}

func elemLayout[T any]() (size, align int) {
	var zero T
	return int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero))
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.n }

// Cap returns the element capacity of the current backing region.
func (v *Vec[T]) Cap() int {
	size, _ := elemLayout[T]()
	if size == 0 {
		return v.n
	}
	return len(v.raw) / size
}

// Append adds x, growing the backing region when needed. On ErrOutOfMemory
// the Vec is unchanged and still usable.
func (v *Vec[T]) Append(x T) error {
	if err := v.Reserve(v.n + 1); err != nil {
		return err
	}
	size, _ := elemLayout[T]()
	if size != 0 {
		v.elems()[v.n] = x
	}
	v.n++
	return nil
}

// Reserve ensures capacity for at least n elements. Growth doubles the
// capacity, resizing the backing region in place when the allocator permits
// and relocating otherwise. On failure the Vec is unchanged.
func (v *Vec[T]) Reserve(n int) error {
	size, align := elemLayout[T]()
	if size == 0 || n <= v.Cap() {
		return nil
	}
	newCap, ok := arith.MulOverflowSafe(v.Cap(), 2)
	if !ok {
		newCap = n
	}
	if newCap < minCapacity {
		newCap = minCapacity
	}
	for newCap < n {
		doubled, ok := arith.MulOverflowSafe(newCap, 2)
		if !ok {
			newCap = n
			break
		}
		newCap = doubled
	}

	newLen, ok := arith.MulOverflowSafe(newCap, size)
	if !ok {
		// The doubled capacity is unrepresentable in bytes; the exact
		// request may still be.
		newCap = n
		if newLen, ok = arith.MulOverflowSafe(newCap, size); !ok {
			return alloc.ErrOutOfMemory
		}
	}

	if v.raw != nil {
		if grown, err := v.a.Resize(v.raw, newLen); err == nil {
			v.raw = grown
			return nil
		}
	}

	fresh, err := alloc.AllocN(v.a, size, newCap, align)
	if err != nil {
		return err
	}
	copy(fresh, v.raw[:v.n*size])
	if v.raw != nil {
		v.a.Free(v.raw)
	}
	v.raw = fresh
	return nil
}

// Get returns element i. Out-of-range indexes panic, as with a slice.
func (v *Vec[T]) Get(i int) T {
	v.check(i)
	if size, _ := elemLayout[T](); size == 0 {
		var zero T
		return zero
	}
	return v.elems()[i]
}

// Set stores x at index i. Out-of-range indexes panic, as with a slice.
func (v *Vec[T]) Set(i int, x T) {
	v.check(i)
	if size, _ := elemLayout[T](); size == 0 {
		return
	}
	v.elems()[i] = x
}

// Slice returns a view of the elements. The view borrows the backing region
// and does not take ownership; it is invalidated by the next Append, Reserve,
// or Deinit.
func (v *Vec[T]) Slice() []T {
	if v.n == 0 {
		return nil
	}
	if size, _ := elemLayout[T](); size == 0 {
		return make([]T, v.n)
	}
	return v.elems()[:v.n]
}

// Deinit returns the backing region to the allocator and empties the Vec.
// The Vec may be reused afterwards.
func (v *Vec[T]) Deinit() {
	if v.raw != nil {
		v.a.Free(v.raw)
		v.raw = nil
	}
	v.n = 0
}

func (v *Vec[T]) elems() []T {
	size, _ := elemLayout[T]()
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(v.raw))), len(v.raw)/size)
}

func (v *Vec[T]) check(i int) {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("vec: index %d out of range [0:%d]", i, v.n))
	}
}
