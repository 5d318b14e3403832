package alloc

import "github.com/joshuapare/memkit/internal/arith"

// HeapAllocator services requests from the Go heap. It is the default
// upstream strategy: stateless, safe for use from multiple goroutines, and
// the usual thing to hand to an Arena or CheckedAllocator.
//
// Alignment is honored by over-allocating align-1 bytes and slicing at the
// first aligned address. Free is a no-op: the garbage collector reclaims the
// region once no handle references it. Regions happen to be zeroed because
// the Go heap zeroes; callers must not rely on that, per the Allocator
// contract.
type HeapAllocator struct{}

// NewHeap returns a HeapAllocator.
func NewHeap() *HeapAllocator {
	return &HeapAllocator{}
}

// Alloc returns a heap region of exactly size bytes aligned to align.
func (h *HeapAllocator) Alloc(size, align int) ([]byte, error) {
	checkSize(size)
	checkAlign(align)
	if size == 0 {
		return zeroRegion, nil
	}
	padded, ok := arith.AddOverflowSafe(size, align-1)
	if !ok {
		return nil, ErrOutOfMemory
	}
	raw := make([]byte, padded)
	off := arith.AlignPad(basePtr(raw), align)
	return raw[off : off+size : off+size], nil
}

// Resize grows or shrinks buf in place. Growth succeeds only within the
// region's existing capacity; otherwise ErrResizeInPlace is reported and buf
// remains valid.
func (h *HeapAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	checkSize(newSize)
	if newSize <= len(buf) {
		return buf[:newSize], nil
	}
	if newSize <= cap(buf) {
		return buf[:newSize], nil
	}
	return nil, ErrResizeInPlace
}

// Free is a no-op; the garbage collector owns reclamation.
func (h *HeapAllocator) Free(buf []byte) {}

var _ Allocator = (*HeapAllocator)(nil)
