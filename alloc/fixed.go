package alloc

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/arith"
)

// FixedBufferAllocator bump-allocates from a caller-supplied region. It
// performs no syscalls and no upstream calls after construction, which makes
// it suitable for scratch work in contexts that must not allocate.
//
// Free reclaims space only when the freed handle is exactly the most recent
// allocation (stack-like discipline); any other free is a legal no-op. This is
// a documented limitation of the strategy, not an error.
//
// Not safe for concurrent use: single owner, single goroutine, unless wrapped
// with external mutual exclusion.
type FixedBufferAllocator struct {
	buf []byte
	end int // high-water mark; invariant: end <= len(buf)

	// Offset/length of the most recent allocation, for the LIFO reclaim fast
	// path and in-place growth. lastLen == 0 means no reclaimable allocation.
	lastOff int
	lastLen int
}

// NewFixedBuffer returns a FixedBufferAllocator serving requests from buf.
// The allocator takes ownership of buf's contents for its lifetime; the
// caller must not read or write buf directly while the allocator is in use.
func NewFixedBuffer(buf []byte) *FixedBufferAllocator {
	return &FixedBufferAllocator{buf: buf}
}

// Alloc bump-allocates size bytes, padding as needed to satisfy align.
// Requests that would advance the high-water mark past the backing region's
// capacity report ErrOutOfMemory; previously returned regions are never
// disturbed.
func (f *FixedBufferAllocator) Alloc(size, align int) ([]byte, error) {
	checkSize(size)
	checkAlign(align)
	if size == 0 {
		return zeroRegion, nil
	}
	pad := arith.AlignPad(basePtr(f.buf)+uintptr(f.end), align)
	start, ok := arith.AddOverflowSafe(f.end, pad)
	if !ok {
		return nil, ErrOutOfMemory
	}
	end, ok := arith.AddOverflowSafe(start, size)
	if !ok || end > len(f.buf) {
		return nil, ErrOutOfMemory
	}
	f.end = end
	f.lastOff = start
	f.lastLen = size
	return f.buf[start:end:end], nil
}

// Resize grows or shrinks buf in place. Growth succeeds only for the most
// recent allocation, and only while it fits the backing region.
func (f *FixedBufferAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	checkSize(newSize)
	if len(buf) == 0 {
		return nil, ErrResizeInPlace
	}
	off := f.offsetOf(buf)
	if f.isLast(off, len(buf)) {
		end, ok := arith.AddOverflowSafe(off, newSize)
		if !ok || end > len(f.buf) {
			return nil, ErrResizeInPlace
		}
		f.end = end
		f.lastLen = newSize
		return f.buf[off:end:end], nil
	}
	if newSize <= len(buf) {
		// Shrink of an interior allocation: no space reclaimed.
		return buf[:newSize], nil
	}
	return nil, ErrResizeInPlace
}

// Free reclaims buf only when it is exactly the most recent allocation, in
// which case the high-water mark rewinds past it. Any other free is a no-op.
func (f *FixedBufferAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	off := f.offsetOf(buf)
	if f.isLast(off, len(buf)) {
		f.end = off
		f.lastLen = 0
	}
}

// Reset rewinds the high-water mark to zero. Every outstanding handle becomes
// invalid; using one afterwards is a contract violation the caller must
// prevent.
func (f *FixedBufferAllocator) Reset() {
	f.end = 0
	f.lastLen = 0
}

// HighWater returns the current high-water mark in bytes.
func (f *FixedBufferAllocator) HighWater() int { return f.end }

// Capacity returns the backing region's length in bytes.
func (f *FixedBufferAllocator) Capacity() int { return len(f.buf) }

// offsetOf converts a handle to its offset within the backing region,
// panicking on handles that did not come from this instance. Cross-instance
// frees are contract violations, and here they are cheap to detect.
func (f *FixedBufferAllocator) offsetOf(buf []byte) int {
	base := basePtr(f.buf)
	p := basePtr(buf)
	if p < base || p+uintptr(len(buf)) > base+uintptr(len(f.buf)) {
		panic(fmt.Sprintf("alloc: foreign handle (len %d) passed to fixed-buffer allocator", len(buf)))
	}
	return int(p - base)
}

func (f *FixedBufferAllocator) isLast(off, length int) bool {
	return f.lastLen != 0 && off == f.lastOff && length == f.lastLen && off+length == f.end
}

var _ Allocator = (*FixedBufferAllocator)(nil)
