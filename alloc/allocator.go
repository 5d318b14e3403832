package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/arith"
)

// Allocator is the capability contract every allocation strategy implements.
//
// The returned []byte is the allocation handle: its base address and length
// identify the region, and ownership of it is exclusive to whichever component
// currently holds it. A handle is valid from the moment Alloc returns it until
// it is passed to Free or Resize on the SAME allocator instance. Passing a
// handle to a different instance is a contract violation, not an operating
// condition; CheckedAllocator detects it, other strategies document it as
// undefined.
//
// Implementations:
//   - HeapAllocator: Go-heap upstream, the default general-purpose strategy
//   - FixedBufferAllocator: caller-supplied region, no syscalls after construction
//   - Arena: chunked bump allocation with single-call bulk release
//   - CheckedAllocator: leak / double-free / use-after-free instrumentation
//   - FailingAllocator: deterministic OOM injection for error-path testing
//   - PageAllocator: page-granular allocations straight from the OS
type Allocator interface {
	// Alloc returns a region of at least size bytes whose base address is a
	// multiple of align. align must be a power of two >= 1; violating that is
	// a caller bug and panics. The region's contents are uninitialized unless
	// the concrete strategy documents otherwise; callers must not assume
	// zeroing.
	Alloc(size, align int) ([]byte, error)

	// Resize attempts to grow or shrink buf in place to newSize bytes.
	// Shrinking always succeeds. On failure the original slice remains valid
	// and unchanged - it is never freed by a failed Resize.
	Resize(buf []byte, newSize int) ([]byte, error)

	// Free returns buf to the allocator. buf must be exactly a handle
	// previously returned by this instance (or nil/empty, which is a no-op).
	Free(buf []byte)
}

// zeroRegion backs every zero-size allocation. Zero-size handles carry no
// bookkeeping and are interchangeable across strategies.
var zeroRegion = make([]byte, 0)

// checkAlign panics when align is not a positive power of two. Misaligned
// requests are caller contract errors, distinct from resource exhaustion.
func checkAlign(align int) {
	if !arith.IsPowerOfTwo(align) {
		panic(fmt.Sprintf("alloc: alignment %d is not a power of two", align))
	}
}

// checkSize panics on negative sizes.
func checkSize(size int) {
	if size < 0 {
		panic(fmt.Sprintf("alloc: negative allocation size %d", size))
	}
}

// basePtr returns the base address of a non-empty region.
func basePtr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// AllocN allocates a contiguous region for count elements of elemSize bytes
// each, aligned to align. The count*elemSize product is overflow-checked;
// requests that cannot be represented report ErrOutOfMemory rather than
// wrapping around.
func AllocN(a Allocator, elemSize, count, align int) ([]byte, error) {
	checkSize(elemSize)
	checkSize(count)
	total, ok := arith.MulOverflowSafe(elemSize, count)
	if !ok {
		return nil, ErrOutOfMemory
	}
	return a.Alloc(total, align)
}

// New allocates a single zeroed T from a. The caller owns the result and must
// release it with Destroy on the same allocator.
func New[T any](a Allocator) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	align := int(unsafe.Alignof(zero))
	if size == 0 {
		return &zero, nil
	}
	buf, err := a.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	clear(buf)
	return (*T)(unsafe.Pointer(unsafe.SliceData(buf))), nil
}

// Destroy releases a *T previously returned by New on the same allocator.
func Destroy[T any](a Allocator, p *T) {
	if p == nil {
		return
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return
	}
	a.Free(unsafe.Slice((*byte)(unsafe.Pointer(p)), size))
}

// MakeSlice allocates an uninitialized []T of length n from a. The caller
// owns the backing region and must release it with FreeSlice on the same
// allocator. n == 0 returns a non-nil empty slice with no bookkeeping.
func MakeSlice[T any](a Allocator, n int) ([]T, error) {
	checkSize(n)
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if n == 0 || elemSize == 0 {
		return []T{}, nil
	}
	buf, err := AllocN(a, elemSize, n, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n), nil
}

// FreeSlice releases a []T previously returned by MakeSlice on the same
// allocator. The full original slice must be passed, not a sub-slice.
func FreeSlice[T any](a Allocator, s []T) {
	if len(s) == 0 {
		return
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return
	}
	a.Free(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*elemSize))
}
