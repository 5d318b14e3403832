package alloc

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/arith"
)

// PageAllocator services requests with page-granular allocations obtained
// directly from the operating system: anonymous memory mappings on unix,
// VirtualAlloc on Windows, and the Go heap on platforms with neither.
//
// Mappings are page aligned, so any alignment up to the OS page size is
// satisfied for free; requesting a larger alignment is a contract violation
// and panics. Sizes are rounded up to whole pages internally, and Resize
// succeeds in place anywhere within the region's page span.
//
// PageAllocator is stateless and safe for use from multiple goroutines. It
// is the natural upstream for an Arena holding large scratch regions, and
// for a CheckedAllocator that should bypass the Go heap.
type PageAllocator struct{}

// NewPages returns a PageAllocator.
func NewPages() *PageAllocator {
	return &PageAllocator{}
}

// PageSize returns the OS page size.
func (p *PageAllocator) PageSize() int {
	return os.Getpagesize()
}

// Alloc maps at least size bytes of fresh pages. align must not exceed the
// OS page size.
func (p *PageAllocator) Alloc(size, align int) ([]byte, error) {
	checkSize(size)
	checkAlign(align)
	pageSize := os.Getpagesize()
	if align > pageSize {
		panic(fmt.Sprintf("alloc: page allocator supports alignment up to the OS page size (%d), got %d",
			pageSize, align))
	}
	if size == 0 {
		return zeroRegion, nil
	}
	mapLen, ok := arith.AlignUp(size, pageSize)
	if !ok {
		return nil, ErrOutOfMemory
	}
	data, err := mapPages(mapLen)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	// Keep the full mapping reachable through cap so Free can unmap it.
	return data[:size], nil
}

// Resize grows or shrinks buf in place within its mapped page span.
func (p *PageAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	checkSize(newSize)
	if newSize <= len(buf) {
		return buf[:newSize], nil
	}
	if newSize <= cap(buf) {
		return buf[:newSize], nil
	}
	return nil, ErrResizeInPlace
}

// Free unmaps the region. buf must be a handle returned by Alloc or Resize
// on a PageAllocator.
func (p *PageAllocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	unmapPages(buf[:cap(buf)])
}

var _ Allocator = (*PageAllocator)(nil)
