package alloc

import "github.com/joshuapare/memkit/internal/arith"

const (
	// DefaultChunkSize is the initial chunk size for new arenas (64 KiB).
	DefaultChunkSize = 1 << 16

	// chunkAlign is the alignment every chunk is requested with. Requests
	// aligned more strictly than this are served by padding inside the chunk.
	chunkAlign = 16
)

// arenaChunk is one upstream-allocated region plus its bump offset.
type arenaChunk struct {
	buf []byte
	off int
}

// Arena is a chunked bump allocator: Alloc advances an offset within the
// current chunk and acquires a new, geometrically larger chunk from the
// upstream allocator on exhaustion. Individual frees are no-ops; the only
// reclamation is bulk release via Deinit, Reset, or ResetRetain.
//
// Typical usage is one arena per request or per loop iteration: allocate
// freely, then Reset at the end of the scope for O(1) cleanup without
// returning chunks to the upstream.
//
// Not safe for concurrent use: single owner, single goroutine, unless wrapped
// with external mutual exclusion.
type Arena struct {
	upstream Allocator
	chunks   []arenaChunk // chunks[len-1] is the current chunk
	initSize int
	nextSize int // size of the next chunk to acquire; doubles per acquisition
	released bool

	// Most recent allocation within the current chunk, for in-place Resize.
	lastOff int
	lastLen int
}

// NewArena returns an Arena acquiring DefaultChunkSize-and-doubling chunks
// from upstream. No chunk is acquired until the first allocation.
func NewArena(upstream Allocator) *Arena {
	return NewArenaSize(upstream, DefaultChunkSize)
}

// NewArenaSize is NewArena with an explicit initial chunk size.
func NewArenaSize(upstream Allocator, chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Arena{upstream: upstream, initSize: chunkSize, nextSize: chunkSize}
}

// Alloc bump-allocates size bytes aligned to align, acquiring a new chunk
// from the upstream allocator when the current chunk cannot fit the request.
func (a *Arena) Alloc(size, align int) ([]byte, error) {
	a.panicIfReleased()
	checkSize(size)
	checkAlign(align)
	if size == 0 {
		return zeroRegion, nil
	}
	if out := a.tryBump(size, align); out != nil {
		return out, nil
	}
	// Worst case the new chunk's base is only chunkAlign-aligned, so reserve
	// room for alignment padding.
	need, ok := arith.AddOverflowSafe(size, align-1)
	if !ok {
		return nil, ErrOutOfMemory
	}
	if err := a.grow(need); err != nil {
		return nil, err
	}
	out := a.tryBump(size, align)
	if out == nil {
		return nil, ErrOutOfMemory
	}
	return out, nil
}

// tryBump serves the request from the current chunk, or returns nil when it
// does not fit.
func (a *Arena) tryBump(size, align int) []byte {
	if len(a.chunks) == 0 {
		return nil
	}
	c := &a.chunks[len(a.chunks)-1]
	pad := arith.AlignPad(basePtr(c.buf)+uintptr(c.off), align)
	start := c.off + pad
	end := start + size
	if end > len(c.buf) {
		return nil
	}
	c.off = end
	a.lastOff = start
	a.lastLen = size
	return c.buf[start:end:end]
}

// Resize grows or shrinks buf in place. Growth succeeds only for the most
// recent allocation, and only within its chunk.
func (a *Arena) Resize(buf []byte, newSize int) ([]byte, error) {
	a.panicIfReleased()
	checkSize(newSize)
	if len(buf) == 0 {
		return nil, ErrResizeInPlace
	}
	if a.isLast(buf) {
		c := &a.chunks[len(a.chunks)-1]
		end, ok := arith.AddOverflowSafe(a.lastOff, newSize)
		if !ok || end > len(c.buf) {
			return nil, ErrResizeInPlace
		}
		c.off = end
		a.lastLen = newSize
		return c.buf[a.lastOff:end:end], nil
	}
	if newSize <= len(buf) {
		return buf[:newSize], nil
	}
	return nil, ErrResizeInPlace
}

// Free is a no-op: regions are reclaimed only in bulk, by Deinit, Reset, or
// ResetRetain.
func (a *Arena) Free(buf []byte) {
	a.panicIfReleased()
}

// Deinit returns every chunk to the upstream allocator, in reverse order of
// acquisition, and makes the arena unusable. Every outstanding handle becomes
// invalid simultaneously; any subsequent operation panics.
func (a *Arena) Deinit() {
	if a.released {
		return
	}
	for i := len(a.chunks) - 1; i >= 0; i-- {
		a.upstream.Free(a.chunks[i].buf)
	}
	a.chunks = nil
	a.released = true
}

// Reset invalidates every outstanding handle but retains the most recent
// chunk for reuse, so successive scoped uses of the arena do not pay an
// upstream call each time.
func (a *Arena) Reset() {
	a.ResetRetain(-1)
}

// ResetRetain is Reset with a byte limit on the retained chunk: every chunk
// except the most recent is returned upstream, and the most recent is kept
// only up to limit bytes - shrunk in place when the upstream permits it,
// released otherwise. limit < 0 means no limit. A subsequent allocation that
// fits the retained chunk triggers no upstream request.
func (a *Arena) ResetRetain(limit int) {
	a.panicIfReleased()
	a.lastLen = 0
	if len(a.chunks) == 0 {
		return
	}
	last := a.chunks[len(a.chunks)-1]
	for i := len(a.chunks) - 2; i >= 0; i-- {
		a.upstream.Free(a.chunks[i].buf)
	}
	a.chunks = a.chunks[:0]
	if limit >= 0 && len(last.buf) > limit {
		if limit == 0 {
			a.upstream.Free(last.buf)
			a.nextSize = a.initSize
			return
		}
		shrunk, err := a.upstream.Resize(last.buf, limit)
		if err != nil {
			a.upstream.Free(last.buf)
			a.nextSize = a.initSize
			return
		}
		last.buf = shrunk
	}
	if len(last.buf) == 0 {
		a.nextSize = a.initSize
		return
	}
	last.off = 0
	a.chunks = append(a.chunks, last)
	a.nextSize = len(last.buf) * 2
}

// grow acquires a chunk of at least min bytes from the upstream allocator.
func (a *Arena) grow(min int) error {
	size := a.nextSize
	if size < min {
		size = min
	}
	buf, err := a.upstream.Alloc(size, chunkAlign)
	if err != nil {
		return err
	}
	a.chunks = append(a.chunks, arenaChunk{buf: buf})
	next, ok := arith.MulOverflowSafe(size, 2)
	if ok {
		a.nextSize = next
	}
	return nil
}

func (a *Arena) isLast(buf []byte) bool {
	if a.lastLen == 0 || len(buf) != a.lastLen || len(a.chunks) == 0 {
		return false
	}
	c := &a.chunks[len(a.chunks)-1]
	return basePtr(buf) == basePtr(c.buf)+uintptr(a.lastOff) && a.lastOff+a.lastLen == c.off
}

func (a *Arena) panicIfReleased() {
	if a.released {
		panic("alloc: arena used after Deinit")
	}
}

// SizeInUse returns the bytes currently bump-allocated across all chunks,
// including alignment padding.
func (a *Arena) SizeInUse() int {
	sum := 0
	for _, c := range a.chunks {
		sum += c.off
	}
	return sum
}

// Capacity returns the total capacity of all chunks in bytes.
func (a *Arena) Capacity() int {
	sum := 0
	for _, c := range a.chunks {
		sum += len(c.buf)
	}
	return sum
}

// NumChunks returns the number of chunks currently held.
func (a *Arena) NumChunks() int { return len(a.chunks) }

var _ Allocator = (*Arena)(nil)
