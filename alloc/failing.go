package alloc

import "math"

// NeverFail is the fail index that disables injection, turning a
// FailingAllocator into a pure accounting decorator.
const NeverFail = uint64(math.MaxUint64)

// AllocStats is the byte and call accounting a FailingAllocator keeps.
// After a consumer's error path has fully unwound, AllocatedBytes must equal
// FreedBytes: whatever partial work happened before an induced failure was
// released exactly once.
type AllocStats struct {
	AllocatedBytes uint64
	FreedBytes     uint64
	Allocations    uint64
	Deallocations  uint64
}

// FailingAllocator is a decorator that deterministically fails the Nth
// allocating call (0-indexed) with ErrOutOfMemory, without forwarding it to
// the upstream, and forwards every other call while keeping AllocStats.
// Growing Resize calls count as allocating calls; shrinks and frees always
// forward.
//
// It exists so a test harness can enumerate "what if allocation #k fails"
// for every k a function under test performs - see
// CheckAllAllocationFailures. Not safe for concurrent use; it is a test
// double.
type FailingAllocator struct {
	upstream Allocator
	failAt   uint64
	calls    uint64
	induced  bool
	stats    AllocStats
}

// NewFailing returns a FailingAllocator whose failAt-th allocating call
// (0-indexed) reports ErrOutOfMemory. Pass NeverFail for accounting only.
func NewFailing(upstream Allocator, failAt uint64) *FailingAllocator {
	return &FailingAllocator{upstream: upstream, failAt: failAt}
}

// Alloc fails with ErrOutOfMemory on the injected call index, and otherwise
// forwards to the upstream.
func (f *FailingAllocator) Alloc(size, align int) ([]byte, error) {
	checkSize(size)
	checkAlign(align)
	if f.take() {
		return nil, ErrOutOfMemory
	}
	out, err := f.upstream.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	f.stats.AllocatedBytes += uint64(size)
	f.stats.Allocations++
	return out, nil
}

// Resize counts as an allocating call when it grows buf. On an induced
// failure the original slice remains valid and unchanged.
func (f *FailingAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	checkSize(newSize)
	grow := newSize > len(buf)
	if grow && f.take() {
		return nil, ErrOutOfMemory
	}
	out, err := f.upstream.Resize(buf, newSize)
	if err != nil {
		return nil, err
	}
	if grow {
		f.stats.AllocatedBytes += uint64(newSize - len(buf))
	} else {
		f.stats.FreedBytes += uint64(len(buf) - newSize)
	}
	return out, nil
}

// Free forwards to the upstream and updates the accounting.
func (f *FailingAllocator) Free(buf []byte) {
	f.upstream.Free(buf)
	if len(buf) == 0 {
		return
	}
	f.stats.FreedBytes += uint64(len(buf))
	f.stats.Deallocations++
}

// take consumes one allocating-call index and reports whether this is the
// injected failure.
func (f *FailingAllocator) take() bool {
	idx := f.calls
	f.calls++
	if idx == f.failAt {
		f.induced = true
		return true
	}
	return false
}

// Stats returns a snapshot of the accounting.
func (f *FailingAllocator) Stats() AllocStats { return f.stats }

// Calls returns how many allocating calls have been seen, induced failure
// included.
func (f *FailingAllocator) Calls() uint64 { return f.calls }

// Induced reports whether the injected failure has fired.
func (f *FailingAllocator) Induced() bool { return f.induced }

var _ Allocator = (*FailingAllocator)(nil)
