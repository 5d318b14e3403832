// Package alloc provides a uniform allocation interface with interchangeable
// strategies: bump allocation from a fixed region, chunked arenas with bulk
// release, OS page mappings, and a safety-instrumented wrapper that detects
// leaks, double frees, and use-after-free writes.
//
// # Allocator Interface
//
// The core abstraction is the Allocator interface:
//
//   - Alloc(size, align): Allocate a region aligned to align
//   - Resize(buf, newSize): In-place growth or shrink; never frees on failure
//   - Free(buf): Release a region back to the same instance
//
// Every strategy implements the contract identically, so consumers depend on
// the interface and receive their allocator explicitly - there is no implicit
// process-wide allocator in this package.
//
// # Implementations
//
// HeapAllocator: Go-heap upstream, the default general-purpose strategy
//
//   - Stateless and goroutine safe
//   - Alignment honored by over-allocation
//   - Free is a no-op; the garbage collector reclaims regions
//
// FixedBufferAllocator: bump allocation from a caller-supplied region
//
//   - No syscalls and no upstream calls after construction
//   - Free reclaims only the most recent allocation (stack discipline)
//   - Reset rewinds the region for reuse
//
// Arena: chunked bump allocation over an upstream allocator
//
//   - Chunk sizes grow geometrically to amortize upstream calls
//   - Individual frees are no-ops; Deinit releases everything at once
//   - ResetRetain keeps one bounded chunk across scoped uses
//
// CheckedAllocator: instrumentation for leak and corruption detection
//
//   - Live-allocation table with per-allocation capture sites
//   - Double free and unknown-pointer free panic with diagnostics
//   - Freed regions are poisoned and quarantined to catch use-after-free
//   - Close audits the table and reports leaks
//
// FailingAllocator: deterministic OOM injection for error-path testing
//
//   - Fails the Nth allocating call, forwards the rest
//   - Tracks allocated versus freed bytes for unwind verification
//
// PageAllocator: page-granular regions straight from the OS
//
// # Usage Example
//
//	a := alloc.NewChecked(alloc.NewHeap())
//	defer func() {
//	    if err := a.Close(); err != nil {
//	        log.Fatal(err)
//	    }
//	}()
//
//	buf, err := a.Alloc(256, 8)
//	if err != nil {
//	    return err
//	}
//	defer a.Free(buf)
//
// # Error Handling
//
// Resource exhaustion is the only recoverable failure: Alloc and Resize
// report ErrOutOfMemory as an ordinary error value for the caller to retry,
// degrade, or propagate. Contract violations - misaligned requests, double
// frees, frees of unknown pointers, use of a handle after its owner was
// reset - indicate a programming defect, not an operating condition, and
// panic with diagnostic context instead of returning an error.
//
// # Ownership
//
// A returned []byte is an allocation handle owned by exactly one component
// at a time. Handles must be released on the instance that produced them.
// See the scope package for the cleanup-ordering conventions consumers of
// this package follow.
//
// # Thread Safety
//
// HeapAllocator, PageAllocator, and CheckedAllocator are safe for concurrent
// use. FixedBufferAllocator, Arena, and FailingAllocator are single-owner,
// single-goroutine unless wrapped with external mutual exclusion.
package alloc
