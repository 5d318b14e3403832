// Package scope provides the cleanup-ordering discipline the allocation
// framework's consumers follow: cleanup actions registered during forward
// progress and executed in strictly reverse order of registration (LIFO) on
// scope exit, with a separate error-only flavor that is skipped on the
// normal return path.
//
// # Ownership Conventions
//
// Every function that accepts or returns an allocation handle declares one of
// three ownership modes:
//
//   - Caller-owns / callee-borrows: the function uses a handle but does not
//     release it. Document as "does not take ownership".
//
//   - Callee-returns-owned: the function allocates and returns a handle; the
//     caller becomes responsible for the eventual Free or Destroy on the same
//     allocator.
//
//   - Paired construct/release: a constructor allocates and its matching
//     destructor releases everything it allocated. Inside a multi-step
//     constructor, every allocation registers a conditional release
//     immediately after it succeeds, so that when a later step fails every
//     earlier allocation is released exactly once, in reverse order of
//     acquisition.
//
// # Scope and Guard
//
// Scope is an unwind list for the paired construct/release pattern: Defer
// registers guaranteed cleanup, OnError registers error-only cleanup, and
// Close (run via defer on the named error result) walks the list in reverse
// on whichever exit path is taken, panics included. Guard is the single-shot
// form: armed at construction, disarmed by Release once ownership has safely
// transferred.
//
// Go's defer statement already delivers LIFO ordering for the guaranteed
// kind; what this package adds is the error-only kind, registration at a
// distance from the defer site, and an auditable place to hang the
// convention on.
package scope
