package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates that the strategy could not satisfy the request.
	// This is the only recoverable failure class an allocator reports; callers
	// must handle or propagate it, never ignore it.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrResizeInPlace indicates that a grow request could not be satisfied
	// without moving the region. The original slice remains valid and
	// unchanged. Matches errors.Is(err, ErrOutOfMemory).
	ErrResizeInPlace = fmt.Errorf("%w: cannot resize in place", ErrOutOfMemory)
)
