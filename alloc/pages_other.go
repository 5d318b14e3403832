//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package alloc

import (
	"os"

	"github.com/joshuapare/memkit/internal/arith"
)

// Fallback for platforms without a supported mapping primitive: page-aligned
// regions carved from the Go heap, reclaimed by the garbage collector.
func mapPages(size int) ([]byte, error) {
	pageSize := os.Getpagesize()
	padded, ok := arith.AddOverflowSafe(size, pageSize-1)
	if !ok {
		return nil, ErrOutOfMemory
	}
	raw := make([]byte, padded)
	off := arith.AlignPad(basePtr(raw), pageSize)
	return raw[off : off+size : off+size], nil
}

func unmapPages(data []byte) {}
