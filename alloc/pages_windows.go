//go:build windows

package alloc

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapPages commits size bytes of fresh pages via VirtualAlloc. size must be a
// multiple of the OS page size.
func mapPages(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// unmapPages releases a full region previously returned by mapPages.
func unmapPages(data []byte) {
	_ = windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(data))), 0, windows.MEM_RELEASE)
}
