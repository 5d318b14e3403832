//go:build linux || darwin || freebsd || netbsd || openbsd

package alloc

import "golang.org/x/sys/unix"

// mapPages maps size bytes of fresh anonymous pages. size must be a multiple
// of the OS page size.
func mapPages(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// unmapPages unmaps a full mapping previously returned by mapPages.
func unmapPages(data []byte) {
	// Munmap requires the exact slice handed out by Mmap; callers restore
	// the full length from cap before getting here.
	_ = unix.Munmap(data)
}
