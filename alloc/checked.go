package alloc

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/eapache/queue"
)

const (
	// DefaultPoisonByte fills freed regions while they sit in quarantine.
	// A read of a quarantined region observes this pattern; a write destroys
	// it and is reported as a use-after-free when the region is next audited.
	DefaultPoisonByte = 0xDD

	// DefaultQuarantineBytes bounds the quarantine when CheckedConfig leaves
	// it unset (1 MiB). Oldest regions are evicted first.
	DefaultQuarantineBytes = 1 << 20
)

// defCaptureFrames is how many frames up runtime.Caller looks when recording
// an allocation's capture site: the immediate caller of Alloc.
const defCaptureFrames = 1

// Use the environment variable MEMKIT_CHECKED_ALLOC_FRAMES to control how
// many frames up the capture site is taken from, when helper wrappers of a
// different depth sit between the real caller and the allocator.
var captureFrames = defCaptureFrames

// Runtime debug flag for allocation logging - controlled by MEMKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("MEMKIT_LOG_ALLOC") != ""

func init() {
	if val, ok := os.LookupEnv("MEMKIT_CHECKED_ALLOC_FRAMES"); ok {
		if f, err := strconv.Atoi(val); err == nil {
			captureFrames = f
		}
	}
}

// CheckedConfig tunes a CheckedAllocator. The zero value selects the
// defaults.
type CheckedConfig struct {
	// QuarantineBytes bounds how many freed bytes are held back from reuse to
	// keep double-free and use-after-free detectable. 0 selects
	// DefaultQuarantineBytes; negative disables the quarantine entirely
	// (frees forward to the upstream immediately, detection degrades to the
	// live table only).
	QuarantineBytes int

	// PoisonByte overrides the fill pattern for freed regions. 0 selects
	// DefaultPoisonByte.
	PoisonByte byte
}

// allocSite is the capture site recorded for every live allocation:
// a monotonically increasing operation sequence number, the requesting
// file:line, and the optional caller-supplied tag in effect at Alloc time.
type allocSite struct {
	size  int
	align int
	seq   uint64
	tag   string
	file  string
	line  int
}

func (s *allocSite) String() string {
	tag := ""
	if s.tag != "" {
		tag = fmt.Sprintf(" tag %q", s.tag)
	}
	return fmt.Sprintf("%d bytes align %d (alloc #%d%s) from %s:%d",
		s.size, s.align, s.seq, tag, s.file, s.line)
}

// quarEntry is a freed region held in quarantine. buf keeps the backing
// storage reachable so its base address cannot be handed out again while
// quarantined. A nil buf is a tombstone left behind when the upstream reused
// the address legitimately.
type quarEntry struct {
	buf     []byte
	site    *allocSite
	freeSeq uint64
}

// CheckedAllocator wraps an upstream allocator with bookkeeping that converts
// silent memory corruption into immediately-fatal, diagnosable reports:
//
//   - every live allocation is recorded with its size, alignment, sequence
//     number, optional tag, and requesting file:line;
//   - freeing a region that is not live panics - as a double free citing the
//     original allocation site when the region is found in the quarantine, or
//     as an unknown-pointer free otherwise;
//   - freed regions are poisoned and quarantined so their addresses are not
//     immediately reused, keeping use-after-free writes detectable;
//   - Close audits the live table and reports every un-freed allocation.
//
// CheckedAllocator is safe for use from multiple goroutines and is the
// recommended default wrapper for concurrent code. All bookkeeping happens
// under a single mutex held across the whole operation.
type CheckedAllocator struct {
	upstream Allocator
	cfg      CheckedConfig

	mu        sync.Mutex
	live      map[uintptr]*allocSite
	quar      *queue.Queue
	quarIndex map[uintptr]*quarEntry
	quarBytes int
	seq       uint64
	tag       string
	netBytes  int64
	closed    bool
}

// NewChecked returns a CheckedAllocator wrapping upstream with the default
// configuration.
func NewChecked(upstream Allocator) *CheckedAllocator {
	return NewCheckedConfig(upstream, CheckedConfig{})
}

// NewCheckedConfig is NewChecked with explicit configuration.
func NewCheckedConfig(upstream Allocator, cfg CheckedConfig) *CheckedAllocator {
	return &CheckedAllocator{
		upstream:  upstream,
		cfg:       cfg,
		live:      make(map[uintptr]*allocSite),
		quar:      queue.New(),
		quarIndex: make(map[uintptr]*quarEntry),
	}
}

func (c *CheckedAllocator) poison() byte {
	if c.cfg.PoisonByte != 0 {
		return c.cfg.PoisonByte
	}
	return DefaultPoisonByte
}

func (c *CheckedAllocator) quarLimit() int {
	if c.cfg.QuarantineBytes == 0 {
		return DefaultQuarantineBytes
	}
	return c.cfg.QuarantineBytes
}

// Alloc forwards to the upstream allocator and records the capture site for
// the returned region.
func (c *CheckedAllocator) Alloc(size, align int) ([]byte, error) {
	checkSize(size)
	checkAlign(align)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()

	out, err := c.upstream.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return out, nil
	}

	base := basePtr(out)
	// The upstream may legitimately hand an evicted-and-reclaimed address
	// back out; a stale quarantine entry for it must not masquerade as a
	// double free later.
	if e, ok := c.quarIndex[base]; ok {
		c.quarBytes -= len(e.buf)
		e.buf = nil
		delete(c.quarIndex, base)
	}

	c.seq++
	site := &allocSite{size: size, align: align, seq: c.seq, tag: c.tag}
	if _, file, line, ok := runtime.Caller(captureFrames); ok {
		site.file, site.line = file, line
	}
	c.live[base] = site
	c.netBytes += int64(size)

	if logAlloc {
		log.Printf("memkit: alloc %s", site)
	}
	return out, nil
}

// Resize forwards to the upstream allocator and updates the region's
// bookkeeping. Shrinking to zero releases the region entirely and returns
// the shared zero-size handle, which needs no Free. Resizing a handle this
// instance does not consider live is a contract violation and panics.
func (c *CheckedAllocator) Resize(buf []byte, newSize int) ([]byte, error) {
	checkSize(newSize)
	if len(buf) == 0 {
		return nil, ErrResizeInPlace
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()

	base := basePtr(buf)
	site, ok := c.live[base]
	if !ok {
		c.panicNotLive("resize", buf, base)
	}
	if site.size != len(buf) {
		panic(fmt.Sprintf("alloc: resize with mismatched handle length %d, allocation is %s",
			len(buf), site))
	}
	if newSize == 0 {
		c.releaseLocked(buf, site, base)
		return zeroRegion, nil
	}

	out, err := c.upstream.Resize(buf, newSize)
	if err != nil {
		return nil, err
	}

	c.seq++
	c.netBytes += int64(newSize - site.size)
	site.size = newSize
	if newBase := basePtr(out); newBase != base {
		delete(c.live, base)
		c.live[newBase] = site
	}
	return out, nil
}

// Free removes the region from the live table, poisons it, and quarantines
// it. Freeing a region that is not live is fatal: a double free when the
// region is still quarantined, an unknown-pointer free otherwise.
func (c *CheckedAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()

	base := basePtr(buf)
	site, ok := c.live[base]
	if !ok {
		c.panicNotLive("free", buf, base)
	}
	if site.size != len(buf) {
		panic(fmt.Sprintf("alloc: free with mismatched handle length %d, allocation is %s",
			len(buf), site))
	}
	c.releaseLocked(buf, site, base)
}

// releaseLocked removes a validated live region from the table, poisons it,
// and quarantines it (or forwards it straight upstream when the quarantine
// is disabled).
func (c *CheckedAllocator) releaseLocked(buf []byte, site *allocSite, base uintptr) {
	delete(c.live, base)
	c.seq++
	c.netBytes -= int64(site.size)

	if logAlloc {
		log.Printf("memkit: free #%d of %s", c.seq, site)
	}

	p := c.poison()
	for i := range buf {
		buf[i] = p
	}

	if c.quarLimit() < 0 {
		c.upstream.Free(buf)
		return
	}
	e := &quarEntry{buf: buf, site: site, freeSeq: c.seq}
	c.quar.Add(e)
	c.quarIndex[base] = e
	c.quarBytes += len(buf)
	c.evictLocked(c.quarLimit())
}

// panicNotLive reports a fatal contract violation for an operation on a
// handle that is not in the live table.
func (c *CheckedAllocator) panicNotLive(op string, buf []byte, base uintptr) {
	if e, ok := c.quarIndex[base]; ok {
		panic(fmt.Sprintf("alloc: double free: %s of quarantined region, allocated as %s, first freed as op #%d",
			op, e.site, e.freeSeq))
	}
	panic(fmt.Sprintf("alloc: %s of unknown pointer 0x%x (len %d): not live on this allocator instance",
		op, base, len(buf)))
}

// evictLocked forwards the oldest quarantined regions to the upstream until
// the quarantine fits limit, auditing their poison on the way out.
func (c *CheckedAllocator) evictLocked(limit int) {
	for c.quarBytes > limit && c.quar.Length() > 0 {
		e := c.quar.Remove().(*quarEntry)
		if e.buf == nil {
			continue
		}
		c.auditPoison(e)
		delete(c.quarIndex, basePtr(e.buf))
		c.quarBytes -= len(e.buf)
		c.upstream.Free(e.buf)
	}
}

// auditPoison panics when a quarantined region no longer carries the poison
// pattern, which means something wrote through a freed handle.
func (c *CheckedAllocator) auditPoison(e *quarEntry) {
	p := c.poison()
	for i, b := range e.buf {
		if b != p {
			panic(fmt.Sprintf("alloc: use-after-free write detected at byte %d of freed region (0x%02x, want 0x%02x), allocated as %s, freed as op #%d",
				i, b, p, e.site, e.freeSeq))
		}
	}
}

// CheckPoison audits every quarantined region, panicking on the first
// use-after-free write it finds. Close performs the same audit; calling this
// earlier narrows down when the stray write happened.
func (c *CheckedAllocator) CheckPoison() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()
	for i := 0; i < c.quar.Length(); i++ {
		e := c.quar.Get(i).(*quarEntry)
		if e.buf == nil {
			continue
		}
		c.auditPoison(e)
	}
}

// CurrentAlloc returns the net number of live bytes: allocated minus freed.
func (c *CheckedAllocator) CurrentAlloc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()
	return int(c.netBytes)
}

// LiveCount returns the number of live allocations.
func (c *CheckedAllocator) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()
	return len(c.live)
}

// SetTag labels subsequent allocations with tag, so leak reports can say
// which subsystem or request the allocation belonged to. ClearTag removes it.
func (c *CheckedAllocator) SetTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()
	c.tag = tag
}

// ClearTag removes the label set by SetTag.
func (c *CheckedAllocator) ClearTag() {
	c.SetTag("")
}

// Leak describes one allocation that was never freed, with enough context to
// locate the missing free without re-running under a heavier tool.
type Leak struct {
	Size  int
	Align int
	Seq   uint64
	Tag   string
	File  string
	Line  int
}

// LeakError reports every allocation still live at Close, oldest first.
type LeakError struct {
	Leaks []Leak
	Bytes int
}

func (e *LeakError) Error() string {
	return fmt.Sprintf("alloc: %d leaked allocation(s), %d bytes total", len(e.Leaks), e.Bytes)
}

// Close shuts the allocator down: the quarantine is audited for
// use-after-free damage and drained to the upstream, and any allocation
// still live is reported as a leak via a *LeakError. A clean shutdown
// returns nil. Using the allocator after Close panics.
func (c *CheckedAllocator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for c.quar.Length() > 0 {
		e := c.quar.Remove().(*quarEntry)
		if e.buf == nil {
			continue
		}
		c.auditPoison(e)
		c.upstream.Free(e.buf)
	}
	c.quarIndex = nil
	c.quarBytes = 0

	if len(c.live) == 0 {
		return nil
	}
	leaks := make([]Leak, 0, len(c.live))
	bytes := 0
	for _, site := range c.live {
		leaks = append(leaks, Leak{
			Size: site.size, Align: site.align, Seq: site.seq,
			Tag: site.tag, File: site.file, Line: site.line,
		})
		bytes += site.size
	}
	sort.Slice(leaks, func(i, j int) bool { return leaks[i].Seq < leaks[j].Seq })
	return &LeakError{Leaks: leaks, Bytes: bytes}
}

// AssertAllFreed reports every live allocation as a test error, with its
// capture site, and fails when net live bytes are non-zero. The allocator
// remains usable afterwards.
func (c *CheckedAllocator) AssertAllFreed(t TestingT) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicIfClosed()

	sites := make([]*allocSite, 0, len(c.live))
	for _, site := range c.live {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].seq < sites[j].seq })
	for _, site := range sites {
		t.Errorf("LEAK of %s", site)
	}
	if c.netBytes != 0 {
		t.Errorf("invalid live memory size exp=0, got=%d", c.netBytes)
	}
}

func (c *CheckedAllocator) panicIfClosed() {
	if c.closed {
		panic("alloc: checked allocator used after Close")
	}
}

var _ Allocator = (*CheckedAllocator)(nil)
