package alloc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panicMessage runs fn, requires that it panics, and returns the panic value
// formatted as a string for message assertions.
func panicMessage(t *testing.T, fn func()) string {
	t.Helper()
	var msg string
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a panic")
			msg = fmt.Sprint(r)
		}()
		fn()
	}()
	return msg
}

// TestChecked_CleanShutdown tests that a balanced allocate/free sequence
// closes without a report.
func TestChecked_CleanShutdown(t *testing.T) {
	c := NewChecked(NewHeap())

	var handles [][]byte
	for i := 1; i <= 8; i++ {
		buf, err := c.Alloc(i*16, 8)
		require.NoError(t, err)
		handles = append(handles, buf)
	}
	require.NotZero(t, c.CurrentAlloc())

	for _, h := range handles {
		c.Free(h)
	}
	assert.Zero(t, c.CurrentAlloc())
	assert.Zero(t, c.LiveCount())
	require.NoError(t, c.Close())
}

// TestChecked_LeakDetectionExact tests that Close reports exactly the set of
// un-freed allocations: no false positives, no omissions.
func TestChecked_LeakDetectionExact(t *testing.T) {
	c := NewChecked(NewHeap())

	kept, err := c.Alloc(64, 8)
	require.NoError(t, err)
	_ = kept
	freed, err := c.Alloc(32, 16)
	require.NoError(t, err)
	keptToo, err := c.Alloc(128, 8)
	require.NoError(t, err)
	_ = keptToo
	c.Free(freed)

	err = c.Close()
	require.Error(t, err)
	var leakErr *LeakError
	require.ErrorAs(t, err, &leakErr)
	require.Len(t, leakErr.Leaks, 2, "exactly the two un-freed allocations")
	assert.Equal(t, 192, leakErr.Bytes)

	// Oldest first, with size, alignment, and capture site intact.
	assert.Equal(t, 64, leakErr.Leaks[0].Size)
	assert.Equal(t, 8, leakErr.Leaks[0].Align)
	assert.Equal(t, 128, leakErr.Leaks[1].Size)
	assert.Less(t, leakErr.Leaks[0].Seq, leakErr.Leaks[1].Seq)
	for _, l := range leakErr.Leaks {
		assert.Contains(t, l.File, "checked_test.go", "capture site should point at the allocating caller")
		assert.NotZero(t, l.Line)
	}
}

// TestChecked_DoubleFreePanics tests the scenario: allocate H, free H, free
// H again - the second free is fatal and cites H's original allocation site.
func TestChecked_DoubleFreePanics(t *testing.T) {
	c := NewChecked(NewHeap())

	h, err := c.Alloc(64, 8)
	require.NoError(t, err)
	c.Free(h)

	msg := panicMessage(t, func() { c.Free(h) })
	assert.Contains(t, msg, "double free")
	assert.Contains(t, msg, "64 bytes")
	assert.Contains(t, msg, "checked_test.go", "diagnostic must cite the original allocation site")
}

// TestChecked_UnknownPointerFreePanics tests that freeing memory this
// instance never allocated is fatal.
func TestChecked_UnknownPointerFreePanics(t *testing.T) {
	c := NewChecked(NewHeap())

	msg := panicMessage(t, func() { c.Free(make([]byte, 32)) })
	assert.Contains(t, msg, "unknown pointer")
}

// TestChecked_CrossInstanceFreePanics tests that a handle from one checked
// instance is rejected by another.
func TestChecked_CrossInstanceFreePanics(t *testing.T) {
	c1 := NewChecked(NewHeap())
	c2 := NewChecked(NewHeap())

	h, err := c1.Alloc(16, 8)
	require.NoError(t, err)

	assert.Panics(t, func() { c2.Free(h) })
	c1.Free(h)
	require.NoError(t, c1.Close())
}

// TestChecked_MismatchedLengthPanics tests that freeing a sub-slice of a
// handle is a contract violation, not a partial free.
func TestChecked_MismatchedLengthPanics(t *testing.T) {
	c := NewChecked(NewHeap())

	h, err := c.Alloc(64, 8)
	require.NoError(t, err)

	msg := panicMessage(t, func() { c.Free(h[:16]) })
	assert.Contains(t, msg, "mismatched handle length")
}

// TestChecked_UseAfterFreeDetected tests that a write through a freed handle
// destroys the poison pattern and is reported on the next audit.
func TestChecked_UseAfterFreeDetected(t *testing.T) {
	c := NewChecked(NewHeap())

	h, err := c.Alloc(64, 8)
	require.NoError(t, err)
	c.Free(h)

	// Every freed byte carries the poison pattern while quarantined.
	for i := range h {
		require.Equal(t, byte(DefaultPoisonByte), h[i])
	}

	h[17] = 0x00 // stray write through the stale handle

	msg := panicMessage(t, func() { c.CheckPoison() })
	assert.Contains(t, msg, "use-after-free")
	assert.Contains(t, msg, "byte 17")
}

// TestChecked_QuarantineEviction tests that the quarantine is bounded and
// evicts oldest-first to the upstream.
func TestChecked_QuarantineEviction(t *testing.T) {
	up := NewFailing(NewHeap(), NeverFail)
	c := NewCheckedConfig(up, CheckedConfig{QuarantineBytes: 256})

	var handles [][]byte
	for range 8 {
		buf, err := c.Alloc(64, 8)
		require.NoError(t, err)
		handles = append(handles, buf)
	}
	for _, h := range handles {
		c.Free(h)
	}

	// 8*64 = 512 freed bytes against a 256-byte quarantine: the oldest four
	// regions must have been forwarded upstream already.
	assert.Equal(t, uint64(4), up.Stats().Deallocations)

	require.NoError(t, c.Close())
	s := up.Stats()
	assert.Equal(t, s.AllocatedBytes, s.FreedBytes, "Close drains the quarantine upstream")
}

// TestChecked_QuarantineDisabled tests immediate upstream forwarding when
// the quarantine is turned off.
func TestChecked_QuarantineDisabled(t *testing.T) {
	up := NewFailing(NewHeap(), NeverFail)
	c := NewCheckedConfig(up, CheckedConfig{QuarantineBytes: -1})

	buf, err := c.Alloc(64, 8)
	require.NoError(t, err)
	c.Free(buf)
	assert.Equal(t, uint64(1), up.Stats().Deallocations)
	require.NoError(t, c.Close())
}

// TestChecked_ResizeTracking tests that in-place resizes keep the live table
// and net byte count coherent.
func TestChecked_ResizeTracking(t *testing.T) {
	c := NewChecked(NewFixedBuffer(make([]byte, 1024)))

	buf, err := c.Alloc(100, 8)
	require.NoError(t, err)
	assert.Equal(t, 100, c.CurrentAlloc())

	grown, err := c.Resize(buf, 300)
	require.NoError(t, err)
	require.Len(t, grown, 300)
	assert.Equal(t, 300, c.CurrentAlloc())

	shrunk, err := c.Resize(grown, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, c.CurrentAlloc())

	c.Free(shrunk)
	assert.Zero(t, c.CurrentAlloc())
	require.NoError(t, c.Close())
}

// TestChecked_ResizeUnknownPanics tests that resizing a foreign handle is
// fatal.
func TestChecked_ResizeUnknownPanics(t *testing.T) {
	c := NewChecked(NewHeap())
	assert.Panics(t, func() { _, _ = c.Resize(make([]byte, 8), 16) })
}

// TestChecked_ResizeFailureLeavesHandleValid tests the never-freed-on-failure
// guarantee through the instrumented layer.
func TestChecked_ResizeFailureLeavesHandleValid(t *testing.T) {
	c := NewChecked(NewFixedBuffer(make([]byte, 128)))

	buf, err := c.Alloc(64, 8)
	require.NoError(t, err)
	_, err = c.Alloc(32, 8)
	require.NoError(t, err)

	_, err = c.Resize(buf, 1024)
	require.ErrorIs(t, err, ErrOutOfMemory)

	// The original handle is still live and freeable.
	c.Free(buf)
	assert.Equal(t, 32, c.CurrentAlloc())
}

// TestChecked_Tagging tests that caller-supplied tags reach leak reports.
func TestChecked_Tagging(t *testing.T) {
	c := NewChecked(NewHeap())

	c.SetTag("request-7")
	_, err := c.Alloc(48, 8)
	require.NoError(t, err)
	c.ClearTag()
	untagged, err := c.Alloc(16, 8)
	require.NoError(t, err)
	c.Free(untagged)

	err = c.Close()
	var leakErr *LeakError
	require.ErrorAs(t, err, &leakErr)
	require.Len(t, leakErr.Leaks, 1)
	assert.Equal(t, "request-7", leakErr.Leaks[0].Tag)
}

// TestChecked_AssertAllFreed tests the test-facing leak reporter against a
// recording TestingT.
func TestChecked_AssertAllFreed(t *testing.T) {
	c := NewChecked(NewHeap())

	rec := &recordingT{}
	c.AssertAllFreed(rec)
	assert.Empty(t, rec.errors, "no leaks, no errors")

	_, err := c.Alloc(32, 8)
	require.NoError(t, err)
	c.AssertAllFreed(rec)
	require.NotEmpty(t, rec.errors)
	assert.Contains(t, rec.errors[0], "LEAK")
}

// TestChecked_ResizeToZeroReleases tests that shrinking a region to zero
// releases it like a free: nothing stays live, the shared zero-size handle
// comes back, and the original handle is gone.
func TestChecked_ResizeToZeroReleases(t *testing.T) {
	c := NewChecked(NewHeap())

	buf, err := c.Alloc(64, 8)
	require.NoError(t, err)

	out, err := c.Resize(buf, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, c.LiveCount())
	assert.Zero(t, c.CurrentAlloc())

	// The region went through the usual free path: a second release of the
	// original handle is a double free.
	msg := panicMessage(t, func() { c.Free(buf) })
	assert.Contains(t, msg, "double free")

	require.NoError(t, c.Close())
}

// TestChecked_UseAfterClosePanics tests lifecycle enforcement.
func TestChecked_UseAfterClosePanics(t *testing.T) {
	c := NewChecked(NewHeap())
	require.NoError(t, c.Close())

	assert.Panics(t, func() { _, _ = c.Alloc(8, 8) })
	assert.Panics(t, func() { c.Free(make([]byte, 8)) })
	assert.Panics(t, func() { c.SetTag("late") })
	assert.Panics(t, func() { _ = c.CurrentAlloc() })
	assert.Panics(t, func() { _ = c.LiveCount() })
	assert.Panics(t, func() { c.CheckPoison() })
	assert.Panics(t, func() { c.AssertAllFreed(&recordingT{}) })
	assert.NotPanics(t, func() { _ = c.Close() }, "repeated Close is a no-op")
}

// TestChecked_ZeroSizeUntracked tests that zero-size allocations carry no
// bookkeeping.
func TestChecked_ZeroSizeUntracked(t *testing.T) {
	c := NewChecked(NewHeap())

	buf, err := c.Alloc(0, 8)
	require.NoError(t, err)
	require.Empty(t, buf)
	assert.Zero(t, c.LiveCount())
	c.Free(buf)
	require.NoError(t, c.Close())
}

// TestChecked_ConcurrentUse is a smoke test for the thread-safety
// classification: concurrent allocate/free cycles with a shared instance.
func TestChecked_ConcurrentUse(t *testing.T) {
	c := NewChecked(NewHeap())

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 200 {
				buf, err := c.Alloc(16+(g*i)%64, 8)
				if err != nil {
					t.Error(err)
					return
				}
				c.Free(buf)
			}
		}(g)
	}
	wg.Wait()

	assert.Zero(t, c.CurrentAlloc())
	require.NoError(t, c.Close())
}

// recordingT captures Errorf calls for asserting on assertion helpers.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) Helper() {}
