package alloc

import "errors"

// TestingT is the subset of *testing.T the assertion helpers need. Keeping
// it an interface avoids importing the testing package into production code.
type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// CheckAllAllocationFailures verifies that every error path of fn releases
// exactly what it acquired. fn is run once with pure accounting to establish
// K, the number of allocating calls it makes, and must succeed with balanced
// accounting. It is then run once per fail index in 0..K-1 with an induced
// ErrOutOfMemory at that call; after each run fn must have propagated the
// failure (never swallowed it) and left allocated bytes equal to freed
// bytes.
//
// fn must be deterministic up to the failure point, and must treat the
// Allocator it is given as its only source of memory.
func CheckAllAllocationFailures(t TestingT, upstream Allocator, fn func(a Allocator) error) {
	t.Helper()

	probe := NewFailing(upstream, NeverFail)
	if err := fn(probe); err != nil {
		t.Errorf("function under test failed with no induced failure: %v", err)
		return
	}
	if s := probe.Stats(); s.AllocatedBytes != s.FreedBytes {
		t.Errorf("unbalanced accounting on the success path: allocated %d bytes, freed %d bytes",
			s.AllocatedBytes, s.FreedBytes)
		return
	}

	for k := uint64(0); k < probe.Calls(); k++ {
		f := NewFailing(upstream, k)
		err := fn(f)
		switch {
		case !f.Induced():
			// fn took a different path this run and never reached call k.
		case err == nil:
			t.Errorf("induced failure at allocating call %d was swallowed: fn returned nil", k)
		case !errors.Is(err, ErrOutOfMemory):
			t.Errorf("induced failure at allocating call %d surfaced as %v, want ErrOutOfMemory", k, err)
		}
		if s := f.Stats(); s.AllocatedBytes != s.FreedBytes {
			t.Errorf("error path leaked after induced failure at call %d: allocated %d bytes, freed %d bytes",
				k, s.AllocatedBytes, s.FreedBytes)
		}
	}
}
