package scope

// entry is one registered cleanup action.
type entry struct {
	fn      func()
	errOnly bool
}

// Scope is an unwind list: cleanup actions registered during a function's
// forward progress, executed in strictly reverse order of registration when
// the scope closes. The zero value is ready to use.
//
//	func build(a alloc.Allocator) (out *Thing, err error) {
//	    var s scope.Scope
//	    defer s.Close(&err)
//
//	    first, err := alloc.New[Part](a)
//	    if err != nil {
//	        return nil, err
//	    }
//	    s.OnError(func() { alloc.Destroy(a, first) })
//	    ...
//	}
//
// A Scope is single-owner and not safe for concurrent use.
type Scope struct {
	entries []entry
	closed  bool
}

// Defer registers fn to run when the scope closes, on every exit path.
func (s *Scope) Defer(fn func()) {
	s.entries = append(s.entries, entry{fn: fn})
}

// OnError registers fn to run when the scope closes along an error exit - a
// non-nil *errp or an unwinding panic. fn is skipped entirely on the normal
// return path.
func (s *Scope) OnError(fn func()) {
	s.entries = append(s.entries, entry{fn: fn, errOnly: true})
}

// Close runs the registered cleanups in reverse order of registration.
// It must be invoked as `defer s.Close(&err)` on the named error result:
// called that way it also observes panics unwinding through the frame, so
// error-only cleanups run on panic exits too, and the panic continues
// afterwards. Cleanups run exactly once; a second Close is a no-op. A panic
// inside one cleanup does not skip the remaining ones.
func (s *Scope) Close(errp *error) {
	if s.closed {
		return
	}
	s.closed = true

	rec := recover()
	failed := rec != nil || (errp != nil && *errp != nil)

	var cleanupPanic any
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.errOnly && !failed {
			continue
		}
		func() {
			defer func() {
				if p := recover(); p != nil && cleanupPanic == nil {
					cleanupPanic = p
				}
			}()
			e.fn()
		}()
	}
	s.entries = nil

	if rec != nil {
		panic(rec)
	}
	if cleanupPanic != nil {
		panic(cleanupPanic)
	}
}

// Guard is a single cleanup action armed at construction and disarmed by
// Release on the success path - the usual shape for "release this unless
// construction completes".
//
//	buf, err := a.Alloc(n, 8)
//	if err != nil {
//	    return nil, err
//	}
//	g := scope.NewGuard(func() { a.Free(buf) })
//	defer g.Run()
//	...
//	g.Release() // success: caller takes ownership of buf
type Guard struct {
	fn   func()
	done bool
}

// NewGuard returns an armed Guard running fn.
func NewGuard(fn func()) *Guard {
	return &Guard{fn: fn}
}

// Run executes the guarded cleanup unless it already ran or was released.
func (g *Guard) Run() {
	if g.done {
		return
	}
	g.done = true
	g.fn()
}

// Release disarms the guard so Run becomes a no-op.
func (g *Guard) Release() {
	g.done = true
}
