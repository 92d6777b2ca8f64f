package actorloop

// Handle is an opaque reference to internal Box state. It carries no
// exported fields, so external code cannot reach through it to mutate the
// state directly; the original value can be recovered only through Unwrap,
// given the Handle's owning loop.
//
// Handle exists for the "raw mutable state references escape only as
// opaque handles" rule in the argument sanitizer (spec §4.A): a handler
// that wants to return a reference to its own internal state without
// exposing it for direct external mutation wraps it in a Handle via
// [EventLoop.WrapHandle].
type Handle struct {
	loop  *EventLoop
	value any
}

// WrapHandle creates an opaque Handle over value, bound to l. Call this from
// within a handler running on l before returning internal state to an
// external caller.
func (l *EventLoop) WrapHandle(value any) *Handle {
	return &Handle{loop: l, value: value}
}

// Unwrap recovers the original value, but only when l is the Handle's own
// owning loop; otherwise it returns false, so the Handle stays opaque to
// every other loop. Only loop identity is checked, not the calling
// goroutine.
func (h *Handle) Unwrap(l *EventLoop) (any, bool) {
	if h == nil || l == nil || h.loop != l {
		return nil, false
	}
	return h.value, true
}

// WrappedInternalObject is a value created inside a loop's handler that
// escapes outward. It carries a non-owning back-reference to its loop and
// the name it was declared under; the loop holds no reference to individual
// wrappers; a wrapper's lifetime cannot exceed the loop's, because the
// loop's shutdown logically invalidates it (spec §9, "Cyclic ownership").
type WrappedInternalObject struct {
	loop  *EventLoop
	name  string
	value any
}

// WrapInternalObject wraps value, created inside a handler running on l,
// for safe passage to external callers. When the wrapper later crosses back
// inbound through this same loop's sanitizer it is transparently unwrapped
// back to value.
func (l *EventLoop) WrapInternalObject(name string, value any) *WrappedInternalObject {
	return &WrappedInternalObject{loop: l, name: name, value: value}
}

// Name returns the name the object was declared under.
func (w *WrappedInternalObject) Name() string {
	return w.name
}

// Loop returns the owning EventLoop.
func (w *WrappedInternalObject) Loop() *EventLoop {
	return w.loop
}
