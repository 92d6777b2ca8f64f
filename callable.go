package actorloop

// Handler is the shape of an async/sync named-call or anonymous proc
// implementation: it receives sanitized arguments and returns a sanitized
// result or an error.
type Handler func(args ...any) (any, error)

// ReplyFunc is handed to a ReplyHandler so it can deliver its result later,
// typically from a background activity. Only the first call has any
// effect; every later call returns a *MultipleResultsError.
type ReplyFunc func(value any, err error) error

// ReplyHandler is the shape of a deferred-reply named call or YieldProc
// implementation.
type ReplyHandler func(reply ReplyFunc, args ...any)

// AsyncProc is the outbound wrapper for a fire-and-forget anonymous
// handler (spec §4.E). Invoking it returns immediately; it is routed like
// an async_call.
type AsyncProc struct {
	loop *EventLoop
	name string
	fn   Handler
}

// NewAsyncProc wraps fn as an AsyncProc bound to loop, for handler code to
// return or pass outward.
func NewAsyncProc(loop *EventLoop, name string, fn Handler) *AsyncProc {
	return &AsyncProc{loop: loop, name: name, fn: fn}
}

// Invoke dispatches the wrapped handler. If the caller is already internal
// to loop, the handler runs synchronously in place; otherwise it is
// dispatched through the engine like any other async call.
func (p *AsyncProc) Invoke(args ...any) error {
	return p.loop.AsyncProcCall(p.name, p.fn, args...)
}

// InvokeWithBlock always fails: block arguments would require a second
// reply route and are unsupported (spec §4.E).
func (p *AsyncProc) InvokeWithBlock(block Handler, args ...any) error {
	return invalidAccess("AsyncProc.InvokeWithBlock", "block arguments are unsupported")
}

// SyncProc is the outbound wrapper for a request/reply anonymous handler.
// Invoking it blocks the caller for the handler's return value.
type SyncProc struct {
	loop *EventLoop
	name string
	fn   Handler
}

// NewSyncProc wraps fn as a SyncProc bound to loop.
func NewSyncProc(loop *EventLoop, name string, fn Handler) *SyncProc {
	return &SyncProc{loop: loop, name: name, fn: fn}
}

// Invoke dispatches the wrapped handler and blocks for its result.
func (p *SyncProc) Invoke(args ...any) (any, error) {
	return p.loop.SyncProcCall(p.name, p.fn, args...)
}

// InvokeWithBlock always fails; see AsyncProc.InvokeWithBlock.
func (p *SyncProc) InvokeWithBlock(block Handler, args ...any) (any, error) {
	return nil, invalidAccess("SyncProc.InvokeWithBlock", "block arguments are unsupported")
}

// YieldProc is the outbound wrapper for a deferred-reply anonymous handler.
// Invoking it blocks the caller until an internally-invoked ReplyFunc
// delivers a value. It can never be invoked internally (spec §4.C).
type YieldProc struct {
	loop *EventLoop
	name string
	fn   ReplyHandler
}

// NewYieldProc wraps fn as a YieldProc bound to loop.
func NewYieldProc(loop *EventLoop, name string, fn ReplyHandler) *YieldProc {
	return &YieldProc{loop: loop, name: name, fn: fn}
}

// Invoke dispatches the wrapped handler and blocks for the eventual reply.
func (p *YieldProc) Invoke(args ...any) (any, error) {
	return p.loop.YieldProcCall(p.name, p.fn, args...)
}

// InvokeWithBlock always fails; see AsyncProc.InvokeWithBlock.
func (p *YieldProc) InvokeWithBlock(block Handler, args ...any) (any, error) {
	return nil, invalidAccess("YieldProc.InvokeWithBlock", "block arguments are unsupported")
}

// ExternalCallable is the one inbound callable kind (spec §4.E): a raw
// callable handed into a loop from outside. It may only be invoked from
// within a handler running on its own loop; invoking it externally fails,
// because its entire purpose is to let internal code call back out without
// losing the serialization guarantee.
type ExternalCallable struct {
	loop *EventLoop
	raw  Handler
}

// wrapExternalCallable binds raw to loop. Used by the sanitizer's inbound
// path; not exported because callers obtain ExternalCallables exclusively
// by passing plain functions across the boundary.
func wrapExternalCallable(loop *EventLoop, raw Handler) *ExternalCallable {
	return &ExternalCallable{loop: loop, raw: raw}
}

// Invoke calls the wrapped external callable. It must be called from a
// handler running on the owning loop and from a frame with an active reply
// channel (sync/yield calls and sync/yield procs); async calls, async
// procs, and timer fires have no reply channel to route the callback
// through and are rejected with InvalidAccess, as is an external-side
// invocation, which must unwrap the raw callable first.
func (ec *ExternalCallable) Invoke(args ...any) (any, error) {
	if !ec.loop.isInternal() {
		return nil, invalidAccess("ExternalCallable.Invoke", "must be unwrapped before invocation from outside its loop")
	}
	frame := ec.loop.currentFrame
	if frame == nil || frame.reply == nil {
		return nil, invalidAccess("ExternalCallable.Invoke", "no reply channel to route the callback through")
	}

	cb := &Callback{Fn: ec, Args: args, result: make(chan callbackResult, 1)}
	frame.reply.pushCallback(cb)
	res := <-cb.result
	return res.value, res.err
}
