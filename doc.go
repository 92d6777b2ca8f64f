// Package actorloop turns an ordinary Go value into a serialized
// event-processing entity, often called a Box.
//
// A Box owns private mutable state that may only be mutated from one logical
// execution context at a time: calls arriving from other goroutines,
// background activities, and scheduled timers are all marshalled through a
// single [EventLoop] and processed one at a time under its serialization
// lock.
//
// # Call disciplines
//
// Three call disciplines reach into a Box:
//
//   - [EventLoop.AsyncCall] — fire-and-forget; the caller does not wait.
//   - [EventLoop.SyncCall] — request/reply; the caller blocks for a value.
//   - [EventLoop.YieldCall] — deferred-reply; the handler is handed a reply
//     function and may return before the value is produced, typically by
//     completing the reply from a background activity.
//
// Anonymous analogues ([AsyncProc], [SyncProc], [YieldProc]) wrap a plain
// handler function without an associated named call, for passing behavior
// across the boundary rather than data.
//
// # Boundary crossing
//
// Every argument and result crossing into or out of the internal context is
// sanitized: raw callables arriving from outside are wrapped as
// [ExternalCallable] so their invocation path depends on whether the caller
// already holds the loop's serialization lock, and internal object handles
// ([Handle], [WrappedInternalObject]) never leak direct references to
// mutable Box state.
//
// # Background activities and timers
//
// [EventLoop.StartActivity] spawns a goroutine that cooperates with the Box
// via ordinary dispatched calls and can be aborted cleanly at its next
// suspension point. The timer service in timer.go, layered on top of the
// Activity Manager, gives a Box one-shot and periodic alarms that fire back
// into the loop as ordinary internal calls.
package actorloop
