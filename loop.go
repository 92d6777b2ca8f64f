package actorloop

import (
	"sync"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// task is one unit of work queued to the worker goroutine. It returns true
// when the worker should stop after running it, used exactly once, by the
// task Shutdown pushes.
type task func() (stop bool)

// EventLoop is a Box's serializer and dispatcher (spec §1): every call
// into a box's state, whether async, sync, or deferred-reply, is executed
// one at a time on a single dedicated worker goroutine, so handler code
// never needs its own locking.
//
// An EventLoop is meant to be embedded in, or held by, a user-defined Box
// type; the loop itself carries no application state, only the machinery
// that serializes access to it.
type EventLoop struct {
	name string

	queue    *fifo[task]
	workerID atomic.Uint64
	busy     atomic.Bool

	shutdownFlag shutdownFlag
	shutdownOnce sync.Once
	shutdownDone chan struct{}

	// currentFrame is only ever read or written by the worker goroutine
	// itself; see isInternal.
	currentFrame *Frame

	logger    Logger
	guardTime time.Duration
	guardRate *catrate.Limiter

	activities *activityManager
	timers     *timerService
}

// New starts a new EventLoop and blocks until its worker goroutine is
// running and ready to accept calls.
func New(opts ...Option) *EventLoop {
	o := defaultLoopOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	l := &EventLoop{
		name:         o.name,
		queue:        newFIFO[task](),
		logger:       o.logger,
		guardTime:    o.guardTime,
		shutdownDone: make(chan struct{}),
	}
	if o.guardTime > 0 {
		l.guardRate = catrate.NewLimiter(map[time.Duration]int{o.guardRateWin: o.guardRateMax})
	}
	l.activities = newActivityManager(l)
	l.activities.pool = o.pool
	l.timers = newTimerService(l)

	ready := make(chan struct{})
	go l.run(ready)
	<-ready
	return l
}

// Name returns the loop's configured name.
func (l *EventLoop) Name() string { return l.name }

func (l *EventLoop) run(ready chan struct{}) {
	l.workerID.Store(currentGoroutineID())
	l.timers.handle = l.startActivity("timer-worker", l.timers.run, false, true)
	close(ready)

	for {
		t := l.queue.pop()
		l.busy.Store(true)
		stop := t()
		l.busy.Store(false)
		if stop {
			l.finishShutdown()
			return
		}
	}
}

// isInternal reports whether the calling goroutine is this loop's own
// worker goroutine, i.e. whether it is already inside a handler running on
// this loop (spec §4, ctrl_thread identity).
func (l *EventLoop) isInternal() bool {
	return currentGoroutineID() == l.workerID.Load()
}

// State reports the loop's lifecycle state.
func (l *EventLoop) State() loopState {
	if l.shutdownFlag.isSet() {
		select {
		case <-l.shutdownDone:
			return stateShut
		default:
			return stateServing // shutdown requested, worker still draining
		}
	}
	if l.busy.Load() {
		return stateServing
	}
	return stateIdle
}

// IsShutdown reports whether Shutdown has completed.
func (l *EventLoop) IsShutdown() bool {
	select {
	case <-l.shutdownDone:
		return true
	default:
		return false
	}
}

// runHandler invokes fn with the loop's guard-time diagnostic, logging a
// warning (rate-limited per box name) when fn runs longer than the
// configured guard time. It never alters fn's return values.
func (l *EventLoop) runHandler(name string, fn Handler, args []any) (any, error) {
	if l.guardTime <= 0 {
		return fn(args...)
	}
	start := time.Now()
	out, err := fn(args...)
	if elapsed := time.Since(start); elapsed > l.guardTime {
		if l.guardRate == nil || allowGuardWarn(l.guardRate, l.name) {
			l.logWarn("handler exceeded guard time", "call", name, "elapsed", elapsed, "guard_time", l.guardTime)
		}
	}
	return out, err
}

func allowGuardWarn(limiter *catrate.Limiter, category string) bool {
	_, ok := limiter.Allow(category)
	return ok
}

// AsyncCall dispatches a fire-and-forget named call (spec §4.C). It
// returns once the call has been accepted for execution; any error the
// handler itself returns is logged, not propagated, since there is no
// caller left waiting for it.
func (l *EventLoop) AsyncCall(name string, fn Handler, args ...any) error {
	return l.dispatchAsync(KindAsync, name, fn, args)
}

// AsyncProcCall is the anonymous analogue of AsyncCall, used to invoke an
// AsyncProc rather than a named call (spec §4.C).
func (l *EventLoop) AsyncProcCall(name string, fn Handler, args ...any) error {
	return l.dispatchAsync(KindAsyncProc, name, fn, args)
}

func (l *EventLoop) dispatchAsync(kind CallKind, name string, fn Handler, args []any) error {
	if l.shutdownFlag.isSet() {
		return ErrShutdown
	}
	in, err := l.sanitizeInbound(args)
	if err != nil {
		return err
	}

	run := func() {
		if _, herr := l.runHandler(name, fn, in); herr != nil {
			l.logWarn("async call returned error", "call", name, "error", herr)
		}
	}

	if l.isInternal() {
		run()
		return nil
	}

	if !l.queue.pushUnlessClosed(func() bool {
		l.currentFrame = &Frame{Kind: kind, Name: name}
		run()
		l.currentFrame = nil
		return false
	}) {
		return ErrShutdown
	}
	return nil
}

// SyncCall dispatches a request/reply named call (spec §4.C), blocking
// until the handler's result is available.
func (l *EventLoop) SyncCall(name string, fn Handler, args ...any) (any, error) {
	return l.dispatchSync(KindSyncReply, name, fn, args)
}

// SyncProcCall is the anonymous analogue of SyncCall, used to invoke a
// SyncProc rather than a named call (spec §4.C).
func (l *EventLoop) SyncProcCall(name string, fn Handler, args ...any) (any, error) {
	return l.dispatchSync(KindSyncProc, name, fn, args)
}

func (l *EventLoop) dispatchSync(kind CallKind, name string, fn Handler, args []any) (any, error) {
	if l.shutdownFlag.isSet() {
		return nil, ErrShutdown
	}
	in, err := l.sanitizeInbound(args)
	if err != nil {
		return nil, err
	}

	if l.isInternal() {
		out, herr := l.runHandler(name, fn, in)
		if herr != nil {
			return nil, herr
		}
		return l.sanitizeOutboundValue(out)
	}

	rc := newReplyChannel()
	if !l.queue.pushUnlessClosed(func() bool {
		l.currentFrame = &Frame{Kind: kind, Name: name, reply: rc}
		out, herr := l.runHandler(name, fn, in)
		l.currentFrame = nil
		// Clear busy before replying, so a caller holding its result
		// already sees the loop as Idle.
		l.busy.Store(false)
		sanitized, sErr := l.sanitizeOutboundValue(out)
		if sErr != nil {
			rc.pushResult(nil, sErr)
		} else {
			rc.pushResult(sanitized, herr)
		}
		return false
	}) {
		return nil, ErrShutdown
	}
	return rc.await()
}

// YieldCall dispatches a deferred-reply named call (spec §4.C). The
// handler is given a ReplyFunc and may return before the result is
// produced; the caller blocks until that ReplyFunc is eventually invoked.
// It can never be invoked by code already running on this loop: there is
// no external caller left to service the eventual reply.
func (l *EventLoop) YieldCall(name string, fn ReplyHandler, args ...any) (any, error) {
	return l.dispatchYield(KindDeferredReply, name, fn, args)
}

// YieldProcCall is the anonymous analogue of YieldCall, used to invoke a
// YieldProc rather than a named call (spec §4.C).
func (l *EventLoop) YieldProcCall(name string, fn ReplyHandler, args ...any) (any, error) {
	return l.dispatchYield(KindYieldProc, name, fn, args)
}

func (l *EventLoop) dispatchYield(kind CallKind, name string, fn ReplyHandler, args []any) (any, error) {
	if l.shutdownFlag.isSet() {
		return nil, ErrShutdown
	}
	if l.isInternal() {
		return nil, invalidAccess(kind.String(), "deferred-reply calls cannot be invoked from within the loop they target")
	}
	in, err := l.sanitizeInbound(args)
	if err != nil {
		return nil, err
	}

	rc := newReplyChannel()
	reply := ReplyFunc(func(value any, rerr error) error {
		sanitized, sErr := l.sanitizeOutboundValue(value)
		if sErr != nil {
			value, rerr = nil, sErr
		} else {
			value = sanitized
		}
		if !rc.pushResult(value, rerr) {
			return &MultipleResultsError{Name: name}
		}
		return nil
	})

	if !l.queue.pushUnlessClosed(func() bool {
		l.currentFrame = &Frame{Kind: kind, Name: name, reply: rc}
		start := time.Now()
		fn(reply, in...)
		l.currentFrame = nil
		if l.guardTime > 0 {
			if elapsed := time.Since(start); elapsed > l.guardTime {
				if l.guardRate == nil || allowGuardWarn(l.guardRate, l.name) {
					l.logWarn("handler exceeded guard time", "call", name, "elapsed", elapsed, "guard_time", l.guardTime)
				}
			}
		}
		return false
	}) {
		return nil, ErrShutdown
	}
	return rc.await()
}

// ExternalCallbackReturn delivers a callback's result directly to the
// internal handler waiting on it (spec §4.C, external_callback_return). It
// is fire-and-forget from the caller's perspective and never blocks. It
// deliberately bypasses the dispatch queue and never touches currentFrame:
// the worker goroutine is already parked inside the handler's
// ExternalCallable.Invoke waiting on exactly this delivery, so routing it
// through the queue would deadlock the loop against itself. A throwaway
// Frame of KindExternalCallbackReturn exists solely to label the
// debug-level dispatch enter/exit entries this path logs; the other call
// kinds log no such entries.
func (l *EventLoop) ExternalCallbackReturn(cb *Callback, value any, err error) {
	frame := &Frame{Kind: KindExternalCallbackReturn, Name: "external_callback_return"}
	l.logDebug("dispatch enter", "kind", frame.Kind.String())
	cb.Return(value, err)
	l.logDebug("dispatch exit", "kind", frame.Kind.String())
}

// Shutdown stops the loop after any already-queued work has run, aborts
// every live background activity, and blocks until teardown is complete.
// It is idempotent; only the first call drives the transition.
//
// The stop task is appended and the queue closed in one atomic step
// (fifo.closeAndPush), so any SyncCall/YieldCall/AsyncCall racing against
// this Shutdown either lands strictly before the close and runs normally,
// or is rejected with ErrShutdown at the push site — it can never be left
// queued behind the stop task, which would otherwise hang its caller
// forever once the worker goroutine exits.
func (l *EventLoop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.shutdownFlag.trigger()
		l.queue.closeAndPush(func() bool {
			l.activities.abortAll(ErrAbortActivity)
			return true
		})
	})
	<-l.shutdownDone
}

func (l *EventLoop) finishShutdown() {
	l.activities.wait()
	close(l.shutdownDone)
}
