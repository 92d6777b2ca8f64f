package actorloop

import (
	"sync"
	"sync/atomic"
)

// AbortSignal communicates cancellation to a background activity, adapted
// from the W3C DOM AbortController/AbortSignal pair.
type AbortSignal struct {
	mu       sync.RWMutex
	aborted  bool
	reason   any
	handlers []func(reason any)
	done     chan struct{}
}

func newAbortSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{})}
}

// Done returns a channel that is closed when the signal fires, for use in
// a select alongside other channel operations.
func (s *AbortSignal) Done() <-chan struct{} {
	return s.done
}

// Aborted reports whether the signal has fired.
func (s *AbortSignal) Aborted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aborted
}

// Reason returns the abort reason, or nil if not yet aborted.
func (s *AbortSignal) Reason() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// OnAbort registers a handler to run when the signal fires. If the signal
// has already fired, the handler runs immediately, synchronously, on the
// calling goroutine.
func (s *AbortSignal) OnAbort(handler func(reason any)) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		handler(reason)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

func (s *AbortSignal) fire(reason any) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	handlers := s.handlers
	s.handlers = nil
	close(s.done)
	s.mu.Unlock()
	for _, h := range handlers {
		h(reason)
	}
}

// AbortController owns an AbortSignal and is the only thing that can fire
// it. A background activity is handed the signal; whatever started the
// activity keeps the controller.
type AbortController struct {
	signal *AbortSignal
	once   sync.Once
}

// NewAbortController creates a controller with a fresh, unfired signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: newAbortSignal()}
}

// Signal returns the controller's AbortSignal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort fires the signal with reason. Only the first call has any effect.
func (c *AbortController) Abort(reason any) {
	c.once.Do(func() {
		c.signal.fire(reason)
	})
}

// Pool bounds how many background activities may run concurrently. It is a
// plain counting semaphore over a buffered channel; nothing in the example
// corpus wires an external worker-pool library for this, so it is built
// directly on the channel primitive idiomatic Go code reaches for here.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a Pool admitting at most size concurrent activities.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

func (p *Pool) acquire() {
	if p != nil {
		p.sem <- struct{}{}
	}
}

func (p *Pool) release() {
	if p != nil {
		<-p.sem
	}
}

// ActivityHandle identifies one background activity started with
// StartActivity. It exposes the supplementary Wait operation (spec §4
// supplement) alongside the abort controls a handler needs to tear an
// activity down early.
type ActivityHandle struct {
	id         uint64
	name       string
	internal   bool
	controller *AbortController
	done       chan struct{}
}

// Name returns the activity's declared name.
func (h *ActivityHandle) Name() string { return h.name }

// Abort requests early cancellation, observable via the AbortSignal passed
// to the activity's function.
func (h *ActivityHandle) Abort(reason any) {
	h.controller.Abort(reason)
}

// Done returns a channel closed once the activity's function has returned.
func (h *ActivityHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the activity has finished.
func (h *ActivityHandle) Wait() {
	<-h.done
}

// activityManager tracks every background activity started on a loop. The
// live set is kept as a copy-on-write map behind an atomic pointer: readers
// (Activities, shutdown teardown) take an immutable snapshot without
// blocking on writers, and a finalizing activity can always safely remove
// itself even if the manager is mid-shutdown.
type activityManager struct {
	mu     sync.Mutex
	nextID uint64
	live   atomic.Pointer[map[uint64]*ActivityHandle]
	wg     sync.WaitGroup
	pool   *Pool
	loop   *EventLoop
}

func newActivityManager(loop *EventLoop) *activityManager {
	m := &activityManager{loop: loop}
	empty := map[uint64]*ActivityHandle{}
	m.live.Store(&empty)
	return m
}

func (m *activityManager) register(h *ActivityHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[uint64]*ActivityHandle, len(*m.live.Load())+1)
	for k, v := range *m.live.Load() {
		next[k] = v
	}
	next[h.id] = h
	m.live.Store(&next)
}

func (m *activityManager) unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.live.Load()
	if _, ok := cur[id]; !ok {
		return
	}
	next := make(map[uint64]*ActivityHandle, len(cur)-1)
	for k, v := range cur {
		if k != id {
			next[k] = v
		}
	}
	m.live.Store(&next)
}

// snapshot returns every live activity, including the loop's own internal
// ones (e.g. the timer worker), without blocking writers.
func (m *activityManager) snapshot() []*ActivityHandle {
	cur := *m.live.Load()
	out := make([]*ActivityHandle, 0, len(cur))
	for _, h := range cur {
		out = append(out, h)
	}
	return out
}

// userSnapshot returns only the activities started via the public
// StartActivity entry point, excluding the loop's own internal ones.
func (m *activityManager) userSnapshot() []*ActivityHandle {
	all := m.snapshot()
	out := all[:0:0]
	for _, h := range all {
		if !h.internal {
			out = append(out, h)
		}
	}
	return out
}

// abortAll fires every live activity's controller, used during shutdown.
func (m *activityManager) abortAll(reason any) {
	for _, h := range m.snapshot() {
		h.Abort(reason)
	}
}

// wait blocks until every activity started on this loop, past or present,
// has returned.
func (m *activityManager) wait() {
	m.wg.Wait()
}

// StartActivity runs fn on its own goroutine, outside the serialization
// guarantee, tracked for introspection and shutdown teardown (spec §4.D).
// fn receives an AbortSignal it should observe cooperatively; it is
// responsible for routing any result back into the loop itself, typically
// by closing over a ReplyFunc or an AsyncProc obtained before the activity
// started.
func (l *EventLoop) StartActivity(name string, fn func(signal *AbortSignal)) *ActivityHandle {
	return l.startActivity(name, fn, true, false)
}

// startActivity is shared by StartActivity and the loop's own timer-worker
// activity; poolGated is false for the latter, since the timer worker runs
// for the loop's entire lifetime and would otherwise permanently occupy a
// slot meant for short-lived, user-started work. internal marks an activity
// as plumbing, excluded from the Activities() introspection accessor.
func (l *EventLoop) startActivity(name string, fn func(signal *AbortSignal), poolGated, internal bool) *ActivityHandle {
	l.activities.mu.Lock()
	id := l.activities.nextID
	l.activities.nextID++
	l.activities.mu.Unlock()

	h := &ActivityHandle{
		id:         id,
		name:       name,
		internal:   internal,
		controller: NewAbortController(),
		done:       make(chan struct{}),
	}
	l.activities.register(h)
	l.activities.wg.Add(1)

	// Spec §4.D's race: shutdown may observe an empty snapshot, fire every
	// abort it saw, and finish teardown before this registration's snapshot
	// swap lands. Re-check here and abort immediately if so, since the
	// shutdown path that already ran will never see this activity to abort
	// it for us.
	if l.shutdownFlag.isSet() {
		h.Abort(ErrAbortActivity)
	}

	go func() {
		defer l.activities.wg.Done()
		defer close(h.done)
		defer l.activities.unregister(h.id)
		defer func() {
			if r := recover(); r != nil {
				l.logError("activity panicked", "name", name, "recover", r)
			}
		}()
		if poolGated {
			l.activities.pool.acquire()
			defer l.activities.pool.release()
		}
		fn(h.controller.Signal())
	}()

	return h
}

// Activities returns the names of every activity started with
// StartActivity that is currently running on the loop (spec §4 supplement,
// introspection); the loop's internal timer-worker activity is not included.
func (l *EventLoop) Activities() []string {
	snap := l.activities.userSnapshot()
	out := make([]string, len(snap))
	for i, h := range snap {
		out[i] = h.Name()
	}
	return out
}
