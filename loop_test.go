package actorloop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// counterBox is the simplest possible Box: one field, mutated only through
// the loop, per S1 (async store).
type counterBox struct {
	loop *EventLoop
	x    int
}

func newCounterBox() *counterBox {
	b := &counterBox{}
	b.loop = New(WithName("counter"))
	return b
}

func (b *counterBox) Set(v int) error {
	return b.loop.AsyncCall("set", func(args ...any) (any, error) {
		b.x = args[0].(int)
		return nil, nil
	}, v)
}

func (b *counterBox) Get() (int, error) {
	out, err := b.loop.SyncCall("get", func(args ...any) (any, error) {
		return b.x, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

// TestAsyncStore is scenario S1: fire an async set, then sync-read it back.
func TestAsyncStore(t *testing.T) {
	b := newCounterBox()
	defer b.loop.Shutdown()

	require.NoError(t, b.Set(10))
	v, err := b.Get()
	require.NoError(t, err)
	require.Equal(t, 10, v)
}

// TestMutualExclusion is Testable Property 1: concurrent external callers
// never observe two handlers of the same box running at once.
func TestMutualExclusion(t *testing.T) {
	b := newCounterBox()
	defer b.loop.Shutdown()

	var running atomic.Int32
	var maxObserved atomic.Int32
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(v int) {
			defer wg.Done()
			_ = b.loop.AsyncCall("bump", func(args ...any) (any, error) {
				cur := running.Add(1)
				for {
					old := maxObserved.Load()
					if cur <= old || maxObserved.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil, nil
			}, v)
		}(i)
	}
	wg.Wait()

	// drain the queue by issuing a sync call, which only returns once every
	// previously queued async call has run.
	_, err := b.Get()
	require.NoError(t, err)
	require.LessOrEqual(t, maxObserved.Load(), int32(1))
}

// TestShutdownRejectsInboundCalls covers the Shut terminal state (spec §4.C
// state machine): any inbound call after shutdown fails with ErrShutdown.
func TestShutdownRejectsInboundCalls(t *testing.T) {
	l := New()
	l.Shutdown()
	require.True(t, l.IsShutdown())

	err := l.AsyncCall("noop", func(args ...any) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrShutdown)

	_, err = l.SyncCall("noop", func(args ...any) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrShutdown)
}

// TestStateReflectsLifecycle covers the Idle/Serving/Shut state machine
// (spec §4.C): a fresh loop's worker is parked in queue.pop with nothing to
// do, so it reports Idle; it transitions to Serving only while a handler is
// actually executing, and to Shut only after Shutdown has fully drained.
func TestStateReflectsLifecycle(t *testing.T) {
	l := New()
	require.Equal(t, stateIdle, l.State())

	inHandler := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = l.SyncCall("block", func(args ...any) (any, error) {
			close(inHandler)
			<-release
			return nil, nil
		})
	}()
	<-inHandler
	require.Equal(t, stateServing, l.State())
	close(release)

	_, err := l.SyncCall("drain", func(args ...any) (any, error) { return nil, nil })
	require.NoError(t, err)
	require.Equal(t, stateIdle, l.State())

	l.Shutdown()
	require.Equal(t, stateShut, l.State())
}

// TestShutdownRaceNeverHangsCaller exercises the fix for the race between
// Shutdown's stop task and a concurrent SyncCall/YieldCall push: every
// caller must observe either its result or ErrShutdown, never block
// forever (spec §8 Testable Property 3, spec §7's Shutdown contract).
func TestShutdownRaceNeverHangsCaller(t *testing.T) {
	for i := 0; i < 200; i++ {
		l := New()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Shutdown()
		}()
		go func() {
			defer wg.Done()
			_, err := l.SyncCall("noop", func(args ...any) (any, error) { return nil, nil })
			if err != nil {
				require.ErrorIs(t, err, ErrShutdown)
			}
		}()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("SyncCall/Shutdown race left a caller hanging")
		}
	}
}

// TestShutdownIsIdempotent covers the idempotence required of Shutdown,
// safe to call from multiple goroutines concurrently.
func TestShutdownIsIdempotent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Shutdown()
		}()
	}
	wg.Wait()
	require.True(t, l.IsShutdown())
}

// TestReentrantSyncCallRunsDirectly covers Testable Property 2: a call
// issued from within a handler already running on the loop's worker
// executes synchronously rather than being re-queued.
func TestReentrantSyncCallRunsDirectly(t *testing.T) {
	l := New()
	defer l.Shutdown()

	var innerRanOnSameGoroutine bool
	_, err := l.SyncCall("outer", func(args ...any) (any, error) {
		outerGoroutine := currentGoroutineID()
		_, ierr := l.SyncCall("inner", func(args ...any) (any, error) {
			innerRanOnSameGoroutine = currentGoroutineID() == outerGoroutine
			return nil, nil
		})
		return nil, ierr
	})
	require.NoError(t, err)
	require.True(t, innerRanOnSameGoroutine)
}

// TestSyncCallPropagatesHandlerError covers at-most-one-reply (Testable
// Property 3) on the error path.
func TestSyncCallPropagatesHandlerError(t *testing.T) {
	l := New()
	defer l.Shutdown()

	boom := invalidAccess("test", "boom")
	_, err := l.SyncCall("fails", func(args ...any) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

// TestActivityLivenessAfterShutdown is scenario S6: a background activity
// that sleeps forever is removed from the live set once Shutdown returns.
func TestActivityLivenessAfterShutdown(t *testing.T) {
	l := New()

	started := make(chan struct{})
	l.StartActivity("forever", func(signal *AbortSignal) {
		close(started)
		<-signal.Done()
	})
	<-started
	require.Len(t, l.Activities(), 1)

	l.Shutdown()
	require.Empty(t, l.Activities())
}

// TestDeferredReplyFromActivity is scenario S2: a yield_call whose handler
// starts a background activity that eventually delivers the reply.
func TestDeferredReplyFromActivity(t *testing.T) {
	l := New()
	defer l.Shutdown()

	out, err := l.YieldCall("run", func(reply ReplyFunc, args ...any) {
		l.StartActivity("work", func(signal *AbortSignal) {
			time.Sleep(5 * time.Millisecond)
			_ = reply(42, nil)
		})
	})
	require.NoError(t, err)
	require.Equal(t, 42, out)
}

// TestYieldCallSecondReplyFails covers MultipleResultsError (spec §4.B).
func TestYieldCallSecondReplyFails(t *testing.T) {
	l := New()
	defer l.Shutdown()

	var second error
	var wg sync.WaitGroup
	wg.Add(1)
	out, err := l.YieldCall("run", func(reply ReplyFunc, args ...any) {
		go func() {
			defer wg.Done()
			_ = reply(1, nil)
			second = reply(2, nil)
		}()
	})
	require.NoError(t, err)
	require.Equal(t, 1, out)
	wg.Wait()
	require.ErrorIs(t, second, &MultipleResultsError{})
}

// TestYieldCallRejectsInternalInvocation covers the Yield-proc internal
// rule (spec §4.C): it has no external caller left to route a reply to.
func TestYieldCallRejectsInternalInvocation(t *testing.T) {
	l := New()
	defer l.Shutdown()

	_, err := l.SyncCall("outer", func(args ...any) (any, error) {
		return l.YieldCall("inner", func(reply ReplyFunc, args ...any) {})
	})
	var invalid *InvalidAccessError
	require.ErrorAs(t, err, &invalid)
}
