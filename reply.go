package actorloop

import "sync"

// Callback is posted to a reply channel when an internal handler invokes an
// External Callable. The waiting external caller (see replyChannel.await)
// drains it by running Fn outside the loop and posting the outcome back on
// result, which unblocks the internal handler that is waiting on it.
type Callback struct {
	Fn     *ExternalCallable
	Args   []any
	result chan callbackResult
	once   sync.Once
}

type callbackResult struct {
	value any
	err   error
}

// Return delivers the callback's outcome and unblocks the internal handler
// that is waiting on it. This is the engine's external_callback_return
// operation (spec §4.C): fire-and-forget from the external caller's point
// of view. Only the first call has any effect.
func (cb *Callback) Return(result any, err error) {
	cb.once.Do(func() {
		cb.result <- callbackResult{value: result, err: err}
	})
}

// replyMsg is either a Callback to drain, or a terminal (value, err) pair.
type replyMsg struct {
	callback *Callback
	value    any
	err      error
}

// replyChannel is the single-shot-or-callback-bearing mailbox described in
// spec §4.B: a FIFO of zero or more Callback records followed by exactly one
// terminal value.
type replyChannel struct {
	queue     *fifo[replyMsg]
	mu        sync.Mutex
	delivered bool
}

func newReplyChannel() *replyChannel {
	return &replyChannel{queue: newFIFO[replyMsg]()}
}

// pushCallback enqueues a Callback record. It never blocks.
func (rc *replyChannel) pushCallback(cb *Callback) {
	rc.queue.push(replyMsg{callback: cb})
}

// pushResult enqueues the terminal value or error. Only the first call
// succeeds; subsequent calls return false so the caller can surface
// MultipleResultsError.
func (rc *replyChannel) pushResult(value any, err error) bool {
	rc.mu.Lock()
	if rc.delivered {
		rc.mu.Unlock()
		return false
	}
	rc.delivered = true
	rc.mu.Unlock()
	rc.queue.push(replyMsg{value: value, err: err})
	return true
}

// await runs the reply loop described in spec §4.B: drain Callback records
// by invoking the original external callable outside the engine's dispatch
// path, then return the first terminal value observed.
func (rc *replyChannel) await() (any, error) {
	for {
		msg := rc.queue.pop()
		if msg.callback == nil {
			return msg.value, msg.err
		}
		cb := msg.callback
		value, err := cb.Fn.raw(cb.Args...)
		cb.Return(value, err)
	}
}
