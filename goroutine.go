package actorloop

import "runtime"

// currentGoroutineID returns an identifier for the calling goroutine.
//
// Go deliberately has no public goroutine-ID API. The runtime.Stack trick
// below (parsing the "goroutine NNN [...]" header of a single-goroutine
// stack dump) is the same technique used to detect the loop's own goroutine
// in the corpus's event loop implementation; it is cheap enough to call on
// every wrapped-callable invocation and never allocates beyond the fixed
// buffer.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
