package actorloop

import "time"

// loopOptions collects the resolved configuration for a new EventLoop,
// generalized from the teacher's loopOptions/LoopOption pair.
type loopOptions struct {
	name         string
	logger       Logger
	guardTime    time.Duration
	guardRateMax int
	guardRateWin time.Duration
	pool         *Pool
}

func defaultLoopOptions() loopOptions {
	return loopOptions{
		logger:       currentPkgLogger(),
		guardTime:    0, // 0 disables guard-time diagnostics
		guardRateMax: 1,
		guardRateWin: 10 * time.Second,
	}
}

// Option configures an EventLoop at construction time.
type Option interface {
	apply(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) apply(o *loopOptions) { f(o) }

// WithName sets the loop's name, used in log output and introspection.
func WithName(name string) Option {
	return optionFunc(func(o *loopOptions) { o.name = name })
}

// WithLogger overrides the default stderr Logger.
func WithLogger(logger Logger) Option {
	return optionFunc(func(o *loopOptions) { o.logger = logger })
}

// WithGuardTime enables a guard-time diagnostic: any handler invocation
// that runs longer than d is logged at WARN. A zero d (the default)
// disables the check entirely.
func WithGuardTime(d time.Duration) Option {
	return optionFunc(func(o *loopOptions) { o.guardTime = d })
}

// WithThreadPool bounds how many background activities (spec §4.D) may run
// concurrently across the lifetime of the loop. Activities started beyond
// the pool's size block until a slot frees up. A nil pool, the default,
// leaves activities unbounded, each on its own goroutine.
func WithThreadPool(pool *Pool) Option {
	return optionFunc(func(o *loopOptions) { o.pool = pool })
}

// WithGuardTimeRateLimit bounds how often guard-time warnings for a single
// box name are emitted, so a persistently slow handler cannot flood the
// log: at most max occurrences per window.
func WithGuardTimeRateLimit(max int, window time.Duration) Option {
	return optionFunc(func(o *loopOptions) {
		o.guardRateMax = max
		o.guardRateWin = window
	})
}
