package debounce

import (
	"time"

	"k8s.io/utils/clock"
)

// Option configures a Debouncer at construction.
type Option func(*settings)

type settings struct {
	maxWait  time.Duration
	leading  bool
	trailing bool
	clock    clock.WithDelayedExecution
}

// WithMaxWait puts an upper bound on how long a window may stay open,
// measured from the window's first trigger. Without it a steady stream of
// triggers spaced closer than the wait duration defers the trailing edge
// indefinitely; with it the trailing edge fires at the ceiling with the
// latest payload, no matter how often triggers keep arriving.
func WithMaxWait(maxWait time.Duration) Option {
	return func(s *settings) {
		s.maxWait = maxWait
	}
}

// WithLeading marks the leading edge active: OnLeading is handed
// active=true when a window opens. When combined with an active trailing
// edge, a window containing exactly one trigger hands OnTrailing
// active=false, so the single event is acted on once, at the leading edge.
func WithLeading() Option {
	return func(s *settings) {
		s.leading = true
	}
}

// WithoutTrailing marks the trailing edge inactive: OnTrailing still
// observes every window close, but with active=false.
func WithoutTrailing() Option {
	return func(s *settings) {
		s.trailing = false
	}
}

// WithClock substitutes the timer source. The default is the system clock;
// tests can inject a fake clock to drive windows deterministically.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *settings) {
		s.clock = c
	}
}
