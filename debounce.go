// Package debounce coalesces rapid bursts of trigger events into a single
// delayed invocation.
//
// A Debouncer holds at most one open window at a time. The first trigger
// after standby opens a window and fires the leading edge; each further
// trigger within the window pushes the trailing edge out by the full wait
// duration and overwrites the remembered payload. When the window finally
// goes quiet (or hits the optional max-wait ceiling, or is flushed), the
// trailing edge fires once with the latest payload.
//
// Debouncing is useful when events may arrive rapidly (keystrokes, file
// change notifications) but the reaction is expensive and only the last
// event of a burst matters.
package debounce

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Callbacks holds the edge hooks for a Debouncer. Any hook may be nil.
//
// Every hook is invoked at its edge regardless of configuration; the active
// flag tells the hook whether this edge is the one that should act. With the
// defaults (trailing only), OnTrailing always receives active=true and
// OnLeading always receives active=false. With WithLeading, OnLeading
// receives active=true, and OnTrailing receives active=false for windows
// that contained exactly one trigger, so a lone event is not acted on twice.
type Callbacks[T any] struct {
	// OnLeading is invoked synchronously when a window opens, with the
	// payload of the trigger that opened it.
	OnLeading func(v T, active bool)

	// OnTrailing is invoked whenever a window ends, by timer expiry or by
	// Flush, with the most recent payload. It is not invoked for windows
	// ended by Cancel or Close.
	OnTrailing func(v T, active bool)

	// OnCancel is invoked by every Cancel call, whether or not a window was
	// open. Callers use it to reset cancellation-dependent state
	// deterministically.
	OnCancel func()
}

// Debouncer coalesces triggers into leading/trailing edge invocations.
// It is safe for concurrent use. The zero value is not usable; use New.
type Debouncer[T any] struct {
	wait     time.Duration
	maxWait  time.Duration // 0 means no ceiling
	leading  bool
	trailing bool
	cb       Callbacks[T]
	clock    clock.WithDelayedExecution

	mu     sync.Mutex
	closed bool
	win    *window[T] // nil while in standby
}

// window is the open-window session state. Keeping the timer handles,
// payload and count in one struct behind a single pointer means a timer
// handle can never exist without a payload, and vice versa.
type window[T any] struct {
	timer    clock.Timer // regular wait timer, superseded on every trigger
	timerSeq uint64      // identifies the current arming of the regular timer
	maxTimer clock.Timer // max-wait ceiling, nil unless configured
	latest   T
	count    int
}

// New creates a Debouncer that fires its trailing edge once wait has
// elapsed with no further triggers. Configuration errors (negative
// durations, max wait shorter than wait) are reported immediately rather
// than surfacing later as timer misbehavior.
func New[T any](wait time.Duration, cb Callbacks[T], opts ...Option) (*Debouncer[T], error) {
	if wait < 0 {
		return nil, fmt.Errorf("debounce: negative wait %v", wait)
	}

	s := settings{trailing: true, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&s)
	}

	if s.maxWait < 0 {
		return nil, fmt.Errorf("debounce: negative max wait %v", s.maxWait)
	}
	if s.maxWait > 0 && s.maxWait < wait {
		return nil, fmt.Errorf("debounce: max wait %v is shorter than wait %v", s.maxWait, wait)
	}

	return &Debouncer[T]{
		wait:     wait,
		maxWait:  s.maxWait,
		leading:  s.leading,
		trailing: s.trailing,
		cb:       cb,
		clock:    s.clock,
	}, nil
}

// Trigger records one event. From standby it opens a window, arms the
// timers and fires the leading edge synchronously. While a window is open
// it pushes the trailing edge out by the full wait duration, overwrites the
// remembered payload, and leaves the max-wait timer running from the
// window's original start. After Close it does nothing.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	if d.win != nil {
		d.win.timer.Stop()
		d.armTimerLocked()
		d.win.latest = v
		d.win.count++
		d.mu.Unlock()
		return
	}

	win := &window[T]{latest: v, count: 1}
	d.win = win
	d.armTimerLocked()
	if d.maxWait > 0 {
		win.maxTimer = d.clock.AfterFunc(d.maxWait, func() {
			d.expire(win, 0)
		})
	}
	active := d.leading
	d.mu.Unlock()

	if d.cb.OnLeading != nil {
		d.cb.OnLeading(v, active)
	}
}

// Flush ends the open window immediately, as if the wait timer had fired.
// In standby, or after Close, it does nothing.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.closed || d.win == nil {
		d.mu.Unlock()
		return
	}
	fire := d.endWindowLocked(true)
	d.mu.Unlock()

	fire()
}

// Cancel aborts any open window without firing the trailing edge, then
// invokes OnCancel unconditionally (even from standby). After Close it does
// nothing, and OnCancel is not invoked.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if win := d.win; win != nil {
		win.timer.Stop()
		if win.maxTimer != nil {
			win.maxTimer.Stop()
		}
		d.win = nil
	}
	d.mu.Unlock()

	if d.cb.OnCancel != nil {
		d.cb.OnCancel()
	}
}

// Close releases any live timers and permanently disables the debouncer:
// all subsequent Trigger, Flush and Cancel calls become no-ops. Close is
// idempotent and invokes no callback.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if win := d.win; win != nil {
			win.timer.Stop()
			if win.maxTimer != nil {
				win.maxTimer.Stop()
			}
			d.win = nil
		}
	}
	d.mu.Unlock()
}

// armTimerLocked arms the regular wait timer for the current window,
// superseding any previous arming. The sequence number lets expire tell a
// live arming from a stale fire that lost the race with Stop.
func (d *Debouncer[T]) armTimerLocked() {
	win := d.win
	win.timerSeq++
	seq := win.timerSeq
	win.timer = d.clock.AfterFunc(d.wait, func() {
		d.expire(win, seq)
	})
}

// expire handles a timer firing. seq identifies which arming of the regular
// timer fired; 0 means the max-wait timer. Fires that no longer own the
// window (superseded arming, window already closed, debouncer closed) are
// discarded.
func (d *Debouncer[T]) expire(win *window[T], seq uint64) {
	d.mu.Lock()
	if d.closed || d.win != win || (seq != 0 && seq != win.timerSeq) {
		d.mu.Unlock()
		return
	}
	fire := d.endWindowLocked(false)
	d.mu.Unlock()

	fire()
}

// endWindowLocked closes the open window and returns the trailing edge
// invocation, to be run once the lock is released so that a re-entrant call
// from the hook is an ordinary operation against the current state.
//
// stopTimers is false on the timer-expiry path: the sibling timer's
// eventual fire is discarded by expire's ownership check, and fake clocks
// run AfterFunc callbacks under their own lock, where stopping a timer
// would deadlock.
func (d *Debouncer[T]) endWindowLocked(stopTimers bool) func() {
	win := d.win
	if win == nil {
		panic("debounce: ending window while in standby")
	}
	if stopTimers {
		win.timer.Stop()
		if win.maxTimer != nil {
			win.maxTimer.Stop()
		}
	}
	d.win = nil

	if d.cb.OnTrailing == nil {
		return func() {}
	}
	v := win.latest
	active := d.trailing && !(d.leading && win.count == 1)
	return func() { d.cb.OnTrailing(v, active) }
}
