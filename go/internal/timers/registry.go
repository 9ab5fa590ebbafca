package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry holds at most one pending one-shot callback per key.
// Scheduling a key again cancels the callback it replaces.
type Registry struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
}

type entry struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// NewRegistry creates a registry driven by clock. A nil clock means the real clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Clock returns the clock driving the registry.
func (r *Registry) Clock() clockwork.Clock {
	return r.clock
}

// Schedule runs fn once after d unless the key is rescheduled, cancelled or
// the registry is stopped first. fn runs on its own goroutine.
func (r *Registry) Schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	if existing, ok := r.entries[key]; ok {
		existing.stop()
		log.Debug().Str("timer", key).Msg("replaced existing timer")
	}

	e := &entry{
		timer:  r.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	r.entries[key] = e

	go func() {
		select {
		case <-e.timer.Chan():
			if r.release(key, e) {
				fn()
			}
		case <-e.cancel:
		}
	}()
}

// Cancel stops the pending callback for key. It reports whether one was pending.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.stop()
	delete(r.entries, key)
	return true
}

// Pending reports whether a callback is scheduled for key.
func (r *Registry) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop cancels every pending callback. Later calls to Schedule are ignored.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for key, e := range r.entries {
		e.stop()
		delete(r.entries, key)
	}
}

// release removes e if it is still the current entry for key.
func (r *Registry) release(key string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[key]; !ok || current != e {
		return false
	}
	delete(r.entries, key)
	return true
}

func (e *entry) stop() {
	stopAndDrainTimer(e.timer)
	close(e.cancel)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
