package devloop

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into one callback after a quiet
// period. Each Trigger replaces any pending callback, so the function runs
// once per burst, with the state accumulated by the time the timer fires.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Trigger schedules fn after the quiet period, replacing any pending call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
