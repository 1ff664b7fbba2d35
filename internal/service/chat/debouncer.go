package chat

import (
	"sync"
	"time"
)

// Debouncer runs an expiry callback when a key goes idle. Each Touch
// resets the key's countdown; at most one timer exists per key, so rapid
// touches collapse into a single pending expiry.
type Debouncer struct {
	idle   time.Duration
	expire func(key string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates a debouncer firing expire after idle without touches
func NewDebouncer(idle time.Duration, expire func(key string)) *Debouncer {
	return &Debouncer{
		idle:   idle,
		expire: expire,
		timers: make(map[string]*time.Timer),
	}
}

// Touch starts or resets the key's countdown
func (d *Debouncer) Touch(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Reset(d.idle)
		return
	}

	d.timers[key] = time.AfterFunc(d.idle, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		d.expire(key)
	})
}

// Cancel drops the key's pending expiry, if any. The callback does not run.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
}

// Stop cancels every pending expiry
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
