package services

import (
	"sync"
	"time"

	"github.com/listsync/server/internal/observability"
)

// SignalSource identifies which replica emitted a change signal
type SignalSource string

const (
	SourceLocalEcho SignalSource = "local_echo"
	SourceCloud     SignalSource = "cloud"
	SourceCompanion SignalSource = "companion"
)

// DefaultQuietWindow is the debounce quiet period when none is configured
const DefaultQuietWindow = 500 * time.Millisecond

// Debouncer collapses bursts of change signals into one reconciliation
// trigger per quiet window. Notify never blocks and is safe from any
// goroutine; at most one fire is in flight at a time, and a signal that
// arrives mid-fire starts the next window only after the fire returns.
type Debouncer struct {
	window time.Duration
	fire   func(trigger SignalSource)

	mu         sync.Mutex
	timer      *time.Timer
	firing     bool
	pending    bool
	pendingSrc SignalSource
	localWrite bool
	lastSignal time.Time
	stopped    bool
}

// NewDebouncer creates a debouncer that invokes fire after the quiet window
func NewDebouncer(window time.Duration, fire func(trigger SignalSource)) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{window: window, fire: fire}
}

// MarkLocalWrite flags that the next observed signal originates from this
// engine's own save. Call immediately before a local store write so the
// save's echo cannot masquerade as a remote change; the flag is cleared by
// the very first signal observed afterward.
func (d *Debouncer) MarkLocalWrite() {
	d.mu.Lock()
	d.localWrite = true
	d.mu.Unlock()
}

// Notify records a change signal and (re)arms the quiet-window timer
func (d *Debouncer) Notify(src SignalSource) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.lastSignal = time.Now()

	if d.localWrite {
		d.localWrite = false
		if src == SourceLocalEcho {
			// Echo of our own save. Without this suppression a platform
			// that cannot distinguish local echoes from remote changes
			// would loop: save -> signal -> reconcile -> save -> ...
			return
		}
	}

	if d.firing {
		// A fire is in flight; the next window starts when it completes.
		d.pending = true
		d.pendingSrc = src
		return
	}

	d.arm(src)
}

// arm must be called with the lock held
func (d *Debouncer) arm(src SignalSource) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.expire(src)
	})
}

func (d *Debouncer) expire(src SignalSource) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.firing = true
	d.mu.Unlock()

	observability.Debugf("Debounce window elapsed, firing reconciliation (trigger: %s)", src)
	d.fire(src)

	d.mu.Lock()
	d.firing = false
	if d.pending && !d.stopped {
		d.pending = false
		d.arm(d.pendingSrc)
	}
	d.mu.Unlock()
}

// Stop cancels any armed timer and ignores further signals
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
