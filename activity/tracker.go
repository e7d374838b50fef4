package activity

import (
	"sync"
	"time"

	"sessioncore/session"
)

// Tracker coalesces the four interaction signal classes into one stamp
// function against the metadata store. It does no throttling: high-frequency
// signals simply overwrite the same timestamp, which is cheap and idempotent.
//
// The tracker also owns the visibility transition: a page returning to the
// foreground gets a single stamp and nothing else. No re-fetch, no state
// transition — returning to a tab must feel instantaneous.
type Tracker struct {
	store session.Store
	now   func() time.Time

	mu      sync.Mutex
	userID  string
	cancels []func()
	visible bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a Tracker stamping into the given store.
func NewTracker(store session.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, now: time.Now, visible: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Arm subscribes the stamp function to every interaction signal class on the
// bus for the given identity. Arming while armed first disarms the previous
// subscriptions so listeners are never duplicated.
func (t *Tracker) Arm(bus *Bus, userID string) {
	t.Disarm()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = userID
	for _, kind := range Signals {
		t.cancels = append(t.cancels, bus.Subscribe(kind, func(Signal) {
			t.Stamp()
		}))
	}
}

// Disarm releases all signal subscriptions. Safe to call repeatedly and
// when never armed.
func (t *Tracker) Disarm() {
	t.mu.Lock()
	cancels := t.cancels
	t.cancels = nil
	t.userID = ""
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Armed reports whether the tracker currently holds signal subscriptions.
func (t *Tracker) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancels) > 0
}

// Stamp advances the armed identity's LastActive to now. A no-op when
// disarmed: stale signals after teardown must not write to a later
// session's metadata.
func (t *Tracker) Stamp() {
	t.mu.Lock()
	userID := t.userID
	t.mu.Unlock()
	if userID == "" {
		return
	}
	t.store.Touch(userID, t.now())
}

// SetVisible records a visibility transition. Only the backgrounded to
// foregrounded edge does anything, and that anything is a single stamp.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	wasVisible := t.visible
	t.visible = visible
	t.mu.Unlock()

	if visible && !wasVisible {
		t.Stamp()
	}
}
