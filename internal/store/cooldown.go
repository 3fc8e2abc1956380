package store

import (
	"sync"
	"time"
)

// CooldownTracker suppresses repeated detections for the same resource and
// category within a window. Keys are produced by models.ResourceRef.Key.
type CooldownTracker struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewCooldownTracker creates a tracker with the given suppression window.
func NewCooldownTracker(window time.Duration) *CooldownTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &CooldownTracker{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// IsActive reports whether key was set less than a window ago.
func (t *CooldownTracker) IsActive(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.last[key]
	if !ok {
		return false
	}
	return t.now().Sub(at) < t.window
}

// Set records "now" for key, starting a new cooldown window.
func (t *CooldownTracker) Set(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = t.now()
}

// Window exposes the configured suppression window.
func (t *CooldownTracker) Window() time.Duration {
	return t.window
}

// SetClock overrides the time source. Tests use this to step through windows
// without sleeping.
func (t *CooldownTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now != nil {
		t.now = now
	}
}
