package store

import (
	"testing"
	"time"
)

func TestCooldownTrackerWindow(t *testing.T) {
	tracker := NewCooldownTracker(5 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	tracker.SetClock(func() time.Time { return clock })

	key := "prod/api-7f9:pod-crash"
	if tracker.IsActive(key) {
		t.Fatalf("fresh tracker should not suppress")
	}

	tracker.Set(key)
	if !tracker.IsActive(key) {
		t.Fatalf("expected key active immediately after Set")
	}

	clock = base.Add(4*time.Minute + 59*time.Second)
	if !tracker.IsActive(key) {
		t.Fatalf("expected key active inside the window")
	}

	clock = base.Add(5 * time.Minute)
	if tracker.IsActive(key) {
		t.Fatalf("expected key expired at window boundary")
	}
}

func TestCooldownTrackerKeysAreIndependent(t *testing.T) {
	tracker := NewCooldownTracker(time.Minute)
	tracker.Set("prod/api:high-cpu")
	if tracker.IsActive("prod/api:high-memory") {
		t.Fatalf("different category must not share a cooldown")
	}
	if tracker.IsActive("staging/api:high-cpu") {
		t.Fatalf("different namespace must not share a cooldown")
	}
}

func TestCooldownTrackerDefaultWindow(t *testing.T) {
	tracker := NewCooldownTracker(0)
	if tracker.Window() != 5*time.Minute {
		t.Fatalf("expected default window 5m, got %s", tracker.Window())
	}
}
