package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int64
	loop := NewLoop("test", 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	}, nil)

	go loop.Run(context.Background())
	defer loop.Stop()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 invocations, got %d", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	loop := NewLoop("test", time.Hour, func(context.Context) {}, nil)
	go loop.Run(context.Background())

	loop.Stop()
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not exit after Stop")
	}
}

func TestLoopExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop("test", time.Hour, func(context.Context) {}, nil)
	go loop.Run(ctx)

	cancel()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not exit on context cancel")
	}
}

func TestLoopStopBeforeRun(t *testing.T) {
	loop := NewLoop("test", time.Hour, func(context.Context) {}, nil)
	loop.Stop()
	go loop.Run(context.Background())

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("pre-stopped loop did not exit")
	}
}
