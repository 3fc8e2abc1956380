// Package scheduler provides the ticker loop abstraction driving the
// detection and healing control loops.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop invokes a function at a fixed interval until stopped. Stop is
// idempotent and never interrupts an in-progress invocation.
type Loop struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
	logger   *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewLoop constructs a loop named for logging. fn runs on the loop goroutine.
func NewLoop(name string, interval time.Duration, fn func(context.Context), logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the loop until ctx is cancelled or Stop is called. It performs
// one immediate invocation before the first tick.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	l.logger.Debug("loop started", slog.String("loop", l.name), slog.Duration("interval", l.interval))
	l.fn(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop cancelled", slog.String("loop", l.name))
			return
		case <-l.stopped:
			l.logger.Debug("loop stopped", slog.String("loop", l.name))
			return
		case <-ticker.C:
			l.fn(ctx)
		}
	}
}

// Stop signals the loop to exit after any in-progress invocation completes.
// Safe to call multiple times and before Run.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
