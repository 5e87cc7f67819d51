package connector

import (
	"context"
	"fmt"

	"enginemon/internal/syncutil"
)

// Lifecycle runs a connector loop exactly once, either in the caller's
// goroutine (Run) or in its own (Start), and lets Close stop and join it.
type Lifecycle struct {
	name string

	mu      syncutil.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLifecycle(name string) *Lifecycle {
	return &Lifecycle{name: name, done: make(chan struct{})}
}

func (l *Lifecycle) prepare(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%s: ctx is nil", l.name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%s is closed", l.name)
	}
	if l.started {
		return nil, fmt.Errorf("%s already started", l.name)
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	return runCtx, nil
}

// Run calls loop and blocks until it returns.
func (l *Lifecycle) Run(ctx context.Context, loop func(context.Context)) error {
	runCtx, err := l.prepare(ctx)
	if err != nil {
		return err
	}
	defer close(l.done)
	loop(runCtx)
	return nil
}

// Start calls loop in a new goroutine.
func (l *Lifecycle) Start(ctx context.Context, loop func(context.Context)) error {
	runCtx, err := l.prepare(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer close(l.done)
		loop(runCtx)
	}()
	return nil
}

// Close cancels the loop and waits for it to return. Safe to call more than
// once, and before Start.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-l.done
}

// Done is closed once the loop has returned.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}
