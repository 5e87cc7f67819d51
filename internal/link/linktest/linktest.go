// Package linktest provides scripted serial ports for connector tests.
package linktest

import (
	"errors"
	"sync"
	"time"

	"enginemon/internal/link"
)

// ErrPortClosed is returned by Read after Close.
var ErrPortClosed = errors.New("port closed")

// Step is one scripted Read result.
type Step struct {
	Data []byte
	Err  error
}

// Data is shorthand for a Step that delivers bytes.
func Data(b []byte) Step { return Step{Data: b} }

// Fail is shorthand for a Step that fails the read.
func Fail(err error) Step { return Step{Err: err} }

// MockPort replays scripted reads. Once the script runs out it behaves like an
// idle line: each Read sleeps for Idle and returns (0, nil).
type MockPort struct {
	Idle time.Duration

	mu      sync.Mutex
	steps   []Step
	closed  bool
	timeout time.Duration
	reads   int
}

func NewMockPort(steps ...Step) *MockPort {
	return &MockPort{Idle: time.Millisecond, steps: steps}
}

// Push appends steps to the script.
func (m *MockPort) Push(steps ...Step) {
	m.mu.Lock()
	m.steps = append(m.steps, steps...)
	m.mu.Unlock()
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	m.reads++
	if len(m.steps) == 0 {
		idle := m.Idle
		m.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	st := m.steps[0]
	if st.Err != nil {
		m.steps = m.steps[1:]
		m.mu.Unlock()
		return 0, st.Err
	}
	n := copy(p, st.Data)
	if n < len(st.Data) {
		m.steps[0].Data = st.Data[n:]
	} else {
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()
	return n, nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	m.timeout = t
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Drained reports whether every scripted step has been consumed.
func (m *MockPort) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps) == 0
}

// ReadTimeout returns the timeout the link configured.
func (m *MockPort) ReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// Attempt is one scripted Open result.
type Attempt struct {
	Port link.Port
	Err  error
}

// Dialer hands out scripted Open results in order. When the script runs out
// every further Open fails with ErrExhausted.
type Dialer struct {
	mu       sync.Mutex
	attempts []Attempt
	calls    int
}

var ErrExhausted = errors.New("no more scripted ports")

func NewDialer(attempts ...Attempt) *Dialer {
	return &Dialer{attempts: attempts}
}

// Open satisfies link.Opener.
func (d *Dialer) Open(_ link.Config) (link.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.attempts) == 0 {
		return nil, ErrExhausted
	}
	a := d.attempts[0]
	d.attempts = d.attempts[1:]
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Port, nil
}

// Calls returns how many times Open was called.
func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
