// Package link owns a serial connection to one device. It knows nothing about
// the protocol on the wire.
package link

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"enginemon/internal/syncutil"
)

var (
	// ErrLinkUnavailable is returned by Open when the device cannot be opened.
	ErrLinkUnavailable = errors.New("link unavailable")
	// ErrLinkLost is returned by Read once an open device stops working.
	ErrLinkLost = errors.New("link lost")
)

const (
	BackendBugst  = "bugst"
	BackendNative = "native"
	BackendSim    = "sim"
)

// Config describes one serial link. It is fixed for the lifetime of a Link.
type Config struct {
	// Name labels the link in logs and status text, e.g. "engine".
	Name    string
	Backend string

	Device   string
	Baud     int
	DataBits int
	// Parity is one of none, odd, even, mark, space.
	Parity string
	// StopBits is one of 1, 1.5, 2.
	StopBits string

	// ReadTimeout bounds every Read; an idle line yields an empty chunk after
	// this long.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendBugst
	}
	c.Device = strings.TrimSpace(c.Device)
	if c.Baud <= 0 {
		c.Baud = 9600
	}
	if c.DataBits <= 0 {
		c.DataBits = 8
	}
	c.Parity = strings.ToLower(strings.TrimSpace(c.Parity))
	if c.Parity == "" {
		c.Parity = "none"
	}
	c.StopBits = strings.TrimSpace(c.StopBits)
	if c.StopBits == "" {
		c.StopBits = "1"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	return c
}

// Port is the part of a serial port a Link uses.
type Port interface {
	Read(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens the device described by cfg.
type Opener func(cfg Config) (Port, error)

// DefaultOpener opens real hardware with the configured backend.
func DefaultOpener(cfg Config) (Port, error) {
	switch cfg.Backend {
	case BackendBugst, "":
		return openBugst(cfg)
	case BackendNative:
		return openNative(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// Without a read error, a yanked USB adapter often just goes quiet. Every
// statEvery empty reads the device node is checked.
const statEvery = 10

type Link struct {
	cfg  Config
	port Port
	buf  []byte

	watchDevice bool
	emptyReads  int

	mu     syncutil.Mutex
	closed bool
}

// Open opens the link. Failures wrap ErrLinkUnavailable.
func Open(cfg Config, open Opener) (*Link, error) {
	cfg = cfg.withDefaults()
	if open == nil {
		open = DefaultOpener
	}

	watch := cfg.Backend != BackendSim && runtime.GOOS != "windows"
	if watch {
		if cfg.Device == "" {
			return nil, fmt.Errorf("%w: %s: no device configured", ErrLinkUnavailable, cfg.Name)
		}
		if _, err := os.Stat(cfg.Device); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLinkUnavailable, cfg.Device, err)
		}
	}

	port, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkUnavailable, cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %v", ErrLinkUnavailable, cfg.Device, err)
	}

	return &Link{
		cfg:         cfg,
		port:        port,
		buf:         make([]byte, 1024),
		watchDevice: watch,
	}, nil
}

func (l *Link) Config() Config {
	return l.cfg
}

// Read returns the bytes that arrived within one read timeout. An empty,
// nil-error result means the line was idle. Any failure wraps ErrLinkLost and
// the link should be closed.
func (l *Link) Read() ([]byte, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: %s: closed", ErrLinkLost, l.cfg.Device)
	}

	n, err := l.port.Read(l.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkLost, l.cfg.Device, err)
	}
	if n == 0 {
		l.emptyReads++
		if l.watchDevice && l.emptyReads%statEvery == 0 {
			if _, err := os.Stat(l.cfg.Device); err != nil {
				return nil, fmt.Errorf("%w: %s: device removed", ErrLinkLost, l.cfg.Device)
			}
		}
		return nil, nil
	}
	l.emptyReads = 0

	chunk := make([]byte, n)
	copy(chunk, l.buf[:n])
	return chunk, nil
}

// Close releases the port. It is safe to call more than once.
func (l *Link) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", l.cfg.Device, err)
	}
	return nil
}
