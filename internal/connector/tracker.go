package connector

import (
	"time"

	"enginemon/internal/syncutil"
	"enginemon/internal/telemetry"
)

// Snapshot is a point-in-time view of one connector, for status output.
type Snapshot struct {
	Name         string   `json:"name"`
	Device       string   `json:"device"`
	State        string   `json:"state"`
	LastError    string   `json:"last_error,omitempty"`
	LastSeenUTC  string   `json:"last_seen_utc,omitempty"`
	Records      uint64   `json:"records"`
	DecodeErrors uint64   `json:"decode_errors"`
	Ignored      uint64   `json:"ignored,omitempty"`
	Connects     uint64   `json:"connects"`
	Recent       []string `json:"recent_status,omitempty"`
}

// Tracker records a connector's state for Snapshot. The connector goroutine
// writes; anyone may read.
type Tracker struct {
	name   string
	device string

	mu            syncutil.RWMutex
	state         telemetry.ConnState
	lastErr       string
	lastSeen      time.Time
	records       uint64
	decodeErrors  uint64
	ignored       uint64
	connects      uint64
	everConnected bool

	recent *tailBuffer
}

func NewTracker(name, device string, recentLines int) *Tracker {
	return &Tracker{
		name:   name,
		device: device,
		state:  telemetry.StateDisconnected,
		recent: newTailBuffer(recentLines, 256),
	}
}

// SetState moves to state and returns the previous one. A non-empty lastErr
// replaces the stored error; healthy states clear it.
func (t *Tracker) SetState(state telemetry.ConnState, lastErr string) telemetry.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state
	t.state = state
	if lastErr != "" {
		t.lastErr = lastErr
	} else if state == telemetry.StateConnected || state == telemetry.StateDisconnected {
		// Clear stale errors so status output doesn't look broken after a
		// transient startup failure.
		t.lastErr = ""
	}
	if state == telemetry.StateConnected {
		t.connects++
		t.everConnected = true
	}
	return prev
}

func (t *Tracker) State() telemetry.ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// EverConnected reports whether the link has been up at least once.
func (t *Tracker) EverConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.everConnected
}

// Records is the number of records published so far.
func (t *Tracker) Records() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records
}

func (t *Tracker) MarkRecord(now time.Time) {
	t.mu.Lock()
	t.records++
	t.lastSeen = now
	t.mu.Unlock()
}

func (t *Tracker) MarkDecodeErrors(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.decodeErrors += uint64(n)
	t.mu.Unlock()
}

func (t *Tracker) MarkIgnored() {
	t.mu.Lock()
	t.ignored++
	t.mu.Unlock()
}

// NoteStatus keeps text in the recent-status tail.
func (t *Tracker) NoteStatus(text string) {
	t.recent.add(text)
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	out := Snapshot{
		Name:         t.name,
		Device:       t.device,
		State:        t.state.String(),
		LastError:    t.lastErr,
		Records:      t.records,
		DecodeErrors: t.decodeErrors,
		Ignored:      t.ignored,
		Connects:     t.connects,
	}
	lastSeen := t.lastSeen
	t.mu.RUnlock()

	if !lastSeen.IsZero() {
		out.LastSeenUTC = lastSeen.UTC().Format(time.RFC3339Nano)
	}
	out.Recent = t.recent.snapshot()
	return out
}
