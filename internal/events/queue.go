// Package events carries telemetry from the connectors to the display.
//
// A Queue is bounded and never blocks a producer. When it is full it first
// evicts the oldest status notification, and only when none is queued does it
// give up the oldest sensor record. Every eviction is counted and reported to
// the consumer as a channel_overflow status ahead of the next event.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"enginemon/internal/syncutil"
	"enginemon/internal/telemetry"
)

// ErrClosed is returned by Receive once the queue is closed and drained.
var ErrClosed = errors.New("events: queue closed")

// DefaultCapacity is used when NewQueue is given a capacity <= 0.
const DefaultCapacity = 1024

// Source is the Event.Source used for queue-level notifications.
const Source = "events"

type Stats struct {
	Capacity       int    `json:"capacity"`
	Len            int    `json:"len"`
	Published      uint64 `json:"published"`
	Delivered      uint64 `json:"delivered"`
	DroppedRecords uint64 `json:"dropped_records"`
	DroppedStatus  uint64 `json:"dropped_status"`
}

type Queue struct {
	capacity int
	clock    clockwork.Clock

	mu     syncutil.Mutex
	items  []telemetry.Event
	closed bool
	notify chan struct{}

	// Evictions not yet reported to the consumer.
	lostRecords uint64
	lostStatus  uint64

	stats Stats
}

type Option func(*Queue)

// WithClock sets the clock used to timestamp overflow notifications.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func NewQueue(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		capacity: capacity,
		clock:    clockwork.NewRealClock(),
		items:    make([]telemetry.Event, 0, capacity),
		notify:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Publish enqueues ev without blocking. It returns false only when the queue
// is closed or ev was a status that had to be dropped to protect records.
func (q *Queue) Publish(ev telemetry.Event) bool {
	if ev.Payload == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.stats.Published++

	if len(q.items) >= q.capacity && !q.evictLocked(ev) {
		return false
	}
	q.items = append(q.items, ev)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// evictLocked makes room for incoming. It reports false when incoming itself
// is the thing to drop.
func (q *Queue) evictLocked(incoming telemetry.Event) bool {
	for i, ev := range q.items {
		if !ev.IsRecord() {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.lostStatus++
			q.stats.DroppedStatus++
			return true
		}
	}
	if !incoming.IsRecord() {
		q.lostStatus++
		q.stats.DroppedStatus++
		return false
	}
	q.items = q.items[1:]
	q.lostRecords++
	q.stats.DroppedRecords++
	return true
}

// Receive returns the next event, waiting until one is published, ctx is
// done, or the queue is closed and empty.
func (q *Queue) Receive(ctx context.Context) (telemetry.Event, error) {
	for {
		if ev, ok := q.TryReceive(); ok {
			return ev, nil
		}

		q.mu.Lock()
		closed := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if closed {
			return telemetry.Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return telemetry.Event{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryReceive returns the next event if one is ready.
func (q *Queue) TryReceive() (telemetry.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lostRecords > 0 || q.lostStatus > 0 {
		ev := q.overflowEventLocked()
		q.stats.Delivered++
		return ev, true
	}
	if len(q.items) == 0 {
		return telemetry.Event{}, false
	}
	ev := q.items[0]
	q.items[0] = telemetry.Event{}
	q.items = q.items[1:]
	q.stats.Delivered++
	return ev, true
}

func (q *Queue) overflowEventLocked() telemetry.Event {
	sev := telemetry.SeverityWarning
	if q.lostRecords > 0 {
		sev = telemetry.SeverityError
	}
	st := telemetry.Status{
		Severity: sev,
		Class:    telemetry.ClassChannelOverflow,
		Text: fmt.Sprintf("event channel overflow: dropped %d sensor records and %d status messages (capacity %d)",
			q.lostRecords, q.lostStatus, q.capacity),
	}
	q.lostRecords = 0
	q.lostStatus = 0
	return telemetry.Event{Source: Source, Time: q.clock.Now(), Payload: st}
}

// Close stops accepting events. Events already queued can still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Capacity = q.capacity
	s.Len = len(q.items)
	return s
}
