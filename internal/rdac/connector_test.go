package rdac

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"enginemon/internal/events"
	"enginemon/internal/link"
	"enginemon/internal/link/linktest"
	"enginemon/internal/telemetry"
)

// sink drains a queue into a slice for assertions.
type sink struct {
	q   *events.Queue
	got []telemetry.Event
}

func newSink() *sink {
	return &sink{q: events.NewQueue(4096)}
}

func (s *sink) drain() {
	for {
		ev, ok := s.q.TryReceive()
		if !ok {
			return
		}
		s.got = append(s.got, ev)
	}
}

func (s *sink) records() []telemetry.Payload {
	var out []telemetry.Payload
	for _, ev := range s.got {
		if ev.IsRecord() {
			out = append(out, ev.Payload)
		}
	}
	return out
}

func (s *sink) statuses(classes ...telemetry.Class) []telemetry.Status {
	var out []telemetry.Status
	for _, ev := range s.got {
		st, ok := ev.Payload.(telemetry.Status)
		if !ok {
			continue
		}
		if len(classes) == 0 {
			out = append(out, st)
			continue
		}
		for _, c := range classes {
			if st.Class == c {
				out = append(out, st)
				break
			}
		}
	}
	return out
}

// waitRecords drains until at least n records arrived.
func (s *sink) waitRecords(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.drain()
		return len(s.records()) >= n
	}, 3*time.Second, 2*time.Millisecond, "want %d records", n)
}

func mustEncode(t *testing.T, rec telemetry.Payload) []byte {
	t.Helper()
	b, err := Encode(rec)
	require.NoError(t, err)
	return b
}

func testConfig(d *linktest.Dialer) Config {
	return Config{
		Link: link.Config{
			Name:        "engine",
			Backend:     link.BackendSim,
			Device:      "mock0",
			ReadTimeout: 5 * time.Millisecond,
		},
		Opener:         d.Open,
		ReconnectDelay: time.Millisecond,
		ReconnectMax:   4 * time.Millisecond,
	}
}

func startConnector(t *testing.T, cfg Config, s *sink) *Connector {
	t.Helper()
	c, err := New(cfg, s.q)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func chunked(b []byte, size int) []linktest.Step {
	var steps []linktest.Step
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		steps = append(steps, linktest.Data(b[:n]))
		b = b[n:]
	}
	return steps
}

var (
	recA = telemetry.Primary{RPM: 1000, FuelFlowLPH: 10}
	recB = telemetry.Auxiliary{FuelLevelL: 55.5}
	recC = telemetry.EGTBank{TempC: [4]uint16{701, 702, 703, 704}}
	recD = telemetry.Secondary{OilTempC: 80, OilPressureKPa: 400, Volts: 13.9}
)

func noisyStream(t *testing.T) []byte {
	t.Helper()
	bad := mustEncode(t, recA)
	bad[len(bad)-1] ^= 0xFF

	var b []byte
	b = append(b, 0x01, 0x02, 0x03)
	b = append(b, mustEncode(t, recA)...)
	b = append(b, mustEncode(t, recB)...)
	b = append(b, bad...)
	// A stray preamble reads as an unknown type.
	b = append(b, Preamble)
	b = append(b, mustEncode(t, recC)...)
	// A preamble and a valid type whose length runs into the next frame.
	b = append(b, 0x10, 0x20, Preamble, TypeSecondary)
	b = append(b, mustEncode(t, recD)...)
	return b
}

func TestConnector_DecodesThroughGarbage(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newSink()
	port := linktest.NewMockPort(linktest.Data(noisyStream(t)))
	c := startConnector(t, testConfig(linktest.NewDialer(linktest.Attempt{Port: port})), s)

	s.waitRecords(t, 4)
	c.Close()
	s.drain()

	assert.Equal(t, []telemetry.Payload{recA, recB, recC, recD}, s.records())

	up := s.statuses(telemetry.ClassLinkUp)
	require.Len(t, up, 1)
	assert.Contains(t, up[0].Text, "mock0")
	assert.Equal(t, telemetry.SeverityInfo, up[0].Severity)

	garbage := s.statuses(telemetry.ClassMalformedFrame, telemetry.ClassChecksumError)
	require.Len(t, garbage, 3)
	assert.Equal(t, telemetry.ClassMalformedFrame, garbage[0].Class)
	assert.Contains(t, garbage[0].Text, "discarded 3 bytes at offset 0")
	assert.Equal(t, telemetry.ClassChecksumError, garbage[1].Class)
	assert.Contains(t, garbage[1].Text, "discarded 8 bytes at offset 15 (1 checksum, 2 malformed")
	assert.Equal(t, telemetry.ClassChecksumError, garbage[2].Class)
	assert.Contains(t, garbage[2].Text, "discarded 4 bytes at offset 34 (1 checksum, 2 malformed")
	for _, st := range garbage {
		assert.True(t, st.IsWarning())
		assert.True(t, strings.HasPrefix(st.Text, "engine:"), st.Text)
	}

	snap := c.Snapshot()
	assert.Equal(t, uint64(4), snap.Records)
	assert.Equal(t, uint64(7), snap.DecodeErrors)
	assert.Equal(t, telemetry.StateDisconnected.String(), snap.State)
	assert.True(t, port.Closed())
}

func TestConnector_ChunkBoundariesDoNotMatter(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, size := range []int{1, 2, 3, 5, 8, 13} {
		s := newSink()
		port := linktest.NewMockPort(chunked(noisyStream(t), size)...)
		c := startConnector(t, testConfig(linktest.NewDialer(linktest.Attempt{Port: port})), s)

		s.waitRecords(t, 4)
		c.Close()
		s.drain()

		assert.Equal(t, []telemetry.Payload{recA, recB, recC, recD}, s.records(), "chunk size %d", size)
		assert.GreaterOrEqual(t, len(s.statuses(telemetry.ClassMalformedFrame, telemetry.ClassChecksumError)), 3,
			"chunk size %d", size)
	}
}

func TestConnector_ReconnectsAfterLinkLost(t *testing.T) {
	defer goleak.VerifyNone(t)

	p1 := linktest.NewMockPort(linktest.Data(mustEncode(t, recA)), linktest.Fail(io.EOF))
	p2 := linktest.NewMockPort(linktest.Data(mustEncode(t, recB)))
	s := newSink()
	c := startConnector(t, testConfig(linktest.NewDialer(
		linktest.Attempt{Port: p1},
		linktest.Attempt{Port: p2},
	)), s)

	s.waitRecords(t, 2)
	c.Close()
	s.drain()

	assert.Equal(t, []telemetry.Payload{recA, recB}, s.records())

	var classes []telemetry.Class
	for _, st := range s.statuses() {
		classes = append(classes, st.Class)
	}
	assert.Equal(t, []telemetry.Class{telemetry.ClassLinkUp, telemetry.ClassLinkLost, telemetry.ClassLinkUp}, classes)

	lost := s.statuses(telemetry.ClassLinkLost)[0]
	assert.Contains(t, lost.Text, "EOF")
	assert.True(t, lost.IsWarning())

	assert.True(t, p1.Closed())
	assert.Equal(t, uint64(2), c.Snapshot().Connects)
}

func TestConnector_UnavailableReportedOncePerTransition(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("no such device")
	port := linktest.NewMockPort(linktest.Data(mustEncode(t, recA)))
	d := linktest.NewDialer(
		linktest.Attempt{Err: boom},
		linktest.Attempt{Err: boom},
		linktest.Attempt{Err: boom},
		linktest.Attempt{Port: port},
	)
	s := newSink()
	c := startConnector(t, testConfig(d), s)

	s.waitRecords(t, 1)
	c.Close()
	s.drain()

	assert.Equal(t, 4, d.Calls())
	unavailable := s.statuses(telemetry.ClassLinkUnavailable)
	require.Len(t, unavailable, 1)
	assert.Equal(t, telemetry.SeverityError, unavailable[0].Severity)
	assert.Contains(t, unavailable[0].Text, "no such device")
	assert.Contains(t, unavailable[0].Text, "engine link unavailable")
	require.Len(t, s.statuses(telemetry.ClassLinkUp), 1)
}

func TestConnector_PartialFrameDroppedOnReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := mustEncode(t, recA)
	p1 := linktest.NewMockPort(linktest.Data(a[:4]), linktest.Fail(io.ErrUnexpectedEOF))
	p2 := linktest.NewMockPort(linktest.Data(a[4:]), linktest.Data(mustEncode(t, recB)))
	s := newSink()
	c := startConnector(t, testConfig(linktest.NewDialer(
		linktest.Attempt{Port: p1},
		linktest.Attempt{Port: p2},
	)), s)

	s.waitRecords(t, 1)
	c.Close()
	s.drain()

	// The tail of recA from the new session is garbage, not a frame.
	assert.Equal(t, []telemetry.Payload{recB}, s.records())
	assert.NotEmpty(t, s.statuses(telemetry.ClassMalformedFrame))
}

func TestConnector_RateLimitsDecodeReports(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := clockwork.NewFakeClock()
	var stream []byte
	for i := 0; i < 3; i++ {
		stream = append(stream, 0x00, 0x01)
		stream = append(stream, mustEncode(t, recA)...)
	}
	port := linktest.NewMockPort(linktest.Data(stream))

	cfg := testConfig(linktest.NewDialer(linktest.Attempt{Port: port}))
	cfg.Clock = clock
	cfg.StatusRate = 1
	cfg.StatusBurst = 1
	s := newSink()
	c := startConnector(t, cfg, s)

	s.waitRecords(t, 3)
	assert.Len(t, s.statuses(telemetry.ClassMalformedFrame), 1)
	assert.Equal(t, uint64(3), c.Snapshot().DecodeErrors)

	clock.Advance(time.Second)
	port.Push(linktest.Data(append([]byte{0x00}, mustEncode(t, recA)...)))
	s.waitRecords(t, 4)
	c.Close()
	s.drain()

	garbage := s.statuses(telemetry.ClassMalformedFrame)
	require.Len(t, garbage, 2)
	assert.Contains(t, garbage[1].Text, "[2 similar reports suppressed]")
}

func TestConnector_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newSink()
	port := linktest.NewMockPort()
	c, err := New(testConfig(linktest.NewDialer(linktest.Attempt{Port: port})), s.q)
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	require.Error(t, c.Start(context.Background()), "second start")

	require.Eventually(t, func() bool {
		return c.Snapshot().State == telemetry.StateConnected.String()
	}, 3*time.Second, 2*time.Millisecond)

	c.Close()
	c.Close()
	assert.True(t, port.Closed())
	require.Error(t, c.Run(context.Background()), "run after close")
}

func TestConnector_RunStopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newSink()
	d := linktest.NewDialer()
	c, err := New(testConfig(d), s.q)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Calls() >= 2 }, 3*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	s.drain()
	// Exhausted dialer fails the same way every time: one report.
	assert.Len(t, s.statuses(telemetry.ClassLinkUnavailable), 1)
	assert.Equal(t, telemetry.StateDisconnected.String(), c.Snapshot().State)
}

func TestNew_RequiresPublisher(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
