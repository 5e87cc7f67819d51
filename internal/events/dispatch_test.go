package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enginemon/internal/telemetry"
)

func TestHandlers_RoutesEveryKind(t *testing.T) {
	var got []string
	h := Handlers{
		OnPrimary:           func(telemetry.Primary) { got = append(got, "primary") },
		OnSecondary:         func(telemetry.Secondary) { got = append(got, "secondary") },
		OnAuxiliary:         func(telemetry.Auxiliary) { got = append(got, "auxiliary") },
		OnEGT:               func(telemetry.EGTBank) { got = append(got, "egt") },
		OnCHT:               func(telemetry.CHTBank) { got = append(got, "cht") },
		OnTimeToDestination: func(telemetry.NavRecord) { got = append(got, "ttd") },
		OnStatus: func(source string, st telemetry.Status) {
			got = append(got, source+":"+string(st.Class))
		},
	}
	for _, p := range []telemetry.Payload{
		telemetry.Primary{},
		telemetry.Secondary{},
		telemetry.Auxiliary{},
		telemetry.EGTBank{},
		telemetry.CHTBank{},
		telemetry.NavRecord{},
		telemetry.Status{Class: telemetry.ClassLinkUp},
	} {
		h.Handle(telemetry.Event{Source: "nav", Payload: p})
	}
	assert.Equal(t, []string{"primary", "secondary", "auxiliary", "egt", "cht", "ttd", "nav:link_up"}, got)
}

func TestHandlers_NilCallbacksSkipped(t *testing.T) {
	assert.NotPanics(t, func() {
		Handlers{}.Handle(telemetry.Event{Payload: telemetry.Primary{}})
		Handlers{}.Handle(telemetry.Event{Payload: telemetry.Status{}})
	})
}

func TestDispatch_DrainsUntilClosed(t *testing.T) {
	q := NewQueue(8)
	q.Publish(rec(1))
	q.Publish(rec(2))
	q.Close()

	var rpms []float64
	err := Dispatch(context.Background(), q, Handlers{
		OnPrimary: func(p telemetry.Primary) { rpms = append(rpms, p.RPM) },
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, rpms)
}

func TestDispatch_StopsOnContext(t *testing.T) {
	q := NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Dispatch(ctx, q, Handlers{}) }()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Dispatch did not stop")
	}
}
