package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"enginemon/internal/config"
	"enginemon/internal/connector"
	"enginemon/internal/events"
	"enginemon/internal/link"
	"enginemon/internal/nav"
	"enginemon/internal/rdac"
	"enginemon/internal/sim"
)

// service is what the runtime needs from a connector.
type service interface {
	Run(ctx context.Context) error
	Snapshot() connector.Snapshot
}

type runtime struct {
	cfg      config.Config
	log      zerolog.Logger
	clock    clockwork.Clock
	queue    *events.Queue
	services []service
	display  *display

	summaryEvery time.Duration
}

func newRuntime(cfg config.Config, logger zerolog.Logger) (*runtime, error) {
	return newRuntimeWithClock(cfg, logger, clockwork.NewRealClock())
}

func newRuntimeWithClock(cfg config.Config, logger zerolog.Logger, clock clockwork.Clock) (*runtime, error) {
	q := events.NewQueue(cfg.Events.Capacity, events.WithClock(clock))
	rt := &runtime{
		cfg:          cfg,
		log:          logger,
		clock:        clock,
		queue:        q,
		display:      newDisplay(logger),
		summaryEvery: 10 * time.Second,
	}

	if cfg.Engine.Enable {
		opener, err := engineOpener(cfg, clock)
		if err != nil {
			return nil, err
		}
		l := logger.With().Str("component", "rdac").Logger()
		c, err := rdac.New(rdac.Config{
			Link:           cfg.Engine.Link("engine"),
			Opener:         opener,
			ReconnectDelay: cfg.Engine.ReconnectDelay,
			ReconnectMax:   cfg.Engine.ReconnectMax,
			StatusRate:     cfg.Status.RatePerSec,
			StatusBurst:    cfg.Status.Burst,
			Clock:          clock,
			Logger:         &l,
		}, q)
		if err != nil {
			return nil, err
		}
		rt.services = append(rt.services, c)
	}

	if cfg.Navigation.Enable {
		var opener link.Opener
		if cfg.Navigation.Backend == link.BackendSim {
			route := sim.RouteSim{DistanceNm: cfg.Sim.DistanceNm, GroundKt: cfg.Sim.GroundKt}
			opener = sim.NewSource(cfg.Sim.Interval, sim.RouteGenerator(route), sim.WithClock(clock)).Open
		}
		l := logger.With().Str("component", "nav").Logger()
		c, err := nav.New(nav.Config{
			Link:           cfg.Navigation.Link("navigation"),
			Opener:         opener,
			ReconnectDelay: cfg.Navigation.ReconnectDelay,
			ReconnectMax:   cfg.Navigation.ReconnectMax,
			MaxLineBytes:   cfg.Navigation.MaxLineBytes,
			StatusRate:     cfg.Status.RatePerSec,
			StatusBurst:    cfg.Status.Burst,
			Clock:          clock,
			Logger:         &l,
		}, q)
		if err != nil {
			return nil, err
		}
		rt.services = append(rt.services, c)
	}

	if len(rt.services) == 0 {
		return nil, fmt.Errorf("no links enabled")
	}
	return rt, nil
}

func engineOpener(cfg config.Config, clock clockwork.Clock) (link.Opener, error) {
	if cfg.Engine.Backend != link.BackendSim {
		return nil, nil
	}
	opts := []sim.SourceOption{sim.WithClock(clock)}
	if cfg.Sim.FaultScript != "" {
		script, err := sim.LoadFaultScript(cfg.Sim.FaultScript)
		if err != nil {
			return nil, fmt.Errorf("sim fault script: %w", err)
		}
		plan, err := sim.NewFaultPlan(script)
		if err != nil {
			return nil, fmt.Errorf("sim fault script: %w", err)
		}
		opts = append(opts, sim.WithFaults(plan))
	}
	return sim.NewSource(cfg.Sim.Interval, sim.EngineGenerator(sim.EngineSim{}), opts...).Open, nil
}

// Run blocks until ctx is done. Connectors are stopped first; the display
// then drains what they queued before Run returns.
func (r *runtime) Run(ctx context.Context) error {
	var producers errgroup.Group
	for _, s := range r.services {
		s := s
		producers.Go(func() error { return s.Run(ctx) })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := producers.Wait()
		r.queue.Close()
		return err
	})
	g.Go(func() error {
		return events.Dispatch(context.WithoutCancel(ctx), r.queue, r.display.Handlers())
	})
	g.Go(func() error {
		r.summaryLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (r *runtime) summaryLoop(ctx context.Context) {
	if r.summaryEvery <= 0 {
		return
	}
	t := r.clock.NewTicker(r.summaryEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			r.logSummary()
		}
	}
}

func (r *runtime) snapshots() []connector.Snapshot {
	out := make([]connector.Snapshot, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s.Snapshot())
	}
	return out
}

func (r *runtime) logSummary() {
	for _, s := range r.snapshots() {
		r.log.Info().
			Str("link", s.Name).
			Str("state", s.State).
			Uint64("records", s.Records).
			Uint64("decode_errors", s.DecodeErrors).
			Uint64("connects", s.Connects).
			Str("last_error", s.LastError).
			Msg("link summary")
	}
	st := r.queue.Stats()
	r.log.Info().
		Int("queued", st.Len).
		Uint64("delivered", st.Delivered).
		Uint64("dropped_records", st.DroppedRecords).
		Uint64("dropped_status", st.DroppedStatus).
		Msg("event channel")
	r.display.logGauges()
}
