package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

const tickTracerName = "simulation"

// SimulationEngine bundles the particle store and the physics engine behind
// one tick entry point, with listener hooks for callers that want to observe
// every tick (progress logging, tests).
type SimulationEngine struct {
	Store   *particles.Store
	Physics *PhysicsEngine

	tickListeners []func(TickResult)
}

// NewSimulationEngine wires a store to a physics engine.
func NewSimulationEngine(store *particles.Store, physics *PhysicsEngine) *SimulationEngine {
	return &SimulationEngine{
		Store:   store,
		Physics: physics,
	}
}

// RegisterTickListener adds a callback invoked after every completed tick.
func (se *SimulationEngine) RegisterTickListener(fn func(TickResult)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step advances the simulation by one tick and notifies listeners. Each tick
// is recorded as one span; the noop provider makes this free when tracing is
// disabled.
func (se *SimulationEngine) Step(dt, timeSpeed float64, reversed bool) (TickResult, error) {
	_, span := otel.Tracer(tickTracerName).Start(context.Background(), "tick")
	defer span.End()

	res, err := se.Physics.Update(se.Store, dt, timeSpeed, reversed)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(
		attribute.Int64("sim.frame", int64(res.Frame)),
		attribute.Float64("sim.time_years", res.PhysicsTime),
		attribute.String("sim.epoch", string(res.Cosmology.Epoch.ID)),
	)

	for _, fn := range se.tickListeners {
		fn(res)
	}
	return res, nil
}

// Run advances the simulation by a fixed number of ticks.
func (se *SimulationEngine) Run(ticks int, dt, timeSpeed float64, reversed bool) error {
	for i := 0; i < ticks; i++ {
		if _, err := se.Step(dt, timeSpeed, reversed); err != nil {
			return err
		}
	}
	return nil
}
