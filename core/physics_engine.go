package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/logging"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

// EngineParams are the tunable numerical parameters of the physics engine.
// DefaultEngineParams fills every field; construction-time configuration
// replaces ad-hoc defaulting at use sites.
type EngineParams struct {
	G            float64 // gravitational constant in simulation units
	Softening    float64 // force softening length
	Theta        float64 // Barnes-Hut opening angle
	UseBarnesHut bool

	// EnableExpansion toggles the cosmological scaling step. The expansion
	// model still advances time when disabled, so epoch gating is
	// unaffected; only the particle stretch/cool step is skipped.
	EnableExpansion bool

	// BarnesHutLimit is the particle count above which the engine switches
	// from the octree to the sampled uniform-grid approximation.
	BarnesHutLimit int

	// GridResolution is the per-axis cell count of the fallback gravity grid.
	GridResolution int
	// AccumStride samples every Nth particle when accumulating grid mass.
	AccumStride int
	// ApplyStride applies grid forces to every Mth particle. The two strides
	// are independent tunables; nothing requires them to match.
	ApplyStride int

	// MaxDisplacement clamps the magnitude of any single-tick position step.
	MaxDisplacement float64
	// ExpansionClamp bounds the per-tick expansion growth factor to
	// [1-ExpansionClamp, 1+ExpansionClamp].
	ExpansionClamp float64

	// HeatingAmplitude scales stochastic heating once gravity is active.
	HeatingAmplitude float64
	// HeatingRadiusScale sets how quickly heating falls off with distance
	// from the field's center; denser central regions heat more.
	HeatingRadiusScale float64
	// HeatingSeed feeds the deterministic jitter hash.
	HeatingSeed uint64

	// DetectEvery throttles structure detection to one pass per this many
	// ticks. EnergyEvery does the same for energy diagnostics.
	DetectEvery uint64
	EnergyEvery uint64
}

// DefaultEngineParams returns the stock engine tuning.
func DefaultEngineParams() EngineParams {
	return EngineParams{
		G:                  1e-4,
		Softening:          0.1,
		Theta:              0.6,
		UseBarnesHut:       true,
		EnableExpansion:    true,
		BarnesHutLimit:     5000,
		GridResolution:     16,
		AccumStride:        2,
		ApplyStride:        1,
		MaxDisplacement:    5.0,
		ExpansionClamp:     0.1,
		HeatingAmplitude:   50.0,
		HeatingRadiusScale: 5.0,
		HeatingSeed:        0x6c6f737430,
		DetectEvery:        30,
		EnergyEvery:        60,
	}
}

// ParamsPatch is a partial update for runtime-tunable parameters. Nil fields
// leave the current value unchanged.
type ParamsPatch struct {
	G            *float64
	Softening    *float64
	Theta        *float64
	UseBarnesHut *bool
}

// TickMetricsRecorder receives per-tick measurements. Implemented by the
// observability collector; a nil recorder disables reporting.
type TickMetricsRecorder interface {
	ObserveTick(d time.Duration)
	SetActiveParticles(n int)
	SetEpoch(id string)
	IncEpochTransitions()
	IncNonFiniteEvents(n int)
	IncExpansionSkips()
	SetStructureCounts(stats DensityStats)
}

// EnergyDiagnostics summarises the mechanical state of the particle field.
// Potential energy is estimated from a strided pair sample, so the virial
// ratio is a diagnostic, not an exact observable.
type EnergyDiagnostics struct {
	KineticEnergy   float64 `json:"kinetic_energy"`
	PotentialEnergy float64 `json:"potential_energy"`
	VirialRatio     float64 `json:"virial_ratio"`
}

// TickResult is returned from every Update call.
type TickResult struct {
	Frame        uint64
	PhysicsTime  float64 // cosmic time in years
	Cosmology    CosmologySnapshot
	EpochChanged bool
}

// EngineSnapshot is the published, read-only view served to external pullers
// (stats API, UI). It is copied out under a lock so readers never touch live
// simulation state.
type EngineSnapshot struct {
	Frame       uint64            `json:"frame"`
	Cosmology   CosmologySnapshot `json:"cosmology"`
	Density     DensityStats      `json:"density"`
	TopClusters []model.Structure `json:"top_clusters"`
	Energy      EnergyDiagnostics `json:"energy"`
}

// PhysicsEngine sequences expansion, gravity, integration, thermal update,
// and throttled structure detection for every tick. All persistent
// simulation state lives in the ExpansionModel and the particle store; the
// engine itself only keeps timing and diagnostic state.
type PhysicsEngine struct {
	params   EngineParams
	cosmos   *ExpansionModel
	tree     *Octree
	detector *ClusterDetector

	frame  uint64
	energy EnergyDiagnostics

	log     logging.Logger
	metrics TickMetricsRecorder

	// accBuf is reused across ticks to avoid per-tick allocation.
	accBuf []Vec3

	snapMu   sync.RWMutex
	snapshot EngineSnapshot
}

// EngineOption configures a PhysicsEngine.
type EngineOption func(*PhysicsEngine)

// WithLogger attaches a structured logger for per-tick diagnostics.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *PhysicsEngine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetricsRecorder attaches a tick metrics sink.
func WithMetricsRecorder(rec TickMetricsRecorder) EngineOption {
	return func(e *PhysicsEngine) { e.metrics = rec }
}

// WithParams replaces the default engine tuning.
func WithParams(p EngineParams) EngineOption {
	return func(e *PhysicsEngine) { e.params = p }
}

// NewPhysicsEngine constructs an engine around an expansion model.
func NewPhysicsEngine(cosmos *ExpansionModel, opts ...EngineOption) (*PhysicsEngine, error) {
	if cosmos == nil {
		return nil, fmt.Errorf("physics engine: expansion model is required")
	}
	e := &PhysicsEngine{
		params: DefaultEngineParams(),
		cosmos: cosmos,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.params.AccumStride < 1 {
		e.params.AccumStride = 1
	}
	if e.params.ApplyStride < 1 {
		e.params.ApplyStride = 1
	}
	e.tree = NewOctree(e.params.Theta)
	e.detector = NewClusterDetector(DefaultGridResolution)
	return e, nil
}

// SetParameters applies a partial runtime update. Unset fields keep their
// current values.
func (e *PhysicsEngine) SetParameters(p ParamsPatch) {
	if p.G != nil && finite(*p.G) {
		e.params.G = *p.G
	}
	if p.Softening != nil && finite(*p.Softening) && *p.Softening >= 0 {
		e.params.Softening = *p.Softening
	}
	if p.Theta != nil && finite(*p.Theta) && *p.Theta > 0 {
		e.params.Theta = *p.Theta
		e.tree.Theta = *p.Theta
	}
	if p.UseBarnesHut != nil {
		e.params.UseBarnesHut = *p.UseBarnesHut
	}
}

// Params returns a copy of the current engine tuning.
func (e *PhysicsEngine) Params() EngineParams { return e.params }

// Update advances the simulation by one tick. The pipeline order is fixed:
// expansion, gravity, integration, thermal update, age, throttled detection.
// Numerical failures degrade to skips and clamps; a tick never aborts.
func (e *PhysicsEngine) Update(store *particles.Store, dt, timeSpeed float64, reversed bool) (TickResult, error) {
	if store == nil {
		return TickResult{}, fmt.Errorf("physics engine: store is required")
	}
	started := time.Now()
	e.frame++

	scaledDt := dt * timeSpeed
	if reversed {
		scaledDt = -scaledDt
	}
	if !finite(scaledDt) {
		scaledDt = 0
	}

	// 1-2. Advance cosmology. Epoch transition detection happens here,
	// before any particle mutation for this tick.
	epochChanged := e.cosmos.Update(scaledDt)
	snap := e.cosmos.Snapshot()
	if epochChanged {
		e.log.Info(context.Background(), "epoch transition",
			logging.String("epoch", string(snap.Epoch.ID)),
			logging.Float64("time_years", snap.TimeYears),
			logging.Float64("redshift", snap.Redshift),
		)
		if e.metrics != nil {
			e.metrics.IncEpochTransitions()
			e.metrics.SetEpoch(string(snap.Epoch.ID))
		}
	}

	// 3. Uniform expansion scaling (forward playback only).
	if !reversed && e.params.EnableExpansion {
		e.applyExpansion(store, scaledDt)
	}

	// 4. Gravity once matter dominates.
	gravityActive := e.cosmos.TimeYears() >= MatterRadiationEqualityYears
	if gravityActive {
		e.applyGravity(store, scaledDt)
	}

	// 5. Integrate positions from the just-updated velocities.
	e.integrate(store, scaledDt)

	// 6-7. Thermal update and age advance.
	e.updateThermal(store, snap, scaledDt, gravityActive)

	// 8. Throttled structure detection and diagnostics.
	if e.params.DetectEvery > 0 && e.frame%e.params.DetectEvery == 0 {
		e.detector.Detect(store)
		if e.metrics != nil {
			e.metrics.SetStructureCounts(e.detector.Stats())
		}
	}
	if e.params.EnergyEvery > 0 && e.frame%e.params.EnergyEvery == 0 {
		e.energy = e.computeEnergy(store)
	}

	if e.metrics != nil {
		e.metrics.SetActiveParticles(store.ActiveCount())
		e.metrics.ObserveTick(time.Since(started))
	}

	e.publish(snap)

	return TickResult{
		Frame:        e.frame,
		PhysicsTime:  snap.TimeYears,
		Cosmology:    snap,
		EpochChanged: epochChanged,
	}, nil
}

// applyExpansion stretches positions by 1 + clamp(H·dt, ±ExpansionClamp) and
// divides velocities by the same factor (adiabatic cooling of peculiar
// velocity). A degenerate factor skips the step for the whole tick.
func (e *PhysicsEngine) applyExpansion(store *particles.Store, scaledDt float64) {
	snap := e.cosmos.Snapshot()
	h := e.cosmos.HubbleParameter(snap.Redshift)
	growth := clampAbs(h*scaledDt, e.params.ExpansionClamp)
	factor := 1 + growth

	if !finite(factor) || factor <= 0 {
		e.log.Warn(context.Background(), "skipping expansion step: degenerate scale factor",
			logging.Float64("factor", factor),
			logging.Float64("hubble", h),
		)
		if e.metrics != nil {
			e.metrics.IncExpansionSkips()
		}
		return
	}

	inv := 1 / factor
	for i := 0; i < store.Count(); i++ {
		if !store.Active(i) {
			continue
		}
		store.X[i] *= factor
		store.Y[i] *= factor
		store.Z[i] *= factor
		store.VX[i] *= inv
		store.VY[i] *= inv
		store.VZ[i] *= inv
	}
}

// applyGravity selects the Barnes-Hut octree below the performance limit and
// the sampled uniform grid above it, then applies velocity impulses.
func (e *PhysicsEngine) applyGravity(store *particles.Store, scaledDt float64) {
	n := store.Count()
	if n == 0 || scaledDt == 0 {
		return
	}

	soft2 := e.params.Softening * e.params.Softening
	if e.params.UseBarnesHut && n <= e.params.BarnesHutLimit {
		e.treeGravity(store, scaledDt, soft2)
	} else {
		e.gridGravity(store, scaledDt, soft2)
	}
}

func (e *PhysicsEngine) treeGravity(store *particles.Store, scaledDt, soft2 float64) {
	e.tree.Build(store)

	if cap(e.accBuf) < store.Count() {
		e.accBuf = make([]Vec3, store.Count())
	}
	acc := e.accBuf[:store.Count()]

	dropped := 0
	for i := range acc {
		a, ok := e.tree.Accel(i, store, e.params.G, soft2)
		if !ok {
			dropped++
			a = Vec3{}
		}
		acc[i] = a
	}
	if dropped > 0 && e.metrics != nil {
		e.metrics.IncNonFiniteEvents(dropped)
	}

	// The tree is read-only during the query loop above; impulses are
	// applied only after every force has been evaluated.
	for i := range acc {
		if !store.Active(i) {
			continue
		}
		store.VX[i] += acc[i].X * scaledDt
		store.VY[i] += acc[i].Y * scaledDt
		store.VZ[i] += acc[i].Z * scaledDt
	}
}

// gridGravity is the coarse large-N approximation: particle mass is
// accumulated into a low-resolution grid from a strided sample, and forces
// toward cell centers of mass are applied to a (separately) strided subset.
func (e *PhysicsEngine) gridGravity(store *particles.Store, scaledDt, soft2 float64) {
	res := e.params.GridResolution
	if res < 2 {
		res = 2
	}

	found := false
	var minV, maxV Vec3
	for i := 0; i < store.Count(); i++ {
		if !store.Active(i) || !finite3(store.X[i], store.Y[i], store.Z[i]) {
			continue
		}
		p := Vec3{X: store.X[i], Y: store.Y[i], Z: store.Z[i]}
		if !found {
			minV, maxV = p, p
			found = true
			continue
		}
		minV.X = math.Min(minV.X, p.X)
		minV.Y = math.Min(minV.Y, p.Y)
		minV.Z = math.Min(minV.Z, p.Z)
		maxV.X = math.Max(maxV.X, p.X)
		maxV.Y = math.Max(maxV.Y, p.Y)
		maxV.Z = math.Max(maxV.Z, p.Z)
	}
	if !found {
		return
	}
	span := maxV.Sub(minV)
	largest := math.Max(span.X, math.Max(span.Y, span.Z))
	if largest <= 0 {
		return
	}
	cellSize := largest / float64(res)

	type massCell struct {
		mass float64
		com  Vec3
	}
	cells := make([]massCell, res*res*res)

	// Accumulate a strided sample, re-weighted so total grid mass matches
	// the full population in expectation.
	weight := float64(e.params.AccumStride)
	for i := 0; i < store.Count(); i += e.params.AccumStride {
		if !store.Active(i) || !finite3(store.X[i], store.Y[i], store.Z[i]) {
			continue
		}
		ix := clampCell(int((store.X[i]-minV.X)/cellSize), res)
		iy := clampCell(int((store.Y[i]-minV.Y)/cellSize), res)
		iz := clampCell(int((store.Z[i]-minV.Z)/cellSize), res)
		c := &cells[cellIndex(ix, iy, iz, res)]
		m := store.Mass[i] * weight
		total := c.mass + m
		p := Vec3{X: store.X[i], Y: store.Y[i], Z: store.Z[i]}
		c.com = c.com.Scale(c.mass / total).Add(p.Scale(m / total))
		c.mass = total
	}

	dropped := 0
	for i := 0; i < store.Count(); i += e.params.ApplyStride {
		if !store.Active(i) || !finite3(store.X[i], store.Y[i], store.Z[i]) {
			continue
		}
		pos := Vec3{X: store.X[i], Y: store.Y[i], Z: store.Z[i]}
		selfIx := clampCell(int((pos.X-minV.X)/cellSize), res)
		selfIy := clampCell(int((pos.Y-minV.Y)/cellSize), res)
		selfIz := clampCell(int((pos.Z-minV.Z)/cellSize), res)
		selfCell := cellIndex(selfIx, selfIy, selfIz, res)

		var acc Vec3
		for ci := range cells {
			if ci == selfCell || cells[ci].mass == 0 {
				continue
			}
			d := cells[ci].com.Sub(pos)
			distSq := d.Dot(d)
			if distSq < 1e-18 {
				continue
			}
			accMag := e.params.G * cells[ci].mass / (distSq + soft2)
			acc = acc.Add(d.Scale(accMag / math.Sqrt(distSq)))
		}
		if !finiteVec(acc) {
			dropped++
			continue
		}
		store.VX[i] += acc.X * scaledDt
		store.VY[i] += acc.Y * scaledDt
		store.VZ[i] += acc.Z * scaledDt
	}
	if dropped > 0 && e.metrics != nil {
		e.metrics.IncNonFiniteEvents(dropped)
	}
}

// integrate performs the semi-implicit position update with a per-tick
// displacement clamp. Non-finite components are reset to zero rather than
// propagated.
func (e *PhysicsEngine) integrate(store *particles.Store, scaledDt float64) {
	corrupted := 0
	for i := 0; i < store.Count(); i++ {
		if !store.Active(i) {
			continue
		}

		if !finite3(store.VX[i], store.VY[i], store.VZ[i]) {
			store.VX[i] = sanitize(store.VX[i])
			store.VY[i] = sanitize(store.VY[i])
			store.VZ[i] = sanitize(store.VZ[i])
			corrupted++
		}

		disp := Vec3{
			X: store.VX[i] * scaledDt,
			Y: store.VY[i] * scaledDt,
			Z: store.VZ[i] * scaledDt,
		}
		if norm := disp.Norm(); norm > e.params.MaxDisplacement {
			disp = disp.Scale(e.params.MaxDisplacement / norm)
		}
		store.X[i] += disp.X
		store.Y[i] += disp.Y
		store.Z[i] += disp.Z

		if !finite3(store.X[i], store.Y[i], store.Z[i]) {
			store.X[i] = sanitize(store.X[i])
			store.Y[i] = sanitize(store.Y[i])
			store.Z[i] = sanitize(store.Z[i])
			corrupted++
		}
	}
	if corrupted > 0 {
		e.log.Warn(context.Background(), "reset non-finite particle components",
			logging.Int("count", corrupted),
		)
		if e.metrics != nil {
			e.metrics.IncNonFiniteEvents(corrupted)
		}
	}
}

// updateThermal relaxes particle temperature toward the cosmological
// background at the current epoch's cooling rate, adds deterministic
// stochastic heating near the field center once gravity is active, and
// advances age.
func (e *PhysicsEngine) updateThermal(store *particles.Store, snap CosmologySnapshot, scaledDt float64, gravityActive bool) {
	rate := snap.Epoch.CoolingRate
	blend := clamp(rate*math.Abs(scaledDt), 0, 1)

	for i := 0; i < store.Count(); i++ {
		if !store.Active(i) {
			continue
		}

		t := store.Temperature[i]
		if !finite(t) {
			t = snap.TemperatureK
		}
		t += (snap.TemperatureK - t) * blend

		if gravityActive {
			r := math.Sqrt(store.X[i]*store.X[i] + store.Y[i]*store.Y[i] + store.Z[i]*store.Z[i])
			central := 1 / (1 + r/e.params.HeatingRadiusScale)
			t += jitter(e.params.HeatingSeed, i, e.frame) * e.params.HeatingAmplitude * central
		}

		store.Temperature[i] = t
		store.ClampTemperature(i)

		store.Age[i] += scaledDt
		if store.Age[i] < 0 {
			store.Age[i] = 0
		}
	}
}

// computeEnergy estimates kinetic and (sampled) potential energy and the
// virial ratio 2K/|U|.
func (e *PhysicsEngine) computeEnergy(store *particles.Store) EnergyDiagnostics {
	ke := 0.0
	for i := 0; i < store.Count(); i++ {
		if !store.Active(i) {
			continue
		}
		v2 := store.VX[i]*store.VX[i] + store.VY[i]*store.VY[i] + store.VZ[i]*store.VZ[i]
		ke += 0.5 * store.Mass[i] * v2
	}

	// Pair sampling keeps the estimate O(N) on large stores.
	stride := 1
	if n := store.Count(); n > 256 {
		stride = n / 256
	}
	pe := 0.0
	soft := e.params.Softening
	for i := 0; i < store.Count(); i += stride {
		if !store.Active(i) {
			continue
		}
		for j := i + stride; j < store.Count(); j += stride {
			if !store.Active(j) {
				continue
			}
			dx := store.X[i] - store.X[j]
			dy := store.Y[i] - store.Y[j]
			dz := store.Z[i] - store.Z[j]
			r := math.Sqrt(dx*dx + dy*dy + dz*dz + soft*soft)
			pe -= e.params.G * store.Mass[i] * store.Mass[j] / r
		}
	}
	pe *= float64(stride * stride)

	virial := 0.0
	if pe != 0 {
		virial = 2 * ke / math.Abs(pe)
	}
	return EnergyDiagnostics{
		KineticEnergy:   sanitize(ke),
		PotentialEnergy: sanitize(pe),
		VirialRatio:     sanitize(virial),
	}
}

// DetectClusters runs a detection pass on demand and returns its stats. This
// is the pull interface for UI collaborators.
func (e *PhysicsEngine) DetectClusters(store *particles.Store) DensityStats {
	e.detector.Detect(store)
	stats := e.detector.Stats()
	if e.metrics != nil {
		e.metrics.SetStructureCounts(stats)
	}
	e.publish(e.cosmos.Snapshot())
	return stats
}

// TopClusters returns up to n of the densest clusters from the most recent
// detection pass.
func (e *PhysicsEngine) TopClusters(n int) []model.Structure {
	return e.detector.TopClusters(n)
}

// Energy returns the most recent energy diagnostics.
func (e *PhysicsEngine) Energy() EnergyDiagnostics { return e.energy }

// Cosmology exposes the expansion model for read access and explicit jumps.
func (e *PhysicsEngine) Cosmology() *ExpansionModel { return e.cosmos }

// publish copies the externally visible state under the snapshot lock.
func (e *PhysicsEngine) publish(snap CosmologySnapshot) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.snapshot = EngineSnapshot{
		Frame:       e.frame,
		Cosmology:   snap,
		Density:     e.detector.Stats(),
		TopClusters: e.detector.TopClusters(10),
		Energy:      e.energy,
	}
}

// Snapshot returns the last published engine state. Safe for concurrent use
// with the tick loop.
func (e *PhysicsEngine) Snapshot() EngineSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}
