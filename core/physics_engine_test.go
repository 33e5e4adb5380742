package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

type fakeRecorder struct {
	ticks            int
	activeParticles  int
	epoch            string
	epochTransitions int
	nonFinite        int
	expansionSkips   int
	stats            DensityStats
}

func (r *fakeRecorder) ObserveTick(time.Duration)         { r.ticks++ }
func (r *fakeRecorder) SetActiveParticles(n int)          { r.activeParticles = n }
func (r *fakeRecorder) SetEpoch(id string)                { r.epoch = id }
func (r *fakeRecorder) IncEpochTransitions()              { r.epochTransitions++ }
func (r *fakeRecorder) IncNonFiniteEvents(n int)          { r.nonFinite += n }
func (r *fakeRecorder) IncExpansionSkips()                { r.expansionSkips++ }
func (r *fakeRecorder) SetStructureCounts(s DensityStats) { r.stats = s }

func newTestEngine(t *testing.T, opts ...EngineOption) *PhysicsEngine {
	t.Helper()
	cosmos, err := NewExpansionModel(DefaultCosmologyParams(), model.DefaultEpochs())
	if err != nil {
		t.Fatalf("NewExpansionModel: %v", err)
	}
	e, err := NewPhysicsEngine(cosmos, opts...)
	if err != nil {
		t.Fatalf("NewPhysicsEngine: %v", err)
	}
	return e
}

func gravityOnlyParams() EngineParams {
	p := DefaultEngineParams()
	p.EnableExpansion = false
	p.HeatingAmplitude = 0
	return p
}

func TestNewPhysicsEngineRequiresCosmos(t *testing.T) {
	if _, err := NewPhysicsEngine(nil); err == nil {
		t.Fatal("nil expansion model accepted")
	}
}

func TestUpdateRequiresStore(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Update(nil, 1, 1, false); err == nil {
		t.Fatal("nil store accepted")
	}
}

// Near t = 0 the Hubble rate is enormous; the per-tick growth factor must be
// clamped to 1 + ExpansionClamp rather than stretching positions unboundedly.
func TestExpansionGrowthIsClamped(t *testing.T) {
	e := newTestEngine(t)
	e.Cosmology().JumpToTime(1) // deep radiation era, H·dt far above the clamp
	s := particles.NewStore(1)
	s.Add(1, 0, 0, 0, 0, 0, 1)

	if _, err := e.Update(s, 1, 1, false); err != nil {
		t.Fatalf("Update: %v", err)
	}

	factor := 1 + e.Params().ExpansionClamp
	require.InDelta(t, factor, s.X[0], 1e-12, "position stretch must hit the clamp, not the raw Hubble flow")
}

func TestReversedPlaybackSkipsExpansionScaling(t *testing.T) {
	e := newTestEngine(t)
	s := particles.NewStore(1)
	s.Add(1, 0, 0, 0, 0, 0, 1)

	if _, err := e.Update(s, 1, 1, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
	require.InDelta(t, 1.0, s.X[0], 1e-12, "reversed playback must not stretch positions")
}

func TestTwoBodyCenterOfMassIsStable(t *testing.T) {
	e := newTestEngine(t, WithParams(gravityOnlyParams()))
	e.Cosmology().JumpToTime(1e9)

	s := particles.NewStore(2)
	s.Add(-2, 0, 0, 0, 0, 0, 1e3)
	s.Add(2, 0, 0, 0, 0, 0, 1e3)

	for tick := 0; tick < 1000; tick++ {
		if _, err := e.Update(s, 0.01, 1, false); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}

	comX := (s.X[0]*s.Mass[0] + s.X[1]*s.Mass[1]) / (s.Mass[0] + s.Mass[1])
	comY := (s.Y[0]*s.Mass[0] + s.Y[1]*s.Mass[1]) / (s.Mass[0] + s.Mass[1])
	comZ := (s.Z[0]*s.Mass[0] + s.Z[1]*s.Mass[1]) / (s.Mass[0] + s.Mass[1])
	drift := math.Sqrt(comX*comX + comY*comY + comZ*comZ)
	require.Less(t, drift, 1e-4, "center of mass drift over 1000 ticks")
}

func TestSetParametersAppliesPartialPatch(t *testing.T) {
	e := newTestEngine(t)
	before := e.Params()

	theta := 0.3
	e.SetParameters(ParamsPatch{Theta: &theta})

	after := e.Params()
	require.Equal(t, 0.3, after.Theta)
	require.Equal(t, 0.3, e.tree.Theta)
	require.Equal(t, before.G, after.G)
	require.Equal(t, before.Softening, after.Softening)

	// Invalid values leave current settings untouched.
	badG := math.NaN()
	badSoft := -1.0
	badTheta := 0.0
	e.SetParameters(ParamsPatch{G: &badG, Softening: &badSoft, Theta: &badTheta})
	after = e.Params()
	require.Equal(t, before.G, after.G)
	require.Equal(t, before.Softening, after.Softening)
	require.Equal(t, 0.3, after.Theta)
}

func TestIntegrateResetsNonFiniteComponents(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEngine(t, WithParams(gravityOnlyParams()), WithMetricsRecorder(rec))

	s := particles.NewStore(2)
	s.Add(0, 0, 0, 0, 0, 0, 1)
	s.Add(1, 0, 0, 0, 0, 0, 1)
	s.VX[1] = math.NaN()

	if _, err := e.Update(s, 1, 1, false); err != nil {
		t.Fatalf("Update: %v", err)
	}

	require.Zero(t, s.VX[1], "non-finite velocity must reset to zero")
	if !finite3(s.X[1], s.Y[1], s.Z[1]) {
		t.Fatalf("position corrupted: (%g, %g, %g)", s.X[1], s.Y[1], s.Z[1])
	}
	require.GreaterOrEqual(t, rec.nonFinite, 1)
	require.Equal(t, 2, rec.activeParticles)
	require.Equal(t, 1, rec.ticks)
}

func TestIntegrateClampsDisplacement(t *testing.T) {
	e := newTestEngine(t, WithParams(gravityOnlyParams()))

	s := particles.NewStore(1)
	s.Add(0, 0, 0, 1e9, 0, 0, 1)

	if _, err := e.Update(s, 1, 1, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	require.InDelta(t, e.Params().MaxDisplacement, s.X[0], 1e-9)
}

func TestGridGravityPullsTowardMass(t *testing.T) {
	p := gravityOnlyParams()
	p.UseBarnesHut = false
	p.AccumStride = 1
	p.ApplyStride = 1
	e := newTestEngine(t, WithParams(p))
	e.Cosmology().JumpToTime(1e9)

	// A light probe far from a heavy concentration must accelerate toward it.
	s := particles.NewStore(10)
	for n := 0; n < 9; n++ {
		s.Add(float64(n%3)*0.1, float64(n/3)*0.1, 0, 0, 0, 0, 1e6)
	}
	probe, _ := s.Add(10, 0, 0, 0, 0, 0, 1)

	if _, err := e.Update(s, 0.1, 1, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	require.Negative(t, s.VX[probe], "probe must be pulled toward the mass concentration")
}

func TestComputeEnergyTwoBody(t *testing.T) {
	e := newTestEngine(t, WithParams(gravityOnlyParams()))

	s := particles.NewStore(2)
	s.Add(-1, 0, 0, 0.5, 0, 0, 10)
	s.Add(1, 0, 0, -0.5, 0, 0, 10)

	diag := e.computeEnergy(s)

	wantKE := 2 * 0.5 * 10 * 0.25
	require.InDelta(t, wantKE, diag.KineticEnergy, 1e-12)

	soft := e.Params().Softening
	wantPE := -e.Params().G * 100 / math.Sqrt(4+soft*soft)
	require.InDelta(t, wantPE, diag.PotentialEnergy, 1e-12)
	require.InDelta(t, 2*wantKE/math.Abs(wantPE), diag.VirialRatio, 1e-9)
}

func TestSnapshotTracksUpdates(t *testing.T) {
	e := newTestEngine(t, WithParams(gravityOnlyParams()))
	e.Cosmology().JumpToTime(1e9)
	s := particles.NewStore(4)
	for n := 0; n < 4; n++ {
		s.Add(float64(n), 0, 0, 0, 0, 0, 1e3)
	}

	res, err := e.Update(s, 0.01, 1, false)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := e.Snapshot()
	require.Equal(t, res.Frame, snap.Frame)
	require.Equal(t, res.Cosmology.TimeYears, snap.Cosmology.TimeYears)
}

func TestLongRunStaysFinite(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEngine(t, WithParams(gravityOnlyParams()), WithMetricsRecorder(rec))
	e.Cosmology().JumpToTime(1e9)

	cfg := particles.DefaultGenesisConfig()
	cfg.Count = 100
	cfg.Seed = 42
	s := particles.Genesis(cfg)

	for tick := 0; tick < 500; tick++ {
		if _, err := e.Update(s, 0.01, 1, false); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}

	for i := 0; i < s.Count(); i++ {
		if !finite3(s.X[i], s.Y[i], s.Z[i]) || !finite3(s.VX[i], s.VY[i], s.VZ[i]) {
			t.Fatalf("particle %d non-finite after long run", i)
		}
	}

	diag := e.Energy()
	if !finite(diag.KineticEnergy) || !finite(diag.PotentialEnergy) {
		t.Fatalf("energy diagnostics non-finite: %+v", diag)
	}
	require.Greater(t, diag.KineticEnergy, 0.0)
	require.Equal(t, 500, rec.ticks)
}
