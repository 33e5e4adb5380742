package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
)

// MatterRadiationEqualityYears is the cosmic time at which matter overtakes
// radiation as the dominant energy component. Self-gravity is gated on this
// threshold: before it, pressure dominates and the engine applies no
// gravitational impulses.
const MatterRadiationEqualityYears = 4.7e4

// PresentAgeYears is the nominal present-day age of the universe.
const PresentAgeYears = 1.38e10

// minScaleFactor keeps the scale factor strictly positive near t = 0.
const minScaleFactor = 1e-30

// historyCapacity bounds the plotting ring buffer.
const historyCapacity = 512

// CosmologyParams holds the density parameters of the Friedmann equation.
// Every field has an explicit value after DefaultCosmologyParams; nothing is
// defaulted at the use site.
type CosmologyParams struct {
	H0          float64 // Hubble constant, per year
	OmegaM      float64 // matter density parameter
	OmegaR      float64 // radiation density parameter
	OmegaLambda float64 // dark energy density parameter
	OmegaK      float64 // curvature, normally 1 - (Ωm + Ωr + ΩΛ)
	W           float64 // dark energy equation of state
}

// DefaultCosmologyParams returns a flat ΛCDM parameter set
// (H0 = 70 km/s/Mpc expressed per year).
func DefaultCosmologyParams() CosmologyParams {
	p := CosmologyParams{
		H0:          7.16e-11,
		OmegaM:      0.315,
		OmegaR:      9.0e-5,
		OmegaLambda: 0.68491,
		W:           -1.0,
	}
	p.OmegaK = 1.0 - (p.OmegaM + p.OmegaR + p.OmegaLambda)
	return p
}

// CosmologySnapshot is a read-only view of the expansion state.
type CosmologySnapshot struct {
	TimeYears    float64     `json:"time_years"`
	ScaleFactor  float64     `json:"scale_factor"`
	Redshift     float64     `json:"redshift"`
	TemperatureK float64     `json:"temperature_k"`
	Epoch        model.Epoch `json:"epoch"`
}

// HistorySample is one retained point of the expansion history.
type HistorySample struct {
	TimeYears   float64 `json:"time_years"`
	ScaleFactor float64 `json:"scale_factor"`
	Redshift    float64 `json:"redshift"`
}

// ExpansionModel integrates the cosmological scale factor through the epoch
// table and derives redshift, temperature, and the Hubble rate from it. All
// mutation goes through Update and JumpToTime.
type ExpansionModel struct {
	params CosmologyParams
	epochs []model.Epoch

	timeYears   float64
	scaleFactor float64
	epochIdx    int

	history     []HistorySample
	historyNext int
	historyFull bool
}

// NewExpansionModel validates the epoch table and returns a model positioned
// at t = 0. An invalid table is a construction-time failure, never a
// mid-simulation one.
func NewExpansionModel(params CosmologyParams, epochs []model.Epoch) (*ExpansionModel, error) {
	if params.H0 <= 0 || !finite(params.H0) {
		return nil, fmt.Errorf("cosmology: H0 must be positive and finite, got %g", params.H0)
	}
	if err := ValidateEpochs(epochs); err != nil {
		return nil, err
	}

	m := &ExpansionModel{
		params:      params,
		epochs:      append([]model.Epoch(nil), epochs...),
		scaleFactor: minScaleFactor,
		history:     make([]HistorySample, historyCapacity),
	}
	m.epochIdx = m.findEpoch(0)
	m.record()
	return m, nil
}

// ValidateEpochs checks that the table is a complete, ordered,
// non-overlapping partition of [0, +inf).
func ValidateEpochs(epochs []model.Epoch) error {
	if len(epochs) == 0 {
		return fmt.Errorf("cosmology: empty epoch table")
	}
	if epochs[0].StartYears != 0 {
		return fmt.Errorf("cosmology: epoch table must start at t=0, got %g", epochs[0].StartYears)
	}
	for i, e := range epochs {
		if e.ID == "" {
			return fmt.Errorf("cosmology: epoch %d has empty id", i)
		}
		if !(e.EndYears > e.StartYears) {
			return fmt.Errorf("cosmology: epoch %q has non-positive span [%g, %g)", e.ID, e.StartYears, e.EndYears)
		}
		if i > 0 && e.StartYears != epochs[i-1].EndYears {
			return fmt.Errorf("cosmology: gap or overlap between %q and %q at t=%g",
				epochs[i-1].ID, e.ID, e.StartYears)
		}
	}
	if last := epochs[len(epochs)-1]; last.EndYears < math.MaxFloat64 {
		return fmt.Errorf("cosmology: epoch table ends at %g, timeline not fully covered", last.EndYears)
	}
	return nil
}

// hubbleAt evaluates the Friedmann equation at scale factor a:
// H(a) = H0·sqrt(Ωr·a⁻⁴ + Ωm·a⁻³ + Ωk·a⁻² + ΩΛ·a^(−3(1+w))).
func (m *ExpansionModel) hubbleAt(a float64) float64 {
	if a <= 0 {
		return math.Inf(1)
	}
	p := m.params
	sum := p.OmegaR/(a*a*a*a) +
		p.OmegaM/(a*a*a) +
		p.OmegaK/(a*a) +
		p.OmegaLambda*math.Pow(a, -3*(1+p.W))
	if sum < 0 {
		return 0
	}
	return p.H0 * math.Sqrt(sum)
}

// Update advances the model by dtYears, which may be negative for reversed
// playback; the midpoint integrator is symmetric in the step direction.
// A non-finite or non-positive candidate leaves persistent state untouched
// and reports no transition. Returns whether the current epoch changed.
func (m *ExpansionModel) Update(dtYears float64) bool {
	if !finite(dtYears) || dtYears == 0 {
		return false
	}

	// Integrate into candidates, validate, then commit.
	a := m.scaleFactor
	aMid := a + 0.5*dtYears*a*m.hubbleAt(a)
	aNew := a + dtYears*aMid*m.hubbleAt(aMid)
	tNew := m.timeYears + dtYears
	if tNew < 0 {
		tNew = 0
	}

	if !finite(aNew) || aNew <= 0 {
		return false
	}
	if aNew < minScaleFactor {
		aNew = minScaleFactor
	}

	m.timeYears = tNew
	m.scaleFactor = aNew
	m.record()

	prev := m.epochIdx
	m.epochIdx = m.findEpoch(m.timeYears)
	return m.epochIdx != prev
}

// JumpToTime repositions the model at t without incremental integration,
// using the closed-form era solutions (a ∝ t^1/2 in the radiation era,
// a ∝ t^2/3 in the matter era, exponential growth under dark energy).
// Epoch classification goes through the same lookup as Update, so a jump and
// a sequence of updates summing to t always report the same epoch.
func (m *ExpansionModel) JumpToTime(t float64) {
	if !finite(t) {
		return
	}
	if t < 0 {
		t = 0
	}

	a := m.scaleFactorAt(t)
	if !finite(a) || a <= 0 {
		return
	}

	m.timeYears = t
	m.scaleFactor = a
	m.epochIdx = m.findEpoch(t)
	m.record()
}

// scaleFactorAt is the piecewise analytic scale factor used by JumpToTime,
// anchored at matter-radiation equality and the onset of dark energy
// domination.
func (m *ExpansionModel) scaleFactorAt(t float64) float64 {
	const (
		tEq = MatterRadiationEqualityYears
		aEq = 2.96e-4 // 1/(1+z_eq), z_eq is about 3380
		tDE = 9.8e9   // dark energy becomes dominant
	)
	switch {
	case t <= 0:
		return minScaleFactor
	case t < tEq:
		a := aEq * math.Sqrt(t/tEq)
		return math.Max(a, minScaleFactor)
	case t < tDE:
		return aEq * math.Pow(t/tEq, 2.0/3.0)
	default:
		aDE := aEq * math.Pow(tDE/tEq, 2.0/3.0)
		hLambda := m.params.H0 * math.Sqrt(math.Max(m.params.OmegaLambda, 0))
		return aDE * math.Exp(hLambda*(t-tDE))
	}
}

// findEpoch locates the epoch containing t. The table is sorted and
// gap-free, so a binary search over start times is exact.
func (m *ExpansionModel) findEpoch(t float64) int {
	idx := sort.Search(len(m.epochs), func(i int) bool {
		return m.epochs[i].EndYears > t
	})
	if idx >= len(m.epochs) {
		idx = len(m.epochs) - 1
	}
	return idx
}

// record appends the current state to the plotting ring buffer.
func (m *ExpansionModel) record() {
	m.history[m.historyNext] = HistorySample{
		TimeYears:   m.timeYears,
		ScaleFactor: m.scaleFactor,
		Redshift:    m.redshift(),
	}
	m.historyNext++
	if m.historyNext == len(m.history) {
		m.historyNext = 0
		m.historyFull = true
	}
}

func (m *ExpansionModel) redshift() float64 {
	return 1/m.scaleFactor - 1
}

// TimeYears returns the current cosmic time.
func (m *ExpansionModel) TimeYears() float64 { return m.timeYears }

// ScaleFactor returns the current scale factor.
func (m *ExpansionModel) ScaleFactor() float64 { return m.scaleFactor }

// CurrentEpoch returns the epoch containing the current cosmic time.
func (m *ExpansionModel) CurrentEpoch() model.Epoch { return m.epochs[m.epochIdx] }

// HubbleParameter returns H at redshift z, in 1/years.
func (m *ExpansionModel) HubbleParameter(z float64) float64 {
	if !finite(z) || z <= -1 {
		return 0
	}
	return m.hubbleAt(1 / (1 + z))
}

// MatterDensity returns the matter density at redshift z in units where the
// critical density is 3H0²/8π (G folded into the engine's gravitational
// constant).
func (m *ExpansionModel) MatterDensity(z float64) float64 {
	if !finite(z) || z <= -1 {
		return 0
	}
	critical := 3 * m.params.H0 * m.params.H0 / (8 * math.Pi)
	return critical * m.params.OmegaM * math.Pow(1+z, 3)
}

// Snapshot returns the externally visible expansion state. Temperature
// follows T = T_CMB / a, clamped to the physical range.
func (m *ExpansionModel) Snapshot() CosmologySnapshot {
	temp := model.TemperatureFloorK / m.scaleFactor
	temp = clamp(temp, model.TemperatureFloorK, model.PlanckTemperatureK)
	return CosmologySnapshot{
		TimeYears:    m.timeYears,
		ScaleFactor:  m.scaleFactor,
		Redshift:     m.redshift(),
		TemperatureK: temp,
		Epoch:        m.CurrentEpoch(),
	}
}

// History returns the retained expansion samples in chronological order of
// insertion.
func (m *ExpansionModel) History() []HistorySample {
	if !m.historyFull {
		return append([]HistorySample(nil), m.history[:m.historyNext]...)
	}
	out := make([]HistorySample, 0, len(m.history))
	out = append(out, m.history[m.historyNext:]...)
	out = append(out, m.history[:m.historyNext]...)
	return out
}
