package model

import "math"

// Physical bounds shared by the cosmology model and the particle store.
const (
	// TemperatureFloorK is the present-day CMB temperature. No particle or
	// background temperature is allowed below it.
	TemperatureFloorK = 2.725

	// PlanckTemperatureK is the upper clamp for any temperature in the
	// simulation.
	PlanckTemperatureK = 1.416784e32
)

// EpochID identifies a cosmological epoch.
type EpochID string

const (
	EpochPlanck          EpochID = "planck"
	EpochInflation       EpochID = "inflation"
	EpochQuarkGluon      EpochID = "quark_gluon_plasma"
	EpochNucleosynthesis EpochID = "nucleosynthesis"
	EpochRecombination   EpochID = "recombination"
	EpochDarkAges        EpochID = "dark_ages"
	EpochStructure       EpochID = "structure_formation"
	EpochGalaxies        EpochID = "galaxy_era"
	EpochDarkEnergy      EpochID = "dark_energy_era"
)

// Epoch is one named interval of cosmic time. StartYears is inclusive,
// EndYears exclusive, so a valid table partitions the timeline with no gaps
// or overlaps.
type Epoch struct {
	ID         EpochID `json:"id"`
	Name       string  `json:"name"`
	StartYears float64 `json:"start_years"`
	EndYears   float64 `json:"end_years"`

	// CoolingRate scales how quickly particle temperature relaxes toward
	// the background during this epoch (per-year fraction).
	CoolingRate float64 `json:"cooling_rate"`

	// Dominant names the energy component that drives expansion during
	// the epoch: "radiation", "matter", or "dark_energy".
	Dominant string `json:"dominant"`
}

// Contains reports whether cosmic time t (years) falls inside the epoch.
func (e Epoch) Contains(t float64) bool {
	return t >= e.StartYears && t < e.EndYears
}

// DefaultEpochs returns the built-in epoch table, ordered by start time and
// covering [0, +inf) years. All callers get a fresh slice.
func DefaultEpochs() []Epoch {
	return []Epoch{
		{ID: EpochPlanck, Name: "Planck Epoch", StartYears: 0, EndYears: 1.7e-51, CoolingRate: 0.9, Dominant: "radiation"},
		{ID: EpochInflation, Name: "Inflation", StartYears: 1.7e-51, EndYears: 3.2e-40, CoolingRate: 0.8, Dominant: "radiation"},
		{ID: EpochQuarkGluon, Name: "Quark-Gluon Plasma", StartYears: 3.2e-40, EndYears: 3.2e-13, CoolingRate: 0.6, Dominant: "radiation"},
		{ID: EpochNucleosynthesis, Name: "Nucleosynthesis", StartYears: 3.2e-13, EndYears: 3.8e-5, CoolingRate: 0.4, Dominant: "radiation"},
		{ID: EpochRecombination, Name: "Recombination", StartYears: 3.8e-5, EndYears: 3.8e5, CoolingRate: 0.2, Dominant: "matter"},
		{ID: EpochDarkAges, Name: "Dark Ages", StartYears: 3.8e5, EndYears: 1.5e8, CoolingRate: 0.05, Dominant: "matter"},
		{ID: EpochStructure, Name: "Structure Formation", StartYears: 1.5e8, EndYears: 1.0e9, CoolingRate: 0.02, Dominant: "matter"},
		{ID: EpochGalaxies, Name: "Galaxy Era", StartYears: 1.0e9, EndYears: 9.8e9, CoolingRate: 0.01, Dominant: "matter"},
		{ID: EpochDarkEnergy, Name: "Dark Energy Era", StartYears: 9.8e9, EndYears: math.MaxFloat64, CoolingRate: 0.005, Dominant: "dark_energy"},
	}
}
