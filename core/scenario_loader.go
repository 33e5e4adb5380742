package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

// Scenario is a fully resolved simulation configuration. Every field is
// populated after LoadScenario or DefaultScenario; consumers never apply
// fallbacks at use sites.
type Scenario struct {
	Name      string
	Genesis   particles.GenesisConfig
	Cosmology CosmologyParams
	Engine    EngineParams
	Epochs    []model.Epoch
}

// DefaultScenario returns the built-in configuration.
func DefaultScenario() Scenario {
	return Scenario{
		Name:      "default",
		Genesis:   particles.DefaultGenesisConfig(),
		Cosmology: DefaultCosmologyParams(),
		Engine:    DefaultEngineParams(),
		Epochs:    model.DefaultEpochs(),
	}
}

// Unexported JSON shapes, free to evolve independently of the public config
// structs. Optional fields are pointers so absence is distinguishable from
// zero; defaults fill in at load time, not at use time.
type scenarioJSON struct {
	Name      string          `json:"name"`
	Particles *genesisJSON    `json:"particles"`
	Cosmology *cosmologyJSON  `json:"cosmology"`
	Engine    *engineJSON     `json:"engine"`
	Epochs    []epochJSON     `json:"epochs"`
}

type genesisJSON struct {
	Count         *int     `json:"count"`
	Seed          *uint64  `json:"seed"`
	Radius        *float64 `json:"radius"`
	MassMin       *float64 `json:"mass_min"`
	MassMax       *float64 `json:"mass_max"`
	VelocitySigma *float64 `json:"velocity_sigma"`
}

type cosmologyJSON struct {
	H0          *float64 `json:"h0_per_year"`
	OmegaM      *float64 `json:"omega_m"`
	OmegaR      *float64 `json:"omega_r"`
	OmegaLambda *float64 `json:"omega_lambda"`
	W           *float64 `json:"w"`
}

type engineJSON struct {
	G               *float64 `json:"g"`
	Softening       *float64 `json:"softening"`
	Theta           *float64 `json:"theta"`
	UseBarnesHut    *bool    `json:"use_barnes_hut"`
	EnableExpansion *bool    `json:"enable_expansion"`
	BarnesHutLimit  *int     `json:"barnes_hut_limit"`
	GridResolution  *int     `json:"grid_resolution"`
	AccumStride     *int     `json:"accum_stride"`
	ApplyStride     *int     `json:"apply_stride"`
	MaxDisplacement *float64 `json:"max_displacement"`
	DetectEvery     *uint64  `json:"detect_every"`
	HeatingSeed     *uint64  `json:"heating_seed"`
}

type epochJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	StartYears  float64 `json:"start_years"`
	EndYears    float64 `json:"end_years"`
	CoolingRate float64 `json:"cooling_rate"`
	Dominant    string  `json:"dominant"`
}

// LoadScenario reads a JSON scenario from r, layering it over the defaults.
// Structural and validation problems are reported here, at construction
// time; mid-simulation code never re-validates the configuration.
func LoadScenario(r io.Reader) (Scenario, error) {
	sc := DefaultScenario()

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return Scenario{}, fmt.Errorf("scenario: decode failed: %w", err)
	}

	if payload.Name != "" {
		sc.Name = payload.Name
	}
	if p := payload.Particles; p != nil {
		setInt(&sc.Genesis.Count, p.Count)
		setUint64(&sc.Genesis.Seed, p.Seed)
		setFloat(&sc.Genesis.Radius, p.Radius)
		setFloat(&sc.Genesis.MassMin, p.MassMin)
		setFloat(&sc.Genesis.MassMax, p.MassMax)
		setFloat(&sc.Genesis.VelocitySigma, p.VelocitySigma)
	}
	if c := payload.Cosmology; c != nil {
		setFloat(&sc.Cosmology.H0, c.H0)
		setFloat(&sc.Cosmology.OmegaM, c.OmegaM)
		setFloat(&sc.Cosmology.OmegaR, c.OmegaR)
		setFloat(&sc.Cosmology.OmegaLambda, c.OmegaLambda)
		setFloat(&sc.Cosmology.W, c.W)
		sc.Cosmology.OmegaK = 1 - (sc.Cosmology.OmegaM + sc.Cosmology.OmegaR + sc.Cosmology.OmegaLambda)
	}
	if e := payload.Engine; e != nil {
		setFloat(&sc.Engine.G, e.G)
		setFloat(&sc.Engine.Softening, e.Softening)
		setFloat(&sc.Engine.Theta, e.Theta)
		if e.UseBarnesHut != nil {
			sc.Engine.UseBarnesHut = *e.UseBarnesHut
		}
		if e.EnableExpansion != nil {
			sc.Engine.EnableExpansion = *e.EnableExpansion
		}
		setInt(&sc.Engine.BarnesHutLimit, e.BarnesHutLimit)
		setInt(&sc.Engine.GridResolution, e.GridResolution)
		setInt(&sc.Engine.AccumStride, e.AccumStride)
		setInt(&sc.Engine.ApplyStride, e.ApplyStride)
		setFloat(&sc.Engine.MaxDisplacement, e.MaxDisplacement)
		setUint64(&sc.Engine.DetectEvery, e.DetectEvery)
		setUint64(&sc.Engine.HeatingSeed, e.HeatingSeed)
	}
	if len(payload.Epochs) > 0 {
		epochs := make([]model.Epoch, 0, len(payload.Epochs))
		for _, e := range payload.Epochs {
			epochs = append(epochs, model.Epoch{
				ID:          model.EpochID(e.ID),
				Name:        e.Name,
				StartYears:  e.StartYears,
				EndYears:    e.EndYears,
				CoolingRate: e.CoolingRate,
				Dominant:    e.Dominant,
			})
		}
		sc.Epochs = epochs
	}

	if err := sc.validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc Scenario) validate() error {
	if sc.Genesis.Count <= 0 {
		return fmt.Errorf("scenario: particle count must be positive, got %d", sc.Genesis.Count)
	}
	if sc.Genesis.MassMin <= 0 || sc.Genesis.MassMax < sc.Genesis.MassMin {
		return fmt.Errorf("scenario: invalid mass range [%g, %g]", sc.Genesis.MassMin, sc.Genesis.MassMax)
	}
	if sc.Engine.Theta <= 0 {
		return fmt.Errorf("scenario: theta must be positive, got %g", sc.Engine.Theta)
	}
	if sc.Engine.Softening < 0 {
		return fmt.Errorf("scenario: softening must be non-negative, got %g", sc.Engine.Softening)
	}
	return ValidateEpochs(sc.Epochs)
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setUint64(dst *uint64, src *uint64) {
	if src != nil {
		*dst = *src
	}
}
