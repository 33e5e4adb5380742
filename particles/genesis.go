package particles

import (
	"math"
	"math/rand/v2"
)

// GenesisConfig describes the seeded initial conditions used by the binary
// and by end-to-end tests. Every field has an explicit value after
// DefaultGenesisConfig; nothing is defaulted at the use site.
type GenesisConfig struct {
	Count         int
	Seed          uint64
	Radius        float64 // particles start inside a sphere of this radius
	MassMin       float64 // log-uniform mass range
	MassMax       float64
	VelocitySigma float64 // isotropic velocity dispersion
}

// DefaultGenesisConfig returns the stock initial-condition parameters.
func DefaultGenesisConfig() GenesisConfig {
	return GenesisConfig{
		Count:         2000,
		Seed:          1,
		Radius:        10.0,
		MassMin:       1e9,
		MassMax:       1e12,
		VelocitySigma: 0.01,
	}
}

// Genesis fills a fresh store with cfg.Count particles: positions uniform in
// a sphere, masses log-uniform in [MassMin, MassMax], small isotropic
// velocities. The same config always produces the same store.
func Genesis(cfg GenesisConfig) *Store {
	s := NewStore(cfg.Count)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	logMin := math.Log(cfg.MassMin)
	logMax := math.Log(cfg.MassMax)

	for n := 0; n < cfg.Count; n++ {
		x, y, z := uniformInSphere(rng, cfg.Radius)
		vx := rng.NormFloat64() * cfg.VelocitySigma
		vy := rng.NormFloat64() * cfg.VelocitySigma
		vz := rng.NormFloat64() * cfg.VelocitySigma
		mass := math.Exp(logMin + rng.Float64()*(logMax-logMin))
		// Add can only fail on a full store, which Genesis never overruns.
		if _, err := s.Add(x, y, z, vx, vy, vz, mass); err != nil {
			break
		}
	}
	return s
}

// uniformInSphere samples a point uniformly inside a sphere of radius r
// using the inverse-CDF radial transform.
func uniformInSphere(rng *rand.Rand, r float64) (float64, float64, float64) {
	u := rng.Float64()
	cosTheta := 2*rng.Float64() - 1
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	phi := 2 * math.Pi * rng.Float64()

	rad := r * math.Cbrt(u)
	return rad * sinTheta * math.Cos(phi),
		rad * sinTheta * math.Sin(phi),
		rad * cosTheta
}
