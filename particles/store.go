// Package particles provides the structure-of-arrays particle container
// consumed by the physics core. Attributes live in parallel slices indexed by
// particle id; slots are never compacted, so an index stays valid for the
// lifetime of the store even after the particle is deactivated.
package particles

import (
	"fmt"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
)

// Store is a fixed-capacity structure-of-arrays particle container. It is not
// safe for concurrent use; the simulation is single-writer and readers pull
// published snapshots from the engine instead of touching the store directly.
type Store struct {
	capacity int
	count    int

	// Positions (simulation units).
	X, Y, Z []float64
	// Velocities.
	VX, VY, VZ []float64

	Mass        []float64
	Temperature []float64 // kelvin, clamped to [CMB floor, Planck]
	Age         []float64 // years of simulated time since spawn

	active  []bool
	visible []bool
}

// NewStore allocates a store with room for capacity particles.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		capacity:    capacity,
		X:           make([]float64, capacity),
		Y:           make([]float64, capacity),
		Z:           make([]float64, capacity),
		VX:          make([]float64, capacity),
		VY:          make([]float64, capacity),
		VZ:          make([]float64, capacity),
		Mass:        make([]float64, capacity),
		Temperature: make([]float64, capacity),
		Age:         make([]float64, capacity),
		active:      make([]bool, capacity),
		visible:     make([]bool, capacity),
	}
}

// Capacity returns the fixed slot count of the store.
func (s *Store) Capacity() int { return s.capacity }

// Count returns the number of allocated slots, active or not. Indices in
// [0, Count) are valid for every attribute slice.
func (s *Store) Count() int { return s.count }

// Add allocates the next slot and returns its index. Mass must be positive.
func (s *Store) Add(x, y, z, vx, vy, vz, mass float64) (int, error) {
	if s.count >= s.capacity {
		return -1, fmt.Errorf("particle store full: capacity %d", s.capacity)
	}
	if mass <= 0 {
		return -1, fmt.Errorf("particle mass must be positive, got %g", mass)
	}
	i := s.count
	s.count++

	s.X[i], s.Y[i], s.Z[i] = x, y, z
	s.VX[i], s.VY[i], s.VZ[i] = vx, vy, vz
	s.Mass[i] = mass
	s.Temperature[i] = model.TemperatureFloorK
	s.Age[i] = 0
	s.active[i] = true
	s.visible[i] = true
	return i, nil
}

// Active reports whether slot i holds a live particle. Inactive slots are
// excluded from force accumulation and density binning but keep their data.
func (s *Store) Active(i int) bool {
	return i >= 0 && i < s.count && s.active[i]
}

// SetActive flips the live flag for slot i without touching its data.
func (s *Store) SetActive(i int, v bool) {
	if i >= 0 && i < s.count {
		s.active[i] = v
	}
}

// Visible reports whether slot i should be drawn by a rendering collaborator.
func (s *Store) Visible(i int) bool {
	return i >= 0 && i < s.count && s.visible[i]
}

// SetVisible flips the visibility flag for slot i.
func (s *Store) SetVisible(i int, v bool) {
	if i >= 0 && i < s.count {
		s.visible[i] = v
	}
}

// ActiveCount returns the number of live particles.
func (s *Store) ActiveCount() int {
	n := 0
	for i := 0; i < s.count; i++ {
		if s.active[i] {
			n++
		}
	}
	return n
}

// ClampTemperature forces slot i back into the physical temperature range.
func (s *Store) ClampTemperature(i int) {
	if i < 0 || i >= s.count {
		return
	}
	if s.Temperature[i] < model.TemperatureFloorK {
		s.Temperature[i] = model.TemperatureFloorK
	} else if s.Temperature[i] > model.PlanckTemperatureK {
		s.Temperature[i] = model.PlanckTemperatureK
	}
}

// TotalMass sums the mass of all active particles.
func (s *Store) TotalMass() float64 {
	total := 0.0
	for i := 0; i < s.count; i++ {
		if s.active[i] {
			total += s.Mass[i]
		}
	}
	return total
}
