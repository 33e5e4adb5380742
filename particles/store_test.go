package particles

import (
	"math"
	"testing"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
)

func TestStoreAddAndIndexStability(t *testing.T) {
	s := NewStore(3)

	i0, err := s.Add(1, 2, 3, 0, 0, 0, 10)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	i1, err := s.Add(4, 5, 6, 0, 0, 0, 20)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if i0 != 0 || i1 != 1 {
		t.Fatalf("expected sequential indices 0,1, got %d,%d", i0, i1)
	}

	// Deactivation must keep the slot and its data.
	s.SetActive(i0, false)
	if s.Active(i0) {
		t.Fatalf("slot %d should be inactive", i0)
	}
	if s.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (no compaction)", s.Count())
	}
	if s.X[i0] != 1 || s.Mass[i0] != 10 {
		t.Fatalf("deactivated slot lost its data: x=%v mass=%v", s.X[i0], s.Mass[i0])
	}
	if s.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", s.ActiveCount())
	}
}

func TestStoreRejectsBadAdds(t *testing.T) {
	s := NewStore(1)
	if _, err := s.Add(0, 0, 0, 0, 0, 0, 0); err == nil {
		t.Fatal("expected error for non-positive mass")
	}
	if _, err := s.Add(0, 0, 0, 0, 0, 0, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(0, 0, 0, 0, 0, 0, 1); err == nil {
		t.Fatal("expected error adding past capacity")
	}
}

func TestClampTemperature(t *testing.T) {
	s := NewStore(2)
	i, _ := s.Add(0, 0, 0, 0, 0, 0, 1)

	s.Temperature[i] = 1.0
	s.ClampTemperature(i)
	if s.Temperature[i] != model.TemperatureFloorK {
		t.Fatalf("temperature below floor not clamped: %v", s.Temperature[i])
	}

	s.Temperature[i] = math.Inf(1)
	s.ClampTemperature(i)
	if s.Temperature[i] != model.PlanckTemperatureK {
		t.Fatalf("temperature above Planck not clamped: %v", s.Temperature[i])
	}
}

func TestGenesisDeterministic(t *testing.T) {
	cfg := DefaultGenesisConfig()
	cfg.Count = 100
	cfg.Seed = 42

	a := Genesis(cfg)
	b := Genesis(cfg)

	if a.Count() != cfg.Count || b.Count() != cfg.Count {
		t.Fatalf("expected %d particles, got %d and %d", cfg.Count, a.Count(), b.Count())
	}
	for i := 0; i < a.Count(); i++ {
		if a.X[i] != b.X[i] || a.Mass[i] != b.Mass[i] || a.VZ[i] != b.VZ[i] {
			t.Fatalf("same seed produced different particle %d", i)
		}
	}
}

func TestGenesisBounds(t *testing.T) {
	cfg := DefaultGenesisConfig()
	cfg.Count = 500
	cfg.Seed = 7
	s := Genesis(cfg)

	for i := 0; i < s.Count(); i++ {
		r := math.Sqrt(s.X[i]*s.X[i] + s.Y[i]*s.Y[i] + s.Z[i]*s.Z[i])
		if r > cfg.Radius+1e-9 {
			t.Fatalf("particle %d outside sphere: r=%v", i, r)
		}
		if s.Mass[i] < cfg.MassMin || s.Mass[i] > cfg.MassMax {
			t.Fatalf("particle %d mass out of range: %v", i, s.Mass[i])
		}
	}
}
