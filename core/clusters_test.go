package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

// detectorField builds a store from (x, y, z, mass) rows. The rows are chosen
// so the padded bounding cube spans exactly 6 units: with resolution 12 the
// cell width is exactly 0.5 and density ratios come out exact in floats,
// which the inclusive threshold tests depend on.
func detectorField(t *testing.T, rows [][4]float64) *particles.Store {
	t.Helper()
	s := particles.NewStore(len(rows))
	for _, r := range rows {
		if _, err := s.Add(r[0], r[1], r[2], 0, 0, 0, r[3]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return s
}

func TestDetectClusterAtExactThreshold(t *testing.T) {
	// Four occupied cells with masses 12, 2, 1, 1: the heavy cell sits at
	// exactly 3.0x the occupied-cell mean, which is a cluster, not a filament.
	s := detectorField(t, [][4]float64{
		{0, 0, 0, 12},
		{1.5, 0, 0, 2},
		{3, 0, 0, 1},
		{5, 0, 0, 1},
	})

	d := NewClusterDetector(12)
	structures := d.Detect(s)

	require.Len(t, structures, 1)
	require.Equal(t, model.StructureCluster, structures[0].Class)
	require.InDelta(t, 3.0, structures[0].Contrast, 1e-12)
	require.Equal(t, 1, structures[0].Cells)

	stats := d.Stats()
	require.Equal(t, 4, stats.Particles)
	require.Equal(t, 4, stats.OccupiedCells)
	require.Equal(t, 1, stats.Clusters)
	require.Equal(t, 0, stats.Superclusters)
	require.Equal(t, 0, stats.Filaments)
	require.Equal(t, 0, stats.Voids)
	require.InDelta(t, 96.0, stats.MaxDensity, 1e-9)
	require.InDelta(t, 32.0, stats.MeanDensity, 1e-9)
}

func TestDetectFilamentAtExactThreshold(t *testing.T) {
	// Masses 3, 2, 2, 1: the heavy cell is exactly 1.5x the mean.
	s := detectorField(t, [][4]float64{
		{0, 0, 0, 3},
		{1.5, 0, 0, 2},
		{3, 0, 0, 2},
		{5, 0, 0, 1},
	})

	d := NewClusterDetector(12)
	structures := d.Detect(s)

	require.Len(t, structures, 1)
	require.Equal(t, model.StructureFilament, structures[0].Class)
	require.InDelta(t, 1.5, structures[0].Contrast, 1e-12)
	require.Equal(t, 1, d.Stats().Filaments)
	require.Equal(t, 0, d.Stats().Clusters)
}

func TestDetectVoidAndSupercluster(t *testing.T) {
	// Five heavy cells and one light: the light cell falls below 0.2x.
	s := detectorField(t, [][4]float64{
		{0, 0, 0, 7}, {1, 0, 0, 7}, {2, 0, 0, 7}, {3, 0, 0, 7}, {4, 0, 0, 7},
		{5, 0, 0, 1},
	})
	d := NewClusterDetector(12)
	d.Detect(s)
	require.Equal(t, 1, d.Stats().Voids)

	// One cell at over 5x the mean classifies as a supercluster.
	s = detectorField(t, [][4]float64{
		{0, 0, 0, 30},
		{1, 0, 0, 1}, {2, 0, 0, 1}, {3, 0, 0, 1}, {4, 0, 0, 1}, {5, 0, 0, 1},
	})
	structures := d.Detect(s)

	var super *model.Structure
	for i := range structures {
		if structures[i].Class == model.StructureSupercluster {
			super = &structures[i]
		}
	}
	require.NotNil(t, super)
	require.GreaterOrEqual(t, super.Contrast, 5.0)
	require.Equal(t, 1, d.Stats().Superclusters)
}

func TestDetectMergesAdjacentClusterCells(t *testing.T) {
	// Two heavy cells one cell apart plus eight light background cells.
	rows := [][4]float64{
		{0, 0, 0, 12},
		{0.6, 0, 0, 12},
	}
	for _, x := range []float64{2, 3, 4, 5} {
		rows = append(rows, [4]float64{x, 0, 0, 1}, [4]float64{x, 2, 0, 1})
	}
	s := detectorField(t, rows)

	d := NewClusterDetector(12)
	d.Detect(s)

	require.Equal(t, 1, d.Stats().Clusters, "adjacent cluster cells must merge")
	top := d.TopClusters(10)
	require.Len(t, top, 1)
	require.Equal(t, 2, top[0].Cells)
	require.InDelta(t, 0.5*math.Cbrt(2), top[0].Size, 1e-12)
	// Equal masses put the centroid midway between the two cell centers.
	require.InDelta(t, 0.5, top[0].Center.X, 1e-9)
}

func TestDetectKeepsDistantClustersSeparate(t *testing.T) {
	rows := [][4]float64{
		{0, 0, 0, 12},
		{5, 0, 0, 12},
	}
	for _, x := range []float64{1, 1.5, 2, 2.5} {
		rows = append(rows, [4]float64{x, 0, 0, 1}, [4]float64{x, 2, 0, 1})
	}
	s := detectorField(t, rows)

	d := NewClusterDetector(12)
	d.Detect(s)
	require.Equal(t, 2, d.Stats().Clusters)

	top := d.TopClusters(10)
	require.Len(t, top, 2)
	if top[0].Density < top[1].Density {
		t.Fatal("TopClusters must sort densest first")
	}
}

func TestDetectHomogeneousFieldHasNoStructures(t *testing.T) {
	var rows [][4]float64
	for _, x := range []float64{0, 1, 2, 3, 4, 5} {
		rows = append(rows, [4]float64{x, 0, 0, 2})
	}
	d := NewClusterDetector(12)
	structures := d.Detect(detectorField(t, rows))
	require.Empty(t, structures)
	require.Equal(t, 6, d.Stats().OccupiedCells)
}

func TestDetectEmptyAndNilStores(t *testing.T) {
	d := NewClusterDetector(12)
	require.Nil(t, d.Detect(nil))
	require.Nil(t, d.Detect(particles.NewStore(4)))
	require.Zero(t, d.Stats().OccupiedCells)
}

func TestDetectSkipsNonFinitePositions(t *testing.T) {
	s := detectorField(t, [][4]float64{
		{0, 0, 0, 5},
		{5, 0, 0, 5},
		{2, 0, 0, 5},
	})
	s.Y[2] = math.NaN()

	d := NewClusterDetector(12)
	d.Detect(s)
	require.Equal(t, 2, d.Stats().Particles)
	require.Equal(t, 2, d.Stats().OccupiedCells)
}

func TestClampCell(t *testing.T) {
	if got := clampCell(-3, 10); got != 0 {
		t.Fatalf("clampCell(-3) = %d", got)
	}
	if got := clampCell(10, 10); got != 9 {
		t.Fatalf("clampCell(10) = %d", got)
	}
	if got := clampCell(4, 10); got != 4 {
		t.Fatalf("clampCell(4) = %d", got)
	}
}
