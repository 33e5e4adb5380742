package core

import (
	"math"
	"sort"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

// DefaultGridResolution is the per-axis cell count of the density grid.
const DefaultGridResolution = 50

// Classification thresholds, relative to the mean density of occupied cells.
// All are inclusive at the boundary: a cell at exactly clusterThreshold is a
// cluster, not a filament.
const (
	voidThreshold         = 0.2
	filamentThreshold     = 1.5
	clusterThreshold      = 3.0
	superclusterThreshold = 5.0
)

// mergeReachCells is the cell-center distance (in cell widths) within which
// adjacent cluster cells merge into one structure.
const mergeReachCells = 2.0

// DensityStats summarises the last detection pass. The stats are retained
// between passes even though the grid itself is ephemeral.
type DensityStats struct {
	Particles     int     `json:"particles"`
	OccupiedCells int     `json:"occupied_cells"`
	MeanDensity   float64 `json:"mean_density"`
	MaxDensity    float64 `json:"max_density"`
	Voids         int     `json:"voids"`
	Filaments     int     `json:"filaments"`
	Clusters      int     `json:"clusters"`
	Superclusters int     `json:"superclusters"`
}

// ClusterDetector bins particle mass into a fixed-resolution 3D grid and
// classifies the large-scale structure of the field. The grid is rebuilt
// from scratch on every Detect call.
type ClusterDetector struct {
	Resolution int

	stats      DensityStats
	structures []model.Structure
}

// NewClusterDetector constructs a detector. A non-positive resolution falls
// back to DefaultGridResolution.
func NewClusterDetector(resolution int) *ClusterDetector {
	if resolution <= 0 {
		resolution = DefaultGridResolution
	}
	return &ClusterDetector{Resolution: resolution}
}

// gridCell identifies one cell during a detection pass.
type gridCell struct {
	ix, iy, iz int
	density    float64
	mass       float64
}

// Detect classifies the current particle field and replaces the previous
// pass's structures wholesale. Particles with non-finite positions are
// skipped; out-of-range positions are clamped to the boundary cell, never
// discarded.
func (d *ClusterDetector) Detect(s *particles.Store) []model.Structure {
	d.structures = nil
	d.stats = DensityStats{}
	if s == nil {
		return nil
	}

	// Bounding box of active particles with 10% padding.
	found := false
	var minV, maxV Vec3
	active := 0
	for i := 0; i < s.Count(); i++ {
		if !s.Active(i) || !finite3(s.X[i], s.Y[i], s.Z[i]) {
			continue
		}
		active++
		p := Vec3{X: s.X[i], Y: s.Y[i], Z: s.Z[i]}
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
	d.stats.Particles = active
	if !found {
		return nil
	}

	span := maxV.Sub(minV)
	largest := math.Max(span.X, math.Max(span.Y, span.Z))
	if largest <= 0 {
		largest = 1
	}
	pad := largest * 0.1
	minV = minV.Sub(Vec3{X: pad, Y: pad, Z: pad})
	largest += 2 * pad

	res := d.Resolution
	cellSize := largest / float64(res)
	cellVolume := cellSize * cellSize * cellSize

	// Accumulate mass per cell; the grid is allocated fresh each pass.
	grid := make([]float64, res*res*res)
	for i := 0; i < s.Count(); i++ {
		if !s.Active(i) || !finite3(s.X[i], s.Y[i], s.Z[i]) {
			continue
		}
		ix := clampCell(int((s.X[i]-minV.X)/cellSize), res)
		iy := clampCell(int((s.Y[i]-minV.Y)/cellSize), res)
		iz := clampCell(int((s.Z[i]-minV.Z)/cellSize), res)
		grid[cellIndex(ix, iy, iz, res)] += s.Mass[i]
	}

	// Mean/max over occupied cells only.
	var occupied []gridCell
	sum := 0.0
	for iz := 0; iz < res; iz++ {
		for iy := 0; iy < res; iy++ {
			for ix := 0; ix < res; ix++ {
				mass := grid[cellIndex(ix, iy, iz, res)]
				if mass <= 0 {
					continue
				}
				density := mass / cellVolume
				occupied = append(occupied, gridCell{ix: ix, iy: iy, iz: iz, density: density, mass: mass})
				sum += density
				if density > d.stats.MaxDensity {
					d.stats.MaxDensity = density
				}
			}
		}
	}
	d.stats.OccupiedCells = len(occupied)
	if len(occupied) == 0 {
		return nil
	}
	mean := sum / float64(len(occupied))
	d.stats.MeanDensity = mean

	cellCenter := func(c gridCell) model.Position {
		return model.Position{
			X: minV.X + (float64(c.ix)+0.5)*cellSize,
			Y: minV.Y + (float64(c.iy)+0.5)*cellSize,
			Z: minV.Z + (float64(c.iz)+0.5)*cellSize,
		}
	}

	var clusterCells []gridCell
	for _, c := range occupied {
		ratio := c.density / mean
		switch {
		case ratio >= clusterThreshold:
			clusterCells = append(clusterCells, c)
		case ratio >= filamentThreshold:
			d.stats.Filaments++
			d.structures = append(d.structures, model.Structure{
				Class:    model.StructureFilament,
				Center:   cellCenter(c),
				Density:  c.density,
				Contrast: ratio,
				Cells:    1,
			})
		case ratio <= voidThreshold:
			d.stats.Voids++
			d.structures = append(d.structures, model.Structure{
				Class:    model.StructureVoid,
				Center:   cellCenter(c),
				Density:  c.density,
				Contrast: ratio,
				Cells:    1,
			})
		}
	}

	d.mergeClusters(clusterCells, cellCenter, cellSize, cellVolume, mean)
	return d.structures
}

// mergeClusters groups cluster cells whose centers lie within mergeReachCells
// cell widths of each other and emits one structure per group with a
// mass-weighted centroid.
func (d *ClusterDetector) mergeClusters(
	cells []gridCell,
	cellCenter func(gridCell) model.Position,
	cellSize, cellVolume, mean float64,
) {
	visited := make([]bool, len(cells))
	reachSq := mergeReachCells * mergeReachCells

	for i := range cells {
		if visited[i] {
			continue
		}
		group := []int{i}
		visited[i] = true
		for cursor := 0; cursor < len(group); cursor++ {
			a := cells[group[cursor]]
			for j := range cells {
				if visited[j] {
					continue
				}
				b := cells[j]
				dx := float64(a.ix - b.ix)
				dy := float64(a.iy - b.iy)
				dz := float64(a.iz - b.iz)
				if dx*dx+dy*dy+dz*dz <= reachSq {
					visited[j] = true
					group = append(group, j)
				}
			}
		}

		totalMass := 0.0
		var centroid model.Position
		for _, idx := range group {
			c := cells[idx]
			pos := cellCenter(c)
			centroid.X += pos.X * c.mass
			centroid.Y += pos.Y * c.mass
			centroid.Z += pos.Z * c.mass
			totalMass += c.mass
		}
		centroid.X /= totalMass
		centroid.Y /= totalMass
		centroid.Z /= totalMass

		density := totalMass / (float64(len(group)) * cellVolume)
		ratio := density / mean
		class := model.StructureCluster
		if ratio >= superclusterThreshold {
			class = model.StructureSupercluster
			d.stats.Superclusters++
		} else {
			d.stats.Clusters++
		}

		d.structures = append(d.structures, model.Structure{
			Class:    class,
			Center:   centroid,
			Density:  density,
			Contrast: ratio,
			Size:     cellSize * math.Cbrt(float64(len(group))),
			Cells:    len(group),
		})
	}
}

// Stats returns the cached statistics from the last detection pass.
func (d *ClusterDetector) Stats() DensityStats { return d.stats }

// Structures returns the structures from the last detection pass.
func (d *ClusterDetector) Structures() []model.Structure { return d.structures }

// TopClusters returns up to n cluster or supercluster structures from the
// last pass, densest first.
func (d *ClusterDetector) TopClusters(n int) []model.Structure {
	var out []model.Structure
	for _, st := range d.structures {
		if st.Class == model.StructureCluster || st.Class == model.StructureSupercluster {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Density > out[j].Density })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func cellIndex(ix, iy, iz, res int) int {
	return ix + iy*res + iz*res*res
}

func clampCell(i, res int) int {
	if i < 0 {
		return 0
	}
	if i >= res {
		return res - 1
	}
	return i
}
