package core

import (
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

// octreeMaxDepth bounds subdivision so coincident particles cannot recurse
// forever. A node at the depth limit aggregates everything inserted into it.
const octreeMaxDepth = 32

const noChild = int32(-1)

// octreeNode is one cell of the spatial partition. Nodes live in the tree's
// arena and reference children by arena index, so a rebuild is a slice reset
// rather than a walk over individually freed allocations.
type octreeNode struct {
	center Vec3    // geometric center of the cubic region
	half   float64 // half-width of the region

	com  Vec3 // mass-weighted center of the node's descendants
	mass float64

	particle int32 // particle index when the node is a leaf with one body
	children [8]int32
	leaf     bool
}

// Octree is a Barnes-Hut spatial partition over the active particles of a
// store. It is rebuilt from scratch every tick and must not be mutated while
// force queries are in flight.
type Octree struct {
	Theta float64 // opening angle; smaller is more accurate

	nodes []octreeNode
	root  int32
}

// NewOctree constructs an empty tree with the given opening angle.
func NewOctree(theta float64) *Octree {
	return &Octree{Theta: theta, root: noChild}
}

// NodeCount returns the number of arena nodes in the current tree.
func (t *Octree) NodeCount() int { return len(t.nodes) }

// Build partitions the bounding cube of all active, finite-position
// particles. Particles with non-finite positions are skipped entirely.
func (t *Octree) Build(s *particles.Store) {
	t.nodes = t.nodes[:0]
	t.root = noChild
	if s == nil {
		return
	}

	// Bounding box over usable particles.
	found := false
	var minV, maxV Vec3
	for i := 0; i < s.Count(); i++ {
		if !s.Active(i) || !finite3(s.X[i], s.Y[i], s.Z[i]) {
			continue
		}
		p := Vec3{X: s.X[i], Y: s.Y[i], Z: s.Z[i]}
		if !found {
			minV, maxV = p, p
			found = true
			continue
		}
		if p.X < minV.X {
			minV.X = p.X
		}
		if p.Y < minV.Y {
			minV.Y = p.Y
		}
		if p.Z < minV.Z {
			minV.Z = p.Z
		}
		if p.X > maxV.X {
			maxV.X = p.X
		}
		if p.Y > maxV.Y {
			maxV.Y = p.Y
		}
		if p.Z > maxV.Z {
			maxV.Z = p.Z
		}
	}
	if !found {
		return
	}

	span := maxV.Sub(minV)
	half := span.X
	if span.Y > half {
		half = span.Y
	}
	if span.Z > half {
		half = span.Z
	}
	half = half/2 + 1e-9
	center := minV.Add(maxV).Scale(0.5)

	t.root = t.newNode(center, half)
	for i := 0; i < s.Count(); i++ {
		if !s.Active(i) || !finite3(s.X[i], s.Y[i], s.Z[i]) {
			continue
		}
		t.insert(t.root, int32(i), Vec3{X: s.X[i], Y: s.Y[i], Z: s.Z[i]}, s.Mass[i], 0)
	}
}

func (t *Octree) newNode(center Vec3, half float64) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, octreeNode{
		center:   center,
		half:     half,
		particle: -1,
		children: [8]int32{noChild, noChild, noChild, noChild, noChild, noChild, noChild, noChild},
		leaf:     true,
	})
	return idx
}

// insert places particle p into the subtree rooted at n, updating aggregate
// mass and center-of-mass on the way down. The incremental COM update is
// exact, which the opening-angle approximation depends on.
func (t *Octree) insert(n, p int32, pos Vec3, mass float64, depth int) {
	node := &t.nodes[n]

	if node.leaf {
		if node.mass == 0 {
			node.particle = p
			node.com = pos
			node.mass = mass
			return
		}
		if depth >= octreeMaxDepth {
			// Aggregate in place; the node acts as a pseudo-particle.
			total := node.mass + mass
			node.com = node.com.Scale(node.mass / total).Add(pos.Scale(mass / total))
			node.mass = total
			node.particle = -1
			return
		}

		// Split: push the resident particle down before descending.
		resident := node.particle
		residentPos := node.com
		residentMass := node.mass
		node.leaf = false
		node.particle = -1
		t.insertIntoChild(n, resident, residentPos, residentMass, depth+1)
		node = &t.nodes[n] // re-resolve: insertIntoChild may grow the arena
	}

	total := node.mass + mass
	node.com = node.com.Scale(node.mass / total).Add(pos.Scale(mass / total))
	node.mass = total
	t.insertIntoChild(n, p, pos, mass, depth+1)
}

func (t *Octree) insertIntoChild(n, p int32, pos Vec3, mass float64, depth int) {
	node := &t.nodes[n]

	oct := 0
	if pos.X >= node.center.X {
		oct |= 1
	}
	if pos.Y >= node.center.Y {
		oct |= 2
	}
	if pos.Z >= node.center.Z {
		oct |= 4
	}

	child := node.children[oct]
	if child == noChild {
		quarter := node.half / 2
		offset := Vec3{X: -quarter, Y: -quarter, Z: -quarter}
		if oct&1 != 0 {
			offset.X = quarter
		}
		if oct&2 != 0 {
			offset.Y = quarter
		}
		if oct&4 != 0 {
			offset.Z = quarter
		}
		childCenter := node.center.Add(offset)
		child = t.newNode(childCenter, quarter)
		t.nodes[n].children[oct] = child
	}
	t.insert(child, p, pos, mass, depth)
}

// Accel computes the gravitational acceleration on particle i from every
// other particle, approximating distant groups by their center of mass when
// (node size / distance) < Theta. The softened law a = G·m / (r² + ε²) keeps
// the result finite as r approaches zero. The second return value is false
// when the particle cannot be evaluated or the result is non-finite; the
// caller must discard such a sample rather than apply it.
func (t *Octree) Accel(i int, s *particles.Store, g, softening2 float64) (Vec3, bool) {
	if t.root == noChild || s == nil || !s.Active(i) {
		return Vec3{}, false
	}
	pos := Vec3{X: s.X[i], Y: s.Y[i], Z: s.Z[i]}
	if !finiteVec(pos) {
		return Vec3{}, false
	}

	acc := t.accelFrom(t.root, int32(i), pos, g, softening2)
	if !finiteVec(acc) {
		return Vec3{}, false
	}
	return acc, true
}

func (t *Octree) accelFrom(n, self int32, pos Vec3, g, softening2 float64) Vec3 {
	node := &t.nodes[n]
	if node.mass == 0 {
		return Vec3{}
	}
	if node.leaf && node.particle == self {
		return Vec3{}
	}

	d := node.com.Sub(pos)
	distSq := d.Dot(d)
	size := node.half * 2

	if node.leaf || size*size < t.Theta*t.Theta*distSq {
		if distSq < 1e-18 {
			// Coincident with the node's COM; direction is undefined.
			return Vec3{}
		}
		softened := distSq + softening2
		accMag := g * node.mass / softened
		return d.Scale(accMag / node.com.DistanceTo(pos))
	}

	var acc Vec3
	for _, child := range node.children {
		if child != noChild {
			acc = acc.Add(t.accelFrom(child, self, pos, g, softening2))
		}
	}
	return acc
}

// DirectAccel is the exact O(N) pairwise sum used as the reference for the
// tree approximation. It applies the same softened law and skip rules.
func DirectAccel(i int, s *particles.Store, g, softening2 float64) (Vec3, bool) {
	if s == nil || !s.Active(i) {
		return Vec3{}, false
	}
	pos := Vec3{X: s.X[i], Y: s.Y[i], Z: s.Z[i]}
	if !finiteVec(pos) {
		return Vec3{}, false
	}

	var acc Vec3
	for j := 0; j < s.Count(); j++ {
		if j == i || !s.Active(j) || !finite3(s.X[j], s.Y[j], s.Z[j]) {
			continue
		}
		d := Vec3{X: s.X[j] - pos.X, Y: s.Y[j] - pos.Y, Z: s.Z[j] - pos.Z}
		distSq := d.Dot(d)
		if distSq < 1e-18 {
			continue
		}
		softened := distSq + softening2
		accMag := g * s.Mass[j] / softened
		acc = acc.Add(d.Scale(accMag / d.Norm()))
	}
	if !finiteVec(acc) {
		return Vec3{}, false
	}
	return acc, true
}
