package model

// StructureClass labels a region of the density field.
type StructureClass string

const (
	StructureVoid         StructureClass = "void"
	StructureFilament     StructureClass = "filament"
	StructureCluster      StructureClass = "cluster"
	StructureSupercluster StructureClass = "supercluster"
)

// Position is a point in simulation space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Structure is one detected feature of the large-scale density field. It is
// valid for a single detection pass and replaced wholesale by the next one.
type Structure struct {
	Class    StructureClass `json:"class"`
	Center   Position       `json:"center"`
	Density  float64        `json:"density"`  // accumulated mass per cell volume
	Contrast float64        `json:"contrast"` // density relative to the occupied-cell mean

	// Size is the physical extent of a merged cluster; zero for cells
	// that were not merged (voids, filaments).
	Size float64 `json:"size"`

	// Cells is the number of grid cells merged into this structure.
	Cells int `json:"cells"`
}
