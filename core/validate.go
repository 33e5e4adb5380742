package core

import "math"

// Numerical-safety checkpoints. Instead of scattering NaN/Inf guards through
// the update loop, callers validate at a small number of controlled points:
// after force evaluation, after integration, and after expansion scaling.

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finite3 reports whether all three components are finite.
func finite3(x, y, z float64) bool {
	return finite(x) && finite(y) && finite(z)
}

// finiteVec reports whether every component of v is finite.
func finiteVec(v Vec3) bool {
	return finite3(v.X, v.Y, v.Z)
}

// sanitize returns v unchanged when finite, or the zero fallback otherwise.
// Corrupted values are reset rather than propagated.
func sanitize(v float64) float64 {
	if finite(v) {
		return v
	}
	return 0
}

// clampAbs limits v to [-limit, limit].
func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// clamp limits v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
