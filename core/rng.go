package core

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// jitter returns a deterministic pseudo-random value in [0, 1) derived from
// (seed, particle index, frame). The same triple always yields the same
// value, which keeps stochastic heating reproducible across runs and lets
// tests pin exact trajectories.
func jitter(seed uint64, particle int, frame uint64) float64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(particle))
	binary.LittleEndian.PutUint64(buf[16:24], frame)

	h := xxhash.Sum64(buf[:])
	// Use the top 53 bits so the quotient is an exactly representable
	// float64 in [0, 1).
	return float64(h>>11) / float64(1<<53)
}
