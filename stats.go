package ringcache

import "sync/atomic"

// stats holds the atomic counters backing Cache.Stats. Every field is
// updated with a single atomic add, never under a lock, so recording a
// stat never contends with the control actor or bucket access.
type stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	negatives atomic.Uint64
	rotations atomic.Uint64
}

// Stats is a point-in-time snapshot of a Cache's counters, returned by
// Cache.Stats.
type Stats struct {
	// Hits counts keys answered from the ring without invoking the
	// resolver, whether the hit was a present value or a negative marker.
	Hits uint64
	// Misses counts keys that were absent from every bucket and had to be
	// resolved, regardless of whether resolution succeeded.
	Misses uint64
	// Negatives counts keys resolved to a nil value, i.e. installed as
	// negative-cache entries.
	Negatives uint64
	// Rotations counts completed generation rollovers since Open.
	Rotations uint64
}

func (s *stats) recordHit()      { s.hits.Add(1) }
func (s *stats) recordMiss()     { s.misses.Add(1) }
func (s *stats) recordNegative() { s.negatives.Add(1) }
func (s *stats) recordRotation() { s.rotations.Add(1) }

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Negatives: s.negatives.Load(),
		Rotations: s.rotations.Load(),
	}
}
