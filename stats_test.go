package ringcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsSnapshot(t *testing.T) {
	var s stats
	s.recordHit()
	s.recordHit()
	s.recordMiss()
	s.recordNegative()
	s.recordRotation()
	s.recordRotation()
	s.recordRotation()

	snap := s.snapshot()
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Negatives: 1, Rotations: 3}, snap)
}
