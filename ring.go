package ringcache

import (
	"sync"

	"golang.org/x/exp/slices"
)

// generationRing is a circular arrangement of exactly n bucket slots with an
// integer cursor marking the newest slot; the oldest slot is always
// (cursor+1) mod n. Rotation is an O(1) pointer update: the bucket object
// the cursor is about to point past is emptied (its map swapped for a fresh
// empty one) and reused as the new newest slot, so bucket objects
// themselves never move on rotation.
//
// Only Cache's control actor ever moves the cursor (on each rotation the
// expiry driver requests) or empties buckets (rotation and Clear);
// concurrent lookups take mu.RLock to read a
// consistent view of which buckets are newest/oldest, then operate on the
// bucket's own lock independently of the ring.
type generationRing[K comparable, V any] struct {
	mu      sync.RWMutex
	buckets []*bucket[K, V]
	cursor  int
	nextID  uint64
}

func newGenerationRing[K comparable, V any](n int) *generationRing[K, V] {
	if n < 1 {
		panic(`ringcache: bucket_count must be >= 1`)
	}
	r := &generationRing[K, V]{
		buckets: make([]*bucket[K, V], n),
	}
	for i := range r.buckets {
		r.nextID++
		r.buckets[i] = newBucket[K, V](r.nextID)
	}
	// the last-initialized slot is the newest: generation IDs increase with
	// recency, so the highest ID among the initial set is slot n-1.
	r.cursor = n - 1
	return r
}

func (r *generationRing[K, V]) size() int {
	return len(r.buckets)
}

// newest returns the current insert target.
func (r *generationRing[K, V]) newest() *bucket[K, V] {
	r.mu.RLock()
	b := r.buckets[r.cursor]
	r.mu.RUnlock()
	return b
}

// iterNewestToOldest returns a snapshot of the buckets in read-path order:
// newest first, oldest last. Snapshotting the slice (rather than returning
// the backing array) means a concurrent rotate cannot alter the caller's
// view mid-iteration.
func (r *generationRing[K, V]) iterNewestToOldest() []*bucket[K, V] {
	n := len(r.buckets)
	out := make([]*bucket[K, V], n)

	r.mu.RLock()
	cursor := r.cursor
	for i := 0; i < n; i++ {
		out[i] = r.buckets[(cursor-i+n)%n]
	}
	r.mu.RUnlock()

	return out
}

// rotationReport describes the bookkeeping needed for the §6 rotation log
// record.
type rotationReport struct {
	expiringBucketID uint64
	sizeBeforeClear  int
	newNewestID      uint64
	newOldestID      uint64
}

// rotate clears the oldest bucket and promotes it to newest; every other
// bucket shifts one step toward oldest by virtue of the cursor moving. Only
// the control actor calls rotate, so no writer-writer race is possible; the
// lock here exists solely to serialize against concurrent readers.
func (r *generationRing[K, V]) rotate() rotationReport {
	n := len(r.buckets)

	r.mu.Lock()
	oldestIdx := (r.cursor + 1) % n
	expiring := r.buckets[oldestIdx]
	expiringID := expiring.id
	sizeBefore := expiring.reset()

	r.nextID++
	expiring.id = r.nextID

	r.cursor = oldestIdx
	newNewestID := r.buckets[r.cursor].id
	newOldestID := r.buckets[(r.cursor+1)%n].id
	r.mu.Unlock()

	return rotationReport{
		expiringBucketID: expiringID,
		sizeBeforeClear:  sizeBefore,
		newNewestID:      newNewestID,
		newOldestID:      newOldestID,
	}
}

// clearAll empties every bucket; ring positions (and generation IDs) are
// unchanged.
func (r *generationRing[K, V]) clearAll() {
	r.mu.RLock()
	bs := slices.Clone(r.buckets)
	r.mu.RUnlock()

	for _, b := range bs {
		b.reset()
	}
}

// deleteFromAll removes key from every bucket in the ring.
func (r *generationRing[K, V]) deleteFromAll(key K) {
	r.mu.RLock()
	bs := slices.Clone(r.buckets)
	r.mu.RUnlock()

	for _, b := range bs {
		b.delete(key)
	}
}

// inspectOrder returns the bucket identifiers from newest to oldest, for
// tests and debugging only.
func (r *generationRing[K, V]) inspectOrder() []uint64 {
	bs := r.iterNewestToOldest()
	out := make([]uint64, len(bs))
	for i, b := range bs {
		out[i] = b.id
	}
	return out
}

// inspectContents returns a per-bucket listing, newest to oldest, for tests
// and debugging only.
func (r *generationRing[K, V]) inspectContents() []BucketSnapshot[K, V] {
	bs := r.iterNewestToOldest()
	out := make([]BucketSnapshot[K, V], len(bs))
	for i, b := range bs {
		out[i] = BucketSnapshot[K, V]{ID: b.id, Entries: b.snapshot()}
	}
	return out
}

// BucketSnapshot is the debug view of a single generation, returned by
// Cache.InspectContents.
type BucketSnapshot[K comparable, V any] struct {
	ID      uint64
	Entries map[K]Entry[V]
}
