package ringcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache is a time-deterministic key/value cache whose entries expire by
// generational rollover rather than per-key TTL. The zero value is not
// usable; construct one with Open.
//
// All ring-mutating operations (Insert, Delete, Clear, SetResolver, and
// rotation itself) are serialized through a single control actor goroutine
// and are fire-and-forget from the caller's perspective - see §5 of the
// design this package implements. Lookups (Get and friends) never contend
// on the actor; they read buckets directly under each bucket's own lock.
// Pairs a resolver returns on a miss are the one write that bypasses the
// actor: the looking-up goroutine installs them into the newest bucket
// itself, under that bucket's lock, before Get returns.
type Cache[K comparable, V any] struct {
	cfg  *config[K, V]
	ring *generationRing[K, V]

	resolver atomic.Pointer[Resolver[K, V]]
	sf       *singleflight.Group

	cmdCh  chan actorCmd[K, V]
	stopCh chan struct{}
	doneCh chan struct{}

	expiry *expiryDriver

	stats stats

	closeOnce sync.Once
}

// Open allocates a Cache, starts its control actor and expiry driver, and
// returns it ready for use. The returned error is ErrInvalidConfig iff the
// resolved bucket count or generation period is out of range.
func Open[K comparable, V any](opts ...Option[K, V]) (*Cache[K, V], error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		cfg:    cfg,
		ring:   newGenerationRing[K, V](cfg.bucketCount),
		cmdCh:  make(chan actorCmd[K, V], 64),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.coalesce {
		c.sf = new(singleflight.Group)
	}
	if cfg.resolver != nil {
		c.resolver.Store(&cfg.resolver)
	}

	go c.run()

	c.expiry = startExpiryDriver(cfg.clock, cfg.generationPeriod, func() {
		c.enqueue(rotateCmd[K, V]{})
	})

	return c, nil
}

// Close stops the expiry driver, drains the control actor and releases
// bucket storage. Safe to call more than once; only the first call has any
// effect. Blocked Get/GetMany calls already in flight still complete.
func (c *Cache[K, V]) Close() error {
	c.closeOnce.Do(func() {
		c.expiry.stop()
		close(c.stopCh)
		<-c.doneCh
		c.ring.clearAll()
	})
	return nil
}

// --- control actor ---

type actorCmd[K comparable, V any] interface {
	apply(c *Cache[K, V])
}

type insertCmd[K comparable, V any] struct{ pairs map[K]slot[V] }

func (cmd insertCmd[K, V]) apply(c *Cache[K, V]) {
	c.ring.newest().insertMany(cmd.pairs)
}

type deleteCmd[K comparable, V any] struct{ key K }

func (cmd deleteCmd[K, V]) apply(c *Cache[K, V]) {
	c.ring.deleteFromAll(cmd.key)
}

type clearCmd[K comparable, V any] struct{}

func (clearCmd[K, V]) apply(c *Cache[K, V]) {
	c.ring.clearAll()
}

type setResolverCmd[K comparable, V any] struct{ resolver Resolver[K, V] }

func (cmd setResolverCmd[K, V]) apply(c *Cache[K, V]) {
	if cmd.resolver == nil {
		c.resolver.Store(nil)
		return
	}
	r := cmd.resolver
	c.resolver.Store(&r)
}

type rotateCmd[K comparable, V any] struct{}

func (rotateCmd[K, V]) apply(c *Cache[K, V]) {
	report := c.ring.rotate()
	c.stats.recordRotation()
	logRotation(c.cfg.logger, c.cfg.name, report)
}

// syncCmd is a no-op marker that closes done once every command enqueued
// ahead of it has been applied. Used internally to wait for actor
// catch-up without exposing actor internals to callers.
type syncCmd[K comparable, V any] struct{ done chan struct{} }

func (cmd syncCmd[K, V]) apply(*Cache[K, V]) {
	close(cmd.done)
}

// enqueue is a fire-and-forget send: it blocks only long enough for the
// actor to accept the command into its queue, never for the command to be
// applied.
func (c *Cache[K, V]) enqueue(cmd actorCmd[K, V]) {
	select {
	case c.cmdCh <- cmd:
	case <-c.stopCh:
	}
}

func (c *Cache[K, V]) run() {
	defer close(c.doneCh)
	for {
		select {
		case cmd := <-c.cmdCh:
			cmd.apply(c)
		case <-c.stopCh:
			// drain whatever is already queued before exiting, preserving
			// enqueue order for anything sent prior to Close.
			for {
				select {
				case cmd := <-c.cmdCh:
					cmd.apply(c)
				default:
					return
				}
			}
		}
	}
}

// --- lookup path ---

// Get resolves key, consulting the ring first and falling back to the
// configured resolver on a miss. A nil-valued resolver result is a
// negative-cache hit: Entry.Found is false, Entry.Value is the zero value.
// A key the resolver leaves out of its result also yields a zero Entry and
// a nil error, and is not cached.
//
// Resolved pairs are in the newest bucket by the time Get returns, so later
// lookups of the key hit the ring. Lookups of the same missing key that
// overlap one resolution each invoke the resolver, and the last write wins;
// with WithSingleflightCoalescing enabled, overlapping single-key lookups
// share one resolver call instead.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (Entry[V], error) {
	entries, err := c.GetMany(ctx, []K{key})
	if err != nil {
		return Entry[V]{}, err
	}
	return entries[key], nil
}

// GetTuple is Get, with the key threaded back through the result for
// callers that dispatch many independent lookups and need to reassociate
// answers with requests.
func (c *Cache[K, V]) GetTuple(ctx context.Context, key K) (Pair[K, V], error) {
	e, err := c.Get(ctx, key)
	if err != nil {
		return Pair[K, V]{Key: key}, err
	}
	return entryToPair(key, e), nil
}

// GetMany resolves every key in keys, invoking the resolver at most once
// with the subset not already present in the ring. The returned map has
// one entry per element of keys that was found-or-resolved; keys the
// resolver silently dropped are absent from the result (see
// ResolverCoordinator's get_many algorithm). Pairs the resolver returns for
// keys it was not asked about are cached as well and also appear in the
// returned map.
func (c *Cache[K, V]) GetMany(ctx context.Context, keys []K) (map[K]Entry[V], error) {
	if len(keys) == 0 {
		return map[K]Entry[V]{}, nil
	}

	resolved := make(map[K]Entry[V], len(keys))
	unresolved := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		unresolved[k] = struct{}{}
	}

	for _, b := range c.ring.iterNewestToOldest() {
		if len(unresolved) == 0 {
			break
		}
		for k := range unresolved {
			if s, ok := b.lookup(k); ok {
				resolved[k] = s.entry()
				delete(unresolved, k)
				c.stats.recordHit()
			}
		}
	}
	if len(unresolved) == 0 {
		return resolved, nil
	}

	missing := make([]K, 0, len(unresolved))
	for k := range unresolved {
		missing = append(missing, k)
	}
	c.stats.misses.Add(uint64(len(missing)))

	pairs, err := c.resolveMissing(ctx, missing)
	switch {
	case err == nil:
		// fall through
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMalformedResult):
		// not a resolver failure: no resolver was ever configured, or the
		// result could not be reconciled with its keys. Already logged by
		// resolveMissing in the malformed-result case.
		return nil, err
	default:
		logResolverFailure(c.cfg.logger, c.cfg.name, err)
		return nil, wrapResolverErr(err)
	}

	toInsert := make(map[K]slot[V], len(pairs))
	for _, p := range pairs {
		var s slot[V]
		if p.Value == nil {
			s = negativeSlot[V]()
			c.stats.recordNegative()
		} else {
			s = presentSlot(*p.Value)
		}
		toInsert[p.Key] = s
		resolved[p.Key] = s.entry()
	}
	if len(toInsert) != 0 {
		c.ring.newest().insertMany(toInsert)
	}

	return resolved, nil
}

// GetManyTuples is GetMany with results flattened into a key-identified
// sequence rather than a map, for callers that prefer to iterate pairs.
func (c *Cache[K, V]) GetManyTuples(ctx context.Context, keys []K) ([]Pair[K, V], error) {
	resolved, err := c.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]Pair[K, V], 0, len(resolved))
	for k, e := range resolved {
		out = append(out, entryToPair(k, e))
	}
	return out, nil
}

func (c *Cache[K, V]) resolveMissing(ctx context.Context, keys []K) ([]Pair[K, V], error) {
	resolver := c.GetResolver()
	if resolver == nil {
		return nil, ErrInvalidConfig
	}
	if c.sf == nil || len(keys) != 1 {
		return resolver(ctx, keys)
	}

	// Singleflight coalescing only applies cleanly to the single-key case:
	// a batch of N keys has no single sharable key for the group. Batches
	// fall through to the resolver directly, same as the uncoalesced path.
	key := keys[0]
	v, err, _ := c.sf.Do(anyKey(key), func() (any, error) {
		pairs, err := resolver(ctx, keys)
		return struct {
			key   K
			pairs []Pair[K, V]
		}{key, pairs}, err
	})
	res, ok := v.(struct {
		key   K
		pairs []Pair[K, V]
	})
	if !ok {
		// Every call into sf.Do for this Cache instance returns the same
		// result type, so this should be unreachable; guarded defensively
		// since singleflight's result channel is typed any.
		logMalformedResult(c.cfg.logger, c.cfg.name, ErrMalformedResult)
		return nil, ErrMalformedResult
	}
	if res.key != key {
		// a distinct key with the same anyKey rendering owns this flight;
		// its result is not this key's, so resolve this key on its own.
		return resolver(ctx, keys)
	}
	if err != nil {
		return nil, err
	}
	return res.pairs, nil
}

// --- admin surface ---

// Insert installs pairs directly into the newest bucket, bypassing the
// resolver entirely. Fire-and-forget: Insert returns before the pairs are
// necessarily visible to a concurrent Get.
func (c *Cache[K, V]) Insert(pairs []Pair[K, V]) {
	if len(pairs) == 0 {
		return
	}
	m := make(map[K]slot[V], len(pairs))
	for _, p := range pairs {
		if p.Value == nil {
			m[p.Key] = negativeSlot[V]()
		} else {
			m[p.Key] = presentSlot(*p.Value)
		}
	}
	c.enqueue(insertCmd[K, V]{pairs: m})
}

// Delete removes key from every bucket in the ring. Fire-and-forget; a Get
// that runs before the Delete is applied may still observe the deleted
// value.
func (c *Cache[K, V]) Delete(key K) {
	c.enqueue(deleteCmd[K, V]{key: key})
}

// Clear empties every bucket, leaving ring positions and generation
// identifiers intact. Fire-and-forget.
func (c *Cache[K, V]) Clear() {
	c.enqueue(clearCmd[K, V]{})
}

// SetResolver replaces the resolver used for subsequent misses. Entries
// already resolved by a prior resolver are unaffected and remain until
// they age out or are explicitly deleted. Fire-and-forget, but totally
// ordered with respect to rotation and every other control-actor op.
func (c *Cache[K, V]) SetResolver(r Resolver[K, V]) {
	c.enqueue(setResolverCmd[K, V]{resolver: r})
}

// GetResolver synchronously returns the resolver currently in effect, or
// nil if none is set (never set, or last set to nil). Unlike the other admin operations this
// reads the live atomic reference directly rather than going through the
// control actor, since it is specified as a synchronous read.
func (c *Cache[K, V]) GetResolver() Resolver[K, V] {
	p := c.resolver.Load()
	if p == nil {
		return nil
	}
	return *p
}

// InspectOrder returns the ring's bucket identifiers from newest to
// oldest. For tests and debugging only.
func (c *Cache[K, V]) InspectOrder() []uint64 {
	return c.ring.inspectOrder()
}

// InspectContents returns a per-bucket listing of the ring's contents,
// newest to oldest. For tests and debugging only.
func (c *Cache[K, V]) InspectContents() []BucketSnapshot[K, V] {
	return c.ring.inspectContents()
}

// Stats returns a point-in-time snapshot of the cache's hit/miss/rotation
// counters.
func (c *Cache[K, V]) Stats() Stats {
	return c.stats.snapshot()
}

// anyKey renders a comparable key as a string for singleflight.Group.Do,
// which only accepts string keys. Collisions between distinct keys that
// happen to format identically cost only an extra resolver call, never a
// correctness bug: resolveMissing checks that a shared result belongs to
// its own key and otherwise resolves that key itself.
func anyKey[K comparable](key K) string {
	return fmt.Sprintf(`%v`, key)
}

func entryToPair[K comparable, V any](key K, e Entry[V]) Pair[K, V] {
	if !e.Found {
		return Pair[K, V]{Key: key}
	}
	v := e.Value
	return Pair[K, V]{Key: key, Value: &v}
}
