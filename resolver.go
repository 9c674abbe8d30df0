package ringcache

import (
	"context"
	"sync"
)

// Pair is the canonical (key, value-or-nil) shape a Resolver returns for one
// resolved key. A nil Value means the resolver has confirmed no value
// exists for Key, i.e. a negative-cache entry.
type Pair[K comparable, V any] struct {
	Key   K
	Value *V
}

// Resolver resolves a batch of keys to their values in one round trip. It
// may be slow and may fail; it is always invoked outside any cache-wide
// lock. A Resolver that omits a requested key from its result leaves that
// key neither cached nor resolved for the current call - see Cache.GetMany.
type Resolver[K comparable, V any] func(ctx context.Context, keys []K) ([]Pair[K, V], error)

// ResolverFromPairs is an identity adapter for the canonical tuple shape,
// provided for symmetry with ResolverFromMap.
func ResolverFromPairs[K comparable, V any](f func(ctx context.Context, keys []K) ([]Pair[K, V], error)) Resolver[K, V] {
	return Resolver[K, V](f)
}

// ResolverFromMap adapts a resolver that returns its results as a map, the
// statically typed analogue of the "two-element sequence" shape the spec's
// design notes call out: a map entry (k, v) carries the same information as
// a (k, v) tuple, without requiring the caller to assemble a slice of Pair.
// A nil map value means negative, exactly as a nil Pair.Value does. Keys
// entirely absent from the returned map are treated the same as keys never
// mentioned by a Resolver's []Pair result: not cached, not included in the
// lookup result.
func ResolverFromMap[K comparable, V any](f func(ctx context.Context, keys []K) (map[K]*V, error)) Resolver[K, V] {
	return func(ctx context.Context, keys []K) ([]Pair[K, V], error) {
		m, err := f(ctx, keys)
		if err != nil {
			return nil, err
		}
		pairs := make([]Pair[K, V], 0, len(m))
		for k, v := range m {
			pairs = append(pairs, Pair[K, V]{Key: k, Value: v})
		}
		return pairs, nil
	}
}

// NamedResolver is one entry of a ResolverRegistry: a function that accepts
// the keys being resolved plus a caller-supplied extra argument.
type NamedResolver[K comparable, V any, Extra any] func(ctx context.Context, keys []K, extra Extra) ([]Pair[K, V], error)

// ResolverRegistry implements the §6 "late-bound triple" resolver contract:
// a resolver is registered once under a name, and later invocations name it
// plus an extra argument bundle, rather than supplying a closure directly.
// This is the typed equivalent of "(namespace, name, extra_args) whose
// invocation prepends keys to extra_args" - Extra plays the role of
// extra_args, and Bind returns a Resolver with extra already curried in.
type ResolverRegistry[K comparable, V any, Extra any] struct {
	mu        sync.RWMutex
	resolvers map[string]NamedResolver[K, V, Extra]
}

// NewResolverRegistry constructs an empty ResolverRegistry.
func NewResolverRegistry[K comparable, V any, Extra any]() *ResolverRegistry[K, V, Extra] {
	return &ResolverRegistry[K, V, Extra]{
		resolvers: make(map[string]NamedResolver[K, V, Extra]),
	}
}

// Register associates name with a NamedResolver, replacing any prior
// registration under the same name.
func (r *ResolverRegistry[K, V, Extra]) Register(name string, fn NamedResolver[K, V, Extra]) {
	r.mu.Lock()
	r.resolvers[name] = fn
	r.mu.Unlock()
}

// Bind looks up name and curries extra into it, producing a Resolver
// suitable for Open or SetResolver. It panics if name was never registered,
// since this is a construction-time wiring mistake, not a runtime resolver
// failure.
func (r *ResolverRegistry[K, V, Extra]) Bind(name string, extra Extra) Resolver[K, V] {
	r.mu.RLock()
	fn, ok := r.resolvers[name]
	r.mu.RUnlock()
	if !ok {
		panic(`ringcache: resolver registry: no resolver registered as "` + name + `"`)
	}
	return func(ctx context.Context, keys []K) ([]Pair[K, V], error) {
		return fn(ctx, keys, extra)
	}
}
