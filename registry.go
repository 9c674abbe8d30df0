package ringcache

import "sync"

// Registry binds cache instances to names, so unrelated parts of a process
// can share a Cache by name instead of threading a reference through every
// call site - the "public-API glue" this package's core deliberately stays
// out of, per its scope notes.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	named map[string]*Cache[K, V]
}

// NewRegistry constructs an empty Registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{named: make(map[string]*Cache[K, V])}
}

// Register associates name with c, replacing (but not closing) any prior
// Cache registered under the same name.
func (r *Registry[K, V]) Register(name string, c *Cache[K, V]) {
	r.mu.Lock()
	r.named[name] = c
	r.mu.Unlock()
}

// Lookup returns the Cache registered under name, or nil if none is.
func (r *Registry[K, V]) Lookup(name string) *Cache[K, V] {
	r.mu.RLock()
	c := r.named[name]
	r.mu.RUnlock()
	return c
}

// Unregister removes name from the registry, returning the Cache that was
// registered under it, or nil if none was. The caller is responsible for
// calling Close on the returned Cache if it should stop running.
func (r *Registry[K, V]) Unregister(name string) *Cache[K, V] {
	r.mu.Lock()
	c, ok := r.named[name]
	if ok {
		delete(r.named, name)
	}
	r.mu.Unlock()
	return c
}

// Names returns every name currently registered, in no particular order.
func (r *Registry[K, V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.named))
	for name := range r.named {
		out = append(out, name)
	}
	return out
}
