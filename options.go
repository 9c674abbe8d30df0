package ringcache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultBucketCount      = 3
	defaultGenerationPeriod = 5 * time.Minute
)

// config holds the resolved configuration for Open, after every Option has
// been applied and defaults filled in.
type config[K comparable, V any] struct {
	name             string
	bucketCount      int
	generationPeriod time.Duration
	clock            clockwork.Clock
	logger           *logger
	resolver         Resolver[K, V]
	coalesce         bool
}

// Option configures a Cache at Open time.
type Option[K comparable, V any] interface {
	applyCache(*config[K, V])
}

type optionFunc[K comparable, V any] func(*config[K, V])

func (f optionFunc[K, V]) applyCache(c *config[K, V]) { f(c) }

// WithName sets the identifier this cache's log records carry in their
// "cache" field. Defaults to "ringcache" when unset.
func WithName[K comparable, V any](name string) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.name = name })
}

// WithBucketCount sets the number of generations in the ring (N from the
// bounded-lifetime guarantee: entries survive at most N generation periods,
// and at least one when N >= 2; with N = 1 an entry is dropped at the next
// rotation). Defaults to 3. Open returns ErrInvalidConfig if the
// resolved value is less than 1.
func WithBucketCount[K comparable, V any](n int) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.bucketCount = n })
}

// WithGenerationPeriod sets the duration of one generation (P). Defaults to
// 5 minutes. Open returns ErrInvalidConfig if the resolved value is <= 0.
func WithGenerationPeriod[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.generationPeriod = d })
}

// WithClock injects the clockwork.Clock driving generation rotation,
// letting tests substitute a clockwork.FakeClock for deterministic rollover
// assertions instead of waiting on real time. Defaults to
// clockwork.NewRealClock().
func WithClock[K comparable, V any](clock clockwork.Clock) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.clock = clock })
}

// WithLogger attaches a *logiface.Logger[*izerolog.Event] that rotation and
// resolver-failure records are written through. Defaults to a logger with
// no writer configured, which discards everything at negligible cost - see
// logging.go.
func WithLogger[K comparable, V any](l *logger) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.logger = l })
}

// WithResolver sets the Resolver consulted on a cache miss. A Cache opened
// without one can still serve Insert/Delete/Clear traffic and ring hits;
// Get/GetMany return ErrInvalidConfig when a key misses the ring while no
// resolver is set (none given via WithResolver or SetResolver, or the last
// SetResolver call passed nil).
func WithResolver[K comparable, V any](r Resolver[K, V]) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.resolver = r })
}

// WithSingleflightCoalescing makes concurrent lookups that miss on the same
// single key share one resolver invocation (per-key singleflight). Without
// it, every Get/GetMany call that misses invokes the resolver on its own,
// so overlapping misses for one key may each call it and the last write
// wins. Only calls whose miss set is exactly one key are coalesced; a miss
// set of two or more keys always goes straight to the resolver. Off by
// default.
func WithSingleflightCoalescing[K comparable, V any](enabled bool) Option[K, V] {
	return optionFunc[K, V](func(c *config[K, V]) { c.coalesce = enabled })
}

func resolveConfig[K comparable, V any](opts []Option[K, V]) (*config[K, V], error) {
	c := &config[K, V]{
		name:             `ringcache`,
		bucketCount:      defaultBucketCount,
		generationPeriod: defaultGenerationPeriod,
		clock:            clockwork.NewRealClock(),
		logger:           newNilLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyCache(c)
	}
	if c.bucketCount < 1 {
		return nil, ErrInvalidConfig
	}
	if c.generationPeriod <= 0 {
		return nil, ErrInvalidConfig
	}
	return c, nil
}
