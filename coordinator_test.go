package ringcache

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func constResolver(prefix string, calls *atomic.Int64) Resolver[string, string] {
	return func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		calls.Add(1)
		out := make([]Pair[string, string], len(keys))
		for i, k := range keys {
			v := prefix + k
			out[i] = Pair[string, string]{Key: k, Value: &v}
		}
		return out, nil
	}
}

// TestBasicHit is scenario S1: a resolved key is served from the ring on
// the next lookup without reinvoking the resolver.
func TestBasicHit(t *testing.T) {
	var calls atomic.Int64
	c, _ := newStringCache(t, constResolver(`v:`, &calls))

	e, err := c.Get(context.Background(), `a`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if !e.Found || e.Value != `v:a` {
		t.Fatalf(`got %+v, want Found=true Value=v:a`, e)
	}

	e, err = c.Get(context.Background(), `a`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `v:a` {
		t.Fatalf(`got value %q, want v:a`, e.Value)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf(`resolver called %d times, want 1`, n)
	}
}

// TestNegativeCache is scenario S2.
func TestNegativeCache(t *testing.T) {
	var calls atomic.Int64
	resolver := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		calls.Add(1)
		out := make([]Pair[string, string], len(keys))
		for i, k := range keys {
			out[i] = Pair[string, string]{Key: k}
		}
		return out, nil
	}
	c, _ := newStringCache(t, resolver)

	e, err := c.Get(context.Background(), `x`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Found {
		t.Fatal(`expected a negatively cached entry to report Found=false`)
	}

	e, err = c.Get(context.Background(), `x`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Found {
		t.Fatal(`expected second lookup to remain negative`)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf(`resolver called %d times, want 1`, n)
	}
}

// TestGenerationRollover is scenario S3.
func TestGenerationRollover(t *testing.T) {
	var counter atomic.Int64
	resolver := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		n := counter.Add(1) - 1
		out := make([]Pair[string, string], len(keys))
		for i, k := range keys {
			v := `ans-` + itoa(n)
			out[i] = Pair[string, string]{Key: k, Value: &v}
		}
		return out, nil
	}

	clock := clockwork.NewFakeClock()
	c, err := Open[string, string](
		WithBucketCount[string, string](3),
		WithGenerationPeriod[string, string](time.Second),
		WithClock[string, string](clock),
		WithResolver[string, string](resolver),
	)
	if err != nil {
		t.Fatalf(`Open failed: %v`, err)
	}
	defer c.Close()

	e, err := c.Get(context.Background(), `foo`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `ans-0` {
		t.Fatalf(`got value %q, want ans-0`, e.Value)
	}

	clock.BlockUntil(1)
	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		waitActorIdle(t, c)
	}

	e, err = c.Get(context.Background(), `foo`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `ans-1` {
		t.Fatalf(`got value %q after rollover, want ans-1`, e.Value)
	}
}

// TestBatchPartialHit is scenario S4.
func TestBatchPartialHit(t *testing.T) {
	var calledWith []string
	resolver := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		calledWith = append(calledWith, keys...)
		v := `2`
		return []Pair[string, string]{{Key: `b`, Value: &v}}, nil
	}
	c, _ := newStringCache(t, resolver)

	c.Insert([]Pair[string, string]{{Key: `a`, Value: ptrTo(`1`)}})
	waitActorIdle(t, c)

	result, err := c.GetMany(context.Background(), []string{`a`, `b`})
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if len(result) != 2 {
		t.Fatalf(`got %d results, want 2`, len(result))
	}
	if result[`a`].Value != `1` {
		t.Errorf(`got a=%q, want 1`, result[`a`].Value)
	}
	if result[`b`].Value != `2` {
		t.Errorf(`got b=%q, want 2`, result[`b`].Value)
	}
	if len(calledWith) != 1 || calledWith[0] != `b` {
		t.Errorf(`resolver called with %v, want [b]`, calledWith)
	}
}

// TestExplicitDelete is scenario S5.
func TestExplicitDelete(t *testing.T) {
	var calls atomic.Int64
	c, _ := newStringCache(t, constResolver(`v:`, &calls))

	c.Insert([]Pair[string, string]{{Key: `k`, Value: ptrTo(`v`)}})
	waitActorIdle(t, c)

	e, err := c.Get(context.Background(), `k`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `v` {
		t.Fatalf(`got value %q, want v`, e.Value)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf(`resolver called %d times, want 0`, n)
	}

	c.Delete(`k`)
	waitActorIdle(t, c)

	_, err = c.Get(context.Background(), `k`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf(`resolver called %d times after delete+get, want 1`, n)
	}
}

// TestResolverReplacement is scenario S6.
func TestResolverReplacement(t *testing.T) {
	v1 := `from-r1`
	r1 := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		return []Pair[string, string]{{Key: keys[0], Value: &v1}}, nil
	}
	v2 := `from-r2`
	r2 := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		return []Pair[string, string]{{Key: keys[0], Value: &v2}}, nil
	}

	c, _ := newStringCache(t, r1)

	e, err := c.Get(context.Background(), `a`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `from-r1` {
		t.Fatalf(`got value %q, want from-r1`, e.Value)
	}

	c.SetResolver(r2)
	waitActorIdle(t, c)
	if c.GetResolver() == nil {
		t.Fatal(`expected GetResolver to report the replacement resolver`)
	}

	e, err = c.Get(context.Background(), `b`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `from-r2` {
		t.Fatalf(`got value %q, want from-r2`, e.Value)
	}

	// "a" was resolved by r1 and survives until it ages out.
	e, err = c.Get(context.Background(), `a`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Value != `from-r1` {
		t.Fatalf(`got value %q, want from-r1 (cached, not re-resolved)`, e.Value)
	}
}

func TestClearTotality(t *testing.T) {
	var calls atomic.Int64
	c, _ := newStringCache(t, constResolver(`v:`, &calls))

	c.Insert([]Pair[string, string]{{Key: `a`, Value: ptrTo(`1`)}, {Key: `b`, Value: ptrTo(`2`)}})
	waitActorIdle(t, c)

	c.Clear()
	waitActorIdle(t, c)

	for _, snap := range c.InspectContents() {
		if len(snap.Entries) != 0 {
			t.Errorf(`expected bucket %d to be empty after Clear, got %d entries`, snap.ID, len(snap.Entries))
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	c, _ := newStringCache(t, func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		return nil, nil
	})

	c.Insert([]Pair[string, string]{{Key: `k`, Value: ptrTo(`v`)}})
	waitActorIdle(t, c)

	c.Delete(`k`)
	c.Delete(`k`)
	waitActorIdle(t, c)

	e, err := c.Get(context.Background(), `k`)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if e.Found {
		t.Fatal(`resolver returned nothing for k, so it should be absent rather than negatively cached`)
	}
}

func TestGetManyEquivalentToIndividualGets(t *testing.T) {
	resolver := func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		out := make([]Pair[string, string], len(keys))
		for i, k := range keys {
			v := `v:` + k
			out[i] = Pair[string, string]{Key: k, Value: &v}
		}
		return out, nil
	}
	c, _ := newStringCache(t, resolver)

	many, err := c.GetMany(context.Background(), []string{`a`, `b`, `c`})
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}

	for _, k := range []string{`a`, `b`, `c`} {
		single, err := c.Get(context.Background(), k)
		if err != nil {
			t.Fatalf(`unexpected error for key %q: %v`, k, err)
		}
		if many[k] != single {
			t.Errorf(`GetMany[%q] = %+v, Get(%q) = %+v, want equal`, k, many[k], k, single)
		}
	}
}

func TestGetWithoutResolverConfigured(t *testing.T) {
	c, err := Open[string, string](WithGenerationPeriod[string, string](time.Minute))
	if err != nil {
		t.Fatalf(`Open failed: %v`, err)
	}
	defer c.Close()

	_, err = c.Get(context.Background(), `a`)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf(`got err %v, want ErrInvalidConfig`, err)
	}
}

func TestResolverFailurePropagates(t *testing.T) {
	boom := errors.New(`boom`)
	c, _ := newStringCache(t, func(ctx context.Context, keys []string) ([]Pair[string, string], error) {
		return nil, boom
	})

	_, err := c.Get(context.Background(), `a`)
	if !errors.Is(err, ErrResolverFailed) {
		t.Fatalf(`got err %v, want ErrResolverFailed`, err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf(`got err %v, want it to wrap the original resolver error`, err)
	}
}

func TestInspectOrderStableSize(t *testing.T) {
	c, _ := newStringCache(t, constResolver(`v:`, new(atomic.Int64)))
	for i := 0; i < 10; i++ {
		if n := len(c.InspectOrder()); n != 3 {
			t.Fatalf(`got %d bucket ids, want 3`, n)
		}
		c.enqueue(rotateCmd[string, string]{})
		waitActorIdle(t, c)
	}
}

// --- helpers ---

func newStringCache(t *testing.T, resolver Resolver[string, string]) (*Cache[string, string], clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c, err := Open[string, string](
		WithBucketCount[string, string](3),
		WithGenerationPeriod[string, string](time.Minute),
		WithClock[string, string](clock),
		WithResolver[string, string](resolver),
	)
	if err != nil {
		t.Fatalf(`Open failed: %v`, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

// waitActorIdle blocks until the control actor has drained every command
// enqueued so far, by enqueueing a no-op and waiting for it to apply.
func waitActorIdle[K comparable, V any](t *testing.T, c *Cache[K, V]) {
	t.Helper()
	done := make(chan struct{})
	c.enqueue(syncCmd[K, V]{done: done})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(`control actor did not drain in time`)
	}
}

func ptrTo[V any](v V) *V { return &v }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
