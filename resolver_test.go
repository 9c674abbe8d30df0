package ringcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverFromMap(t *testing.T) {
	one := 1
	r := ResolverFromMap(func(ctx context.Context, keys []string) (map[string]*int, error) {
		return map[string]*int{
			`a`: &one,
			`b`: nil,
		}, nil
	})

	pairs, err := r(context.Background(), []string{`a`, `b`})
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	byKey := map[string]*int{}
	for _, p := range pairs {
		byKey[p.Key] = p.Value
	}
	require.NotNil(t, byKey[`a`])
	assert.Equal(t, 1, *byKey[`a`])
	assert.Nil(t, byKey[`b`])
}

func TestResolverRegistry(t *testing.T) {
	reg := NewResolverRegistry[string, int, string]()

	reg.Register(`users`, func(ctx context.Context, keys []string, extra string) ([]Pair[string, int], error) {
		out := make([]Pair[string, int], len(keys))
		for i, k := range keys {
			v := len(k) + len(extra)
			out[i] = Pair[string, int]{Key: k, Value: &v}
		}
		return out, nil
	})

	r := reg.Bind(`users`, `suffix`)
	pairs, err := r(context.Background(), []string{`ab`})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 2+len(`suffix`), *pairs[0].Value)
}

func TestResolverRegistryBindPanicsOnUnknownName(t *testing.T) {
	reg := NewResolverRegistry[string, int, struct{}]()
	assert.Panics(t, func() { reg.Bind(`nope`, struct{}{}) })
}
