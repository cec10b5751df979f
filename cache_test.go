package tiercache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Borislavv/go-tier-cache/config"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := &config.Config{
		Handlers: []*config.HandlerCfg{
			{Name: "permanent", Tier: config.TierLocal},
			{Name: "contextual", Tier: config.TierExtendedLocal},
			{Name: "bounded", Tier: config.TierComplex, Expire: time.Hour},
		},
	}
	cfg.AdjustConfig()
	require.NoError(t, cfg.Validate())

	c, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRegistersConfiguredHandlers(t *testing.T) {
	c := newTestCache(t)
	require.Equal(t, []string{"bounded", "contextual", "permanent"}, c.Names())
	require.True(t, c.Exists("bounded"))
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	cfg := &config.Config{
		Handlers: []*config.HandlerCfg{
			{Name: "dup", Tier: config.TierLocal},
			{Name: "dup", Tier: config.TierLocal},
		},
	}
	cfg.AdjustConfig()

	_, err := New(context.Background(), cfg, slog.Default())
	require.ErrorIs(t, err, ErrDuplicateHandler)
}

func TestMemoizeCachesResult(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	square := func(n int) (int, error) {
		ref := CallRef{Function: "mathsvc.Square", Args: []any{n}}
		return Memoize(ctx, c, "bounded", ref, CallContext{}, func(context.Context) (int, error) {
			calls++
			return n * n, nil
		})
	}

	got, err := square(5)
	require.NoError(t, err)
	require.Equal(t, 25, got)

	got, err = square(5)
	require.NoError(t, err)
	require.Equal(t, 25, got)
	require.Equal(t, 1, calls, "second call must be served from cache")

	got, err = square(6)
	require.NoError(t, err)
	require.Equal(t, 36, got)
	require.Equal(t, 2, calls, "different arguments mean a different key")
}

func TestMemoizeErrorPropagatesUncached(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ref := CallRef{Function: "usersvc.Load", Args: []any{7}}
	boom := errors.New("upstream down")

	calls := 0
	load := func(fail bool) (string, error) {
		return Memoize(ctx, c, "bounded", ref, CallContext{}, func(context.Context) (string, error) {
			calls++
			if fail {
				return "", boom
			}
			return "alice", nil
		})
	}

	_, err := load(true)
	require.ErrorIs(t, err, boom)

	// the failure was not cached: the next call runs again and succeeds
	got, err := load(false)
	require.NoError(t, err)
	require.Equal(t, "alice", got)
	require.Equal(t, 2, calls)
}

func TestMemoizeFailsOpenOnUngenerableKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// a channel argument cannot be serialized into a key
	ref := CallRef{Function: "streamsvc.Read", Args: []any{make(chan int)}}

	calls := 0
	for i := 0; i < 2; i++ {
		got, err := Memoize(ctx, c, "bounded", ref, CallContext{}, func(context.Context) (string, error) {
			calls++
			return "fresh", nil
		})
		require.NoError(t, err)
		require.Equal(t, "fresh", got)
	}
	require.Equal(t, 2, calls, "uncacheable calls run every time")
}

func TestMemoizeUnknownHandlerSurfaces(t *testing.T) {
	c := newTestCache(t)

	_, err := Memoize(context.Background(), c, "nope", CallRef{Function: "f"}, CallContext{},
		func(context.Context) (int, error) { return 1, nil })
	require.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestMemoizeConsidersUserOnContextualTier(t *testing.T) {
	cfg := &config.Config{
		Handlers: []*config.HandlerCfg{
			{Name: "per_user", Tier: config.TierComplex, ConsiderUser: true},
		},
	}
	cfg.AdjustConfig()
	c, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	ref := CallRef{Function: "profilesvc.Load"}
	calls := 0
	load := func(user string) (string, error) {
		return Memoize(ctx, c, "per_user", ref, CallContext{User: user}, func(context.Context) (string, error) {
			calls++
			return "profile of " + user, nil
		})
	}

	got, err := load("alice")
	require.NoError(t, err)
	require.Equal(t, "profile of alice", got)

	got, err = load("bob")
	require.NoError(t, err)
	require.Equal(t, "profile of bob", got)
	require.Equal(t, 2, calls, "distinct users must not share entries")

	_, err = load("alice")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestGetDecodesComplexTierCopies(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type profile struct {
		Name string
		Age  int
	}

	key, ok, err := c.GenerateKey("bounded", CallRef{Function: "profilesvc.Load"}, CallContext{})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "bounded", key, profile{Name: "alice", Age: 30}))

	got, found, err := Get[profile](ctx, c, "bounded", key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, profile{Name: "alice", Age: 30}, got)
}

func TestGetReturnsLocalValuesByReference(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key, ok, err := c.GenerateKey("permanent", CallRef{Function: "cfgsvc.Load"}, CallContext{})
	require.NoError(t, err)
	require.True(t, ok)

	shared := map[string]int{"n": 1}
	require.NoError(t, c.Set(ctx, "permanent", key, shared))

	got, found, err := Get[map[string]int](ctx, c, "permanent", key)
	require.NoError(t, err)
	require.True(t, found)

	got["n"] = 2
	require.Equal(t, 2, shared["n"])
}

func TestRemoteOperationsRequireRemoteTier(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key, ok, err := c.GenerateKey("bounded", CallRef{Function: "countersvc.Bump"}, CallContext{})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Increment(ctx, "bounded", key, 1)
	require.ErrorIs(t, err, ErrNotRemote)
	_, err = c.Touch(ctx, "nope", key, time.Minute)
	require.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestTryGetTrySetThroughFacade(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ref := CallRef{Function: "pricesvc.Quote", Args: []any{"EUR"}}
	cc := CallContext{}

	require.Equal(t, 0.0, c.TryGet(ctx, "bounded", ref, cc, 0.0))
	c.TrySet(ctx, "bounded", ref, cc, 1.09)

	got := c.TryGet(ctx, "bounded", ref, cc, 0.0)
	require.IsType(t, []byte(nil), got, "raw read hands back the stored copy")

	typed, found, err := Get[float64](ctx, c, "bounded", mustKey(t, c, "bounded", ref, cc))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.09, typed)
}

func mustKey(t *testing.T, c *Cache, name string, ref CallRef, cc CallContext) Key {
	t.Helper()
	key, ok, err := c.GenerateKey(name, ref, cc)
	require.NoError(t, err)
	require.True(t, ok)
	return key
}
