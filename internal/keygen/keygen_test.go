package keygen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type userManager struct{}

func TestGenerateStable(t *testing.T) {
	g := New(true, false)

	ref := CallRef{
		Owner:    &userManager{},
		Function: "GetUser",
		Args:     []any{42, "active"},
		Kwargs:   map[string]any{"page": 1, "size": 25},
	}

	a, ok := g.Generate(ref, CallContext{})
	require.True(t, ok)
	b, ok := g.Generate(ref, CallContext{})
	require.True(t, ok)
	require.Equal(t, a, b)
}

func TestGenerateArgsOrderSensitive(t *testing.T) {
	g := New(true, false)

	a, ok := g.Generate(CallRef{Function: "f", Args: []any{1, 2}}, CallContext{})
	require.True(t, ok)
	b, ok := g.Generate(CallRef{Function: "f", Args: []any{2, 1}}, CallContext{})
	require.True(t, ok)
	require.NotEqual(t, a, b)
}

func TestGenerateKwargsOrderInsensitive(t *testing.T) {
	g := New(true, false)

	a, ok := g.Generate(CallRef{Function: "f", Kwargs: map[string]any{"x": 1, "y": 2}}, CallContext{})
	require.True(t, ok)
	b, ok := g.Generate(CallRef{Function: "f", Kwargs: map[string]any{"y": 2, "x": 1}}, CallContext{})
	require.True(t, ok)
	require.Equal(t, a, b)
}

func TestGenerateOwnerTypeMatters(t *testing.T) {
	g := New(true, false)

	a, ok := g.Generate(CallRef{Owner: &userManager{}, Function: "Load"}, CallContext{})
	require.True(t, ok)
	b, ok := g.Generate(CallRef{Function: "Load"}, CallContext{})
	require.True(t, ok)
	require.NotEqual(t, a, b)

	// value and pointer receivers resolve to the same owner type
	c, ok := g.Generate(CallRef{Owner: userManager{}, Function: "Load"}, CallContext{})
	require.True(t, ok)
	require.Equal(t, a, c)
}

func TestGenerateConsiderUser(t *testing.T) {
	withUser := New(true, true)
	withoutUser := New(true, false)

	ref := CallRef{Function: "f", Args: []any{1}}

	alice, ok := withUser.Generate(ref, CallContext{User: "alice"})
	require.True(t, ok)
	bob, ok := withUser.Generate(ref, CallContext{User: "bob"})
	require.True(t, ok)
	require.NotEqual(t, alice, bob)

	// nil user is a distinct stable component, not an omission
	anon, ok := withUser.Generate(ref, CallContext{})
	require.True(t, ok)
	ignored, ok := withoutUser.Generate(ref, CallContext{})
	require.True(t, ok)
	require.NotEqual(t, anon, ignored)
}

func TestGenerateScopeKey(t *testing.T) {
	g := New(true, false)

	a, ok := g.Generate(CallRef{Function: "f"}, CallContext{ScopeKey: "tenant-1"})
	require.True(t, ok)
	b, ok := g.Generate(CallRef{Function: "f"}, CallContext{ScopeKey: "tenant-2"})
	require.True(t, ok)
	require.NotEqual(t, a, b)
}

func TestGenerateFailOpen(t *testing.T) {
	g := New(true, false)

	_, ok := g.Generate(CallRef{Function: "f", Args: []any{make(chan int)}}, CallContext{})
	require.False(t, ok)

	_, ok = g.Generate(CallRef{Function: "f", Kwargs: map[string]any{"fn": func() {}}}, CallContext{})
	require.False(t, ok)

	_, ok = g.Generate(CallRef{Function: "f"}, CallContext{User: make(chan int)})
	require.True(t, ok) // user not considered, chan never touched

	gu := New(true, true)
	_, ok = gu.Generate(CallRef{Function: "f"}, CallContext{User: make(chan int)})
	require.False(t, ok)
}

func TestGenerateLocalIgnoresInputs(t *testing.T) {
	g := New(false, false)

	a, ok := g.Generate(CallRef{Function: "f", Args: []any{1}}, CallContext{})
	require.True(t, ok)
	b, ok := g.Generate(CallRef{Function: "f", Args: []any{2}}, CallContext{})
	require.True(t, ok)
	require.Equal(t, a, b)

	// even unserializable args are fine when the tier ignores inputs
	c, ok := g.Generate(CallRef{Function: "f", Args: []any{make(chan int)}}, CallContext{})
	require.True(t, ok)
	require.Equal(t, a, c)
}
