package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeyStable(t *testing.T) {
	a := NewKey([]byte("users.manager.get_user|42"))
	b := NewKey([]byte("users.manager.get_user|42"))
	require.True(t, a.IsTheSame(b))
	require.Equal(t, a, b)
}

func TestNewKeyDistinct(t *testing.T) {
	a := NewKey([]byte("users.manager.get_user|42"))
	b := NewKey([]byte("users.manager.get_user|43"))
	require.False(t, a.IsTheSame(b))
	require.NotEqual(t, a.String(), b.String())
}

func TestKeyPartsRoundTrip(t *testing.T) {
	a := NewKey([]byte("some key material"))
	v, hi, lo := a.Parts()
	require.Equal(t, a, NewKeyParts(v, hi, lo))
}

func TestKeyIsZero(t *testing.T) {
	var zero Key
	require.True(t, zero.IsZero())
	require.False(t, NewKey([]byte("x")).IsZero())
}
