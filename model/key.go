package model

import (
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"
)

// Key is a stable 128-bit identity for a cached value. The low 64 bits
// double as the fast map key; hi/lo guard against collisions.
type Key struct {
	v  uint64
	hi uint64
	lo uint64
}

var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

// NewKey hashes raw key material into a Key.
func NewKey(data []byte) Key {
	// acquire reusable hasher
	hasher := hasherPool.Get().(*xxh3.Hasher)
	hasher.Reset()

	_, _ = hasher.Write(data)
	u128 := hasher.Sum128()

	k := Key{
		v:  hasher.Sum64(),
		hi: u128.Hi,
		lo: u128.Lo,
	}

	// release hasher after use
	hasherPool.Put(hasher)

	return k
}

// NewKeyParts rebuilds a Key from its stored parts. Used when loading
// persisted snapshots.
func NewKeyParts(v, hi, lo uint64) Key {
	return Key{v: v, hi: hi, lo: lo}
}

func (k Key) Value() uint64 {
	return k.v
}

// Parts exposes the raw components for serialization.
func (k Key) Parts() (v, hi, lo uint64) {
	return k.v, k.hi, k.lo
}

func (k Key) IsTheSame(key Key) (same bool) {
	return k.v == key.v && k.hi == key.hi && k.lo == key.lo
}

func (k Key) IsZero() bool {
	return k.v == 0 && k.hi == 0 && k.lo == 0
}

// String renders the key in a wire-safe form for remote backends.
func (k Key) String() string {
	return fmt.Sprintf("%016x%016x%016x", k.v, k.hi, k.lo)
}
