// Package keygen builds stable cache keys from callable identities and
// their inputs. Generation is fail-open: inputs that cannot be
// serialized yield no key instead of an error, so the cache is never
// the reason a call fails.
package keygen

import (
	"bytes"
	"reflect"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Borislavv/go-tier-cache/model"
)

// CallRef identifies one invocation of a callable.
type CallRef struct {
	// Owner is the receiver instance (or any value of the owning type)
	// for methods; nil for free functions.
	Owner any

	// Function is the callable name. For free functions it should be
	// fully qualified.
	Function string

	// Args are positional arguments, hashed in order.
	Args []any

	// Kwargs are named arguments, hashed by sorted name so that two
	// calls differing only in map iteration order share a key.
	Kwargs map[string]any
}

// CallContext carries request-scoped key components.
type CallContext struct {
	// User is the current caller identity. A nil user is itself a
	// distinct, stable key component; it is never silently omitted.
	User any

	// ScopeKey partitions keys further, e.g. per component or tenant.
	ScopeKey string
}

// Tag bytes separate key components so adjacent values cannot run into
// each other and "no user" stays distinct from "user=nil argument".
const (
	tagOwner byte = iota + 1
	tagFunction
	tagArgs
	tagKwargs
	tagUserAbsent
	tagUserPresent
	tagScope
)

// Generator reduces call identities to model.Key values.
type Generator struct {
	// includeContext folds arguments, user and scope into the key
	// (extended/complex/remote tiers). When false only the owner type
	// and callable name participate (local tier).
	includeContext bool

	// considerUser folds CallContext.User into generated keys.
	considerUser bool
}

func New(includeContext, considerUser bool) *Generator {
	return &Generator{includeContext: includeContext, considerUser: considerUser}
}

func (g *Generator) ConsiderUser() bool { return g.considerUser }

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// Generate produces a key for the given call. ok=false means some
// component could not be serialized and caching must be skipped.
func (g *Generator) Generate(ref CallRef, cc CallContext) (key model.Key, ok bool) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	// reflect-driven encoding can panic on exotic values
	defer func() {
		if r := recover(); r != nil {
			key, ok = model.Key{}, false
		}
	}()

	enc := msgpack.NewEncoder(buf)

	buf.WriteByte(tagOwner)
	if err := enc.EncodeString(ownerTypeName(ref.Owner)); err != nil {
		return model.Key{}, false
	}

	buf.WriteByte(tagFunction)
	if err := enc.EncodeString(ref.Function); err != nil {
		return model.Key{}, false
	}

	if !g.includeContext {
		return model.NewKey(buf.Bytes()), true
	}

	buf.WriteByte(tagArgs)
	for _, arg := range ref.Args {
		if err := enc.Encode(arg); err != nil {
			return model.Key{}, false
		}
	}

	buf.WriteByte(tagKwargs)
	names := make([]string, 0, len(ref.Kwargs))
	for name := range ref.Kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := enc.EncodeString(name); err != nil {
			return model.Key{}, false
		}
		if err := enc.Encode(ref.Kwargs[name]); err != nil {
			return model.Key{}, false
		}
	}

	if g.considerUser {
		buf.WriteByte(tagUserPresent)
		if err := enc.Encode(cc.User); err != nil {
			return model.Key{}, false
		}
	} else {
		buf.WriteByte(tagUserAbsent)
	}

	buf.WriteByte(tagScope)
	if err := enc.EncodeString(cc.ScopeKey); err != nil {
		return model.Key{}, false
	}

	return model.NewKey(buf.Bytes()), true
}

func ownerTypeName(owner any) string {
	if owner == nil {
		return ""
	}
	t := reflect.TypeOf(owner)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
