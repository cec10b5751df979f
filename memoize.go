package tiercache

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Get reads a typed value through the named handler. A handler that
// stores independent copies hands back raw bytes; this decodes them
// into T. Handlers that store by reference return the value itself,
// which must then be assignable to T.
func Get[T any](ctx context.Context, c *Cache, name string, key Key) (T, bool, error) {
	var zero T

	raw, found, err := c.Registry.Get(ctx, name, key)
	if err != nil || !found {
		return zero, false, err
	}
	value, err := decodeAs[T](raw)
	if err != nil {
		return zero, false, fmt.Errorf("handler %q: %w", name, err)
	}
	return value, true, nil
}

// Memoize runs invoke through the named handler's cache: a hit skips
// the call, a miss runs it and stores the result. The wrapper is
// fail-open everywhere except the call itself — an ungenerable key or
// a failing cache read falls through to invoke, and an invoke error
// propagates uncached. Only an unknown handler name is surfaced, since
// that is a wiring bug rather than a runtime condition.
func Memoize[T any](
	ctx context.Context,
	c *Cache,
	name string,
	ref CallRef,
	cc CallContext,
	invoke func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	h, err := c.Registry.Handler(name)
	if err != nil {
		return zero, err
	}

	key, ok := h.KeyFor(ref, cc)
	if !ok {
		return invoke(ctx)
	}

	raw, found, err := h.Get(ctx, key)
	if err != nil {
		c.logger.Warn("memoize read failed", "name", name, "error", err)
	} else if found {
		value, decErr := decodeAs[T](raw)
		if decErr == nil {
			return value, nil
		}
		c.logger.Warn("memoize decode failed", "name", name, "error", decErr)
	}

	value, err := invoke(ctx)
	if err != nil {
		return zero, err
	}

	if err = h.Set(ctx, key, value); err != nil {
		c.logger.Warn("memoize store failed", "name", name, "error", err)
	}
	return value, nil
}

// decodeAs converts a stored value to T: a direct type assertion when
// the handler stored the value itself, a msgpack decode when it stored
// an encoded copy.
func decodeAs[T any](raw any) (T, error) {
	var zero T

	if value, isT := raw.(T); isT {
		return value, nil
	}
	payload, isBytes := raw.([]byte)
	if !isBytes {
		return zero, fmt.Errorf("cached value is %T, want %T", raw, zero)
	}
	var value T
	if err := msgpack.Unmarshal(payload, &value); err != nil {
		return zero, fmt.Errorf("decode cached value: %w", err)
	}
	return value, nil
}
