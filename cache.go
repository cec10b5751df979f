// Package tiercache is a multi-tier caching subsystem: named handlers
// with tiered capability sets (local, extended local, complex, remote)
// behind one registry, plus fail-open call memoization and versioned
// bulk persistence.
package tiercache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/handler"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/internal/persist"
	"github.com/Borislavv/go-tier-cache/internal/registry"
	"github.com/Borislavv/go-tier-cache/internal/remote"
	"github.com/Borislavv/go-tier-cache/internal/telemetry"
	"github.com/Borislavv/go-tier-cache/model"
)

// Aliases so callers do not import internal packages.
type (
	Key         = model.Key
	CallRef     = keygen.CallRef
	CallContext = keygen.CallContext
	Stats       = handler.Stats
)

// Errors callers are expected to branch on.
var (
	ErrHandlerNotFound  = registry.ErrHandlerNotFound
	ErrDuplicateHandler = registry.ErrDuplicateHandler
	ErrNotPersistent    = handler.ErrNotPersistent

	// ErrNotRemote reports a remote-only operation against a handler of
	// another tier.
	ErrNotRemote = errors.New("handler is not remote")
)

// Cache is the process-wide cache facade: a registry of named handlers
// built from configuration, one per declared section.
type Cache struct {
	*registry.Registry
	telemetry.Logger
	logger *slog.Logger
	cls    context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	ctx, cancel := context.WithCancel(ctx)

	var store persist.Store
	if cfg.Persistence.Enabled() {
		store = persist.NewFileStore(ctx, cfg.Persistence)
	} else {
		store = persist.NewMemoryStore()
	}

	reg := registry.New(logger)
	clk := clock.New()
	for _, hc := range cfg.Handlers {
		h, err := buildHandler(ctx, hc, clk, store, logger)
		if err != nil {
			cancel()
			_ = reg.Close()
			return nil, err
		}
		if err = reg.Register(h, false); err != nil {
			cancel()
			_ = h.Close()
			_ = reg.Close()
			return nil, err
		}
	}

	telemeter := telemetry.New(ctx, cfg.Telemetry, logger, reg)
	return &Cache{Registry: reg, Logger: telemeter, logger: logger, cls: cancel}, nil
}

func buildHandler(
	ctx context.Context,
	hc *config.HandlerCfg,
	clk clock.Clock,
	store persist.Store,
	logger *slog.Logger,
) (handler.Handler, error) {
	switch hc.Tier {
	case config.TierLocal:
		return handler.NewLocal(hc), nil
	case config.TierExtendedLocal:
		return handler.NewExtendedLocal(hc), nil
	case config.TierComplex:
		return handler.NewComplex(hc, clk, store, logger), nil
	case config.TierRemote:
		backend, err := remote.Connect(ctx, hc.Remote, hc.Remote.MemoryLimitMB)
		if err != nil {
			return nil, fmt.Errorf("handler %q: %w", hc.Name, err)
		}
		return remote.New(hc, backend, logger), nil
	default:
		return nil, fmt.Errorf("handler %q: tier %q: %w", hc.Name, hc.Tier, config.ErrInvalidTier)
	}
}

// Increment atomically adjusts an integer value on a remote handler.
func (c *Cache) Increment(ctx context.Context, name string, key Key, delta int64) (int64, error) {
	r, err := c.remoteHandler(name)
	if err != nil {
		return 0, err
	}
	return r.Increment(ctx, key, delta)
}

// Decrement is the inverse of Increment.
func (c *Cache) Decrement(ctx context.Context, name string, key Key, delta int64) (int64, error) {
	r, err := c.remoteHandler(name)
	if err != nil {
		return 0, err
	}
	return r.Decrement(ctx, key, delta)
}

// AddIfAbsent stores a value on a remote handler only when the key is
// not present yet.
func (c *Cache) AddIfAbsent(ctx context.Context, name string, key Key, value any, ttl time.Duration) (bool, error) {
	r, err := c.remoteHandler(name)
	if err != nil {
		return false, err
	}
	return r.AddIfAbsent(ctx, key, value, ttl)
}

// Touch resets the TTL of an existing remote entry.
func (c *Cache) Touch(ctx context.Context, name string, key Key, ttl time.Duration) (bool, error) {
	r, err := c.remoteHandler(name)
	if err != nil {
		return false, err
	}
	return r.Touch(ctx, key, ttl)
}

func (c *Cache) remoteHandler(name string) (*remote.Remote, error) {
	h, err := c.Registry.Handler(name)
	if err != nil {
		return nil, err
	}
	r, isRemote := h.(*remote.Remote)
	if !isRemote {
		return nil, fmt.Errorf("%q: %w", name, ErrNotRemote)
	}
	return r, nil
}

func (c *Cache) Close() error {
	c.cls()
	_ = c.Logger.Close()
	return c.Registry.Close()
}
