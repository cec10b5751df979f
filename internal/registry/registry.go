// Package registry owns the process-wide set of named cache handlers
// and routes every cache operation by handler name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Borislavv/go-tier-cache/internal/handler"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/model"
)

var (
	ErrHandlerNotFound  = errors.New("cache handler not found")
	ErrDuplicateHandler = errors.New("cache handler already registered")
)

// Registry is the single routing point in front of all handlers.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]handler.Handler
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[string]handler.Handler),
	}
}

// Register adds a handler under its name. A duplicate name is an error
// unless replace is set, in which case the previous handler is swapped
// out and closed.
func (r *Registry) Register(h handler.Handler, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, exists := r.handlers[h.Name()]
	if exists && !replace {
		return fmt.Errorf("%q: %w", h.Name(), ErrDuplicateHandler)
	}
	r.handlers[h.Name()] = h

	if exists {
		r.logger.Warn("cache handler replaced", "name", h.Name(), "tier", h.Tier())
		if err := previous.Close(); err != nil {
			r.logger.Warn("closing replaced handler failed", "name", h.Name(), "error", err)
		}
	}
	return nil
}

// Handler resolves a handler by name.
func (r *Registry) Handler(name string) (handler.Handler, error) {
	r.mu.RLock()
	h, found := r.handlers[name]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%q: %w", name, ErrHandlerNotFound)
	}
	return h, nil
}

// Names lists registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	_, found := r.handlers[name]
	r.mu.RUnlock()
	return found
}

func (r *Registry) Get(ctx context.Context, name string, key model.Key) (any, bool, error) {
	h, err := r.Handler(name)
	if err != nil {
		return nil, false, err
	}
	return h.Get(ctx, key)
}

func (r *Registry) Set(ctx context.Context, name string, key model.Key, value any) error {
	h, err := r.Handler(name)
	if err != nil {
		return err
	}
	return h.Set(ctx, key, value)
}

func (r *Registry) SetTTL(ctx context.Context, name string, key model.Key, value any, ttl time.Duration) error {
	h, err := r.Handler(name)
	if err != nil {
		return err
	}
	return h.SetTTL(ctx, key, value, ttl)
}

func (r *Registry) Pop(ctx context.Context, name string, key model.Key) (any, bool, error) {
	h, err := r.Handler(name)
	if err != nil {
		return nil, false, err
	}
	return h.Pop(ctx, key)
}

func (r *Registry) Remove(ctx context.Context, name string, key model.Key) error {
	h, err := r.Handler(name)
	if err != nil {
		return err
	}
	return h.Remove(ctx, key)
}

func (r *Registry) Contains(ctx context.Context, name string, key model.Key) (bool, error) {
	h, err := r.Handler(name)
	if err != nil {
		return false, err
	}
	return h.Contains(ctx, key)
}

func (r *Registry) Count(ctx context.Context, name string) (int, error) {
	h, err := r.Handler(name)
	if err != nil {
		return 0, err
	}
	return h.Count(ctx)
}

func (r *Registry) Clear(ctx context.Context, name string) error {
	h, err := r.Handler(name)
	if err != nil {
		return err
	}
	return h.Clear(ctx)
}

// GenerateKey builds a key under the named handler's key policy.
func (r *Registry) GenerateKey(name string, ref keygen.CallRef, cc keygen.CallContext) (model.Key, bool, error) {
	h, err := r.Handler(name)
	if err != nil {
		return model.Key{}, false, err
	}
	key, ok := h.KeyFor(ref, cc)
	return key, ok, nil
}

// TryGet is the fail-open read: an unknown handler, an ungenerable key,
// a miss or a handler failure all yield the default. The cache is never
// the reason a call fails.
func (r *Registry) TryGet(ctx context.Context, name string, ref keygen.CallRef, cc keygen.CallContext, def any) any {
	h, err := r.Handler(name)
	if err != nil {
		r.logger.Debug("try-get skipped", "name", name, "error", err)
		return def
	}
	key, ok := h.KeyFor(ref, cc)
	if !ok {
		return def
	}
	value, found, err := h.Get(ctx, key)
	if err != nil {
		r.logger.Warn("try-get failed", "name", name, "error", err)
		return def
	}
	if !found {
		return def
	}
	return value
}

// TrySet is the fail-open write counterpart of TryGet.
func (r *Registry) TrySet(ctx context.Context, name string, ref keygen.CallRef, cc keygen.CallContext, value any) {
	h, err := r.Handler(name)
	if err != nil {
		r.logger.Debug("try-set skipped", "name", name, "error", err)
		return
	}
	key, ok := h.KeyFor(ref, cc)
	if !ok {
		return
	}
	if err = h.Set(ctx, key, value); err != nil {
		r.logger.Warn("try-set failed", "name", name, "error", err)
	}
}

func (r *Registry) Stats(ctx context.Context, name string) (handler.Stats, error) {
	h, err := r.Handler(name)
	if err != nil {
		return handler.Stats{}, err
	}
	return h.Stats(ctx)
}

// AllStats snapshots every handler, ordered by name.
func (r *Registry) AllStats(ctx context.Context) ([]handler.Stats, error) {
	var (
		out  []handler.Stats
		errs []error
	)
	for _, name := range r.Names() {
		stats, err := r.Stats(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, stats)
	}
	return out, errors.Join(errs...)
}

// persistable resolves a handler and requires the persistence
// capability; a non-persistent handler is an error, never a no-op.
func (r *Registry) persistable(name string) (handler.Persistable, error) {
	h, err := r.Handler(name)
	if err != nil {
		return nil, err
	}
	p, ok := h.(handler.Persistable)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, handler.ErrNotPersistent)
	}
	return p, nil
}

func (r *Registry) Persist(ctx context.Context, name, version string) error {
	p, err := r.persistable(name)
	if err != nil {
		return err
	}
	return p.Persist(ctx, version)
}

func (r *Registry) Load(ctx context.Context, name, version string) error {
	p, err := r.persistable(name)
	if err != nil {
		return err
	}
	return p.Load(ctx, version)
}

// PersistAll snapshots every persistent handler, skipping the others.
// One failing handler does not stop the rest.
func (r *Registry) PersistAll(ctx context.Context, version string) error {
	var errs []error
	for _, name := range r.Names() {
		err := r.Persist(ctx, name, version)
		if err == nil || errors.Is(err, handler.ErrNotPersistent) {
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadAll restores every persistent handler, skipping the others.
func (r *Registry) LoadAll(ctx context.Context, version string) error {
	var errs []error
	for _, name := range r.Names() {
		err := r.Load(ctx, name, version)
		if err == nil || errors.Is(err, handler.ErrNotPersistent) {
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes every handler and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, h := range r.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	r.handlers = make(map[string]handler.Handler)
	return errors.Join(errs...)
}
