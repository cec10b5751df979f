package handler

import (
	"context"
	"sync"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/model"
)

// Local is the permanent in-process tier: unbounded, no TTL, values
// stored by reference. The plain local tier keys only on the callable
// identity; the extended flavor additionally folds call arguments, the
// current user and the scope key into keys.
type Local struct {
	name string
	tier config.Tier
	gen  *keygen.Generator

	mu          sync.RWMutex
	items       map[model.Key]any
	lastCleared time.Time
}

func NewLocal(cfg *config.HandlerCfg) *Local {
	return &Local{
		name:  cfg.Name,
		tier:  config.TierLocal,
		gen:   keygen.New(false, false),
		items: make(map[model.Key]any),
	}
}

func NewExtendedLocal(cfg *config.HandlerCfg) *Local {
	return &Local{
		name:  cfg.Name,
		tier:  config.TierExtendedLocal,
		gen:   keygen.New(true, cfg.ConsiderUser),
		items: make(map[model.Key]any),
	}
}

func (l *Local) Name() string      { return l.name }
func (l *Local) Tier() config.Tier { return l.tier }

func (l *Local) KeyFor(ref keygen.CallRef, cc keygen.CallContext) (model.Key, bool) {
	return l.gen.Generate(ref, cc)
}

func (l *Local) Get(_ context.Context, key model.Key) (any, bool, error) {
	l.mu.RLock()
	value, found := l.items[key]
	l.mu.RUnlock()
	return value, found, nil
}

func (l *Local) Set(_ context.Context, key model.Key, value any) error {
	l.mu.Lock()
	l.items[key] = value
	l.mu.Unlock()
	return nil
}

// SetTTL stores like Set; the local tier has no expiry, so the ttl is
// ignored.
func (l *Local) SetTTL(ctx context.Context, key model.Key, value any, _ time.Duration) error {
	return l.Set(ctx, key, value)
}

func (l *Local) Pop(_ context.Context, key model.Key) (any, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, found := l.items[key]
	if found {
		delete(l.items, key)
	}
	return value, found, nil
}

func (l *Local) Remove(_ context.Context, key model.Key) error {
	l.mu.Lock()
	delete(l.items, key)
	l.mu.Unlock()
	return nil
}

func (l *Local) Contains(_ context.Context, key model.Key) (bool, error) {
	l.mu.RLock()
	_, found := l.items[key]
	l.mu.RUnlock()
	return found, nil
}

func (l *Local) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items), nil
}

func (l *Local) Clear(_ context.Context) error {
	l.mu.Lock()
	l.items = make(map[model.Key]any)
	l.lastCleared = time.Now()
	l.mu.Unlock()
	return nil
}

func (l *Local) Stats(_ context.Context) (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Name:         l.name,
		Tier:         l.tier,
		Count:        len(l.items),
		Limit:        config.NoLimit,
		HitRatio:     RatioOf(0, 0),
		LastCleared:  l.lastCleared,
		ConsiderUser: l.gen.ConsiderUser(),
	}, nil
}

func (l *Local) Close() error { return nil }
