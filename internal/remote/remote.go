package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/handler"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/model"
)

// Counter keys live in the backend next to the data so that every
// process sharing the handler contributes to the same stats.
const (
	hitCounterSuffix  = "__hit__"
	missCounterSuffix = "__miss__"
)

// Remote is the distributed tier: storage, TTL enforcement and
// hit/miss counters all live in the backend, so every process pointed
// at it shares one cache.
type Remote struct {
	cfg     *config.HandlerCfg
	gen     *keygen.Generator
	backend Backend
	logger  *slog.Logger

	mu          sync.Mutex
	lastCleared time.Time
}

func New(cfg *config.HandlerCfg, backend Backend, logger *slog.Logger) *Remote {
	return &Remote{
		cfg:     cfg,
		gen:     keygen.New(true, cfg.ConsiderUser),
		backend: backend,
		logger:  logger,
	}
}

func (r *Remote) Name() string      { return r.cfg.Name }
func (r *Remote) Tier() config.Tier { return config.TierRemote }

func (r *Remote) KeyFor(ref keygen.CallRef, cc keygen.CallContext) (model.Key, bool) {
	return r.gen.Generate(ref, cc)
}

func (r *Remote) backendKey(key model.Key) string {
	return r.cfg.Name + ":" + key.String()
}

func (r *Remote) counterKey(suffix string) string {
	return r.cfg.Name + ":" + suffix
}

// degrade maps a backend failure to a miss when the handler is
// configured to prefer availability over strictness.
func (r *Remote) degrade(op string, err error) error {
	if err == nil || !r.cfg.Remote.IgnoreErrors {
		return err
	}
	r.logger.Warn("remote backend error ignored",
		"handler", r.cfg.Name, "op", op, "error", err)
	return nil
}

func (r *Remote) bumpCounter(ctx context.Context, suffix string) {
	// best effort: stats must never fail a cache operation
	if _, err := r.backend.Incr(ctx, r.counterKey(suffix), 1); err != nil {
		r.logger.Warn("remote counter update failed",
			"handler", r.cfg.Name, "counter", suffix, "error", err)
	}
}

func (r *Remote) Get(ctx context.Context, key model.Key) (any, bool, error) {
	raw, found, err := r.backend.Get(ctx, r.backendKey(key))
	if err != nil {
		if degErr := r.degrade("get", err); degErr != nil {
			return nil, false, degErr
		}
		return nil, false, nil
	}
	if !found {
		r.bumpCounter(ctx, missCounterSuffix)
		return nil, false, nil
	}

	value, err := decode(raw)
	if err != nil {
		if degErr := r.degrade("decode", err); degErr != nil {
			return nil, false, degErr
		}
		return nil, false, nil
	}
	r.bumpCounter(ctx, hitCounterSuffix)
	return value, true, nil
}

func (r *Remote) Set(ctx context.Context, key model.Key, value any) error {
	return r.SetTTL(ctx, key, value, r.cfg.Expire)
}

func (r *Remote) SetTTL(ctx context.Context, key model.Key, value any, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("handler %q: ttl %s: %w", r.cfg.Name, ttl, config.ErrInvalidExpire)
	}
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("handler %q: %w", r.cfg.Name, err)
	}
	return r.degrade("set", r.backend.Set(ctx, r.backendKey(key), raw, ttl))
}

func (r *Remote) Pop(ctx context.Context, key model.Key) (any, bool, error) {
	value, found, err := r.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if err = r.degrade("pop", r.backend.Delete(ctx, r.backendKey(key))); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *Remote) Remove(ctx context.Context, key model.Key) error {
	return r.degrade("remove", r.backend.Delete(ctx, r.backendKey(key)))
}

func (r *Remote) Contains(ctx context.Context, key model.Key) (bool, error) {
	_, found, err := r.backend.Get(ctx, r.backendKey(key))
	if err != nil {
		if degErr := r.degrade("contains", err); degErr != nil {
			return false, degErr
		}
		return false, nil
	}
	return found, nil
}

func (r *Remote) dataKeys(ctx context.Context) ([]string, error) {
	keys, err := r.backend.Keys(ctx, r.cfg.Name+":*")
	if err != nil {
		return nil, err
	}
	hitKey, missKey := r.counterKey(hitCounterSuffix), r.counterKey(missCounterSuffix)
	out := keys[:0]
	for _, k := range keys {
		if k == hitKey || k == missKey {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (r *Remote) Count(ctx context.Context) (int, error) {
	keys, err := r.dataKeys(ctx)
	if err != nil {
		if degErr := r.degrade("count", err); degErr != nil {
			return 0, degErr
		}
		return 0, nil
	}
	return len(keys), nil
}

// Clear removes this handler's keys and resets its counters. Other
// handlers sharing the backend are untouched.
func (r *Remote) Clear(ctx context.Context) error {
	keys, err := r.backend.Keys(ctx, r.cfg.Name+":*")
	if err != nil {
		return r.degrade("clear", err)
	}
	if err = r.degrade("clear", r.backend.Delete(ctx, keys...)); err != nil {
		return err
	}
	r.mu.Lock()
	r.lastCleared = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *Remote) Stats(ctx context.Context) (handler.Stats, error) {
	r.mu.Lock()
	lastCleared := r.lastCleared
	r.mu.Unlock()

	// entry capacity lives in the backend; Limit never applies here
	stats := handler.Stats{
		Name:         r.cfg.Name,
		Tier:         config.TierRemote,
		Limit:        config.NoLimit,
		LastCleared:  lastCleared,
		Expire:       r.cfg.Expire,
		ConsiderUser: r.cfg.ConsiderUser,
	}

	count, err := r.Count(ctx)
	if err != nil {
		return handler.Stats{}, err
	}
	stats.Count = count

	stats.Hits = r.readCounter(ctx, hitCounterSuffix)
	stats.Misses = r.readCounter(ctx, missCounterSuffix)
	stats.HitRatio = handler.RatioOf(stats.Hits, stats.Misses)
	return stats, nil
}

func (r *Remote) readCounter(ctx context.Context, suffix string) uint64 {
	raw, found, err := r.backend.Get(ctx, r.counterKey(suffix))
	if err != nil || !found {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Increment adjusts an integer value atomically in the backend,
// creating it at zero when absent, and returns the new value.
func (r *Remote) Increment(ctx context.Context, key model.Key, delta int64) (int64, error) {
	n, err := r.backend.Incr(ctx, r.backendKey(key), delta)
	if err != nil {
		if degErr := r.degrade("increment", err); degErr != nil {
			return 0, degErr
		}
		return 0, nil
	}
	return n, nil
}

func (r *Remote) Decrement(ctx context.Context, key model.Key, delta int64) (int64, error) {
	n, err := r.backend.Decr(ctx, r.backendKey(key), delta)
	if err != nil {
		if degErr := r.degrade("decrement", err); degErr != nil {
			return 0, degErr
		}
		return 0, nil
	}
	return n, nil
}

// AddIfAbsent stores the value only when the key is not present yet and
// reports whether it was stored.
func (r *Remote) AddIfAbsent(ctx context.Context, key model.Key, value any, ttl time.Duration) (bool, error) {
	raw, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("handler %q: %w", r.cfg.Name, err)
	}
	added, err := r.backend.AddIfAbsent(ctx, r.backendKey(key), raw, ttl)
	if err != nil {
		if degErr := r.degrade("add", err); degErr != nil {
			return false, degErr
		}
		return false, nil
	}
	return added, nil
}

// Touch resets the TTL of an existing entry; false when absent.
func (r *Remote) Touch(ctx context.Context, key model.Key, ttl time.Duration) (bool, error) {
	ok, err := r.backend.Touch(ctx, r.backendKey(key), ttl)
	if err != nil {
		if degErr := r.degrade("touch", err); degErr != nil {
			return false, degErr
		}
		return false, nil
	}
	return ok, nil
}

func (r *Remote) Close() error {
	return r.backend.Close()
}
