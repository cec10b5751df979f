package handler

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/internal/persist"
	"github.com/Borislavv/go-tier-cache/model"
)

// entry is one stored value with its lifetime bookkeeping. The value is
// kept as a msgpack payload so callers always receive an independent
// copy; mutating a returned value can never corrupt the cached one.
type entry struct {
	key        model.Key
	value      []byte
	ttl        time.Duration
	insertedAt time.Time
	expiresAt  time.Time
	lastHitAt  time.Time
	elem       *list.Element
}

// Complex is the full-featured in-process tier: TTL with lazy expiry,
// bounded eviction in insertion order, hit/miss stats and versioned
// persistence.
type Complex struct {
	cfg    *config.HandlerCfg
	gen    *keygen.Generator
	clk    clock.Clock
	store  persist.Store
	logger *slog.Logger

	mu          sync.Mutex
	items       map[model.Key]*entry
	order       *list.List
	hits        uint64
	misses      uint64
	lastCleared time.Time
}

func NewComplex(cfg *config.HandlerCfg, clk clock.Clock, store persist.Store, logger *slog.Logger) *Complex {
	return &Complex{
		cfg:    cfg,
		gen:    keygen.New(true, cfg.ConsiderUser),
		clk:    clk,
		store:  store,
		logger: logger,
		items:  make(map[model.Key]*entry),
		order:  list.New(),
	}
}

func (c *Complex) Name() string      { return c.cfg.Name }
func (c *Complex) Tier() config.Tier { return config.TierComplex }

func (c *Complex) KeyFor(ref keygen.CallRef, cc keygen.CallContext) (model.Key, bool) {
	return c.gen.Generate(ref, cc)
}

func (c *Complex) Get(_ context.Context, key model.Key) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		c.misses++
		return nil, false, nil
	}
	now := c.clk.Now()
	if c.expiredAt(e, now) {
		c.removeEntry(e)
		c.misses++
		return nil, false, nil
	}

	e.lastHitAt = now
	if c.cfg.Refreshable && e.ttl > 0 {
		e.expiresAt = e.lastHitAt.Add(e.ttl)
	}
	c.touchOrder(e)
	c.hits++
	return e.value, true, nil
}

func (c *Complex) Set(ctx context.Context, key model.Key, value any) error {
	return c.SetTTL(ctx, key, value, c.cfg.Expire)
}

func (c *Complex) SetTTL(_ context.Context, key model.Key, value any, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("handler %q: ttl %s: %w", c.cfg.Name, ttl, config.ErrInvalidExpire)
	}
	payload, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("handler %q: encode value: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if e, exists := c.items[key]; exists {
		e.value = payload
		e.ttl = ttl
		e.insertedAt = now
		e.expiresAt = expiry(now, ttl)
		c.order.MoveToBack(e.elem)
		return nil
	}

	if full, n := c.isFull(); full {
		c.evict(n)
	}

	e := &entry{key: key, value: payload, ttl: ttl, insertedAt: now, expiresAt: expiry(now, ttl)}
	e.elem = c.order.PushBack(e)
	c.items[key] = e
	return nil
}

func (c *Complex) Pop(_ context.Context, key model.Key) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		return nil, false, nil
	}
	c.removeEntry(e)
	if c.expiredAt(e, c.clk.Now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Complex) Remove(_ context.Context, key model.Key) error {
	c.mu.Lock()
	if e, found := c.items[key]; found {
		c.removeEntry(e)
	}
	c.mu.Unlock()
	return nil
}

func (c *Complex) Contains(_ context.Context, key model.Key) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		return false, nil
	}
	if c.expiredAt(e, c.clk.Now()) {
		c.removeEntry(e)
		return false, nil
	}
	return true, nil
}

func (c *Complex) Count(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), nil
}

func (c *Complex) Clear(_ context.Context) error {
	c.mu.Lock()
	c.items = make(map[model.Key]*entry)
	c.order.Init()
	c.lastCleared = c.clk.Now()
	c.mu.Unlock()
	return nil
}

func (c *Complex) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:        c.cfg.Name,
		Tier:        config.TierComplex,
		Count:       len(c.items),
		Limit:       c.cfg.Limit,
		Hits:        c.hits,
		Misses:      c.misses,
		HitRatio:    RatioOf(c.hits, c.misses),
		LastCleared: c.lastCleared,

		Expire:        c.cfg.Expire,
		Refreshable:   c.cfg.Refreshable,
		EvictionOrder: c.cfg.EvictionOrder,
		ClearCount:    c.cfg.ClearCount,
		ConsiderUser:  c.cfg.ConsiderUser,
		Persistent:    c.cfg.Persistent,
	}, nil
}

func (c *Complex) Close() error { return nil }

// IsFull reports whether the next insert would trigger eviction, and
// how many entries that eviction would remove.
func (c *Complex) IsFull() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isFull()
}

func (c *Complex) isFull() (bool, int) {
	if c.cfg.Limit == config.NoLimit || len(c.items) < c.cfg.Limit {
		return false, 0
	}
	n := len(c.items) - c.cfg.Limit + 1
	if c.cfg.ClearCount > n {
		n = c.cfg.ClearCount
	}
	return true, n
}

// evict removes n entries from the configured end of the insertion
// sequence: fifo drops the oldest first, lifo the newest.
func (c *Complex) evict(n int) {
	for ; n > 0 && c.order.Len() > 0; n-- {
		var victim *list.Element
		if c.cfg.EvictionOrder == config.EvictLIFO {
			victim = c.order.Back()
		} else {
			victim = c.order.Front()
		}
		c.removeEntry(victim.Value.(*entry))
	}
	c.lastCleared = c.clk.Now()
}

// touchOrder moves a hit entry away from the eviction end so hot
// entries survive longer under pressure.
func (c *Complex) touchOrder(e *entry) {
	if c.cfg.EvictionOrder == config.EvictLIFO {
		c.order.MoveToFront(e.elem)
		return
	}
	c.order.MoveToBack(e.elem)
}

func (c *Complex) expiredAt(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (c *Complex) removeEntry(e *entry) {
	delete(c.items, e.key)
	c.order.Remove(e.elem)
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// encodeValue makes the independent copy stored by the complex tier.
// Raw byte payloads pass through untouched so persisted values do not
// get double-wrapped on restore.
func encodeValue(value any) ([]byte, error) {
	if raw, isRaw := value.([]byte); isRaw {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return cp, nil
	}
	return msgpack.Marshal(value)
}

// snapshotRecord is the persisted form of one live entry. TTL carries
// the remaining lifetime at persist time so a restored entry does not
// outlive its original deadline.
type snapshotRecord struct {
	KeyV  uint64        `msgpack:"kv"`
	KeyHi uint64        `msgpack:"kh"`
	KeyLo uint64        `msgpack:"kl"`
	Value []byte        `msgpack:"v"`
	TTL   time.Duration `msgpack:"t"`
}

// Persist snapshots all live entries in insertion order, in batches of
// chunk_size. Each batch is flushed before the next is built, so a
// mid-save failure loses at most the batch in flight. Existing batches
// under the same version are dropped first.
func (c *Complex) Persist(ctx context.Context, version string) error {
	if !c.cfg.Persistent {
		return fmt.Errorf("handler %q: %w", c.cfg.Name, ErrNotPersistent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Drop(ctx, c.cfg.Name, version); err != nil {
		return fmt.Errorf("handler %q: drop stale snapshot: %w", c.cfg.Name, err)
	}

	now := c.clk.Now()
	records := make([]snapshotRecord, 0, c.cfg.ChunkSize)
	flush := func() error {
		if len(records) == 0 {
			return nil
		}
		batch, err := msgpack.Marshal(records)
		if err != nil {
			return fmt.Errorf("handler %q: encode batch: %w", c.cfg.Name, err)
		}
		if err = c.store.PutBatch(ctx, c.cfg.Name, version, batch); err != nil {
			return fmt.Errorf("handler %q: put batch: %w", c.cfg.Name, err)
		}
		records = records[:0]
		return nil
	}

	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		if c.expiredAt(e, now) {
			continue
		}
		var remaining time.Duration
		if !e.expiresAt.IsZero() {
			remaining = e.expiresAt.Sub(now)
		}
		v, hi, lo := e.key.Parts()
		records = append(records, snapshotRecord{
			KeyV: v, KeyHi: hi, KeyLo: lo,
			Value: e.value,
			TTL:   remaining,
		})
		if len(records) == c.cfg.ChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Load restores entries persisted under exactly this version. An absent
// or mismatched version restores nothing. Batches that fail to decode
// are logged and skipped; one bad batch must not abort the restore.
func (c *Complex) Load(ctx context.Context, version string) error {
	if !c.cfg.Persistent {
		return fmt.Errorf("handler %q: %w", c.cfg.Name, ErrNotPersistent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	batches, err := c.store.GetBatches(ctx, c.cfg.Name, version)
	if err != nil {
		return fmt.Errorf("handler %q: get batches: %w", c.cfg.Name, err)
	}

	now := c.clk.Now()
	for _, batch := range batches {
		var records []snapshotRecord
		if err = msgpack.Unmarshal(batch, &records); err != nil {
			c.logger.Warn("skipping undecodable snapshot batch",
				"handler", c.cfg.Name, "version", version, "error", err)
			continue
		}
		for _, rec := range records {
			key := model.NewKeyParts(rec.KeyV, rec.KeyHi, rec.KeyLo)
			if e, exists := c.items[key]; exists {
				c.removeEntry(e)
			}
			e := &entry{
				key:        key,
				value:      rec.Value,
				ttl:        rec.TTL,
				insertedAt: now,
				expiresAt:  expiry(now, rec.TTL),
			}
			e.elem = c.order.PushBack(e)
			c.items[key] = e
		}
	}
	return nil
}
