// Package handler implements the cache tiers behind the registry. Every
// tier speaks the same Handler contract; capabilities beyond it
// (persistence, counters) are separate small interfaces the registry
// discovers by type assertion.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/keygen"
	"github.com/Borislavv/go-tier-cache/model"
)

var (
	// ErrNotPersistent reports a persist or load call against a handler
	// configured with persistent=false. It is never a silent no-op.
	ErrNotPersistent = errors.New("handler is not persistent")
)

// Handler is the contract every cache tier implements.
type Handler interface {
	Name() string
	Tier() config.Tier

	// KeyFor builds a key for a call against this handler's key policy.
	// ok=false means the inputs cannot be reduced to a key and caching
	// must be skipped for this call.
	KeyFor(ref keygen.CallRef, cc keygen.CallContext) (key model.Key, ok bool)

	// Get returns the stored value. Expired entries are removed on
	// access and reported as absent.
	Get(ctx context.Context, key model.Key) (value any, found bool, err error)

	// Set stores a value under the handler's default TTL.
	Set(ctx context.Context, key model.Key, value any) error

	// SetTTL stores a value with a per-entry TTL override. Zero ttl
	// means the entry never expires.
	SetTTL(ctx context.Context, key model.Key, value any, ttl time.Duration) error

	// Pop removes and returns the value in one step.
	Pop(ctx context.Context, key model.Key) (value any, found bool, err error)

	Remove(ctx context.Context, key model.Key) error
	Contains(ctx context.Context, key model.Key) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)

	// Close releases resources held by the handler (connections,
	// goroutines). The handler must not be used afterwards.
	Close() error
}

// Persistable is the bulk save/restore capability of persistent
// handlers. Batches are tagged with a version; loading a version that
// was never persisted restores nothing.
type Persistable interface {
	Persist(ctx context.Context, version string) error
	Load(ctx context.Context, version string) error
}

// Stats is a point-in-time snapshot of one handler: live counters plus
// an echo of the policy the handler was configured with.
type Stats struct {
	Name        string
	Tier        config.Tier
	Count       int
	Limit       int
	Hits        uint64
	Misses      uint64
	HitRatio    string
	LastCleared time.Time

	Expire        time.Duration
	Refreshable   bool
	EvictionOrder config.EvictionOrder
	ClearCount    int
	ConsiderUser  bool
	Persistent    bool
}

// RatioOf renders hits/(hits+misses) as a one-decimal percentage.
func RatioOf(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(hits)/float64(total)*100)
}
