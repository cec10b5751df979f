package config

import (
	"fmt"
	"strings"
	"time"
)

// NoLimit disables the entry count limit (or the remote memory limit)
// for a handler.
const NoLimit = -1

// Tier selects a handler capability set.
type Tier string

const (
	// TierLocal is unbounded and permanent: no TTL, no stats, values are
	// stored by reference. Keys consider only the callable identity.
	TierLocal Tier = "local"

	// TierExtendedLocal stores like TierLocal but keys additionally
	// consider call arguments, the current user and the scope key.
	TierExtendedLocal Tier = "extended_local"

	// TierComplex adds TTL, bounded eviction, hit/miss stats and
	// persistence. Values are stored as independent copies.
	TierComplex Tier = "complex"

	// TierRemote delegates storage to a distributed backend.
	TierRemote Tier = "remote"
)

// EvictionOrder defines which end of the insertion sequence is evicted
// first when a bounded handler is full.
type EvictionOrder string

const (
	EvictFIFO EvictionOrder = "fifo"
	EvictLIFO EvictionOrder = "lifo"
)

// HandlerCfg configures one named cache handler. Fields that do not
// apply to the configured tier are ignored.
type HandlerCfg struct {
	// Name is the registry key. Must be unique.
	Name string `yaml:"name"`

	Tier Tier `yaml:"tier"`

	// Limit is the maximum entry count for the complex tier
	// (NoLimit = unbounded).
	Limit int `yaml:"limit"`

	// Expire is the default TTL of entries. Zero means entries never
	// expire.
	Expire time.Duration `yaml:"expire"`

	// Refreshable extends an entry's remaining TTL on each hit (sliding
	// window). When false the TTL is absolute from insertion.
	Refreshable bool `yaml:"refreshable"`

	// ConsiderUser folds the current user identity into generated keys.
	// Applies to the extended_local, complex and remote tiers.
	ConsiderUser bool `yaml:"consider_user"`

	// EvictionOrder picks the end of the insertion sequence evicted
	// first. Defaults to fifo.
	EvictionOrder EvictionOrder `yaml:"eviction_order"`

	// ClearCount is how many entries one eviction event removes.
	// Batching amortizes the bookkeeping cost of eviction.
	ClearCount int `yaml:"clear_count"`

	// Persistent opts the handler into bulk persist/load.
	Persistent bool `yaml:"persistent"`

	// ChunkSize is the batch size used when persisting; the store is
	// flushed after every chunk so a mid-save failure loses at most one
	// unflushed batch.
	ChunkSize int `yaml:"chunk_size"`

	// Remote holds connection settings; required for the remote tier.
	Remote *RemoteCfg `yaml:"remote"`
}

// RemoteCfg configures the connection to a distributed cache backend.
// Exactly one of {Host+Port} or {UnixSocket} must be set.
type RemoteCfg struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UnixSocket string `yaml:"unix_socket"`

	// ConnectTimeout bounds dialing the backend.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// OperationTimeout bounds every read/write against the backend.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// IgnoreErrors degrades backend failures to cache misses instead of
	// surfacing them, for callers that prefer availability.
	IgnoreErrors bool `yaml:"ignore_errors"`

	// MemoryLimitMB caps the backend's working set in megabytes
	// (NoLimit = leave the backend setting untouched).
	MemoryLimitMB int `yaml:"memory_limit_mb"`

	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (h *HandlerCfg) adjust() {
	if h.Limit == 0 {
		h.Limit = NoLimit
	}
	if h.EvictionOrder == "" {
		h.EvictionOrder = EvictFIFO
	}
	if h.ClearCount == 0 {
		h.ClearCount = 1
	}
	if h.ChunkSize == 0 {
		h.ChunkSize = 100
	}
	if h.Remote != nil && h.Remote.MemoryLimitMB == 0 {
		h.Remote.MemoryLimitMB = NoLimit
	}
}

// Validate surfaces configuration errors synchronously; they indicate
// programmer error, not runtime conditions.
func (h *HandlerCfg) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return ErrNameRequired
	}

	switch h.Tier {
	case TierLocal, TierExtendedLocal, TierComplex, TierRemote:
	default:
		return fmt.Errorf("handler %q: tier %q: %w", h.Name, h.Tier, ErrInvalidTier)
	}

	if h.Limit != NoLimit && h.Limit <= 0 {
		return fmt.Errorf("handler %q: limit %d: %w", h.Name, h.Limit, ErrInvalidLimit)
	}
	if h.Expire < 0 {
		return fmt.Errorf("handler %q: expire %s: %w", h.Name, h.Expire, ErrInvalidExpire)
	}
	if h.ClearCount <= 0 {
		return fmt.Errorf("handler %q: clear_count %d: %w", h.Name, h.ClearCount, ErrInvalidClearCount)
	}
	if h.Persistent && h.ChunkSize <= 0 {
		return fmt.Errorf("handler %q: chunk_size %d: %w", h.Name, h.ChunkSize, ErrInvalidChunkSize)
	}

	switch h.EvictionOrder {
	case EvictFIFO, EvictLIFO:
	default:
		return fmt.Errorf("handler %q: eviction_order %q: %w", h.Name, h.EvictionOrder, ErrInvalidEvictionOrder)
	}

	if h.Tier == TierRemote {
		if h.Remote == nil {
			return fmt.Errorf("handler %q: remote section required: %w", h.Name, ErrInvalidConnectionConfig)
		}
		return h.Remote.Validate(h.Name)
	}
	return nil
}

func (r *RemoteCfg) Validate(name string) error {
	hostPort := r.Host != "" || r.Port != 0
	if r.UnixSocket != "" && hostPort {
		return fmt.Errorf("handler %q: both host/port and unix socket provided: %w",
			name, ErrInvalidConnectionConfig)
	}
	if r.UnixSocket == "" && (r.Host == "" || r.Port == 0) {
		return fmt.Errorf("handler %q: either host and port or a unix socket is required: %w",
			name, ErrInvalidConnectionConfig)
	}
	if r.MemoryLimitMB < 0 && r.MemoryLimitMB != NoLimit {
		return fmt.Errorf("handler %q: memory limit %dmb: %w", name, r.MemoryLimitMB, ErrInvalidLimit)
	}
	return nil
}

// Addr returns the dial address and network kind for the configured
// endpoint. Validate must have passed.
func (r *RemoteCfg) Addr() (network, addr string) {
	if r.UnixSocket != "" {
		return "unix", r.UnixSocket
	}
	return "tcp", fmt.Sprintf("%s:%d", r.Host, r.Port)
}
