// cache.go
// Package tokencache maps tenant credential fingerprints to gateway bearer tokens and
// answers liveness queries against their expiry.
package tokencache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// Status describes the liveness of a cached token at a point in time.
type Status string

const (
	StatusValid        Status = "VALID"
	StatusExpiringSoon Status = "EXPIRING_SOON"
	StatusExpired      Status = "EXPIRED"
	StatusNone         Status = "NONE"
)

// Usable reports whether a token in this status may still be sent upstream.
func (s Status) Usable() bool {
	return s == StatusValid || s == StatusExpiringSoon
}

const (
	DefaultValidity        = 30 * time.Minute
	DefaultExpiryWarning   = 5 * time.Minute
	DefaultHardExpiry      = 30 * time.Second
	DefaultCleanupInterval = time.Minute
)

// Config holds the expiry buffers of a Cache.
type Config struct {
	DefaultValidity  time.Duration
	ExpiryWarning    time.Duration
	HardExpiryBuffer time.Duration
	CleanupInterval  time.Duration
}

// DefaultConfig returns the stock token lifetimes.
func DefaultConfig() Config {
	return Config{
		DefaultValidity:  DefaultValidity,
		ExpiryWarning:    DefaultExpiryWarning,
		HardExpiryBuffer: DefaultHardExpiry,
		CleanupInterval:  DefaultCleanupInterval,
	}
}

// CachedToken is the entry owned by the cache. It never leaves the package.
type CachedToken struct {
	Fingerprint string
	Token       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenInfo is a caller-facing snapshot of a cache entry.
type TokenInfo struct {
	Fingerprint string        `json:"fingerprint"`
	Status      Status        `json:"status"`
	IssuedAt    time.Time     `json:"issuedAt,omitempty"`
	ExpiresAt   time.Time     `json:"expiresAt,omitempty"`
	ExpiresIn   time.Duration `json:"expiresIn"`
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries       int            `json:"entries"`
	Hits          uint64         `json:"hits"`
	Misses        uint64         `json:"misses"`
	Sets          uint64         `json:"sets"`
	Invalidations uint64         `json:"invalidations"`
	Evictions     uint64         `json:"evictions"`
	ByStatus      map[Status]int `json:"byStatus"`
}

// Cache is a fingerprint-keyed token store guarded by a single RWMutex.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*CachedToken
	config  Config
	now     func() time.Time
	log     logger.Logger

	hits, misses, sets, invalidations, evictions uint64

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, letting tests drive expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for eviction and invalidation events.
func WithLogger(log logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New creates a Cache. A zero DefaultValidity or CleanupInterval falls back to the default.
// ExpiryWarning and HardExpiryBuffer may be zero, which disables that window; only negative
// values fall back.
func New(cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = def.DefaultValidity
	}
	if cfg.ExpiryWarning < 0 {
		cfg.ExpiryWarning = def.ExpiryWarning
	}
	if cfg.HardExpiryBuffer < 0 {
		cfg.HardExpiryBuffer = def.HardExpiryBuffer
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	c := &Cache{
		entries: make(map[string]*CachedToken),
		config:  cfg,
		now:     time.Now,
		log:     logger.NewNop(),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the cache's expiry configuration.
func (c *Cache) Config() Config {
	return c.config
}

func (c *Cache) statusOf(entry *CachedToken, now time.Time) Status {
	if entry == nil {
		return StatusNone
	}
	if !now.Before(entry.ExpiresAt.Add(-c.config.HardExpiryBuffer)) {
		return StatusExpired
	}
	if !now.Before(entry.ExpiresAt.Add(-c.config.ExpiryWarning)) {
		return StatusExpiringSoon
	}
	return StatusValid
}

// Get returns the token for creds if one is cached and still usable.
func (c *Cache) Get(creds credentials.TenantCredentials) (string, bool) {
	return c.GetByFingerprint(creds.Fingerprint())
}

// GetByFingerprint is Get for callers that already hold a fingerprint.
func (c *Cache) GetByFingerprint(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[fingerprint]
	if !c.statusOf(entry, c.now()).Usable() {
		c.misses++
		return "", false
	}
	c.hits++
	return entry.Token, true
}

// Set stores token for creds, replacing any prior entry. A non-positive validity uses
// the configured default.
func (c *Cache) Set(creds credentials.TenantCredentials, token string, validity time.Duration) TokenInfo {
	return c.SetByFingerprint(creds.Fingerprint(), token, validity)
}

// SetByFingerprint is Set keyed by a precomputed fingerprint.
func (c *Cache) SetByFingerprint(fingerprint, token string, validity time.Duration) TokenInfo {
	if validity <= 0 {
		validity = c.config.DefaultValidity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &CachedToken{
		Fingerprint: fingerprint,
		Token:       token,
		IssuedAt:    now,
		ExpiresAt:   now.Add(validity),
	}
	c.entries[fingerprint] = entry
	c.sets++
	return c.infoOf(fingerprint, entry, now)
}

func (c *Cache) infoOf(fingerprint string, entry *CachedToken, now time.Time) TokenInfo {
	info := TokenInfo{Fingerprint: fingerprint, Status: c.statusOf(entry, now)}
	if entry == nil {
		return info
	}
	info.IssuedAt = entry.IssuedAt
	info.ExpiresAt = entry.ExpiresAt
	if remaining := entry.ExpiresAt.Sub(now); remaining > 0 {
		info.ExpiresIn = remaining
	}
	return info
}

// GetTokenInfo always succeeds; an absent entry reports StatusNone.
func (c *Cache) GetTokenInfo(creds credentials.TenantCredentials) TokenInfo {
	return c.TokenInfoByFingerprint(creds.Fingerprint())
}

// TokenInfoByFingerprint is GetTokenInfo keyed by a precomputed fingerprint.
func (c *Cache) TokenInfoByFingerprint(fingerprint string) TokenInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.infoOf(fingerprint, c.entries[fingerprint], c.now())
}

// Invalidate removes the entry for creds and reports whether one existed.
func (c *Cache) Invalidate(creds credentials.TenantCredentials) bool {
	fingerprint := creds.Fingerprint()

	c.mu.Lock()
	_, found := c.entries[fingerprint]
	if found {
		delete(c.entries, fingerprint)
		c.invalidations++
	}
	c.mu.Unlock()

	if found {
		c.log.Info("Token invalidated", zap.String("fingerprint", credentials.Short(fingerprint)))
	}
	return found
}

// Sweep evicts every entry that has passed its hard-expiry buffer and returns how many went.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	var evicted []string
	for fingerprint, entry := range c.entries {
		if c.statusOf(entry, now) == StatusExpired {
			delete(c.entries, fingerprint)
			evicted = append(evicted, fingerprint)
		}
	}
	c.evictions += uint64(len(evicted))
	c.mu.Unlock()

	for _, fingerprint := range evicted {
		c.log.Debug("Evicted expired token", zap.String("fingerprint", credentials.Short(fingerprint)))
	}
	return len(evicted)
}

// StartCleanup runs Sweep every CleanupInterval until ctx is done or Stop is called.
func (c *Cache) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.log.Info("Token cache sweep completed", zap.Int("evicted", n))
				}
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop terminates the cleanup goroutine if one was started. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Stats returns counters and a histogram of entry statuses.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	stats := Stats{
		Entries:       len(c.entries),
		Hits:          c.hits,
		Misses:        c.misses,
		Sets:          c.sets,
		Invalidations: c.invalidations,
		Evictions:     c.evictions,
		ByStatus:      make(map[Status]int),
	}
	for _, entry := range c.entries {
		stats.ByStatus[c.statusOf(entry, now)]++
	}
	return stats
}
