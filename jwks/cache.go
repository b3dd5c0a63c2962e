// Package jwks caches the identity provider's rotating signing keys.
//
// Keys are loaded lazily on first use and refreshed only when a lookup misses.
// Concurrent misses collapse into a single fetch, and a failed refresh never
// discards a previously loaded set.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrKeyNotFound is returned when no key with the requested ID exists,
	// even after a refresh.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrProviderUnreachable is returned when the key set could not be fetched
	// and no previously fetched set is available.
	ErrProviderUnreachable = errors.New("identity provider unreachable")
)

const (
	// DefaultFetchTimeout bounds a single refresh fetch
	DefaultFetchTimeout = 5 * time.Second

	refreshKey = "jwks"
)

// Config holds configuration for Cache
type Config struct {
	// FetchTimeout bounds each refresh. Defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration

	// MinRefreshInterval, when positive, is the minimum spacing between
	// refreshes. Zero or negative leaves refreshes unthrottled, so every miss
	// gets its own fetch.
	MinRefreshInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Loaded     bool
	KeyCount   int
	Generation uint64
	FetchedAt  time.Time
	Fetches    int64
	LastError  string
}

// Cache is the process-wide holder of the current key set. It is safe for
// concurrent use and is meant to be shared by reference.
type Cache struct {
	fetcher      Fetcher
	logger       *zap.Logger
	fetchTimeout time.Duration
	interval     time.Duration
	now          func() time.Time

	current atomic.Pointer[KeySet]
	group   singleflight.Group
	fetches atomic.Int64

	mu      sync.Mutex    // guards limiter and lastErr
	limiter *rate.Limiter // nil when unthrottled
	lastErr error
}

// NewCache creates a new key set cache backed by fetcher.
func NewCache(fetcher Fetcher, config Config, logger *zap.Logger) *Cache {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		fetcher:      fetcher,
		logger:       logger,
		fetchTimeout: config.FetchTimeout,
		interval:     config.MinRefreshInterval,
		now:          config.Now,
	}
	c.limiter = c.newLimiter()
	return c
}

func (c *Cache) newLimiter() *rate.Limiter {
	if c.interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(c.interval), 1)
}

// Get returns the signing key with the given ID. On a miss the key set is
// refreshed once; concurrent callers share that refresh.
func (c *Cache) Get(ctx context.Context, kid string) (SigningKey, error) {
	set := c.current.Load()
	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}

	set, err := c.refresh(ctx, set.Generation())
	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}
	if err != nil {
		return SigningKey{}, err
	}
	return SigningKey{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Warm loads the key set if nothing has been loaded yet.
func (c *Cache) Warm(ctx context.Context) error {
	set := c.current.Load()
	if set != nil {
		return nil
	}
	_, err := c.refresh(ctx, 0)
	return err
}

// Invalidate drops the cached set so the next lookup fetches again.
func (c *Cache) Invalidate() {
	c.current.Store(nil)

	c.mu.Lock()
	c.limiter = c.newLimiter()
	c.lastErr = nil
	c.mu.Unlock()
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	set := c.current.Load()
	stats := CacheStats{
		Loaded:     set != nil,
		KeyCount:   set.Len(),
		Generation: set.Generation(),
		FetchedAt:  set.FetchedAt(),
		Fetches:    c.fetches.Load(),
	}
	if err := c.lastError(); err != nil {
		stats.LastError = err.Error()
	}
	return stats
}

// refresh joins or starts the single in-flight fetch. Each caller stops waiting
// when its own context ends; the fetch itself carries on for the others.
func (c *Cache) refresh(ctx context.Context, observed uint64) (*KeySet, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.load(ctx, observed)
	})

	select {
	case <-ctx.Done():
		return c.current.Load(), ctx.Err()
	case res := <-ch:
		set, _ := res.Val.(*KeySet)
		return set, res.Err
	}
}

// load runs inside the single-flight group, so at most one is active at a time.
func (c *Cache) load(ctx context.Context, observed uint64) (*KeySet, error) {
	current := c.current.Load()

	// Someone else refreshed since the caller looked.
	if current.Generation() != observed {
		return current, nil
	}

	if !c.allowFetch() {
		if current != nil {
			return current, nil
		}
		if err := c.lastError(); err != nil {
			return nil, err
		}
		return nil, ErrProviderUnreachable
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	c.fetches.Add(1)
	fetched, err := c.fetcher.Fetch(fetchCtx)
	if err == nil && fetched == nil {
		err = ErrInvalidKeySet
	}
	if err != nil {
		if current != nil {
			c.logger.Warn("key set refresh failed, serving stale key set",
				zap.Uint64("generation", current.Generation()),
				zap.Int("keys", current.Len()),
				zap.Error(err))
			c.setLastError(err)
			return current, fmt.Errorf("%w: refresh failed: %w", ErrKeyNotFound, err)
		}
		err = fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
		c.logger.Error("key set fetch failed", zap.Error(err))
		c.setLastError(err)
		return nil, err
	}

	installed := &KeySet{
		keys:       fetched.keys,
		generation: current.Generation() + 1,
		fetchedAt:  c.now(),
	}
	c.current.Store(installed)
	c.setLastError(nil)

	c.logger.Debug("key set refreshed",
		zap.Uint64("generation", installed.generation),
		zap.Strings("kids", installed.KeyIDs()))

	return installed, nil
}

func (c *Cache) allowFetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiter == nil {
		return true
	}
	return c.limiter.AllowN(c.now(), 1)
}

func (c *Cache) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Cache) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
