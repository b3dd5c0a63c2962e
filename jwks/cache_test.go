package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubFetcher counts calls and delegates to fn
type stubFetcher struct {
	calls atomic.Int64
	fn    func(ctx context.Context, call int64) (*KeySet, error)
}

func (f *stubFetcher) Fetch(ctx context.Context) (*KeySet, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

func testKey(t *testing.T, kid string) SigningKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return SigningKey{KeyID: kid, Algorithm: "RS256", Use: "sig", Key: &priv.PublicKey}
}

func TestCache_LazyLoadThenHit(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())

	assert.False(t, cache.Stats().Loaded)

	key, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", key.KeyID)

	key, err = cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", key.KeyID)

	assert.Equal(t, int64(1), fetcher.calls.Load())
	stats := cache.Stats()
	assert.True(t, stats.Loaded)
	assert.Equal(t, 1, stats.KeyCount)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestCache_RefreshOnRotation(t *testing.T) {
	k1 := testKey(t, "kid-1")
	k2 := testKey(t, "kid-2")
	fetcher := &stubFetcher{fn: func(_ context.Context, call int64) (*KeySet, error) {
		if call == 1 {
			return NewKeySet(k1), nil
		}
		return NewKeySet(k1, k2), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())

	require.NoError(t, cache.Warm(context.Background()))

	// Rotation seen straight after warm-up still gets its own refresh.
	key, err := cache.Get(context.Background(), "kid-2")
	require.NoError(t, err)
	assert.Equal(t, "kid-2", key.KeyID)
	assert.Equal(t, int64(2), fetcher.calls.Load())
	assert.Equal(t, uint64(2), cache.Stats().Generation)
}

func TestCache_UnknownKeyAfterRefresh(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())

	_, err := cache.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	// The cold load doubles as the refresh for this miss.
	assert.Equal(t, int64(1), fetcher.calls.Load())

	_, err = cache.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	k1 := testKey(t, "kid-1")
	release := make(chan struct{})
	fetcher := &stubFetcher{fn: func(_ context.Context, call int64) (*KeySet, error) {
		if call > 1 {
			<-release
		}
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())
	require.NoError(t, cache.Warm(context.Background()))

	const n = 50
	errs := make([]error, n)
	var started, wg sync.WaitGroup
	for i := 0; i < n; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			_, errs[i] = cache.Get(context.Background(), "unknown-kid")
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	}
	// One warm-up fetch plus a single refresh shared by all callers.
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestCache_ConcurrentFailureSharedByWaiters(t *testing.T) {
	fetchErr := errors.New("connection refused")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, fetchErr
	}}
	cache := NewCache(fetcher, Config{Now: newFakeClock().Now}, zap.NewNop())

	const n = 20
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), "kid-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProviderUnreachable))
		assert.True(t, errors.Is(err, fetchErr))
	}
	assert.Equal(t, int64(1), fetcher.calls.Load())
	assert.False(t, cache.Stats().Loaded)
	assert.Contains(t, cache.Stats().LastError, "connection refused")
}

func TestCache_ServesStaleSetWhenRefreshFails(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(_ context.Context, call int64) (*KeySet, error) {
		if call == 1 {
			return NewKeySet(k1), nil
		}
		return nil, errors.New("upstream 503")
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())
	require.NoError(t, cache.Warm(context.Background()))

	_, err := cache.Get(context.Background(), "kid-rotated")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.False(t, errors.Is(err, ErrProviderUnreachable))

	key, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", key.KeyID)
	assert.Equal(t, int64(2), fetcher.calls.Load())
	assert.Equal(t, uint64(1), cache.Stats().Generation)
}

func TestCache_EveryMissRefreshesByDefault(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())
	require.NoError(t, cache.Warm(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background(), "random-kid")
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	}
	assert.Equal(t, int64(4), fetcher.calls.Load())
	assert.Equal(t, uint64(4), cache.Stats().Generation)
}

func TestCache_ThrottlesUnknownKeyRefreshes(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		return NewKeySet(k1), nil
	}}
	clock := newFakeClock()
	cache := NewCache(fetcher, Config{Now: clock.Now, MinRefreshInterval: 10 * time.Second}, zap.NewNop())
	require.NoError(t, cache.Warm(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := cache.Get(context.Background(), "random-kid")
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	}
	assert.Equal(t, int64(1), fetcher.calls.Load())

	clock.Advance(11 * time.Second)
	_, err := cache.Get(context.Background(), "random-kid")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestCache_FetchTimeout(t *testing.T) {
	fetcher := &stubFetcher{fn: func(ctx context.Context, _ int64) (*KeySet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cache := NewCache(fetcher, Config{FetchTimeout: 30 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := cache.Get(context.Background(), "kid-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnreachable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCache_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	k1 := testKey(t, "kid-1")
	release := make(chan struct{})
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		<-release
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, "kid-1")
		done <- err
	}()

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	close(release)
	assert.Eventually(t, func() bool { return cache.Stats().Loaded }, time.Second, 5*time.Millisecond)

	key, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", key.KeyID)
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	k1 := testKey(t, "kid-1")
	fetcher := &stubFetcher{fn: func(context.Context, int64) (*KeySet, error) {
		return NewKeySet(k1), nil
	}}
	cache := NewCache(fetcher, Config{Now: newFakeClock().Now}, zap.NewNop())
	require.NoError(t, cache.Warm(context.Background()))

	cache.Invalidate()
	assert.False(t, cache.Stats().Loaded)

	_, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetcher.calls.Load())
}
