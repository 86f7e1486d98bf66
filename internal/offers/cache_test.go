package offers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher counts calls per key and serves configurable bundles. A
// non-nil gate blocks every fetch until the gate closes.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	bundles map[string]OfferBundle
	errs    map[string]error
	gate    chan struct{}

	lastCart []CartLineSummary
	total    atomic.Int64
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[string]int),
		bundles: make(map[string]OfferBundle),
		errs:    make(map[string]error),
	}
}

func (f *fakeFetcher) serve(identity PartIdentity, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[identity.Key()] = OfferBundle{
		InternalOffers: []Offer{{
			Source:            SourceInternal,
			ID:                "int-1",
			ProductID:         "prod-1",
			Price:             decimal.NewFromFloat(price),
			Currency:          DefaultCurrency,
			QuantityAvailable: 3,
			CanPurchase:       true,
		}},
		ExternalOffers: []Offer{},
		HasAnyOffers:   true,
	}
}

func (f *fakeFetcher) fail(identity PartIdentity, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[identity.Key()] = err
}

func (f *fakeFetcher) callCount(identity PartIdentity) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[identity.Key()]
}

func (f *fakeFetcher) FetchOffers(ctx context.Context, identity PartIdentity, cart []CartLineSummary) (OfferBundle, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return EmptyBundle(), ctx.Err()
		}
	}

	f.total.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	key := identity.Key()
	f.calls[key]++
	f.lastCart = cart
	if err := f.errs[key]; err != nil {
		return EmptyBundle(), err
	}
	if bundle, ok := f.bundles[key]; ok {
		return bundle, nil
	}
	return EmptyBundle(), nil
}

func testIdentity(n int) PartIdentity {
	return PartIdentity{Article: fmt.Sprintf("ART-%03d", n), Brand: "Bosch"}
}

func TestCacheAwaitResolves(t *testing.T) {
	fetcher := newFakeFetcher()
	identity := testIdentity(1)
	fetcher.serve(identity, 1500)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	require.NotNil(t, entry.Cheapest)
	assert.True(t, entry.Cheapest.Price.Equal(decimal.NewFromInt(1500)))
	assert.False(t, entry.FetchedAt.IsZero())
}

// TestCacheSingleFetchPerKey verifies that many concurrent lookups of the
// same part trigger exactly one backend fetch.
func TestCacheSingleFetchPerKey(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	identity := testIdentity(2)
	fetcher.serve(identity, 900)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	const numLookups = 50
	var wg sync.WaitGroup
	for i := 0; i < numLookups; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.GetOrFetch(identity)
		}()
	}
	wg.Wait()
	close(fetcher.gate)

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	assert.Equal(t, 1, fetcher.callCount(identity), "concurrent lookups must share one fetch")
}

func TestCacheKeyNormalization(t *testing.T) {
	fetcher := newFakeFetcher()
	upper := PartIdentity{Article: "77WPE080", Brand: "MasterKit"}
	lower := PartIdentity{Article: "77wpe080", Brand: "masterkit"}
	fetcher.serve(upper, 4500)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	_, err := cache.Await(context.Background(), upper)
	require.NoError(t, err)
	_, err = cache.Await(context.Background(), lower)
	require.NoError(t, err)

	assert.Equal(t, 1, cache.Len(), "case variants must share one cache entry")
	assert.Equal(t, 1, fetcher.callCount(upper))
}

// TestCacheErrorSticks verifies that a failed fetch is cached and not
// retried until the entry is invalidated.
func TestCacheErrorSticks(t *testing.T) {
	fetcher := newFakeFetcher()
	identity := testIdentity(3)
	fetcher.fail(identity, errors.New("backend down"))

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateError, entry.State)
	require.Error(t, entry.Err)

	for i := 0; i < 10; i++ {
		entry = cache.GetOrFetch(identity)
		assert.Equal(t, StateError, entry.State)
	}
	assert.Equal(t, 1, fetcher.callCount(identity), "error entries must not trigger retries")

	// Invalidation clears the failure and the backend has recovered.
	fetcher.fail(identity, nil)
	fetcher.serve(identity, 777)
	cache.Invalidate(identity)

	entry, err = cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	assert.Equal(t, 2, fetcher.callCount(identity))
}

func TestCacheInvalidateDiscardsInFlightResult(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	identity := testIdentity(4)
	fetcher.serve(identity, 100)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	cache.GetOrFetch(identity)
	cache.Invalidate(identity)
	close(fetcher.gate)

	// The first fetch settles against a removed slot; a fresh lookup must
	// dispatch its own fetch rather than adopt the stale result.
	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	assert.Eventually(t, func() bool {
		return fetcher.callCount(identity) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fetcher := newFakeFetcher()
	cache := NewCache(fetcher, nil, CacheConfig{MaxEntries: 3, FetchTimeout: time.Second})

	for i := 0; i < 3; i++ {
		identity := testIdentity(i)
		fetcher.serve(identity, 100)
		_, err := cache.Await(context.Background(), identity)
		require.NoError(t, err)
	}

	// Touch the oldest entry so it becomes most recently used.
	cache.GetOrFetch(testIdentity(0))

	overflow := testIdentity(99)
	fetcher.serve(overflow, 100)
	_, err := cache.Await(context.Background(), overflow)
	require.NoError(t, err)

	assert.Equal(t, 3, cache.Len())

	// Entry 1 was the LRU and must have been evicted; looking it up again
	// dispatches a second fetch.
	_, err = cache.Await(context.Background(), testIdentity(1))
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount(testIdentity(1)))

	// Entry 0 survived the eviction.
	assert.Equal(t, 1, fetcher.callCount(testIdentity(0)))
}

func TestCacheFetchTimeoutBecomesError(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{}) // never closed; fetch hangs until its context expires
	identity := testIdentity(5)

	cache := NewCache(fetcher, nil, CacheConfig{MaxEntries: 8, FetchTimeout: 20 * time.Millisecond})

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateError, entry.State)
	require.Error(t, entry.Err)
}

func TestCacheAwaitHonorsCallerContext(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	identity := testIdentity(6)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Await(ctx, identity)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(fetcher.gate)
}

// TestCacheConcurrentHitsWhileSettling hammers the hit path while the
// fetch settles the slot, so the race detector covers the state read that
// feeds the hit metrics label.
func TestCacheConcurrentHitsWhileSettling(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	identity := testIdentity(8)
	fetcher.serve(identity, 100)

	cache := NewCache(fetcher, nil, DefaultCacheConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cache.GetOrFetch(identity)
			}
		}()
	}
	close(fetcher.gate)
	wg.Wait()

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	assert.Equal(t, 1, fetcher.callCount(identity))
}

func TestCacheCountsEmptySelections(t *testing.T) {
	fetcher := newFakeFetcher()
	identity := testIdentity(9)

	// Offers exist but nothing survives filtering.
	fetcher.mu.Lock()
	fetcher.bundles[identity.Key()] = OfferBundle{
		InternalOffers: []Offer{{
			Source:      SourceInternal,
			ID:          "i1",
			Price:       decimal.NewFromInt(100),
			CanPurchase: false,
		}},
		ExternalOffers: []Offer{},
		HasAnyOffers:   true,
	}
	fetcher.mu.Unlock()

	cache := NewCache(fetcher, nil, DefaultCacheConfig())
	before := testutil.ToFloat64(selectionsEmpty)

	entry, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, entry.State)
	assert.Nil(t, entry.Cheapest)
	assert.Equal(t, before+1, testutil.ToFloat64(selectionsEmpty))
}

func TestCachePassesLiveCartContext(t *testing.T) {
	fetcher := newFakeFetcher()
	identity := testIdentity(7)
	fetcher.serve(identity, 100)

	var cartLines []CartLineSummary
	cache := NewCache(fetcher, func() []CartLineSummary { return cartLines }, DefaultCacheConfig())

	_, err := cache.Await(context.Background(), identity)
	require.NoError(t, err)
	assert.Empty(t, fetcher.lastCart)

	// The cart changed; the next dispatched fetch must see the new lines.
	cartLines = []CartLineSummary{{Article: "ART-007", Brand: "Bosch", Quantity: 2}}
	cache.Invalidate(identity)

	_, err = cache.Await(context.Background(), identity)
	require.NoError(t, err)
	require.Len(t, fetcher.lastCart, 1)
	assert.Equal(t, 2, fetcher.lastCart[0].Quantity)
}
