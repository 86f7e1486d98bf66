package offers

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CartContextFunc returns the live cart lines to pass as fetch context.
// It is invoked at dispatch time for every fetch, never cached, because the
// cart is allowed to change between lookups.
type CartContextFunc func() []CartLineSummary

// CacheConfig bounds the offer cache.
type CacheConfig struct {
	// MaxEntries caps the number of cached keys; least recently used
	// resolved or error entries are evicted past the cap. Loading entries
	// are never evicted.
	MaxEntries int
	// FetchTimeout bounds a single offer fetch. A fetch that outlives it
	// transitions the entry to the error state instead of leaving the key
	// loading forever.
	FetchTimeout time.Duration
}

// DefaultCacheConfig returns the production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:   512,
		FetchTimeout: 15 * time.Second,
	}
}

// Cache is the per-session offer cache. Each key holds one entry that moves
// loading -> resolved | error exactly once; an error entry sticks until
// Invalidate so a failing backend is not hammered by retry loops.
//
// The at-most-one-in-flight invariant is enforced by marking the slot
// loading under the mutex before the fetch goroutine is dispatched; a second
// caller for the same key observes the loading slot and triggers nothing.
type Cache struct {
	mu      sync.Mutex
	slots   map[string]*cacheSlot
	order   *list.List // front = most recently used
	fetcher Fetcher
	cartCtx CartContextFunc
	cfg     CacheConfig
	metrics *MetricsRecorder
	logger  zerolog.Logger
}

type cacheSlot struct {
	identity  PartIdentity
	state     EntryState
	bundle    OfferBundle
	cheapest  *Offer
	fetchedAt time.Time
	err       error
	done      chan struct{} // closed once the slot leaves loading
	elem      *list.Element
}

// NewCache creates an offer cache around the given fetcher.
// cartCtx may be nil when no cart context is available (e.g. CLI lookups).
func NewCache(fetcher Fetcher, cartCtx CartContextFunc, cfg CacheConfig) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultCacheConfig().FetchTimeout
	}
	if cartCtx == nil {
		cartCtx = func() []CartLineSummary { return nil }
	}

	return &Cache{
		slots:   make(map[string]*cacheSlot),
		order:   list.New(),
		fetcher: fetcher,
		cartCtx: cartCtx,
		cfg:     cfg,
		metrics: NewMetricsRecorder(),
		logger:  log.With().Str("component", "offer_cache").Logger(),
	}
}

// GetOrFetch returns the current entry for the identity, dispatching an
// async fetch when the key is absent. The returned Entry is a snapshot; a
// loading snapshot means a fetch is in flight and a later call will observe
// the outcome.
func (c *Cache) GetOrFetch(identity PartIdentity) Entry {
	slot, _ := c.getOrStart(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	return slot.snapshot()
}

// Await blocks until the entry for the identity is resolved (or errored),
// dispatching a fetch if none is in flight. It is the path used by callers
// that need a settled price, such as add-to-cart.
func (c *Cache) Await(ctx context.Context, identity PartIdentity) (Entry, error) {
	slot, _ := c.getOrStart(identity)

	select {
	case <-slot.done:
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return slot.snapshot(), nil
}

// Invalidate drops the entry for the identity. An in-flight fetch for the
// dropped key is allowed to finish but its result is discarded, so a stale
// response can never overwrite a fresher entry.
func (c *Cache) Invalidate(identity PartIdentity) {
	key := identity.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[key]
	if !ok {
		return
	}
	delete(c.slots, key)
	if slot.elem != nil {
		c.order.Remove(slot.elem)
	}
}

// Len returns the number of cached keys, loading entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// getOrStart returns the slot for the identity, creating it in the loading
// state and dispatching the fetch goroutine when absent. The bool reports
// whether a fetch was started by this call.
func (c *Cache) getOrStart(identity PartIdentity) (*cacheSlot, bool) {
	key := identity.Key()

	c.mu.Lock()
	if slot, ok := c.slots[key]; ok {
		c.order.MoveToFront(slot.elem)
		// Snapshot the state while still holding the mutex; load() writes
		// slot.state under it and must not race the metrics label.
		state := slot.state
		c.mu.Unlock()
		c.metrics.RecordCacheHit(string(state))
		return slot, false
	}

	slot := &cacheSlot{
		identity: identity,
		state:    StateLoading,
		done:     make(chan struct{}),
	}
	slot.elem = c.order.PushFront(key)
	c.slots[key] = slot
	c.evictLocked()
	c.mu.Unlock()

	c.metrics.RecordCacheMiss()
	go c.load(slot)
	return slot, true
}

// load runs the fetch for one slot. It deliberately uses a dedicated
// context rather than any caller's: the entry outlives the request that
// triggered it, and cancelling one caller must not fail the others.
func (c *Cache) load(slot *cacheSlot) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	bundle, err := c.fetcher.FetchOffers(ctx, slot.identity, c.cartCtx())
	c.metrics.RecordFetch(time.Since(start).Seconds(), err == nil)

	var cheapest *Offer
	if err == nil {
		cheapest = SelectCheapest(bundle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Each dispatch owns its slot, so this write can never clobber a
	// replacement entry: if the key was invalidated mid-fetch the slot is
	// already out of the map and the result only settles old waiters.
	slot.fetchedAt = time.Now()
	if err != nil {
		slot.state = StateError
		slot.err = fmt.Errorf("offer fetch failed: %w", err)
		c.logger.Warn().Err(err).
			Str("article", slot.identity.Article).
			Str("brand", slot.identity.Brand).
			Msg("Cached fetch failure")
	} else {
		slot.state = StateResolved
		slot.bundle = bundle
		slot.cheapest = cheapest
		if cheapest == nil {
			c.metrics.RecordEmptySelection()
		}
	}
	close(slot.done)
}

// evictLocked drops least recently used settled entries past the cap.
// Callers must hold c.mu.
func (c *Cache) evictLocked() {
	for len(c.slots) > c.cfg.MaxEntries {
		evicted := false
		for e := c.order.Back(); e != nil; e = e.Prev() {
			key := e.Value.(string)
			slot := c.slots[key]
			if slot.state == StateLoading {
				continue
			}
			delete(c.slots, key)
			c.order.Remove(e)
			c.metrics.RecordEviction()
			evicted = true
			break
		}
		if !evicted {
			// Everything over the cap is still loading; let it settle.
			return
		}
	}
}

func (s *cacheSlot) snapshot() Entry {
	entry := Entry{
		State:     s.state,
		Bundle:    s.bundle,
		FetchedAt: s.fetchedAt,
		Err:       s.err,
	}
	if s.cheapest != nil {
		cheapest := *s.cheapest
		entry.Cheapest = &cheapest
	}
	return entry
}
