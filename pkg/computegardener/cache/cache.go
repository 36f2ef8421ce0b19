package cache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/clock"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	gardenermetrics "github.com/elevated-systems/compute-gardener-window/pkg/computegardener/metrics"
)

// Guard is a process-local cache-aside store. Values are memoized per
// type-qualified key with a TTL, and concurrent misses on the same key share
// one computation. Misses on different keys do not block each other.
type Guard struct {
	data            map[string]*cacheEntry
	mutex           sync.RWMutex
	group           singleflight.Group
	clock           clock.Clock
	cleanupInterval time.Duration
	stopCh          chan struct{}
	closeOnce       sync.Once
	closed          atomic.Bool
	metrics         *metrics
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
	hits      int64
}

type metrics struct {
	hits   int64
	misses int64
	mutex  sync.RWMutex
}

// Option customizes a Guard
type Option func(*Guard)

// WithClock sets the clock used for expiration
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		g.clock = clock.OrReal(c)
	}
}

// WithCleanupInterval sets how often expired entries are swept
func WithCleanupInterval(d time.Duration) Option {
	return func(g *Guard) {
		g.cleanupInterval = d
	}
}

// New creates a guard and starts its background sweeper. Close must be called
// when the guard is no longer needed.
func New(opts ...Option) *Guard {
	g := &Guard{
		data:    make(map[string]*cacheEntry),
		clock:   clock.RealClock{},
		stopCh:  make(chan struct{}),
		metrics: &metrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cleanupInterval = ensurePositiveDuration(g.cleanupInterval)

	go g.cleanup()

	return g
}

// GetOrCompute returns the unexpired value cached under key for type T, or
// runs compute, stores its result for ttl and returns it. Only one compute runs
// per key at a time; callers racing on the same miss receive the same result.
// Errors from compute are returned to every waiting caller and are not cached.
// Cancelling ctx ends only this caller's wait; compute keeps running for the
// others and is never handed a cancellable context.
func GetOrCompute[T any](ctx context.Context, g *Guard, key string, compute func(context.Context) (T, error), ttl time.Duration) (T, error) {
	var zero T

	if g == nil {
		return zero, fmt.Errorf("%w: guard is nil", common.ErrInvalidArgument)
	}
	if g.closed.Load() {
		return zero, common.ErrDisposed
	}
	if compute == nil {
		return zero, fmt.Errorf("%w: compute function is nil", common.ErrInvalidArgument)
	}
	if common.IsBlank(key) {
		return zero, fmt.Errorf("%w: cache key is empty", common.ErrInvalidArgument)
	}
	if ttl < time.Second {
		return zero, fmt.Errorf("%w: ttl %v is below 1s", common.ErrInvalidArgument, ttl)
	}

	qualified := qualifyKey[T](key)

	if value, ok := g.lookup(qualified); ok {
		return valueAs[T](qualified, value)
	}

	// The flight outlives any single caller, so it runs detached from the
	// caller's cancellation. Each caller only abandons its own wait.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(qualified, func() (any, error) {
		// Another caller may have stored the value between our miss and
		// entering the flight.
		if value, ok := g.peek(qualified); ok {
			return value, nil
		}

		result, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		if err := g.store(qualified, result, ttl); err != nil {
			return nil, err
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			gardenermetrics.CacheLookups.WithLabelValues("shared").Inc()
		}
		return valueAs[T](qualified, res.Val)
	}
}

// Remove evicts the entry stored under key for type T. Removing an absent key
// is not an error.
func Remove[T any](g *Guard, key string) error {
	if g == nil {
		return fmt.Errorf("%w: guard is nil", common.ErrInvalidArgument)
	}
	if g.closed.Load() {
		return common.ErrDisposed
	}
	if common.IsBlank(key) {
		return fmt.Errorf("%w: cache key is empty", common.ErrInvalidArgument)
	}

	qualified := qualifyKey[T](key)

	g.mutex.Lock()
	delete(g.data, qualified)
	size := len(g.data)
	g.mutex.Unlock()

	gardenermetrics.CacheEntries.Set(float64(size))
	klog.V(4).InfoS("Removed cache entry", "key", qualified)
	return nil
}

// qualifyKey namespaces key by the full name of T so that different value
// types never share an entry.
func qualifyKey[T any](key string) string {
	return typeName(reflect.TypeOf((*T)(nil)).Elem()) + "-" + key
}

// typeName spells t with import paths for every named type it refers to
func typeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.Name()
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeName(t.Elem()))
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	case reflect.Chan:
		return t.ChanDir().String() + " " + typeName(t.Elem())
	default:
		return t.String()
	}
}

// valueAs converts a stored value back to T. A value of another type means
// two types collided on one key.
func valueAs[T any](key string, value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %q holds %T, not %s", key, value, reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}

// lookup returns a live entry and records a hit or miss
func (g *Guard) lookup(key string) (any, bool) {
	value, ok := g.peek(key)
	if ok {
		g.recordHit(key)
		return value, true
	}
	g.recordMiss()
	return nil, false
}

// peek returns a live entry without touching metrics. Expired entries are
// evicted on the way.
func (g *Guard) peek(key string) (any, bool) {
	g.mutex.RLock()
	entry, exists := g.data[key]
	g.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if !g.clock.Now().Before(entry.expiresAt) {
		g.mutex.Lock()
		// Only evict if nobody replaced it meanwhile
		if current, ok := g.data[key]; ok && current == entry {
			delete(g.data, key)
		}
		g.mutex.Unlock()
		klog.V(4).InfoS("Evicted expired cache entry on lookup", "key", key)
		return nil, false
	}

	return entry.value, true
}

func (g *Guard) store(key string, value any, ttl time.Duration) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed.Load() {
		return common.ErrDisposed
	}

	expiresAt := g.clock.Now().Add(ttl)
	g.data[key] = &cacheEntry{
		value:     value,
		expiresAt: expiresAt,
	}
	gardenermetrics.CacheEntries.Set(float64(len(g.data)))

	klog.V(4).InfoS("Cached value",
		"key", key,
		"ttl", ttl,
		"expiresAt", expiresAt)
	return nil
}

// GetMetrics returns cache performance metrics
func (g *Guard) GetMetrics() (hits, misses int64) {
	g.metrics.mutex.RLock()
	defer g.metrics.mutex.RUnlock()
	return g.metrics.hits, g.metrics.misses
}

func (g *Guard) recordHit(key string) {
	g.mutex.Lock()
	if entry, ok := g.data[key]; ok {
		entry.hits++
	}
	g.mutex.Unlock()

	g.metrics.mutex.Lock()
	g.metrics.hits++
	g.metrics.mutex.Unlock()
	gardenermetrics.CacheLookups.WithLabelValues("hit").Inc()
}

func (g *Guard) recordMiss() {
	g.metrics.mutex.Lock()
	g.metrics.misses++
	g.metrics.mutex.Unlock()
	gardenermetrics.CacheLookups.WithLabelValues("miss").Inc()
}

// ensurePositiveDuration makes sure a duration is positive
func ensurePositiveDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return common.DefaultCacheCleanupInterval
	}
	return d
}

// cleanup periodically removes expired entries
func (g *Guard) cleanup() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.removeExpired()
		}
	}
}

func (g *Guard) removeExpired() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	now := g.clock.Now()
	for key, entry := range g.data {
		if !now.Before(entry.expiresAt) {
			delete(g.data, key)
			klog.V(4).InfoS("Removed expired cache entry",
				"key", key,
				"hits", entry.hits)
		}
	}
	gardenermetrics.CacheEntries.Set(float64(len(g.data)))
}

// Close stops the sweeper and drops all entries. Any later call on the guard
// returns common.ErrDisposed. Close is idempotent.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		close(g.stopCh)

		g.mutex.Lock()
		g.data = make(map[string]*cacheEntry)
		g.mutex.Unlock()

		gardenermetrics.CacheEntries.Set(0)
		klog.V(4).Info("Closed cache guard")
	})
}

// Clear removes all entries from the cache
func (g *Guard) Clear() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed.Load() {
		return common.ErrDisposed
	}

	g.data = make(map[string]*cacheEntry)
	gardenermetrics.CacheEntries.Set(0)
	klog.V(4).Info("Cleared cache")
	return nil
}

// Size returns the number of entries in the cache, expired ones included until
// they are swept
func (g *Guard) Size() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.data)
}
