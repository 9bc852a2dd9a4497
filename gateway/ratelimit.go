package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"goa.design/pulse/rmap"
	"golang.org/x/time/rate"

	"github.com/plantops/opsbrief/errs"
)

// AdaptiveLimiter applies an AIMD-style adaptive queries-per-second budget
// at the Gateway boundary. Connectivity failures halve the budget; each
// success nudges it back toward the ceiling. When constructed with a Pulse
// replicated map it coordinates the budget across every opsbrief process
// sharing the operational store, so one process observing throttling slows
// the whole fleet; otherwise it is process-local.
type AdaptiveLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentQPS float64
	minQPS     float64
	maxQPS     float64

	recoveryRate float64

	onBackoff func(newQPS float64)
	onProbe   func(newQPS float64)
}

// clusterMap is the subset of rmap.Map used by the cluster-aware limiter.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	TestAndSet(ctx context.Context, key, test, value string) (string, error)
	Subscribe() <-chan rmap.EventKind
}

type rmapClusterMap struct {
	m *rmap.Map
}

func (m *rmapClusterMap) Get(key string) (string, bool) { return m.m.Get(key) }
func (m *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return m.m.SetIfNotExists(ctx, key, value)
}
func (m *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return m.m.TestAndSet(ctx, key, test, value)
}
func (m *rmapClusterMap) Subscribe() <-chan rmap.EventKind { return m.m.Subscribe() }

// NewAdaptiveLimiter constructs an AdaptiveLimiter with a queries-per-second
// budget. When m and key are set, capacity is coordinated across processes
// through the Pulse replicated map; otherwise the limiter is process-local.
func NewAdaptiveLimiter(ctx context.Context, m *rmap.Map, key string, initialQPS, maxQPS float64) *AdaptiveLimiter {
	var cm clusterMap
	if m != nil {
		cm = &rmapClusterMap{m: m}
	}
	return newClusterAdaptiveLimiter(ctx, cm, key, initialQPS, maxQPS)
}

func newAdaptiveLimiter(initialQPS, maxQPS float64) *AdaptiveLimiter {
	if initialQPS <= 0 {
		initialQPS = 50
	}
	if maxQPS <= 0 || maxQPS < initialQPS {
		maxQPS = initialQPS
	}
	minQPS := initialQPS * 0.1
	if minQPS < 1 {
		minQPS = 1
	}
	recoveryRate := initialQPS * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialQPS), int(initialQPS)),
		currentQPS:   initialQPS,
		minQPS:       minQPS,
		maxQPS:       maxQPS,
		recoveryRate: recoveryRate,
	}
}

// Wait blocks until the limiter grants one query or ctx ends.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Observe adjusts the budget from a completed call's outcome: connectivity
// failures back off, everything else probes upward.
func (l *AdaptiveLimiter) Observe(err error) {
	if err != nil && errs.KindOf(err) == errs.KindConnectivity {
		l.backoff()
		return
	}
	l.probe()
}

func (l *AdaptiveLimiter) backoff() {
	l.mu.Lock()
	newQPS := l.currentQPS * 0.5
	if newQPS < l.minQPS {
		newQPS = l.minQPS
	}
	if newQPS == l.currentQPS {
		l.mu.Unlock()
		return
	}
	l.currentQPS = newQPS
	l.limiter.SetLimit(rate.Limit(newQPS))
	l.limiter.SetBurst(int(newQPS))
	cb := l.onBackoff
	l.mu.Unlock()

	if cb != nil {
		cb(newQPS)
	}
}

func (l *AdaptiveLimiter) probe() {
	l.mu.Lock()
	newQPS := l.currentQPS + l.recoveryRate
	if newQPS > l.maxQPS {
		newQPS = l.maxQPS
	}
	if newQPS == l.currentQPS {
		l.mu.Unlock()
		return
	}
	l.currentQPS = newQPS
	l.limiter.SetLimit(rate.Limit(newQPS))
	l.limiter.SetBurst(int(newQPS))
	cb := l.onProbe
	l.mu.Unlock()

	if cb != nil {
		cb(newQPS)
	}
}

// replaceQPS sets the budget to an externally observed value, clamped to the
// configured range.
func (l *AdaptiveLimiter) replaceQPS(qps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if qps < l.minQPS {
		qps = l.minQPS
	}
	if qps > l.maxQPS {
		qps = l.maxQPS
	}
	if qps == l.currentQPS {
		return
	}
	l.currentQPS = qps
	l.limiter.SetLimit(rate.Limit(qps))
	l.limiter.SetBurst(int(qps))
}

func (l *AdaptiveLimiter) setClusterCallbacks(onBackoff, onProbe func(newQPS float64)) {
	l.mu.Lock()
	l.onBackoff = onBackoff
	l.onProbe = onProbe
	l.mu.Unlock()
}

func newClusterAdaptiveLimiter(ctx context.Context, m clusterMap, key string, initialQPS, maxQPS float64) *AdaptiveLimiter {
	if key == "" || m == nil {
		return newAdaptiveLimiter(initialQPS, maxQPS)
	}

	// Seed the shared budget when the key does not exist yet; a concurrent
	// writer may still win, the refresh below reconciles.
	if _, ok := m.Get(key); !ok {
		if _, err := m.SetIfNotExists(ctx, key, strconv.Itoa(int(initialQPS))); err != nil {
			// When the cluster map cannot be seeded, fall back to a local
			// limiter so callers still make progress.
			return newAdaptiveLimiter(initialQPS, maxQPS)
		}
	}

	sharedQPS := initialQPS
	if cur, ok := m.Get(key); ok {
		if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
			sharedQPS = v
		}
	}

	l := newAdaptiveLimiter(sharedQPS, maxQPS)

	floor := l.minQPS
	ceiling := l.maxQPS
	step := l.recoveryRate

	l.setClusterCallbacks(
		func(float64) { go globalBackoff(context.Background(), m, key, floor) },
		func(float64) { go globalProbe(context.Background(), m, key, step, ceiling) },
	)

	// Reconcile the local limiter when another process moves the shared
	// budget.
	ch := m.Subscribe()
	go func() {
		for range ch {
			cur, ok := m.Get(key)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(cur, 64)
			if err != nil || v <= 0 {
				continue
			}
			l.replaceQPS(v)
		}
	}()

	return l
}

func globalBackoff(ctx context.Context, m clusterMap, key string, floor float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		curStr, ok := m.Get(key)
		if !ok {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 {
			return
		}
		next := cur * 0.5
		if next < floor {
			next = floor
		}
		prev, err := m.TestAndSet(ctx, key, curStr, strconv.Itoa(int(next)))
		if err != nil || prev == curStr {
			return
		}
	}
}

func globalProbe(ctx context.Context, m clusterMap, key string, step, ceiling float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		curStr, ok := m.Get(key)
		if !ok {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 {
			return
		}
		next := cur + step
		if next > ceiling {
			next = ceiling
		}
		if next == cur {
			return
		}
		prev, err := m.TestAndSet(ctx, key, curStr, strconv.Itoa(int(next)))
		if err != nil || prev == curStr {
			return
		}
	}
}
