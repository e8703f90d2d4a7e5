// Package pool implements the core's thread pool (spec.md §4.2): a
// permit-based worker admission gate with adaptive scale up/down. Workers
// themselves are plain goroutines; the pool only governs how many may run
// at once, via a weighted semaphore whose logical width can be resized
// without revoking outstanding permits.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/metricsbus"
	"golang.org/x/sync/semaphore"
)

// Strategy is the thread pool's own closed scaling-strategy enum. Per
// spec.md §9's first open question, the source's two "thread-pool strategy"
// enums are collapsed into this single set plus the separate Hint enum
// below.
type Strategy string

const (
	Fixed       Strategy = "fixed"
	AutoExpand  Strategy = "auto_expand"
	AutoShrink  Strategy = "auto_shrink"
	Adaptive    Strategy = "adaptive"
)

// Hint is an orthogonal performance hint, kept separate from Strategy per
// spec.md §9.
type Hint string

const (
	Throughput        Hint = "throughput"
	Latency           Hint = "latency"
	ResourceEfficient Hint = "resource_efficient"
	Balanced          Hint = "balanced"
)

// DefaultScaleInterval is the minimum interval between scale operations.
const DefaultScaleInterval = 10 * time.Second

// DefaultStackSize documents the worker stack size hint (spec.md §4.2);
// Go goroutines grow their stacks dynamically, so this is carried only as
// a configuration knob for parity with the spec, not used to preallocate.
const DefaultStackSize = 2 << 20 // 2 MiB

// Config configures a Pool.
type Config struct {
	Initial      int
	Min          int
	Max          int
	Strategy     Strategy
	Hint         Hint
	ScaleInterval time.Duration
	StackSize    int
}

func (c Config) withDefaults() Config {
	if c.ScaleInterval <= 0 {
		c.ScaleInterval = DefaultScaleInterval
	}
	if c.StackSize <= 0 {
		c.StackSize = DefaultStackSize
	}
	if c.Min <= 0 {
		c.Min = 1
	}
	if c.Initial < c.Min {
		c.Initial = c.Min
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	return c
}

// Pool is a permit-based worker admission gate with adaptive sizing.
//
// The underlying semaphore is always sized at Max, since a
// semaphore.Weighted's total weight is fixed at construction and cannot
// grow later. To make the pool's *logical* width start at Initial and
// scale up to Max without ever releasing weight the pool never acquired
// (which panics, see semaphore.Weighted.Release), the pool itself holds
// the Max-Initial gap as a permanently-acquired "reserve". ScaleUp hands
// part of that reserve back to the semaphore (Release); ScaleDown tries
// to claw an equivalent amount back into reserve (TryAcquire), which can
// only succeed once enough permits are idle -- exactly the "no
// preemption, eventual shrink" behavior the pool promises.
type Pool struct {
	cfg Config
	mu  sync.Mutex

	sem      *semaphore.Weighted
	reserved int64 // weight held by the pool itself, not available to workers
	current  int64 // logical width; atomics for load() without the lock
	active   int64
	lastScale time.Time

	reporter *metricsbus.Reporter
}

// New creates a Pool. reporter may be nil, in which case scale/load events
// are not mirrored to the metrics bus.
func New(cfg Config, reporter *metricsbus.Reporter) *Pool {
	cfg = cfg.withDefaults()
	sem := semaphore.NewWeighted(int64(cfg.Max))
	reserved := int64(cfg.Max - cfg.Initial)
	if reserved > 0 {
		// Freshly constructed, so this can never block or fail.
		if !sem.TryAcquire(reserved) {
			panic("pool: failed to reserve initial semaphore headroom")
		}
	}
	return &Pool{
		cfg:      cfg,
		sem:      sem,
		reserved: reserved,
		current:  int64(cfg.Initial),
		reporter: reporter,
	}
}

// Guard is a worker permit. Release must be called exactly once, typically
// via defer, on every termination path including panics.
type Guard struct {
	pool *Pool
}

// Release frees the worker slot. Safe to call from a deferred recover path.
func (g *Guard) Release() {
	g.pool.sem.Release(1)
	atomic.AddInt64(&g.pool.active, -1)
}

// AcquireWorker blocks (cooperatively, via ctx) until a worker slot is free
// or ctx is done. The logical width needs no check here: the permits above
// it are held by the pool itself as its reserve (see scale), so at most
// Current() permits can be acquired.
func (p *Pool) AcquireWorker(ctx context.Context) (*Guard, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errtag.New(errtag.Pool, errtag.Medium, err)
	}
	atomic.AddInt64(&p.active, 1)
	return &Guard{pool: p}, nil
}

// TryAcquireWorker is the non-blocking variant: returns nil, false if no
// permit is immediately available (spec.md's "waiters are queued FIFO" only
// applies to the blocking path; Try never queues).
func (p *Pool) TryAcquireWorker() (*Guard, bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}
	atomic.AddInt64(&p.active, 1)
	return &Guard{pool: p}, true
}

// Load returns active/current, the basis for adaptive scaling decisions.
func (p *Pool) Load() float64 {
	current := atomic.LoadInt64(&p.current)
	if current == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&p.active)) / float64(current)
}

// Current returns the pool's current logical width.
func (p *Pool) Current() int { return int(atomic.LoadInt64(&p.current)) }

// Active returns the number of permits currently held.
func (p *Pool) Active() int { return int(atomic.LoadInt64(&p.active)) }

// ScaleUp grows the pool by 3/2, capped at Max, subject to strategy and the
// minimum scale interval. Returns false if the conditions for scaling were
// not met (not an error: a no-op scale attempt is expected steady-state
// behavior under Adaptive/AutoExpand).
func (p *Pool) ScaleUp() bool {
	return p.scale(func(cur int) int {
		next := (cur * 3) / 2
		if next <= cur {
			next = cur + 1
		}
		if next > p.cfg.Max {
			next = p.cfg.Max
		}
		return next
	}, p.cfg.Strategy == AutoExpand || p.cfg.Strategy == Adaptive)
}

// ScaleDown shrinks the pool to 2/3 of its current width, rounded up and
// floored at Min, subject to strategy and the minimum scale interval.
// Existing permit holders are never preempted: the shrink takes idle
// permits back into the pool's reserve with TryAcquire, and when too few
// permits are idle it returns false and leaves the width unchanged (a
// later call may then succeed).
func (p *Pool) ScaleDown() bool {
	return p.scale(func(cur int) int {
		next := (cur*2 + 2) / 3
		if next >= cur {
			next = cur - 1
		}
		if next < p.cfg.Min {
			next = p.cfg.Min
		}
		return next
	}, p.cfg.Strategy == AutoShrink || p.cfg.Strategy == Adaptive)
}

func (p *Pool) scale(next func(int) int, allowed bool) bool {
	if !allowed {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastScale.IsZero() && time.Since(p.lastScale) < p.cfg.ScaleInterval {
		return false
	}

	cur := int(atomic.LoadInt64(&p.current))
	target := next(cur)
	if target == cur {
		return false
	}

	if target > cur {
		// Hand back part of the reserve we've held since New/last shrink.
		// This is always safe: it only ever releases weight this Pool
		// itself previously acquired, never weight a worker holds.
		grow := int64(target - cur)
		p.sem.Release(grow)
		p.reserved -= grow
	} else {
		// Try to claw the shrink amount back into the reserve. This only
		// succeeds once enough permits are idle, so a pool under
		// sustained load simply fails to shrink this round rather than
		// preempting an active worker; the caller (the adaptive loop)
		// will try again on its next tick.
		shrink := int64(cur - target)
		if !p.sem.TryAcquire(shrink) {
			return false
		}
		p.reserved += shrink
	}
	atomic.StoreInt64(&p.current, int64(target))
	p.lastScale = time.Now()

	logger := corelog.WithComponent("pool")
	logger.Info().Int("from", cur).Int("to", target).Msg("thread pool scaled")

	if p.reporter != nil {
		p.reporter.Record(metricsbus.Event{
			Kind: metricsbus.ThreadPoolAdjusted,
			Values: map[string]float64{
				"current_size": float64(target),
				"load":         p.Load(),
			},
		})
	}
	return true
}
