package asyncexec

import (
	"context"
	"runtime"
	"sort"
	"sync"
)

// Domain is the logical execution bucket a task is tagged with (spec.md
// §3's "Execution domain"). Built-in domains plus Custom(name) for caller-
// defined buckets.
type Domain string

const (
	Compute    Domain = "compute"
	IO         Domain = "io"
	Network    Domain = "network"
	Background Domain = "background"
)

// CustomDomain builds a Custom(name) domain, mirroring spec.md's
// Custom(u32) variant with a string name instead of a numeric tag (more
// useful for logging and metrics labels).
func CustomDomain(name string) Domain { return Domain("custom:" + name) }

// Priority is the task priority ordinal, highest first.
type Priority string

const (
	Lowest  Priority = "lowest"
	Low     Priority = "low"
	Normal  Priority = "normal"
	High    Priority = "high"
	Highest Priority = "highest"
)

var priorityRank = map[Priority]int{
	Lowest:  0,
	Low:     1,
	Normal:  2,
	High:    3,
	Highest: 4,
}

func rankOf(p Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[Normal]
}

// DefaultDomainLimit computes the concurrency limit for a built-in domain
// per spec.md §4.3: compute≈2·cpus, io≈4·cpus, network≈8·cpus,
// background≈cpus.
func DefaultDomainLimit(d Domain) int {
	cpus := runtime.NumCPU()
	switch d {
	case Compute:
		return 2 * cpus
	case IO:
		return 4 * cpus
	case Network:
		return 8 * cpus
	case Background:
		return cpus
	default:
		return cpus
	}
}

// waiter is one blocked admission request for a domainGate.
type waiter struct {
	rank int
	seq  uint64
	ch   chan struct{}
}

// domainGate is a counted, priority-ordered admission gate for one domain.
// Admission is acquired before a worker permit (spec.md §4.3: "prevents
// priority inversion across domains"). Within a domain, waiters are served
// highest-priority-first, FIFO within a priority level (spec.md §5).
type domainGate struct {
	mu      sync.Mutex
	limit   int
	inUse   int
	waiters []*waiter
	seqGen  uint64
}

func newDomainGate(limit int) *domainGate {
	if limit <= 0 {
		limit = 1
	}
	return &domainGate{limit: limit}
}

func (g *domainGate) acquire(ctx context.Context, priority Priority) error {
	g.mu.Lock()
	if g.inUse < g.limit && len(g.waiters) == 0 {
		g.inUse++
		g.mu.Unlock()
		return nil
	}

	g.seqGen++
	w := &waiter{rank: rankOf(priority), seq: g.seqGen, ch: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	sort.SliceStable(g.waiters, func(i, j int) bool {
		if g.waiters[i].rank != g.waiters[j].rank {
			return g.waiters[i].rank > g.waiters[j].rank
		}
		return g.waiters[i].seq < g.waiters[j].seq
	})
	g.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, other := range g.waiters {
			if other == w {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// Lost the race: a release() already granted this waiter the slot
		// between ctx firing and us taking the lock. Drain the grant and
		// hand it to the next waiter so the permit isn't stranded.
		<-w.ch
		g.release()
		return ctx.Err()
	}
}

func (g *domainGate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(w.ch)
		return
	}
	if g.inUse > 0 {
		g.inUse--
	}
}

// active reports the current admitted count, for invariant checks.
func (g *domainGate) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// domainRegistry owns one gate per domain, created lazily.
type domainRegistry struct {
	mu    sync.Mutex
	gates map[Domain]*domainGate
	limits map[Domain]int
}

func newDomainRegistry(limits map[Domain]int) *domainRegistry {
	return &domainRegistry{
		gates:  make(map[Domain]*domainGate),
		limits: limits,
	}
}

func (r *domainRegistry) gate(d Domain) *domainGate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gates[d]; ok {
		return g
	}
	limit, ok := r.limits[d]
	if !ok {
		limit = DefaultDomainLimit(d)
	}
	g := newDomainGate(limit)
	r.gates[d] = g
	return g
}

// Active returns the in-flight task count for domain d, for tests asserting
// spec.md invariant 2: active_tasks(D) <= concurrency_limit(D).
func (r *domainRegistry) Active(d Domain) int {
	return r.gate(d).active()
}
